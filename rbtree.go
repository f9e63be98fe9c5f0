package ringmap

// Red-black tree operations over *node, following Cormen/Leiserson/Rivest
// (as concurrent_hash_map.hpp's TreeNode insert/delete/rotate do). Ordering
// is primarily by hash; when two keys share a hash, tie is broken by each
// node's insertion sequence number (node.seq) so the tree still has a
// total order even though K is only comparable, not ordered (Java's
// TreeBin uses identityHashCode the same way when keys aren't mutually
// Comparable).
//
// Every mutator here assumes the caller already holds treeBin.lockRoot().

// rbCompareNodes orders two tree nodes by hash, then by insertion sequence.
func rbCompareNodes(a, b *node) int {
	if a.hash != b.hash {
		if a.hash < b.hash {
			return -1
		}
		return 1
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

// rbFind locates key by hash, searching both subtrees whenever a node's
// hash matches but its key doesn't (the tree only orders by hash+seq, so a
// hash collision between distinct keys can legally land on either side).
func rbFind(root *node, hash int64, key any, eq func(a, b any) bool) *node {
	cur := root
	for cur != nil {
		if cur.hash == hash && eq(cur.key, key) {
			return cur
		}
		switch {
		case hash < cur.hash:
			cur = cur.left
		case hash > cur.hash:
			cur = cur.right
		default:
			if l := rbFind(cur.left, hash, key, eq); l != nil {
				return l
			}
			cur = cur.right
		}
	}
	return nil
}

// rbInsert links n into the tree rooted at tb.root (creating the root if
// empty) and appends it to the first/last insertion-ordered list, then
// restores the red-black invariants.
func rbInsert(tb *treeBin, n *node) {
	n.left, n.right, n.parent = nil, nil, nil
	n.red = true

	if tb.last == nil {
		tb.first = n
		tb.last = n
	} else {
		tb.last.next.Store(n)
		n.prev = tb.last
		tb.last = n
	}

	if tb.root == nil {
		n.red = false
		tb.root = n
		return
	}

	cur := tb.root
	var parent *node
	goLeft := false
	for cur != nil {
		parent = cur
		if rbCompareNodes(n, cur) < 0 {
			goLeft = true
			cur = cur.left
		} else {
			goLeft = false
			cur = cur.right
		}
	}
	n.parent = parent
	if goLeft {
		parent.left = n
	} else {
		parent.right = n
	}
	rbInsertFixup(tb, n)
}

func isRed(n *node) bool { return n != nil && n.red }

func rbRotateLeft(tb *treeBin, x *node) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		tb.root = y
	} else if x == x.parent.left {
		x.parent.left = y
	} else {
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func rbRotateRight(tb *treeBin, x *node) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	if x.parent == nil {
		tb.root = y
	} else if x == x.parent.right {
		x.parent.right = y
	} else {
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func rbInsertFixup(tb *treeBin, z *node) {
	for isRed(z.parent) {
		gp := z.parent.parent
		if gp == nil {
			break
		}
		if z.parent == gp.left {
			uncle := gp.right
			if isRed(uncle) {
				z.parent.red = false
				uncle.red = false
				gp.red = true
				z = gp
				continue
			}
			if z == z.parent.right {
				z = z.parent
				rbRotateLeft(tb, z)
			}
			z.parent.red = false
			gp.red = true
			rbRotateRight(tb, gp)
		} else {
			uncle := gp.left
			if isRed(uncle) {
				z.parent.red = false
				uncle.red = false
				gp.red = true
				z = gp
				continue
			}
			if z == z.parent.left {
				z = z.parent
				rbRotateRight(tb, z)
			}
			z.parent.red = false
			gp.red = true
			rbRotateLeft(tb, gp)
		}
	}
	tb.root.red = false
}

// rbDelete removes n from the tree and from the first/last insertion list.
// map.go's removeVal calls it and then, once the list is down to
// untreeifyThreshold entries or fewer, untreeifies the bin back to a plain
// list (UNTREEIFY_THRESHOLD).
func rbDelete(tb *treeBin, n *node) {
	// unlink from insertion-ordered list first
	prev := n.prev
	next := n.next.Load()
	if prev != nil {
		prev.next.Store(next)
	} else {
		tb.first = next
	}
	if next != nil {
		next.prev = prev
	} else {
		tb.last = prev
	}
	n.prev = nil
	n.next.Store(nil)

	rbDeleteNode(tb, n)
}

func rbDeleteNode(tb *treeBin, z *node) {
	y := z
	yOrigRed := y.red
	var x, xParent *node

	switch {
	case z.left == nil:
		x = z.right
		xParent = z.parent
		rbTransplant(tb, z, z.right)
	case z.right == nil:
		x = z.left
		xParent = z.parent
		rbTransplant(tb, z, z.left)
	default:
		y = rbMinimum(z.right)
		yOrigRed = y.red
		x = y.right
		if y.parent == z {
			xParent = y
		} else {
			xParent = y.parent
			rbTransplant(tb, y, y.right)
			y.right = z.right
			y.right.parent = y
		}
		rbTransplant(tb, z, y)
		y.left = z.left
		y.left.parent = y
		y.red = z.red
	}

	if !yOrigRed {
		rbDeleteFixup(tb, x, xParent)
	}
}

func rbMinimum(n *node) *node {
	for n.left != nil {
		n = n.left
	}
	return n
}

func rbTransplant(tb *treeBin, u, v *node) {
	if u.parent == nil {
		tb.root = v
	} else if u == u.parent.left {
		u.parent.left = v
	} else {
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

// rbDeleteFixup restores the red-black invariants after a removal. x may
// be nil (a deleted leaf's missing child), so the "double black" case
// tracks the parent explicitly rather than relying on x.parent.
func rbDeleteFixup(tb *treeBin, x, parent *node) {
	for x != tb.root && !isRed(x) {
		if parent == nil {
			break
		}
		if x == parent.left {
			w := parent.right
			if isRed(w) {
				w.red = false
				parent.red = true
				rbRotateLeft(tb, parent)
				w = parent.right
			}
			if w == nil {
				x = parent
				parent = x.parent
				continue
			}
			if !isRed(w.left) && !isRed(w.right) {
				w.red = true
				x = parent
				parent = x.parent
				continue
			}
			if !isRed(w.right) {
				if w.left != nil {
					w.left.red = false
				}
				w.red = true
				rbRotateRight(tb, w)
				w = parent.right
			}
			w.red = parent.red
			parent.red = false
			if w.right != nil {
				w.right.red = false
			}
			rbRotateLeft(tb, parent)
			x = tb.root
			parent = nil
		} else {
			w := parent.left
			if isRed(w) {
				w.red = false
				parent.red = true
				rbRotateRight(tb, parent)
				w = parent.left
			}
			if w == nil {
				x = parent
				parent = x.parent
				continue
			}
			if !isRed(w.right) && !isRed(w.left) {
				w.red = true
				x = parent
				parent = x.parent
				continue
			}
			if !isRed(w.left) {
				if w.right != nil {
					w.right.red = false
				}
				w.red = true
				rbRotateLeft(tb, w)
				w = parent.left
			}
			w.red = parent.red
			parent.red = false
			if w.left != nil {
				w.left.red = false
			}
			rbRotateRight(tb, parent)
			x = tb.root
			parent = nil
		}
	}
	if x != nil {
		x.red = false
	}
}

// checkInvariants validates the standard red-black properties; used only
// by tests (spec §8: "red-black invariants").
func checkInvariants(root *node) bool {
	if root == nil {
		return true
	}
	if root.red {
		return false
	}
	_, ok := blackHeight(root)
	return ok
}

func blackHeight(n *node) (int, bool) {
	if n == nil {
		return 1, true
	}
	if isRed(n) && (isRed(n.left) || isRed(n.right)) {
		return 0, false
	}
	lh, ok := blackHeight(n.left)
	if !ok {
		return 0, false
	}
	rh, ok := blackHeight(n.right)
	if !ok {
		return 0, false
	}
	if lh != rh {
		return 0, false
	}
	add := 1
	if isRed(n) {
		add = 0
	}
	return lh + add, true
}
