package ringmap

// sizeCtl encodes, on the Map itself, either a positive "next resize
// threshold" or — while a resize is in flight — a negative value whose
// magnitude counts the number of goroutines currently helping transfer
// bins, mirroring ConcurrentHashMap's sizeCtl/transfer/tryPresize/
// helpTransfer (concurrent_hash_map.hpp).
//
// Go has no single compare-and-swap-with-struct-tag trick needed here
// beyond what atomic.Int64 already gives us: a resize is in progress when
// sizeCtl < resizeInFlight. startResize claims a resize by setting sizeCtl
// to -2, and every goroutine inside helpTransfer lowers it by one more, so
// |sizeCtl| - 2 is the number of goroutines currently transferring bins;
// the one whose exit brings it back to -2 publishes the new table.
// sizeCtl == resizeInFlight itself marks first-time table construction in
// tryPresize and, briefly, the publication of a finished resize: neither
// state admits a joiner, as ConcurrentHashMap's sizeCtl == -1 means "table
// being initialized".
const resizeInFlight = -1

func isResizing(sizeCtl int64) bool { return sizeCtl < resizeInFlight }

// startResize installs a new, larger successor table on old and returns it,
// or returns the successor another goroutine already installed. Exactly one
// caller wins the CAS that claims sizeCtl's "resizing" state; everyone else
// (and the winner too) then calls transferAll cooperatively.
func (m *mapCore) startResize(old *bucketTable, sizeHint int) *bucketTable {
	for {
		sc := m.sizeCtl.Load()
		if isResizing(sc) {
			return old.loadSuccessor()
		}
		if sc == resizeInFlight {
			continue // a finished resize is being published
		}
		newCap := old.length() * 2
		if sizeHint > 0 {
			for newCap < sizeHint && newCap < maximumCapacity {
				newCap *= 2
			}
		}
		if newCap > maximumCapacity {
			newCap = maximumCapacity
		}
		if m.sizeCtl.CompareAndSwap(sc, resizeInFlight-1) {
			if m.table.Load() != old {
				// old was already replaced by a finished resize; give the
				// claim back instead of growing a retired table.
				m.sizeCtl.Store(sc)
				return old.loadSuccessor()
			}
			next := newBucketTable(newCap)
			old.transferIndex.Store(int64(old.length()))
			old.setSuccessor(next)
			return next
		}
	}
}

// helpTransfer joins an in-progress resize of old into its successor,
// claiming chunks of bins until none remain, then returns the successor.
// Called both by the goroutine that started the resize and by any other
// goroutine that lands on a hashMoved marker mid-operation. pin is the
// caller's already-held Pin, reused to retire old once the last helper
// finishes draining it.
func (m *mapCore) helpTransfer(pin Pin, old *bucketTable) *bucketTable {
	next := old.loadSuccessor()
	if next == nil {
		return old
	}

	// Join the count only while old's resize is still in flight and has
	// bins left to claim: a late arrival after old was published must not
	// move sizeCtl, which by then holds a threshold or the count of a later
	// resize, and arrivals with nothing to claim would only keep the count
	// from draining back to -2.
	for {
		sc := m.sizeCtl.Load()
		if !isResizing(sc) || m.table.Load() != old || old.transferIndex.Load() <= 0 {
			return next
		}
		if m.sizeCtl.CompareAndSwap(sc, sc-1) {
			break
		}
	}
	defer func() {
		// The last one out claims the finish by moving sizeCtl to -1, which
		// admits no joiner, then publishes the live table's successor once
		// all of its bins are claimed (or hands -2 back if they are not).
		if m.sizeCtl.Add(1) != resizeInFlight-1 || !m.sizeCtl.CompareAndSwap(resizeInFlight-1, resizeInFlight) {
			return
		}
		cur := m.table.Load()
		if succ := cur.loadSuccessor(); succ != nil && cur.transferIndex.Load() <= 0 {
			m.finishResize(pin, cur, succ)
		} else {
			m.sizeCtl.Store(resizeInFlight - 1)
		}
	}()

	m.transferAll(pin, old, next)
	return next
}

// transferAll claims and migrates stride-sized chunks of old's bins into
// next until the index reaches zero, cooperating with any other goroutine
// doing the same (MIN_TRANSFER_STRIDE).
func (m *mapCore) transferAll(pin Pin, old, next *bucketTable) {
	for {
		idx := old.transferIndex.Load()
		if idx <= 0 {
			return
		}
		lo := idx - minTransferStride
		if lo < 0 {
			lo = 0
		}
		if !old.transferIndex.CompareAndSwap(idx, lo) {
			continue
		}
		for i := idx - 1; i >= lo; i-- {
			m.transferBin(pin, old, next, int(i))
		}
		if lo == 0 {
			return
		}
	}
}

// finishResize publishes next as the map's live table once every bin of
// old has been migrated, and retires old through pin's reclaimer.
func (m *mapCore) finishResize(pin Pin, old, next *bucketTable) {
	m.table.Store(next)
	m.sizeCtl.Store(int64(next.length() * loadFactorNum / loadFactorDen))
	pin.Retire(retireTable(old), old.length()*8)
}

// transferBin migrates bin i of old into next, splitting its chain (or
// tree) into a "lo" half that stays at index i and a "hi" half that moves
// to i+old.length(), exactly as ConcurrentHashMap's transfer() does, then
// installs a hashMoved forwarding marker in old's slot.
func (m *mapCore) transferBin(pin Pin, old, next *bucketTable, i int) {
	old.lockBin(i)
	defer old.unlockBin(i)

	head := old.loadBin(i)
	if head == nil {
		// CAS, not store: putVal fills an empty bin without the stripe lock.
		if old.casBin(i, nil, newForwardingMarker(next)) {
			return
		}
		head = old.loadBin(i)
	}
	if head.hash == hashMoved {
		return // already migrated by a racing helper before we took the lock
	}

	if head.hash == hashTreeBin {
		m.splitTreeBin(pin, old, next, i, head.treeBin)
		old.storeBin(i, newForwardingMarker(next))
		return
	}

	var loHead, loTail, hiHead, hiTail *node
	for n := head; n != nil; n = n.next.Load() {
		if n.hash&int64(old.length()) == 0 {
			if loTail == nil {
				loHead = n
			} else {
				loTail.next.Store(n)
			}
			loTail = n
		} else {
			if hiTail == nil {
				hiHead = n
			} else {
				hiTail.next.Store(n)
			}
			hiTail = n
		}
	}
	if loTail != nil {
		loTail.next.Store(nil)
	}
	if hiTail != nil {
		hiTail.next.Store(nil)
	}

	next.lockBin(i)
	next.storeBin(i, loHead)
	next.unlockBin(i)

	next.lockBin(i + old.length())
	next.storeBin(i+old.length(), hiHead)
	next.unlockBin(i + old.length())

	old.storeBin(i, newForwardingMarker(next))
}

// splitTreeBin partitions a tree bin's members the same way transferBin
// splits a list bin, rebuilding two plain red-black trees (or, if a half
// drops at or below UNTREEIFY_THRESHOLD, a plain list instead). The
// original nodes are cloned rather than relinked because a tree node's
// parent/left/right fields belong to the old tree's now-retiring shape;
// the clones carry the same hash/key/seq/value forward.
func (m *mapCore) splitTreeBin(pin Pin, old, next *bucketTable, i int, tb *treeBin) {
	var loHead, loTail, hiHead, hiTail *node
	loCount, hiCount := 0, 0

	for n := tb.first; n != nil; n = n.next.Load() {
		clone := &node{hash: n.hash, key: n.key, seq: n.seq}
		clone.val.Store(n.val.Load())
		if n.hash&int64(old.length()) == 0 {
			if loTail == nil {
				loHead = clone
			} else {
				loTail.next.Store(clone)
			}
			loTail = clone
			loCount++
		} else {
			if hiTail == nil {
				hiHead = clone
			} else {
				hiTail.next.Store(clone)
			}
			hiTail = clone
			hiCount++
		}
	}
	if loTail != nil {
		loTail.next.Store(nil)
	}
	if hiTail != nil {
		hiTail.next.Store(nil)
	}

	next.lockBin(i)
	next.storeBin(i, buildBinFromChain(loHead, loCount))
	next.unlockBin(i)

	hi := i + old.length()
	next.lockBin(hi)
	next.storeBin(hi, buildBinFromChain(hiHead, hiCount))
	next.unlockBin(hi)

	pin.Retire(retirePartialTree(tb), 64)
}

// buildBinFromChain returns head unchanged if count is at or below
// untreeifyThreshold, otherwise rebuilds it as a fresh tree bin.
func buildBinFromChain(head *node, count int) *node {
	if head == nil {
		return nil
	}
	if count <= untreeifyThreshold {
		return head
	}
	tb := newTreeBin()
	for n := head; n != nil; {
		next := n.next.Load()
		rbInsert(tb, n)
		n = next
	}
	return newTreeMarker(tb)
}

// tryPresize grows the table ahead of a bulk load so individual inserts
// don't each trigger their own resize. It returns once size is at or below
// the current sizeCtl threshold. While a resize is in flight sizeCtl is
// negative, so that comparison never ends the loop early for a
// non-negative size; the caller joins the resize instead and then checks
// again against the threshold of the table it published.
func (m *mapCore) tryPresize(pin Pin, size int) {
	for {
		t := m.table.Load()
		sc := m.sizeCtl.Load()
		if t == nil {
			if sc == resizeInFlight {
				continue // another goroutine already claimed initialization; spin until m.table is visible
			}
			cap := roundUpPow2(size)
			if m.sizeCtl.CompareAndSwap(sc, resizeInFlight) {
				nt := newBucketTable(cap)
				m.table.Store(nt)
				m.sizeCtl.Store(int64(cap * loadFactorNum / loadFactorDen))
			}
			continue
		}
		if size <= int(sc) || t.length() >= maximumCapacity {
			return
		}
		if t == m.table.Load() {
			next := m.startResize(t, size)
			m.helpTransfer(pin, t)
			if t.loadSuccessor() == next {
				continue
			}
		}
		return
	}
}
