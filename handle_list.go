package ringmap

import "sync/atomic"

// handleLink is the intrusive, lock-free list linkage shared by every
// handle in a group. It is the Go translation of the original's
// Next<T>/NextWithUnpin<T> tagged-pointer scheme (sebr_local.hpp): a CAS
// loop pushes new handles onto the sentinel's active chain, and a departing
// handle tags itself, then cooperatively splices every tagged handle its
// walk encounters out of that chain before finally linking itself onto a
// second "already left" chain for the group destructor to free.
//
// Go pointers cannot safely carry a low-bit tag the way the C++ source does
// (reinterpret_cast-ing the low bit of a std::atomic<T*>), so the tag is
// carried as an explicit atomic.Bool alongside the pointer instead of
// stolen from it — the same "pack explicit fields, CAS the unit" idiom the
// teacher's own roundabout.go uses for its (epoch,flags,bitmap) header,
// applied to a single boolean field rather than a 64-bit word.
type handleLink struct {
	sentinel *handle       // nil on the sentinel itself
	next     atomic.Pointer[handle]
	prev     atomic.Pointer[handle] // valid only after leave() has run
	removed  atomic.Bool
}

// newSentinelLink initializes a handle as a circular, empty list terminator:
// next and prev both point back at self, exactly as the original's default
// Next()/NextWithUnpin() constructors do.
func newSentinelLink(self *handle) {
	self.next.Store(self)
	self.prev.Store(self)
}

// join pushes self onto the front of sentinel's active chain via a Treiber
// stack push (CAS loop), mirroring Next<T>::pin().
func (h *handle) join(sentinel *handle) {
	h.sentinel = sentinel
	for {
		old := sentinel.next.Load()
		h.next.Store(old)
		if sentinel.next.CompareAndSwap(old, h) {
			return
		}
	}
}

// leave tags self as removed, then repeatedly walks the active chain from
// the sentinel splicing out every tagged handle it finds (restarting if its
// immediate predecessor gets tagged out from under it mid-walk — the same
// "goto UNLINK_TAGGED_NODE" restart the original uses). Once a full walk
// observes no tagged handle reachable from the sentinel, cleanup runs
// (publishing the handle's final state) and self is linked onto the
// sentinel's "prev" chain for the group destructor to reclaim.
func (h *handle) leave(cleanup func()) {
	h.removed.Store(true)

	for {
		if h.unlinkTaggedPass() {
			break
		}
	}

	cleanup()

	for {
		old := h.sentinel.prev.Load()
		h.prev.Store(old)
		if h.sentinel.prev.CompareAndSwap(old, h) {
			return
		}
	}
}

// unlinkTaggedPass performs one walk of the active chain. At the first
// removed handle it meets, it tries to splice out that handle and any
// removed handles directly after it, then returns false so the caller
// walks again (it also returns false on seeing a tagged predecessor). It
// returns true only when the walk reaches the sentinel without meeting a
// removed handle.
func (h *handle) unlinkTaggedPass() bool {
	sentinel := h.sentinel
	prev := sentinel
	next := untagNext(prev)

	for next != sentinel {
		if next.removed.Load() {
			if prev.removed.Load() {
				return false
			}

			after := untagNext(next)
			for after != sentinel && after.removed.Load() {
				after = untagNext(after)
			}

			if prev.removed.Load() {
				return false
			}
			prev.next.CompareAndSwap(next, after)
			return false
		}

		prev = next
		next = untagNext(prev)
	}

	return true
}

// untagNext reads a node's next link. There is no pointer tag to mask here
// (see handleLink doc comment) but the name is kept to mirror the
// original's untagged_address() call at every hop, which is exactly what
// this does semantically: read the link regardless of the node's own
// removed flag.
func untagNext(h *handle) *handle {
	return h.next.Load()
}

// forEachLive calls fn for every handle still reachable from the sentinel's
// active chain whose removed flag is not set, in chain order. Used by local
// reclamation to compute the minimum live epoch across a group.
func forEachLive(sentinel *handle, fn func(*handle)) {
	cur := untagNext(sentinel)
	for cur != sentinel {
		if !cur.removed.Load() {
			fn(cur)
		}
		cur = untagNext(cur)
	}
}
