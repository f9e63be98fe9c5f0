package ringmap

// ScopedRef is a live, non-copying handle on a Map entry's value, matching
// spec §6: "Map::find_reference(&self, k) -> ScopedRef<V> — holds a Pin;
// value accessible until the scope ends." Unlike Find, which copies the
// value out under a pin that closes before returning, ScopedRef keeps its
// own Pin open for as long as the caller holds the ScopedRef: the node it
// points at cannot be freed (retire only frees once every pinned epoch has
// advanced past it, handle.go's reclaim) even if a concurrent Erase unlinks
// it from the table in the meantime. This is exactly what spec §8 Testable
// Property 1 requires to be expressible: "for every (K, V) retired during a
// Pin held by thread A, thread A may continue to dereference the returned
// reference until the Pin drops."
type ScopedRef[V any] struct {
	ref *HandleRef
	pin Pin
	n   *node
}

// Value reads the entry's current value. It is always safe to call until
// Close, even if the entry has since been erased by another goroutine: the
// node itself cannot be reclaimed while this ScopedRef's Pin is open. The
// read is not snapshotted — a concurrent Insert overwriting the same key
// is visible here exactly as it is to a fresh Find (spec Non-goals: no
// cross-key transactions, no isolation guarantee beyond per-node atomics).
func (s *ScopedRef[V]) Value() V {
	v, _ := s.n.loadValue().(V)
	return v
}

// Close ends the scope, releasing the Pin and the handle it was bound to.
// After Close, the value is no longer guaranteed live and must not be read.
func (s *ScopedRef[V]) Close() {
	s.pin.Unpin()
	s.ref.Close()
}

// FindReference looks up key and, if present, returns a ScopedRef holding
// it live for as long as the caller keeps it open. Unlike Find, this binds
// a dedicated HandleRef (not the short-lived pooled one withPin uses)
// because the pin must outlive this call. The caller must Close the
// returned ScopedRef; failing to do so pins the reclaimer's epoch
// indefinitely, exactly like a leaked Iterator.
func (m *Map[K, V]) FindReference(key K) (*ScopedRef[V], bool) {
	ref := m.core.group.Bind()
	p := ref.Pin()
	n := m.core.find(m.spread(key), key, keyEq[K])
	if n == nil {
		p.Unpin()
		ref.Close()
		return nil, false
	}
	return &ScopedRef[V]{ref: ref, pin: p, n: n}, true
}
