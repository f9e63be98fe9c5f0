package ringmap

// Pin is a scoped critical section against a Group, modeled on the
// original's PackedHandle: acquiring one stamps the bound handle with the
// group's current epoch, and releasing it (via Unpin, typically deferred)
// marks the handle as outside any critical section again. While a Pin is
// held, nothing the holder read through it may be freed by any other
// goroutine's reclamation pass.
type Pin struct {
	ref *HandleRef
}

// Pin enters a critical section on ref. Typical use:
//
//	p := ref.Pin()
//	defer p.Unpin()
func (r *HandleRef) Pin() Pin {
	r.pin()
	return Pin{ref: r}
}

// Unpin leaves the critical section. It is not reentrant: a Pin may only
// be unpinned once, matching one pin()/unpin() pair on the handle.
func (p Pin) Unpin() {
	p.ref.unpin()
}

// Retire hands the pin's reclaimer an object to free once no Pin anywhere
// in the group could still observe it. size is an approximate byte cost
// used only to drive the epoch-bump and local-GC thresholds (spec §4.3);
// it need not be exact.
func (p Pin) Retire(intent reclaimIntent, size int) {
	p.ref.h.retire(intent, int64(size))
}

// Epoch reports the epoch this pin entered at.
func (p Pin) Epoch() int64 {
	return p.ref.h.epoch.Load()
}
