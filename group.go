package ringmap

import (
	"sync"
	"sync/atomic"
)

// Default thresholds (spec §4.3 "Design Notes: tunable thresholds").
const (
	defaultBytesEpochThreshold = 64 << 10
	defaultBytesGCThreshold    = 256 << 10
)

// GroupOptions tunes the two reclamation thresholds. The zero value selects
// the defaults above.
type GroupOptions struct {
	// BytesEpochThreshold is the number of retired bytes a single handle
	// accumulates before it bumps the group epoch.
	BytesEpochThreshold int

	// BytesGCThreshold is the number of retired bytes a single handle
	// accumulates (since its last local reclamation) before it attempts a
	// local reclamation scan on its next Pin exit.
	BytesGCThreshold int
}

func (o GroupOptions) withDefaults() GroupOptions {
	if o.BytesEpochThreshold <= 0 {
		o.BytesEpochThreshold = defaultBytesEpochThreshold
	}
	if o.BytesGCThreshold <= 0 {
		o.BytesGCThreshold = defaultBytesGCThreshold
	}
	return o
}

// Group is the reclamation domain shared by every Pin, Map, and Queue that
// must agree on a single notion of "epoch" (spec §4.2 ThreadGroup / §4.4
// ConcurrentBridge). A Group owns the sentinel of the handle list and the
// global epoch counter; handles join and leave the group's chain as
// goroutines start and stop pinning it.
//
// Go has no thread-local storage, so where the original binds one
// ThreadHandle per (thread, group) implicitly, callers here hold an
// explicit *HandleRef (defined below) obtained from Group.Bind and reuse it
// across Pin calls from the same goroutine.
type Group struct {
	opts GroupOptions

	epoch atomic.Int64

	// sentinel is never joined or left; its handleLink fields are the head
	// of both the active chain (next) and the "already left" chain (prev)
	// that Close drains.
	sentinel handle

	liveCount atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool

	// bg, when non-nil, is the background reclamation goroutine started by
	// StartBackgroundGC (gc.go).
	bg *backgroundGC
}

// NewGroup creates a fresh reclamation domain. Per Design Notes option (b)
// this is an explicit runtime value rather than a package-level singleton:
// a Map or Queue takes a *Group (or creates its own via NewMap/NewQueue) so
// multiple independent reclamation domains can coexist in one process, and
// tests can spin up a throwaway Group per case.
func NewGroup(opts GroupOptions) *Group {
	g := &Group{opts: opts.withDefaults()}
	g.epoch.Store(0)
	newSentinelLink(&g.sentinel)
	return g
}

// HandleRef is a goroutine-local binding to one handle within a Group,
// standing in for the original's implicit thread-local ThreadHandle.
type HandleRef struct {
	h *handle
}

// Bind allocates a new handle and joins it to the group's active chain.
// The returned HandleRef must be used by a single goroutine at a time and
// released with Close when that goroutine is done pinning the group.
func (g *Group) Bind() *HandleRef {
	if g.closed.Load() {
		panic(ErrGroupClosed)
	}
	h := newHandle(g)
	h.join(&g.sentinel)
	g.liveCount.Add(1)
	return &HandleRef{h: h}
}

// Close splices the bound handle out of the group's active chain and frees
// anything still in its retire buffer that has become safe to free in the
// process. Records that are not yet safe stay in the departed handle's
// buffer until the group's own Close frees them.
func (r *HandleRef) Close() {
	h := r.h
	g := h.group
	h.leave(func() {
		h.reclaim()
	})
	g.liveCount.Add(-1)
}

// pin enters a critical section on the bound handle; HandleRef.Pin (pin.go)
// wraps it in a scoped guard.
func (r *HandleRef) pin() { r.h.pinEnter() }

func (r *HandleRef) unpin() { r.h.pinExit() }

// Epoch reports the group's current global epoch, for diagnostics and
// tests only.
func (g *Group) Epoch() int64 { return g.epoch.Load() }

// LiveHandles reports the number of handles currently bound to the group.
func (g *Group) LiveHandles() int64 { return g.liveCount.Load() }

// Close quiesces the group: it stops any background GC goroutine, then
// walks every handle still reachable from either chain and unconditionally
// frees its retire buffer. This is only safe once the caller has ensured no
// goroutine still holds a live Pin or HandleRef against the group (spec
// §4.4 ConcurrentBridge destructor: "tag and clean the handles, then delete
// handles that have already left, then a final unconditional reclaim").
func (g *Group) Close() {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		if g.bg != nil {
			g.bg.stop()
		}

		forEachLive(&g.sentinel, func(h *handle) {
			h.cleanAll()
		})

		left := g.sentinel.prev.Load()
		for left != &g.sentinel {
			next := left.prev.Load()
			left.cleanAll()
			left = next
		}
	})
}
