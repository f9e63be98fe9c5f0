package ringmap

import (
	"sync"
	"sync/atomic"
)

// leaveEpoch is the sentinel handle epoch meaning "outside any critical
// section" (spec §3: LEAVE = -1).
const leaveEpoch int64 = -1

// reclaimRecord is one entry of a handle's retire buffer: an opaque
// reclamation intent tagged with the epoch it was retired at (spec §3,
// "reclamation record").
type reclaimRecord struct {
	epoch  int64
	intent reclaimIntent
}

// handle is the per-(thread, group) reclamation state described in spec
// §3/§4.3: an epoch stamp, an insertion-ordered retire buffer, byte
// counters driving the two thresholds, and the list linkage from
// handle_list.go. Grounded on sebr_local.hpp's ThreadHandle.
type handle struct {
	handleLink

	group *Group

	epoch atomic.Int64

	// retireBuf is appended to only by the goroutine holding the handle;
	// other handles' scans only ever read epoch, never retireBuf. The
	// background-GC sweep (gc.go) and Group.Close also pop or drain it from
	// other goroutines, concurrently with the handle's Pin holder, so a
	// plain mutex guards it.
	mu           sync.Mutex
	retireBuf    []reclaimRecord
	bytesAccum   int64 // bytes since last epoch bump
	bytesSinceGC int64 // bytes since last local reclamation attempt
	touchTimes   uint64
}

func newHandle(group *Group) *handle {
	h := &handle{group: group}
	h.epoch.Store(leaveEpoch)
	return h
}

// pinEnter stamps the handle with the group's current epoch, entering a
// critical section (spec §4.3 pin()).
func (h *handle) pinEnter() int64 {
	e := h.group.epoch.Load()
	h.epoch.Store(e)
	return e
}

// pinExit leaves the critical section and, once bytes retired since the
// last local reclamation reach the group's GC threshold, attempts to
// reclaim (spec §4.3 "On Pin drop").
func (h *handle) pinExit() {
	h.epoch.Store(leaveEpoch)

	h.mu.Lock()
	due := h.bytesSinceGC >= int64(h.group.opts.BytesGCThreshold)
	h.mu.Unlock()

	if due {
		h.reclaim()
	}
}

// retire appends a reclamation record tagged with the current global epoch
// and bumps the epoch once enough bytes have accumulated since the last
// bump (spec §4.3 retire()).
func (h *handle) retire(intent reclaimIntent, size int64) {
	e := h.group.epoch.Load()

	h.mu.Lock()
	h.retireBuf = append(h.retireBuf, reclaimRecord{epoch: e, intent: intent})
	h.bytesAccum += size
	h.bytesSinceGC += size
	bump := h.bytesAccum >= int64(h.group.opts.BytesEpochThreshold)
	if bump {
		h.bytesAccum = 0
	}
	h.mu.Unlock()

	if bump {
		h.group.epoch.Add(1)
	}
}

// reclaim performs local reclamation (spec §4.3): compute the minimum live
// epoch across the group's handle chain, then pop retire-buffer entries
// from the front while strictly older than that minimum. Insertion order
// is non-decreasing in epoch by construction, so this is a prefix
// scan, not a full pass.
func (h *handle) reclaim() int {
	minEpoch := h.group.epoch.Load()

	forEachLive(&h.group.sentinel, func(other *handle) {
		e := other.epoch.Load()
		if e == leaveEpoch {
			return // LEAVE counts as +inf: never constrains the minimum
		}
		if e < minEpoch {
			minEpoch = e
		}
	})

	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for n < len(h.retireBuf) && h.retireBuf[n].epoch < minEpoch {
		n++
	}
	for i := 0; i < n; i++ {
		h.retireBuf[i].intent.free()
	}
	if n > 0 {
		h.retireBuf = h.retireBuf[:copy(h.retireBuf, h.retireBuf[n:])]
	}
	h.bytesSinceGC = 0
	return n
}

// cleanAll unconditionally frees every retired record regardless of epoch.
// Only safe when no Pin anywhere in the group can still be holding a
// pointer into this handle's retired objects — used by the group
// destructor (spec §4.3 "final unconditional reclamation"), for live and
// already-departed handles alike.
func (h *handle) cleanAll() {
	h.mu.Lock()
	buf := h.retireBuf
	h.retireBuf = nil
	h.mu.Unlock()

	for _, r := range buf {
		r.intent.free()
	}
}

// pendingCount reports how many records the retire buffer holds, for tests
// and diagnostics only.
func (h *handle) pendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.retireBuf)
}
