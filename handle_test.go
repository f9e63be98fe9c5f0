package ringmap

import "testing"

func TestHandleRetireReclaimedAfterMinEpochAdvances(t *testing.T) {
	g := NewGroup(GroupOptions{BytesEpochThreshold: 1 << 30, BytesGCThreshold: 1 << 30})
	defer g.Close()

	ref := g.Bind()
	defer ref.Close()

	freed := false
	p := ref.Pin()
	p.Retire(retireBlocker(func() { freed = true }), 1)
	p.Unpin()

	// No other handle exists, so the minimum live epoch is the group's
	// current epoch; a record retired at that same epoch is not yet older
	// than the minimum and must not be freed.
	if n := ref.h.reclaim(); n != 0 {
		t.Fatalf("reclaim freed %d records before the epoch advanced, want 0", n)
	}
	if freed {
		t.Fatal("retired blocker ran before its epoch was strictly passed")
	}

	g.epoch.Add(1)
	if n := ref.h.reclaim(); n != 1 {
		t.Fatalf("reclaim freed %d records after the epoch advanced, want 1", n)
	}
	if !freed {
		t.Fatal("retired blocker did not run after its epoch was passed")
	}
}

func TestHandlePinBlocksReclamation(t *testing.T) {
	g := NewGroup(GroupOptions{BytesEpochThreshold: 1 << 30, BytesGCThreshold: 1 << 30})
	defer g.Close()

	reader := g.Bind()
	defer reader.Close()
	writer := g.Bind()
	defer writer.Close()

	pin := reader.Pin() // reader is now pinned at the current epoch

	freed := false
	wp := writer.Pin()
	wp.Retire(retireBlocker(func() { freed = true }), 1)
	wp.Unpin()

	g.epoch.Add(1)
	writer.h.reclaim()
	if freed {
		t.Fatal("reclamation freed a record a pinned reader could still observe")
	}

	pin.Unpin()
	writer.h.reclaim()
	if !freed {
		t.Fatal("reclamation should free the record once the blocking reader unpinned")
	}
}
