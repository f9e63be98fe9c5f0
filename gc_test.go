package ringmap

import (
	"context"
	"testing"
	"time"
)

func TestBackgroundGCReclaimsWithoutForegroundHelp(t *testing.T) {
	g := NewGroup(GroupOptions{BytesEpochThreshold: 1, BytesGCThreshold: 1 << 30})
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g.StartBackgroundGC(ctx)

	ref := g.Bind()
	defer ref.Close()

	freed := make(chan struct{})
	p := ref.Pin()
	p.Retire(retireBlocker(func() { close(freed) }), 1)
	p.Unpin()

	g.epoch.Add(1)

	select {
	case <-freed:
	case <-time.After(3 * time.Second):
		t.Fatal("background GC never reclaimed the retired record")
	}
}
