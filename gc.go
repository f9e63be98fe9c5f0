package ringmap

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// backgroundGCInterval is how often the background sweep runs,
// matching the original's ConcurrentBridge destructor model of periodic
// reclamation rather than reclaiming strictly on a foreground Pin's exit.
const backgroundGCInterval = time.Second

// backgroundGC runs one goroutine per Group that periodically reclaims
// every bound handle's retire buffer, so retired objects don't linger
// until some foreground goroutine happens to cross the GC byte threshold.
// Lifecycle is managed with golang.org/x/sync/errgroup rather than a bare
// go statement + sync.WaitGroup, so a future sweep that needs to report an
// error has somewhere to put it without inventing a second shutdown path.
type backgroundGC struct {
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// StartBackgroundGC launches the sweep goroutine for g. Calling it twice
// on the same Group is a no-op; Group.Close stops it.
func (g *Group) StartBackgroundGC(ctx context.Context) {
	if g.bg != nil {
		return
	}
	cctx, cancel := context.WithCancel(ctx)
	eg, egctx := errgroup.WithContext(cctx)
	bg := &backgroundGC{cancel: cancel, eg: eg}
	g.bg = bg

	eg.Go(func() error {
		ticker := time.NewTicker(backgroundGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-egctx.Done():
				return nil
			case <-ticker.C:
				forEachLive(&g.sentinel, func(h *handle) {
					h.reclaim()
				})
			}
		}
	})
}

func (bg *backgroundGC) stop() {
	bg.cancel()
	_ = bg.eg.Wait()
}
