package ringmap

import (
	"sync"
	"time"
)

// parker is a single-permit blocking gate: park blocks until a matching
// unpark, but an unpark delivered before any park is remembered so that a
// later park returns immediately instead of missing the wakeup.
//
// Used by tree-bin writers waiting on draining readers (treebin.go). The
// background GC goroutine waits on a time.Ticker (gc.go), not on a parker.
type parker struct {
	mu   sync.Mutex
	cond *sync.Cond
	flag bool
}

func newParker() *parker {
	p := &parker{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// unpark delivers one permit. A permit already pending is not doubled up.
func (p *parker) unpark() {
	p.mu.Lock()
	if !p.flag {
		p.flag = true
		p.cond.Signal()
	}
	p.mu.Unlock()
}

// park blocks until a permit is available, consuming it.
func (p *parker) park() {
	p.mu.Lock()
	for !p.flag {
		p.cond.Wait()
	}
	p.flag = false
	p.mu.Unlock()
}

// parkTimeout blocks until a permit is available or the timeout elapses,
// returning true iff a permit was consumed. Only the tests call the timed
// form; the tree-bin writer's park is untimed.
func (p *parker) parkTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)

	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.flag {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.AfterFunc(remaining, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		p.cond.Wait()
		timer.Stop()
	}
	p.flag = false
	return true
}
