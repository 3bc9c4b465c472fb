package chrome

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const idlePollInterval = 50 * time.Millisecond

// networkTracker follows in-flight requests of one tab to detect quiescence.
type networkTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

func (n *networkTracker) handle(ev any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		// Redirects reuse the request id.
		n.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(n.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(n.inflight, e.RequestID)
	default:
		return
	}
	n.lastActivity = time.Now()
}

// quietFor returns how long no request has been in flight.
func (n *networkTracker) quietFor(now time.Time) time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.inflight) > 0 {
		return 0
	}
	return now.Sub(n.lastActivity)
}

// listen subscribes to the tab's network events and enables the domain.
func (n *networkTracker) listen() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		chromedp.ListenTarget(ctx, n.handle)
		return network.Enable().Do(ctx)
	})
}

// waitIdle blocks until the tab had no request in flight for idle.
func (n *networkTracker) waitIdle(ctx context.Context, idle time.Duration) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		if n.quietFor(time.Now()) >= idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
