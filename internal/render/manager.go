package render

import (
	"context"
	"sync/atomic"
	"time"

	"docconvert/internal/domain"
	"docconvert/internal/infra/logging"
)

// Options configures a Manager.
type Options struct {
	MaxSessions    int
	AcquireTimeout time.Duration
	NetworkIdle    time.Duration
	Flags          map[string]string
}

// Stats is a snapshot of the manager's counters.
type Stats struct {
	Engine         string `json:"engine"`
	Capacity       int    `json:"capacity"`
	Idle           int    `json:"idle"`
	InUse          int    `json:"in_use"`
	Launched       int64  `json:"launched"`
	Closed         int64  `json:"closed"`
	LaunchFailures int64  `json:"launch_failures"`
}

// Manager opens sessions on one engine, never more than MaxSessions at once.
// Sessions are not reused: every Open launches a fresh instance.
type Manager struct {
	engine  Engine
	limiter *Limiter
	opts    Options

	launched       atomic.Int64
	closed         atomic.Int64
	launchFailures atomic.Int64
}

// NewManager returns a Manager for engine.
func NewManager(engine Engine, opts Options) *Manager {
	return &Manager{
		engine:  engine,
		limiter: NewLimiter(opts.MaxSessions),
		opts:    opts,
	}
}

// Open acquires a slot and launches a session on it. The caller must Close the
// returned session; closing releases the slot. No free slot within
// AcquireTimeout is ErrBusy.
func (m *Manager) Open(ctx context.Context) (*Session, error) {
	release, err := m.limiter.Acquire(ctx, m.opts.AcquireTimeout)
	if err != nil {
		return nil, domain.Wrap(domain.ErrBusy, err)
	}

	var launched atomic.Bool
	s := NewSession(m.opts.NetworkIdle, func() {
		if launched.Load() {
			m.closed.Add(1)
		}
		release()
	})

	start := time.Now()
	if err := s.Launch(ctx, m.engine, m.opts.Flags); err != nil {
		m.launchFailures.Add(1)
		_ = s.Close()
		logging.Error("Render engine launch failed", "engine", m.engine.Name(), "error", err)
		return nil, err
	}
	launched.Store(true)
	m.launched.Add(1)
	logging.Debug("Render session launched", "engine", m.engine.Name(), "duration_ms", time.Since(start).Milliseconds())
	return s, nil
}

// Engine returns the engine's name.
func (m *Manager) Engine() string { return m.engine.Name() }

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	idle := m.limiter.Idle()
	return Stats{
		Engine:         m.engine.Name(),
		Capacity:       m.limiter.Capacity(),
		Idle:           idle,
		InUse:          m.limiter.Capacity() - idle,
		Launched:       m.launched.Load(),
		Closed:         m.closed.Load(),
		LaunchFailures: m.launchFailures.Load(),
	}
}

// Close stops accepting new sessions.
func (m *Manager) Close() {
	m.limiter.Close()
}
