package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docconvert/internal/domain"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateReady
	StateLoading
	StateRendering
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateLoading:
		return "loading"
	case StateRendering:
		return "rendering"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session drives one engine instance through launch, load, render and close.
// A Session is used by a single request; Close may be called from anywhere and
// any number of times.
type Session struct {
	mu      sync.Mutex
	state   State
	loaded  bool
	target  Target
	idle    time.Duration
	onClose func()

	closeOnce sync.Once
	closeErr  error
}

// NewSession returns an idle session. idle is the network quiescence window
// used by LoadContent; onClose (optional) runs once when the session closes.
func NewSession(idle time.Duration, onClose func()) *Session {
	return &Session{idle: idle, onClose: onClose}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return fmt.Errorf("%w: invalid session state %s, want %s", domain.ErrRender, s.state, from)
	}
	s.state = to
	return nil
}

func (s *Session) current() (Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return nil, fmt.Errorf("%w: invalid session state: closed", domain.ErrRender)
	}
	return s.target, nil
}

// Launch starts the engine instance.
func (s *Session) Launch(ctx context.Context, engine Engine, flags map[string]string) error {
	if err := s.transition(StateIdle, StateLaunching); err != nil {
		return err
	}
	target, err := engine.Launch(ctx, flags)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return domain.Wrap(domain.ErrEngineLaunch, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		// Closed while launching.
		_ = target.Close()
		return fmt.Errorf("%w: session closed during launch", domain.ErrEngineLaunch)
	}
	s.target = target
	s.state = StateReady
	return nil
}

// LoadContent injects html and waits for network quiescence for at most
// maxWait. Expiry of maxWait or of ctx's deadline is ErrContentLoadTimeout.
func (s *Session) LoadContent(ctx context.Context, html string, maxWait time.Duration) error {
	if err := s.transition(StateReady, StateLoading); err != nil {
		return err
	}

	target, err := s.current()
	if err != nil {
		return err
	}

	loadCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	err = target.Load(loadCtx, html, s.idle)
	if err == nil && loadCtx.Err() != nil {
		err = loadCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: no network quiescence within %s: %w", domain.ErrContentLoadTimeout, maxWait, err)
		}
		return domain.Wrap(domain.ErrRender, err)
	}

	s.mu.Lock()
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// RenderToPDF prints the loaded document.
func (s *Session) RenderToPDF(ctx context.Context, g domain.RenderGeometry, header, footer string) ([]byte, error) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		return nil, fmt.Errorf("%w: invalid session state: content not loaded", domain.ErrRender)
	}
	if err := s.transition(StateLoading, StateRendering); err != nil {
		return nil, err
	}

	target, err := s.current()
	if err != nil {
		return nil, err
	}

	pdf, err := target.PrintPDF(ctx, g, header, footer)
	if err != nil {
		if errors.Is(err, domain.ErrContentLoadTimeout) {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrRender, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: engine returned an empty document", domain.ErrRender)
	}
	return pdf, nil
}

// Close releases the engine instance. The target is closed exactly once no
// matter how often Close is called.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		target := s.target
		s.target = nil
		s.state = StateClosed
		s.mu.Unlock()

		if target != nil {
			s.closeErr = target.Close()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}
