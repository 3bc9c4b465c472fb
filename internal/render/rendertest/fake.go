// Package rendertest provides an in-memory render.Engine for tests.
package rendertest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"docconvert/internal/domain"
	"docconvert/internal/render"
)

// MinimalPDF is a tiny but well-formed document header used as fake output.
var MinimalPDF = []byte("%PDF-1.4\n%fake\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

// Engine is a fake engine that counts launches and closes.
type Engine struct {
	LaunchErr error
	LoadErr   error
	// Hang makes Load block until its context ends, like a page whose
	// network never goes quiet.
	Hang     bool
	PrintErr error
	PDF      []byte

	Launches atomic.Int64
	Closes   atomic.Int64
	Prints   atomic.Int64

	mu         sync.Mutex
	lastHTML   string
	lastHeader string
	lastFooter string
	lastGeom   domain.RenderGeometry
}

var _ render.Engine = (*Engine)(nil)

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Launch(ctx context.Context, _ map[string]string) (render.Target, error) {
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.Launches.Add(1)
	return &target{e: e}, nil
}

// Last returns what the most recent session loaded and printed.
func (e *Engine) Last() (html, header, footer string, g domain.RenderGeometry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastHTML, e.lastHeader, e.lastFooter, e.lastGeom
}

type target struct {
	e *Engine
}

func (t *target) Load(ctx context.Context, html string, _ time.Duration) error {
	t.e.mu.Lock()
	t.e.lastHTML = html
	t.e.mu.Unlock()
	if t.e.Hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.e.LoadErr
}

func (t *target) PrintPDF(_ context.Context, g domain.RenderGeometry, header, footer string) ([]byte, error) {
	t.e.Prints.Add(1)
	t.e.mu.Lock()
	t.e.lastHeader, t.e.lastFooter, t.e.lastGeom = header, footer, g
	t.e.mu.Unlock()
	if t.e.PrintErr != nil {
		return nil, t.e.PrintErr
	}
	if t.e.PDF != nil {
		return t.e.PDF, nil
	}
	return MinimalPDF, nil
}

// Close counts every call so double closes show up in Closes.
func (t *target) Close() error {
	t.e.Closes.Add(1)
	return nil
}
