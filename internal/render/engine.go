// Package render owns the lifecycle of rendering-engine instances: one isolated
// instance per conversion, bounded in number, always released.
package render

import (
	"context"
	"errors"
	"strings"
	"time"

	"docconvert/internal/domain"
)

// Engine starts isolated rendering targets.
type Engine interface {
	Name() string
	// Launch starts one isolated instance. Implementations clean up after
	// themselves when Launch fails.
	Launch(ctx context.Context, flags map[string]string) (Target, error)
}

// Target is one launched engine instance.
type Target interface {
	// Load injects html and returns once no network request has been in flight
	// for idle, or when ctx is done.
	Load(ctx context.Context, html string, idle time.Duration) error
	// PrintPDF lays out the loaded document. header and footer are only
	// printed when g.HeaderFooter is set.
	PrintPDF(ctx context.Context, g domain.RenderGeometry, header, footer string) ([]byte, error)
	Close() error
}

// IsSessionInterrupted reports whether err means the engine went away or the
// context ended under it, as opposed to a content problem.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "websocket: close") ||
		strings.Contains(msg, "browser has disconnected")
}
