// Package fonts installs the deployment's fonts once at startup and gates
// rendering until the font index is up to date.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"docconvert/internal/infra/logging"
)

var fontExts = map[string]bool{".ttf": true, ".otf": true, ".ttc": true, ".pfb": true, ".woff": true, ".woff2": true}

// Options configures a Provisioner.
type Options struct {
	// Dirs are scanned recursively for font files.
	Dirs       []string
	InstallDir string
	RunFCCache bool
}

// Provisioner copies fonts into InstallDir and rebuilds the fontconfig cache.
type Provisioner struct {
	opts Options

	once  sync.Once
	done  chan struct{}
	ready atomic.Bool
	err   error

	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// New returns a provisioner that has not run yet.
func New(opts Options) *Provisioner {
	return &Provisioner{
		opts:     opts,
		done:     make(chan struct{}),
		lookPath: exec.LookPath,
		command: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Start runs the provisioning in the background.
func (p *Provisioner) Start(ctx context.Context) {
	go func() { _ = p.Run(ctx) }()
}

// Run provisions fonts once; later calls return the first result. The
// provisioner is ready afterwards even on failure, rendering then falls back
// to the system fonts.
func (p *Provisioner) Run(ctx context.Context) error {
	p.once.Do(func() {
		start := time.Now()
		p.err = p.provision(ctx)
		if p.err != nil {
			logging.Warn("Font provisioning incomplete", "error", p.err)
		} else {
			logging.Info("Fonts ready", "duration_ms", time.Since(start).Milliseconds())
		}
		p.ready.Store(true)
		close(p.done)
	})
	return p.err
}

// Ready reports whether provisioning has finished.
func (p *Provisioner) Ready() bool { return p.ready.Load() }

// Wait blocks until provisioning finished or ctx is done.
func (p *Provisioner) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provisioner) provision(ctx context.Context) error {
	var errs []error
	copied := 0
	if p.opts.InstallDir != "" && len(p.opts.Dirs) > 0 {
		n, err := p.install()
		copied = n
		if err != nil {
			errs = append(errs, err)
		}
		logging.Info("Fonts installed", "count", copied, "dir", p.opts.InstallDir)
	}

	if p.opts.RunFCCache {
		if err := p.fcCache(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Provisioner) install() (int, error) {
	if err := os.MkdirAll(p.opts.InstallDir, 0o755); err != nil {
		return 0, fmt.Errorf("create font dir: %w", err)
	}

	copied := 0
	var errs []error
	for _, dir := range p.opts.Dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !fontExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			if err := copyFile(path, filepath.Join(p.opts.InstallDir, d.Name())); err != nil {
				errs = append(errs, err)
				return nil
			}
			copied++
			return nil
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", dir, err))
		}
	}
	return copied, errors.Join(errs...)
}

func (p *Provisioner) fcCache(ctx context.Context) error {
	bin, err := p.lookPath("fc-cache")
	if err != nil {
		logging.Warn("fc-cache not found, skipping font index rebuild")
		return nil
	}
	args := []string{"-f"}
	if p.opts.InstallDir != "" {
		args = append(args, p.opts.InstallDir)
	}
	if out, err := p.command(ctx, bin, args...); err != nil {
		return fmt.Errorf("fc-cache: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
