// Package rod is the go-rod rendering engine. It launches a local Chrome
// through rod's launcher and drives it over the DevTools protocol.
package rod

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"docconvert/internal/config"
	"docconvert/internal/domain"
	"docconvert/internal/render"
)

// ErrBrowserNotFound is returned when no browser binary is configured or
// installed. The engine never downloads one.
var ErrBrowserNotFound = errors.New("no chrome binary found")

// Options configures the rod engine.
type Options struct {
	Bin         string
	NoSandbox   bool
	UserDataDir string
}

// Engine launches one browser per session through rod's launcher.
type Engine struct {
	opts     Options
	lookPath func() (string, bool)
}

var _ render.Engine = (*Engine)(nil)

// New returns a rod engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts, lookPath: launcher.LookPath}
}

// NewFromConfig builds the engine from the pdf section.
func NewFromConfig(cfg config.Config) *Engine {
	return New(Options{
		Bin:         cfg.PDF.ChromePath,
		NoSandbox:   cfg.PDF.ChromeNoSandbox,
		UserDataDir: cfg.PDF.UserDataDir,
	})
}

func (e *Engine) Name() string { return config.EngineRod }

func (e *Engine) bin() (string, error) {
	if e.opts.Bin != "" {
		if _, err := os.Stat(e.opts.Bin); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBrowserNotFound, err)
		}
		return e.opts.Bin, nil
	}
	if path, ok := e.lookPath(); ok {
		return path, nil
	}
	return "", ErrBrowserNotFound
}

func (e *Engine) launcher(ctx context.Context, bin, profileDir string, extra map[string]string) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(true).
		Leakless(false).
		NoSandbox(e.opts.NoSandbox).
		UserDataDir(profileDir).
		Set("disable-gpu").
		Set("disable-gpu-compositing").
		Set("disable-features", "Vulkan,UseSkiaRenderer").
		Set("use-gl", "swiftshader").
		Set("disable-dev-shm-usage")
	for name, value := range extra {
		switch value {
		case "", "true":
			l = l.Set(flags.Flag(name))
		case "false":
			l = l.Delete(flags.Flag(name))
		default:
			l = l.Set(flags.Flag(name), value)
		}
	}
	return l
}

// Launch starts a browser and opens a blank page for the session.
func (e *Engine) Launch(ctx context.Context, extra map[string]string) (render.Target, error) {
	bin, err := e.bin()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := e.opts.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create profile base dir: %w", err)
	}
	profileDir, err := os.MkdirTemp(base, "roddata-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}

	t := &target{profileDir: profileDir}
	t.launcher = e.launcher(ctx, bin, profileDir, extra)

	u, err := t.launcher.Launch()
	if err != nil {
		_ = t.Close()
		return nil, err
	}

	t.browser = rod.New().ControlURL(u)
	if err := t.browser.Connect(); err != nil {
		t.browser = nil
		_ = t.Close()
		return nil, err
	}

	t.page, err = t.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

type target struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	page       *rod.Page
	profileDir string
}

func (t *target) Load(ctx context.Context, html string, idle time.Duration) error {
	p := t.page.Context(ctx)
	wait := p.WaitRequestIdle(idle, nil, nil, nil)
	if err := p.SetDocumentContent(html); err != nil {
		return err
	}
	if err := p.WaitLoad(); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

func (t *target) PrintPDF(ctx context.Context, g domain.RenderGeometry, header, footer string) ([]byte, error) {
	opts := &proto.PagePrintToPDF{
		PaperWidth:        floatPtr(g.PaperWidth),
		PaperHeight:       floatPtr(g.PaperHeight),
		MarginTop:         floatPtr(g.MarginTop),
		MarginBottom:      floatPtr(g.MarginBottom),
		MarginLeft:        floatPtr(g.MarginLeft),
		MarginRight:       floatPtr(g.MarginRight),
		PrintBackground:   g.PrintBackground,
		PreferCSSPageSize: g.PreferCSSPageSize,
	}
	if g.HeaderFooter {
		opts.DisplayHeaderFooter = true
		opts.HeaderTemplate = header
		opts.FooterTemplate = footer
	}

	reader, err := t.page.Context(ctx).PDF(opts)
	if err != nil {
		return nil, err
	}
	pdfBuf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading PDF stream: %w", err)
	}
	return pdfBuf, nil
}

// Close closes the browser, kills the process and removes the profile.
func (t *target) Close() error {
	var err error
	if t.browser != nil {
		err = t.browser.Close()
	}
	// PID is zero when the process never started.
	if t.launcher != nil && t.launcher.PID() > 0 {
		t.launcher.Kill()
	}
	return errors.Join(err, os.RemoveAll(t.profileDir))
}

func floatPtr(v float64) *float64 {
	return &v
}
