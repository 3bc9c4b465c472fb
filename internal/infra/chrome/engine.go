package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"docconvert/internal/config"
	"docconvert/internal/domain"
	"docconvert/internal/render"
)

// Options configures the chromedp engine.
type Options struct {
	ExecPath  string
	NoSandbox bool
	// UserDataDir is the base directory for per-session profiles. Empty means
	// the system temp dir.
	UserDataDir string
}

// Engine launches one headless Chrome process per session.
type Engine struct {
	opts Options
}

var _ render.Engine = (*Engine)(nil)

// New returns a chromedp engine.
func New(opts Options) *Engine {
	return &Engine{opts: opts}
}

// NewFromConfig builds the engine from the pdf section.
func NewFromConfig(cfg config.Config) *Engine {
	return New(Options{
		ExecPath:    cfg.PDF.ChromePath,
		NoSandbox:   cfg.PDF.ChromeNoSandbox,
		UserDataDir: cfg.PDF.UserDataDir,
	})
}

func (e *Engine) Name() string { return config.EngineChromedp }

// createProfileDir makes a fresh profile directory so sessions never share
// cookies, cache or crash state.
func createProfileDir(base string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "chromedata-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}

func (e *Engine) allocatorOptions(profileDir string, flags map[string]string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Force software rendering and avoid Vulkan/ANGLE issues in minimal container environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if e.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.opts.ExecPath))
	}
	if e.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	for name, value := range flags {
		opts = append(opts, chromedp.Flag(name, flagValue(value)))
	}
	return opts
}

// flagValue maps "true"/"false" to boolean switches; anything else is passed
// as --name=value.
func flagValue(v string) any {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

// Launch starts Chrome and opens the tab the session will use. ctx bounds the
// startup only.
func (e *Engine) Launch(ctx context.Context, flags map[string]string) (render.Target, error) {
	if e.opts.ExecPath != "" {
		if _, err := exec.LookPath(e.opts.ExecPath); err != nil {
			return nil, fmt.Errorf("chrome binary: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profileDir, err := createProfileDir(e.opts.UserDataDir)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), e.allocatorOptions(profileDir, flags)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	t := &target{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		profileDir:  profileDir,
	}

	// The first Run allocates the browser; its lifetime is tied to tabCtx, so
	// the caller's ctx may only abort startup, never own the process.
	stop := context.AfterFunc(ctx, tabCancel)
	err = chromedp.Run(tabCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

type target struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	profileDir  string
}

func (t *target) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); err != nil && ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

func (t *target) Load(ctx context.Context, html string, idle time.Duration) error {
	tracker := newNetworkTracker()
	return t.run(ctx,
		tracker.listen(),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return tracker.waitIdle(ctx, idle)
		}),
	)
}

func (t *target) PrintPDF(ctx context.Context, g domain.RenderGeometry, header, footer string) ([]byte, error) {
	var pdfBuf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.PrintToPDF().
			WithPrintBackground(g.PrintBackground).
			WithPreferCSSPageSize(g.PreferCSSPageSize).
			WithPaperWidth(g.PaperWidth).
			WithPaperHeight(g.PaperHeight).
			WithMarginTop(g.MarginTop).
			WithMarginBottom(g.MarginBottom).
			WithMarginLeft(g.MarginLeft).
			WithMarginRight(g.MarginRight)
		if g.HeaderFooter {
			params = params.
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(header).
				WithFooterTemplate(footer)
		}
		var err error
		pdfBuf, _, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return pdfBuf, nil
}

// Close shuts the browser down and removes the profile directory.
func (t *target) Close() error {
	err := chromedp.Cancel(t.tabCtx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	t.tabCancel()
	t.allocCancel()
	return errors.Join(err, os.RemoveAll(t.profileDir))
}
