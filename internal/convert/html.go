package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docconvert/internal/domain"
	"docconvert/internal/furniture"
	"docconvert/internal/infra/cache"
	"docconvert/internal/infra/logging"
	"docconvert/internal/infra/storage"
	"docconvert/internal/render"
)

// SessionOpener hands out launched render sessions.
type SessionOpener interface {
	Open(ctx context.Context) (*render.Session, error)
}

// AssetFetcher retrieves cosmetic assets. Failures yield nil.
type AssetFetcher interface {
	FetchOptional(ctx context.Context, rawURL string) []byte
}

// RenderCache short-circuits rendering of identical input.
type RenderCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
}

const defaultLoadTimeout = 30 * time.Second

// HTMLOptions are the deployment settings of the HTML pipeline.
type HTMLOptions struct {
	Geometry    domain.RenderGeometry
	Furniture   furniture.Options
	LogoURL     string
	LoadTimeout time.Duration
	// RequestTimeout bounds the whole conversion from logo fetch to persist.
	RequestTimeout time.Duration
	MaxHTMLBytes   int
	MaxPDFBytes    int
}

// HTMLConverter renders HTML documents to PDF artifacts.
type HTMLConverter struct {
	Sessions SessionOpener
	Assets   AssetFetcher
	Cache    RenderCache
	Store    Store
	Locker   storage.Locker
	Options  HTMLOptions
}

// Convert runs the pipeline for req. Nothing is persisted unless rendering
// fully succeeded.
func (c *HTMLConverter) Convert(ctx context.Context, req domain.HTMLRequest) (domain.ConversionResponse, error) {
	key, err := resolveFilename(req.Filename, domain.ExtPDF)
	if err != nil {
		return domain.ConversionResponse{}, err
	}
	if strings.TrimSpace(req.HTML) == "" {
		return domain.ConversionResponse{}, domain.Invalid("html is required")
	}
	if limit := c.Options.MaxHTMLBytes; limit > 0 && len(req.HTML) > limit {
		return domain.ConversionResponse{}, fmt.Errorf("%w: html input exceeds %d bytes", domain.ErrTooLarge, limit)
	}

	if t := c.Options.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	start := time.Now()
	f := c.furniture(ctx)

	cacheKey := cache.Key(req.HTML, f.Header, f.Footer, c.Options.Geometry)
	var pdf []byte
	hit := false
	if c.Cache != nil {
		pdf, hit = c.Cache.Get(ctx, cacheKey)
	}
	if !hit {
		pdf, err = c.render(ctx, req.HTML, f)
		if err != nil {
			return domain.ConversionResponse{}, err
		}
	}

	if limit := c.Options.MaxPDFBytes; limit > 0 && len(pdf) > limit {
		return domain.ConversionResponse{}, fmt.Errorf("%w: rendered PDF is %d bytes, limit %d", domain.ErrTooLarge, len(pdf), limit)
	}
	if !hit && c.Cache != nil {
		c.Cache.Set(ctx, cacheKey, pdf)
	}

	resp, err := persist(ctx, c.Store, c.Locker, key, pdf, req.ReturnInline)
	if err != nil {
		return domain.ConversionResponse{}, err
	}
	logging.Info("PDF generated", "filename", key, "size_kb", resp.SizeKB, "cached", hit,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func (c *HTMLConverter) furniture(ctx context.Context) furniture.Furniture {
	if !c.Options.Geometry.HeaderFooter {
		return furniture.Furniture{Header: furniture.EmptyFragment, Footer: furniture.EmptyFragment}
	}
	var logo []byte
	if c.Assets != nil {
		logo = c.Assets.FetchOptional(ctx, c.Options.LogoURL)
	}
	return furniture.Build(logo, c.Options.Furniture)
}

// render runs one session. The session is closed on every path.
func (c *HTMLConverter) render(ctx context.Context, html string, f furniture.Furniture) ([]byte, error) {
	s, err := c.Sessions.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Warn("Render session close failed", "error", err)
		}
	}()

	wait := c.Options.LoadTimeout
	if wait <= 0 {
		wait = defaultLoadTimeout
	}
	if err := s.LoadContent(ctx, html, wait); err != nil {
		if lost := interrupted(err); lost != nil {
			return nil, lost
		}
		logging.Error("Content load failed", "error", err)
		return nil, err
	}
	pdf, err := s.RenderToPDF(ctx, c.Options.Geometry, f.Header, f.Footer)
	if err != nil {
		if lost := interrupted(err); lost != nil {
			return nil, lost
		}
		logging.Error("PDF generation failed", "error", err)
		return nil, err
	}
	return pdf, nil
}

// interrupted reclassifies failures caused by the engine going away mid-session
// (crash, disconnect, cancelled request). Load timeouts keep their class.
func interrupted(err error) error {
	if errors.Is(err, domain.ErrContentLoadTimeout) || !render.IsSessionInterrupted(err) {
		return nil
	}
	logging.Warn("Render session interrupted", "error", err)
	return domain.Wrap(domain.ErrEngineLost, err)
}
