// Package server assembles the fiber application.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"docconvert/internal/config"
	"docconvert/internal/docx"
	"docconvert/internal/http/handlers"
	"docconvert/internal/http/middleware"
	"docconvert/internal/infra/logging"
	"docconvert/internal/infra/storage"
	"docconvert/internal/tokens"
)

// Route scopes checked against API token scopes.
const (
	ScopePDF  = "pdf"
	ScopeWord = "word"
)

// Deps are the components the routes are built from. Nil converters or stores
// leave their routes unmounted.
type Deps struct {
	Config config.Config

	HTML      handlers.HTMLConverter
	Documents handlers.DocumentConverter
	PDFs      handlers.ArtifactStore
	Words     handlers.ArtifactStore
	Locker    storage.Locker

	Tokens       *tokens.Cache
	LimiterStore fiber.Storage

	Render  handlers.RenderStats
	Extract handlers.ExtractStats
	// Ready gates the conversion routes and the readiness probe.
	Ready func() bool
}

// New creates the fiber app with middleware, routes and JSON errors.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit(d.Config),
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, middleware.Options{Ready: d.Ready})
	registerAccess(app, d)
	app.Use(middleware.RequestLogger())

	registerRoutes(app, d)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})
	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		msg = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		logging.Error("Request failed", "path", c.Path(), "status", code, "message", msg)
	} else {
		logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)
	}
	return middleware.JSONError(c, code, msg)
}

// bodyLimit admits the largest accepted input, leaving room for base64
// inflation of inline sources.
func bodyLimit(cfg config.Config) int {
	limit := cfg.Limits.MaxHTMLBytes
	if src := cfg.Limits.MaxSourceBytes/3*4 + 4; src > limit {
		limit = src
	}
	if limit <= 0 {
		return fiber.DefaultBodyLimit
	}
	return limit + 1<<20
}

func tokenStore(d Deps) middleware.TokenStore {
	if d.Tokens == nil {
		return nil
	}
	return d.Tokens
}

func registerAccess(app *fiber.App, d Deps) {
	if store := tokenStore(d); store != nil || d.Config.Auth.Required {
		app.Use(middleware.APIKey(store, d.Config.Auth.Required))
	}
	if d.LimiterStore == nil {
		return
	}

	rl := middleware.RateLimitConfig{
		RateInterval:           d.Config.RateLimiter.Interval,
		EnableTokenRateLimiter: d.Tokens != nil,
		EnableUserLimiter:      d.Config.RateLimiter.EnableUserLimiter,
		UserLimit:              d.Config.RateLimiter.UserLimit,
	}
	if d.Tokens != nil {
		app.Use(middleware.TokenRateLimit(rl, d.Tokens, d.LimiterStore, middleware.NewLimiterCache()))
	}
	app.Use(middleware.UserRateLimit(rl, d.LimiterStore))
}

func registerRoutes(app *fiber.App, d Deps) {
	info := &handlers.Info{Render: d.Render, Extract: d.Extract, Ready: d.Ready}
	app.Get("/", info.HandleIndex)

	ready := middleware.RequireReady(d.Ready)
	scope := func(s string) fiber.Handler {
		return middleware.RequireScope(tokenStore(d), s)
	}

	conv := &handlers.Conversions{
		HTML:           d.HTML,
		Documents:      d.Documents,
		MaxUploadBytes: d.Config.Limits.MaxSourceBytes,
	}
	if d.HTML != nil {
		app.Post("/convert", ready, scope(ScopePDF), conv.HandleHTML)
	}
	if d.Documents != nil {
		app.Post("/convert-pdf-to-word", ready, scope(ScopeWord), conv.HandleDocument)
		app.Post("/convert-pdf-to-word-upload", ready, scope(ScopeWord), conv.HandleUpload)
	}

	if d.PDFs != nil {
		pdfs := &handlers.Artifacts{Store: d.PDFs, Locker: d.Locker, ContentType: "application/pdf", Label: "PDF"}
		app.Get("/download/:key", pdfs.HandleGet)
		app.Get("/output/:key", pdfs.HandleGet)
		app.Delete("/output/:key", scope(ScopePDF), pdfs.HandleDelete)
		app.Delete("/cleanup/:key", scope(ScopePDF), pdfs.HandleDelete)
	}
	if d.Words != nil {
		words := &handlers.Artifacts{Store: d.Words, Locker: d.Locker, ContentType: docx.MIMEType, Label: "Document"}
		app.Get("/word_output/:key", words.HandleGet)
		app.Delete("/word_output/:key", scope(ScopeWord), words.HandleDelete)
	}

	v1 := app.Group("/v1")
	v1.Get("/render/stats", info.HandleStats)
	v1.Get("/monitor", monitor.New())
}
