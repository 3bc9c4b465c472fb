package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconvert/internal/config"
	"docconvert/internal/convert"
	"docconvert/internal/document"
	"docconvert/internal/domain"
	"docconvert/internal/extract"
	"docconvert/internal/infra/storage"
	"docconvert/internal/render"
	"docconvert/internal/render/rendertest"
	"docconvert/internal/tokens"
)

func minimalConfig() config.Config {
	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.PDF.TimeoutSecs = 1
	cfg.Limits.MaxHTMLBytes = 1024 * 1024
	cfg.Limits.MaxPDFBytes = 5 * 1024 * 1024
	return cfg
}

type staticExtractor struct{}

func (staticExtractor) Extract(context.Context, string, extract.Mode) extract.Outcome {
	return extract.Outcome{Kind: extract.Success, Doc: document.Document{
		Title: "Scan",
		Pages: []document.Page{{Blocks: []document.Block{{Kind: document.Paragraph, Text: "hello"}}}},
	}}
}

type fixture struct {
	deps   Deps
	engine *rendertest.Engine
	pdfs   *storage.Store
	words  *storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := minimalConfig()
	g, err := cfg.Geometry()
	require.NoError(t, err)

	dir := t.TempDir()
	pdfs, err := storage.New(filepath.Join(dir, "pdf"), domain.ExtPDF, cfg.Storage.BaseURL, "output")
	require.NoError(t, err)
	words, err := storage.New(filepath.Join(dir, "word"), domain.ExtDOCX, cfg.Storage.BaseURL, "word_output")
	require.NoError(t, err)

	engine := &rendertest.Engine{}
	mgr := render.NewManager(engine, render.Options{MaxSessions: 2, AcquireTimeout: 50 * time.Millisecond, NetworkIdle: time.Millisecond})
	t.Cleanup(mgr.Close)
	pool := extract.NewPool(staticExtractor{}, 1)
	locker := storage.NewLocalLocker()

	return &fixture{
		engine: engine,
		pdfs:   pdfs,
		words:  words,
		deps: Deps{
			Config: cfg,
			HTML: &convert.HTMLConverter{
				Sessions: mgr,
				Store:    pdfs,
				Locker:   locker,
				Options:  convert.HTMLOptions{Geometry: g, LoadTimeout: time.Second, MaxHTMLBytes: cfg.Limits.MaxHTMLBytes, MaxPDFBytes: cfg.Limits.MaxPDFBytes},
			},
			Documents: &convert.DocumentConverter{
				Extractor: pool,
				Store:     words,
				Locker:    locker,
				Options:   convert.DocumentOptions{StagingDir: dir, ExtractTimeout: time.Second, MaxSourceBytes: cfg.Limits.MaxSourceBytes},
			},
			PDFs:    pdfs,
			Words:   words,
			Locker:  locker,
			Render:  mgr,
			Extract: pool,
		},
	}
}

func jsonReq(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNew_RoutesAndJSON404(t *testing.T) {
	app := New(Deps{Config: minimalConfig()})

	reqStats, _ := http.NewRequest(http.MethodGet, "/v1/render/stats", nil)
	respStats, err := app.Test(reqStats)
	if err != nil {
		t.Fatalf("stats request failed: %v", err)
	}
	if respStats.StatusCode != http.StatusOK {
		t.Fatalf("expected /v1/render/stats 200, got %d", respStats.StatusCode)
	}

	req404, _ := http.NewRequest(http.MethodGet, "/does-not-exist", nil)
	resp404, err := app.Test(req404)
	if err != nil {
		t.Fatalf("404 request failed: %v", err)
	}
	if resp404.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp404.StatusCode)
	}
	if got := resp404.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("expected JSON error response content type, got %q", got)
	}
}

func TestServer_HTMLRoundTrip(t *testing.T) {
	fx := newFixture(t)
	app := New(fx.deps)

	resp, err := app.Test(jsonReq(http.MethodPost, "/convert", `{"html":"<h1>Hi</h1>","filename":"x"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "http://localhost:8000/output/x.pdf", body["url"])
	assert.Equal(t, "x.pdf", body["filename"])

	for _, path := range []string{"/output/x.pdf", "/download/x.pdf"} {
		resp, err = app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		data, _ := io.ReadAll(resp.Body)
		assert.Equal(t, rendertest.MinimalPDF, data)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/cleanup/x.pdf", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["success"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/download/x.pdf", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, decodeBody(t, resp), "error")
}

func TestServer_EmptyHTMLIsBadRequest(t *testing.T) {
	fx := newFixture(t)
	app := New(fx.deps)

	resp, err := app.Test(jsonReq(http.MethodPost, "/convert", `{"html":"  "}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int64(0), fx.engine.Launches.Load())
}

func TestServer_UploadToDocx(t *testing.T) {
	fx := newFixture(t)
	app := New(fx.deps)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "scan.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4\n%stub\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/convert-pdf-to-word-upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "scan.docx", body["filename"])
	assert.True(t, fx.words.Exists("scan.docx"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/word_output/scan.docx", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "PK", string(data[:2]))

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/word_output/scan.docx", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, fx.words.Exists("scan.docx"))
}

func TestServer_NotReadyGatesConversions(t *testing.T) {
	fx := newFixture(t)
	var ready atomic.Bool
	fx.deps.Ready = ready.Load
	app := New(fx.deps)

	resp, err := app.Test(jsonReq(http.MethodPost, "/convert", `{"html":"<p>x</p>"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "banner stays available")

	ready.Store(true)
	resp, err = app.Test(jsonReq(http.MethodPost, "/convert", `{"html":"<p>x</p>"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_APIKeysAndScopes(t *testing.T) {
	fx := newFixture(t)
	cache := tokens.NewCache()
	cache.Replace(map[string]tokens.Entry{
		"pdf-key":  {RateLimit: 1, Scope: tokens.Scope{ScopePDF: true}},
		"word-key": {Scope: tokens.Scope{ScopeWord: true}},
	})
	fx.deps.Tokens = cache
	fx.deps.LimiterStore = memoryStorage.New()
	fx.deps.Config.Auth.Required = true
	app := New(fx.deps)

	send := func(key string) int {
		req := jsonReq(http.MethodPost, "/convert", `{"html":"<p>x</p>","filename":"k"}`)
		if key != "" {
			req.Header.Set("X-API-Key", key)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, send(""))
	assert.Equal(t, http.StatusUnauthorized, send("nope"))
	assert.Equal(t, http.StatusForbidden, send("word-key"))
	assert.Equal(t, http.StatusOK, send("pdf-key"))
	assert.Equal(t, http.StatusTooManyRequests, send("pdf-key"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health is not behind auth")
}

func TestBodyLimit(t *testing.T) {
	cfg := minimalConfig()
	cfg.Limits.MaxHTMLBytes = 10
	cfg.Limits.MaxSourceBytes = 30
	assert.Equal(t, 44+1<<20, bodyLimit(cfg))

	cfg.Limits.MaxHTMLBytes = 100
	assert.Equal(t, 100+1<<20, bodyLimit(cfg))
}
