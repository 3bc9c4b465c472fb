// Package gotenberg renders through a Gotenberg instance's Chromium route.
// Each session is one stateless multipart request; the remote service owns
// the browser lifecycle.
package gotenberg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"docconvert/internal/config"
	"docconvert/internal/domain"
	"docconvert/internal/render"
)

const convertPath = "/forms/chromium/convert/html"

// Engine talks to Gotenberg at BaseURL.
type Engine struct {
	baseURL string
	http    *http.Client
}

var _ render.Engine = (*Engine)(nil)

// New returns an engine for baseURL. Timeouts come from the request context.
func New(baseURL string) *Engine {
	return &Engine{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 0},
	}
}

// NewFromConfig builds the engine from the pdf section.
func NewFromConfig(cfg config.Config) *Engine {
	return New(cfg.PDF.GotenbergURL)
}

func (e *Engine) Name() string { return config.EngineGotenberg }

// Launch checks that Gotenberg is reachable and healthy. flags are forwarded
// as extra form fields (for example waitDelay or emulatedMediaType).
func (e *Engine) Launch(ctx context.Context, flags map[string]string) (render.Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg /health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gotenberg /health returned %d", resp.StatusCode)
	}
	return &target{e: e, fields: flags}, nil
}

type target struct {
	e      *Engine
	fields map[string]string

	mu       sync.Mutex
	html     string
	deadline time.Time
	closed   bool
}

// Load records the document and the load deadline carried by ctx. Gotenberg
// loads the page while printing, so PrintPDF honours that deadline.
func (t *target) Load(ctx context.Context, html string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("target closed")
	}
	t.html = html
	t.deadline, _ = ctx.Deadline()
	return nil
}

func inches(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// wrapFragment turns a header/footer fragment into the standalone document
// Gotenberg expects for header.html and footer.html.
func wrapFragment(fragment string) []byte {
	return []byte("<!DOCTYPE html><html><head></head><body>" + fragment + "</body></html>")
}

func (t *target) PrintPDF(ctx context.Context, g domain.RenderGeometry, header, footer string) ([]byte, error) {
	t.mu.Lock()
	html, deadline, closed := t.html, t.deadline, t.closed
	t.mu.Unlock()
	if closed {
		return nil, errors.New("target closed")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"paperWidth":        inches(g.PaperWidth),
		"paperHeight":       inches(g.PaperHeight),
		"marginTop":         inches(g.MarginTop),
		"marginBottom":      inches(g.MarginBottom),
		"marginLeft":        inches(g.MarginLeft),
		"marginRight":       inches(g.MarginRight),
		"printBackground":   strconv.FormatBool(g.PrintBackground),
		"preferCssPageSize": strconv.FormatBool(g.PreferCSSPageSize),
	}
	for k, v := range t.fields {
		fields[k] = v
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if err := addHTMLPart(writer, "index.html", []byte(html)); err != nil {
		return nil, err
	}
	if g.HeaderFooter {
		if err := addHTMLPart(writer, "header.html", wrapFragment(header)); err != nil {
			return nil, err
		}
		if err := addHTMLPart(writer, "footer.html", wrapFragment(footer)); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	pdf, err := t.e.doPost(ctx, convertPath, body, writer.FormDataContentType())
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, domain.Wrap(domain.ErrContentLoadTimeout, err)
	}
	return pdf, err
}

func (t *target) Close() error {
	t.mu.Lock()
	t.closed = true
	t.html = ""
	t.deadline = time.Time{}
	t.mu.Unlock()
	return nil
}

// doPost sends a POST request and reads the response body.
func (e *Engine) doPost(ctx context.Context, path string, body *bytes.Buffer, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gotenberg %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", path, err)
	}
	return result, nil
}

func addHTMLPart(w *multipart.Writer, filename string, content []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filename))
	h.Set("Content-Type", "text/html")

	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part %s: %w", filename, err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write part %s: %w", filename, err)
	}
	return nil
}
