package convert

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docconvert/internal/document"
	"docconvert/internal/docx"
	"docconvert/internal/domain"
	"docconvert/internal/extract"
	"docconvert/internal/infra/logging"
	"docconvert/internal/infra/storage"
)

var pdfMagic = []byte("%PDF-")

// SourceFetcher downloads remote source documents.
type SourceFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// DocumentOptions are the deployment settings of the PDF pipeline.
type DocumentOptions struct {
	StagingDir     string
	ExtractTimeout time.Duration
	MaxSourceBytes int
}

// DocumentConverter turns PDFs into editable documents.
type DocumentConverter struct {
	Sources   SourceFetcher
	Extractor extract.Extractor
	Store     Store
	Locker    storage.Locker
	Options   DocumentOptions
}

// Convert runs the pipeline for req.
func (c *DocumentConverter) Convert(ctx context.Context, req domain.DocumentRequest) (domain.ConversionResponse, error) {
	if err := validateSource(req); err != nil {
		return domain.ConversionResponse{}, err
	}
	key, err := resolveFilename(req.Filename, domain.ExtDOCX, domain.ExtPDF)
	if err != nil {
		return domain.ConversionResponse{}, err
	}

	start := time.Now()
	src, err := c.resolve(ctx, req)
	if err != nil {
		return domain.ConversionResponse{}, err
	}

	doc, err := c.extract(ctx, src)
	if err != nil {
		return domain.ConversionResponse{}, err
	}

	out, err := docx.Bytes(doc)
	if err != nil {
		return domain.ConversionResponse{}, domain.Wrap(domain.ErrExtraction, err)
	}

	resp, err := persist(ctx, c.Store, c.Locker, key, out, req.ReturnInline)
	if err != nil {
		return domain.ConversionResponse{}, err
	}
	logging.Info("Document generated", "filename", key, "pages", len(doc.Pages), "size_kb", resp.SizeKB,
		"duration_ms", time.Since(start).Milliseconds())
	return resp, nil
}

func validateSource(req domain.DocumentRequest) error {
	n := 0
	for _, set := range []bool{strings.TrimSpace(req.SourceInline) != "", strings.TrimSpace(req.SourceURL) != "", len(req.Upload) > 0} {
		if set {
			n++
		}
	}
	switch n {
	case 0:
		return domain.Invalid("one of source_inline, source_url or an uploaded file is required")
	case 1:
		return nil
	default:
		return domain.Invalid("only one of source_inline, source_url or an uploaded file may be given")
	}
}

// resolve returns the source PDF bytes.
func (c *DocumentConverter) resolve(ctx context.Context, req domain.DocumentRequest) ([]byte, error) {
	var src []byte
	switch {
	case len(req.Upload) > 0:
		src = req.Upload
	case strings.TrimSpace(req.SourceInline) != "":
		b, err := decodeInline(req.SourceInline)
		if err != nil {
			return nil, err
		}
		src = b
	default:
		if c.Sources == nil {
			return nil, fmt.Errorf("%w: remote sources are not enabled", domain.ErrSourceFetch)
		}
		b, err := c.Sources.Fetch(ctx, strings.TrimSpace(req.SourceURL))
		if err != nil {
			logging.Warn("Source fetch failed", "url", req.SourceURL, "error", err)
			return nil, domain.Wrap(domain.ErrSourceFetch, err)
		}
		src = b
	}

	if limit := c.Options.MaxSourceBytes; limit > 0 && len(src) > limit {
		return nil, fmt.Errorf("%w: source is %d bytes, limit %d", domain.ErrTooLarge, len(src), limit)
	}
	if !bytes.HasPrefix(src, pdfMagic) {
		return nil, domain.Invalid("source is not a PDF document")
	}
	return src, nil
}

// decodeInline accepts plain base64 or a data: URI.
func decodeInline(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		meta, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return nil, domain.Invalid("source_inline data URI must be base64 encoded")
		}
		s = payload
	}
	s = strings.Join(strings.Fields(s), "")

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, domain.Invalid("source_inline is not valid base64: %v", err)
	}
	return b, nil
}

// extract stages src in a private directory and runs extraction with one
// degraded retry on a recoverable defect. The directory is removed on return.
func (c *DocumentConverter) extract(ctx context.Context, src []byte) (document.Document, error) {
	if c.Options.StagingDir != "" {
		if err := os.MkdirAll(c.Options.StagingDir, 0o755); err != nil {
			return document.Document{}, domain.Wrap(domain.ErrPersist, err)
		}
	}
	dir, err := os.MkdirTemp(c.Options.StagingDir, "pdf2docx-*")
	if err != nil {
		return document.Document{}, domain.Wrap(domain.ErrPersist, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logging.Warn("Staging cleanup failed", "dir", dir, "error", err)
		}
	}()

	path := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(path, src, 0o600); err != nil {
		return document.Document{}, domain.Wrap(domain.ErrPersist, err)
	}

	if t := c.Options.ExtractTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	first := c.Extractor.Extract(ctx, path, extract.Layout)
	switch first.Kind {
	case extract.Success:
		return first.Doc, nil
	case extract.Fatal:
		return document.Document{}, domain.Wrap(domain.ErrExtraction, first.Err)
	}

	logging.Warn("Structural defect in PDF, retrying in degraded mode", "error", first.Err)
	retry := c.Extractor.Extract(ctx, path, extract.Degraded)
	if retry.Kind == extract.Success {
		return retry.Doc, nil
	}
	return document.Document{}, domain.Wrap(domain.ErrExtraction, errors.Join(first.Err, retry.Err))
}
