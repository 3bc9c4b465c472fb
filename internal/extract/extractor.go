package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"docconvert/internal/document"
)

// Extractor runs one extraction attempt over a staged PDF file.
type Extractor interface {
	Extract(ctx context.Context, path string, mode Mode) Outcome
}

// PDFExtractor is the ledongthuc/pdf backed extractor.
type PDFExtractor struct{}

var _ Extractor = PDFExtractor{}

// The reader panics on a rectangle operator with the wrong operand count. The
// plain text pass never interprets path operators.
const badRectPanic = "bad re"

// Extract opens path and reconstructs its structure. Panics raised by the
// parser are converted into an Outcome; Extract never panics.
func (PDFExtractor) Extract(ctx context.Context, path string, mode Mode) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = classifyPanic(r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return fatal(fmt.Errorf("open pdf: %w", err))
	}
	defer f.Close()

	if r.NumPage() == 0 {
		return fatal(ErrNoPages)
	}

	doc := document.Document{Title: title(r)}
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return fatal(err)
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}

		var (
			page document.Page
			err  error
		)
		if mode == Degraded {
			page, err = plainPage(p, fonts)
		} else {
			page, err = layoutPage(i, p)
		}
		if err != nil {
			var geomErr *GeometryError
			if errors.As(err, &geomErr) {
				return recoverable(err)
			}
			return fatal(fmt.Errorf("page %d: %w", i, err))
		}
		doc.Pages = append(doc.Pages, page)
	}
	if len(doc.Pages) == 0 {
		return fatal(ErrNoPages)
	}
	return succeeded(doc)
}

func classifyPanic(r any) Outcome {
	msg := fmt.Sprint(r)
	if msg == badRectPanic {
		return recoverable(&GeometryError{Detail: msg})
	}
	return fatal(fmt.Errorf("pdf parser: %s", msg))
}

func title(r *pdf.Reader) string {
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return ""
	}
	return strings.TrimSpace(info.Key("Title").Text())
}

// plainPage reads the text layer and splits it into paragraphs at blank lines.
func plainPage(p pdf.Page, fonts map[string]*pdf.Font) (document.Page, error) {
	for _, name := range p.Fonts() {
		if _, ok := fonts[name]; !ok {
			f := p.Font(name)
			fonts[name] = &f
		}
	}
	text, err := p.GetPlainText(fonts)
	if err != nil {
		return document.Page{}, err
	}

	var page document.Page
	var para []string
	flush := func() {
		if len(para) > 0 {
			page.Blocks = append(page.Blocks, document.Block{Kind: document.Paragraph, Text: strings.Join(para, " ")})
			para = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()
	return page, nil
}

// layoutPage groups positioned glyphs into lines and lines into blocks.
func layoutPage(num int, p pdf.Page) (document.Page, error) {
	content := p.Content()

	for _, r := range content.Rect {
		if !finite(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y) {
			return document.Page{}, &GeometryError{Page: num, Detail: "non-finite rectangle"}
		}
	}

	glyphs := make([]glyph, 0, len(content.Text))
	for _, t := range content.Text {
		if !finite(t.X, t.Y, t.FontSize) {
			return document.Page{}, &GeometryError{Page: num, Detail: "non-finite text position"}
		}
		if t.S == "" {
			continue
		}
		glyphs = append(glyphs, glyph{x: t.X, y: t.Y, size: t.FontSize, font: t.Font, s: t.S})
	}
	return buildBlocks(groupLines(glyphs)), nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
