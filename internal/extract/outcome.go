// Package extract reconstructs editable document structure from a PDF's
// content streams.
package extract

import (
	"errors"
	"fmt"

	"docconvert/internal/document"
)

// Kind tags the result of one extraction attempt.
type Kind int

const (
	// Success carries a document.
	Success Kind = iota
	// RecoverableDefect is a malformed rectangle or other geometry in a
	// content stream. A Degraded attempt usually succeeds.
	RecoverableDefect
	// Fatal covers corrupt, encrypted or unsupported input.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case RecoverableDefect:
		return "recoverable_defect"
	default:
		return "fatal"
	}
}

// Mode selects how much layout the extractor reconstructs.
type Mode int

const (
	// Layout reconstructs headings, paragraphs and tables from glyph
	// geometry.
	Layout Mode = iota
	// Degraded reads the plain text layer only. It never interprets path
	// operators, so geometry defects cannot affect it.
	Degraded
)

func (m Mode) String() string {
	if m == Degraded {
		return "degraded"
	}
	return "layout"
}

// Outcome is the tagged result of an extraction attempt.
type Outcome struct {
	Kind Kind
	Doc  document.Document
	Err  error
}

func succeeded(doc document.Document) Outcome {
	return Outcome{Kind: Success, Doc: doc}
}

func recoverable(err error) Outcome {
	return Outcome{Kind: RecoverableDefect, Err: err}
}

func fatal(err error) Outcome {
	return Outcome{Kind: Fatal, Err: err}
}

// GeometryError reports a content-stream geometry value the layout pass
// cannot use.
type GeometryError struct {
	Page   int
	Detail string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("page %d: malformed geometry: %s", e.Page, e.Detail)
}

// ErrNoPages is returned for documents without a readable page.
var ErrNoPages = errors.New("document has no pages")
