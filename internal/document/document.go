// Package document is the neutral editable-document model produced by
// structural extraction and consumed by the document writers.
package document

import "strings"

// BlockKind classifies a block.
type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	Table
)

func (k BlockKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Table:
		return "table"
	default:
		return "paragraph"
	}
}

// Block is one structural unit on a page. Text is set for paragraphs and
// headings, Rows for tables.
type Block struct {
	Kind  BlockKind
	Text  string
	Level int // heading level, 1-based
	Bold  bool
	Rows  [][]string
}

// Page is an ordered list of blocks.
type Page struct {
	Blocks []Block
}

// Document is an extracted document.
type Document struct {
	Title string
	Pages []Page
}

// Empty reports whether the document holds no text at all.
func (d Document) Empty() bool {
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if strings.TrimSpace(b.Text) != "" {
				return false
			}
			for _, row := range b.Rows {
				for _, cell := range row {
					if strings.TrimSpace(cell) != "" {
						return false
					}
				}
			}
		}
	}
	return true
}

// PlainText flattens the document, one block per line and cells separated by
// tabs.
func (d Document) PlainText() string {
	var sb strings.Builder
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if b.Kind == Table {
				for _, row := range b.Rows {
					sb.WriteString(strings.Join(row, "\t"))
					sb.WriteByte('\n')
				}
				continue
			}
			sb.WriteString(b.Text)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
