package extract

import (
	"math"
	"sort"
	"strings"

	"docconvert/internal/document"
)

type glyph struct {
	x, y, size float64
	font       string
	s          string
}

// line is a run of glyphs sharing a baseline, split into cells at wide gaps.
type line struct {
	y     float64
	size  float64
	bold  bool
	cells []string
}

func (l line) text() string {
	return strings.Join(l.cells, " ")
}

// groupLines clusters glyphs by baseline, top of page first.
func groupLines(glyphs []glyph) []line {
	if len(glyphs) == 0 {
		return nil
	}
	sorted := make([]glyph, len(glyphs))
	copy(sorted, glyphs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var (
		lines []line
		run   []glyph
	)
	flush := func() {
		sort.SliceStable(run, func(i, j int) bool { return run[i].x < run[j].x })
		lines = append(lines, buildLine(run))
		run = nil
	}
	for _, g := range sorted {
		if len(run) > 0 && !sameBaseline(run[0], g) {
			flush()
		}
		run = append(run, g)
	}
	if len(run) > 0 {
		flush()
	}
	return lines
}

func sameBaseline(a, b glyph) bool {
	tol := math.Max(a.size, b.size) * 0.35
	if tol < 1 {
		tol = 1
	}
	return math.Abs(a.y-b.y) <= tol
}

// buildLine joins glyphs into words and cells. The reader does not report
// glyph widths, so gaps are judged against the line's typical advance.
func buildLine(run []glyph) line {
	advance := typicalAdvance(run)

	var (
		cells    []string
		cell     strings.Builder
		sizeSum  float64
		boldRuns int
	)
	for i, g := range run {
		sizeSum += g.size
		if isBold(g.font) {
			boldRuns++
		}
		if i > 0 {
			gap := g.x - run[i-1].x
			switch {
			case advance > 0 && gap > math.Max(4*advance, 2*g.size):
				cells = append(cells, strings.TrimSpace(cell.String()))
				cell.Reset()
			case advance > 0 && gap > 1.8*advance && !strings.HasSuffix(cell.String(), " ") && g.s != " ":
				cell.WriteByte(' ')
			}
		}
		cell.WriteString(g.s)
	}
	cells = append(cells, strings.TrimSpace(cell.String()))

	return line{
		y:     run[0].y,
		size:  sizeSum / float64(len(run)),
		bold:  boldRuns*2 > len(run),
		cells: collapse(cells),
	}
}

// typicalAdvance is the median positive distance between neighbouring glyphs.
func typicalAdvance(run []glyph) float64 {
	var deltas []float64
	for i := 1; i < len(run); i++ {
		if d := run[i].x - run[i-1].x; d > 0 {
			deltas = append(deltas, d)
		}
	}
	return median(deltas)
}

func median(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	s := make([]float64, len(vs))
	copy(s, vs)
	sort.Float64s(s)
	return s[len(s)/2]
}

func collapse(cells []string) []string {
	out := cells[:0]
	for _, c := range cells {
		c = strings.Join(strings.Fields(c), " ")
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func isBold(font string) bool {
	f := strings.ToLower(font)
	return strings.Contains(f, "bold") || strings.Contains(f, "black") || strings.Contains(f, "heavy")
}

// buildBlocks turns lines into headings, tables and paragraphs. Headings are
// lines noticeably larger than the page's body text; tables are two or more
// consecutive lines with the same number of cells (at least two).
func buildBlocks(lines []line) document.Page {
	var page document.Page
	if len(lines) == 0 {
		return page
	}

	sizes := make([]float64, 0, len(lines))
	for _, l := range lines {
		if len(l.cells) > 0 {
			sizes = append(sizes, l.size)
		}
	}
	body := median(sizes)

	var para []line
	flushPara := func() {
		if len(para) == 0 {
			return
		}
		texts := make([]string, 0, len(para))
		bold := true
		for _, l := range para {
			texts = append(texts, l.text())
			bold = bold && l.bold
		}
		page.Blocks = append(page.Blocks, document.Block{Kind: document.Paragraph, Text: strings.Join(texts, " "), Bold: bold})
		para = nil
	}

	for i := 0; i < len(lines); i++ {
		l := lines[i]
		if len(l.cells) == 0 {
			continue
		}

		if body > 0 && l.size >= 1.25*body {
			flushPara()
			level := 2
			if l.size >= 1.6*body {
				level = 1
			}
			page.Blocks = append(page.Blocks, document.Block{Kind: document.Heading, Level: level, Text: l.text(), Bold: l.bold})
			continue
		}

		if n := len(l.cells); n >= 2 {
			j := i + 1
			for j < len(lines) && len(lines[j].cells) == n {
				j++
			}
			if j-i >= 2 {
				flushPara()
				rows := make([][]string, 0, j-i)
				for _, r := range lines[i:j] {
					rows = append(rows, r.cells)
				}
				page.Blocks = append(page.Blocks, document.Block{Kind: document.Table, Rows: rows})
				i = j - 1
				continue
			}
		}

		if len(para) > 0 && startsParagraph(para[len(para)-1], l) {
			flushPara()
		}
		para = append(para, l)
	}
	flushPara()
	return page
}

// startsParagraph reports whether next is separated from prev by more than a
// normal line gap or changes type size.
func startsParagraph(prev, next line) bool {
	gap := prev.y - next.y
	lineHeight := math.Max(prev.size, next.size) * 1.5
	if gap > lineHeight || gap < 0 {
		return true
	}
	return math.Abs(prev.size-next.size) > 0.5 || prev.bold != next.bold
}
