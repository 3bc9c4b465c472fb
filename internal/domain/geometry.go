package domain

import (
	"errors"
	"fmt"
)

// RenderGeometry is the page contract of a deployment profile. All lengths are
// in inches, the unit the DevTools print API expects.
type RenderGeometry struct {
	PaperWidth   float64
	PaperHeight  float64
	MarginTop    float64
	MarginBottom float64
	MarginLeft   float64
	MarginRight  float64

	// PreferCSSPageSize lets @page rules in the document win over the paper and
	// margins above.
	PreferCSSPageSize bool
	// HeaderFooter enables repeating page furniture in the margin bands.
	HeaderFooter    bool
	PrintBackground bool
}

// Validate checks that margins and furniture are mutually consistent.
func (g RenderGeometry) Validate() error {
	var errs []error
	if g.PaperWidth <= 0 || g.PaperHeight <= 0 {
		errs = append(errs, fmt.Errorf("paper size must be positive, got %.2fx%.2f", g.PaperWidth, g.PaperHeight))
	}
	if g.MarginTop < 0 || g.MarginBottom < 0 || g.MarginLeft < 0 || g.MarginRight < 0 {
		errs = append(errs, errors.New("margins must not be negative"))
	}
	if g.PaperWidth > 0 && g.MarginLeft+g.MarginRight >= g.PaperWidth {
		errs = append(errs, errors.New("horizontal margins leave no printable width"))
	}
	if g.PaperHeight > 0 && g.MarginTop+g.MarginBottom >= g.PaperHeight {
		errs = append(errs, errors.New("vertical margins leave no printable height"))
	}
	if g.HeaderFooter && (g.MarginTop <= 0 || g.MarginBottom <= 0) {
		errs = append(errs, errors.New("header/footer requires non-zero top and bottom margins"))
	}
	if g.zeroMargins() && !g.PreferCSSPageSize {
		errs = append(errs, errors.New("zero margins require prefer_css_page_size"))
	}
	return errors.Join(errs...)
}

func (g RenderGeometry) zeroMargins() bool {
	return g.MarginTop == 0 && g.MarginBottom == 0 && g.MarginLeft == 0 && g.MarginRight == 0
}
