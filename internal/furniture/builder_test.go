package furniture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestBuild_WithLogo(t *testing.T) {
	f := Build(pngPixel, Options{HeaderText: "Acme", LogoHeightPx: 24})

	assert.Contains(t, f.Header, `src="data:image/png;base64,`)
	assert.Contains(t, f.Header, "height:24px")
	assert.Contains(t, f.Header, "Acme")
	assert.Contains(t, f.Header, "padding:0 !important")
	assert.NotContains(t, f.Header, "http")
	assert.Equal(t, EmptyFragment, f.Footer)
}

func TestBuild_MissingLogoDegrades(t *testing.T) {
	f := Build(nil, Options{HeaderText: "Acme"})
	assert.NotContains(t, f.Header, "<img")
	assert.Contains(t, f.Header, "Acme")

	f = Build(nil, Options{})
	assert.Equal(t, EmptyFragment, f.Header)
	assert.Equal(t, EmptyFragment, f.Footer)
}

func TestBuild_FooterPageNumbers(t *testing.T) {
	f := Build(nil, Options{FooterText: "Confidential", PageNumbers: true})

	assert.Contains(t, f.Footer, `class="pageNumber"`)
	assert.Contains(t, f.Footer, `class="totalPages"`)
	assert.Contains(t, f.Footer, "Confidential")
}

func TestBuild_EscapesText(t *testing.T) {
	f := Build(nil, Options{HeaderText: `<script>alert(1)</script>`, FooterText: `a & b`})

	assert.NotContains(t, f.Header, "<script>")
	assert.Contains(t, f.Header, "&lt;script&gt;")
	assert.True(t, strings.Contains(f.Footer, "a &amp; b"))
}

func TestBuild_DefaultLogoHeight(t *testing.T) {
	f := Build(pngPixel, Options{})
	assert.Contains(t, f.Header, "height:32px")
}
