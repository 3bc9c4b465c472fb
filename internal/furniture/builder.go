// Package furniture builds the repeating header and footer fragments printed in
// the page margin bands.
//
// The fragments are handed to the browser's print header/footer mechanism,
// which renders them in an isolated document: no stylesheets or network
// requests from the page apply there, so everything must be inline.
package furniture

import (
	"bytes"
	"html/template"

	"docconvert/internal/infra/fetch"
)

// EmptyFragment is a well-formed fragment that prints nothing.
const EmptyFragment = "<span></span>"

// Options describes the furniture content.
type Options struct {
	HeaderText   string
	FooterText   string
	PageNumbers  bool
	LogoHeightPx int
}

// Furniture holds the header and footer markup.
type Furniture struct {
	Header string
	Footer string
}

// The print template wrappers (#header, #footer) carry default padding and a
// tiny default font size; reset both so the fragment fills its margin band.
const resetCSS = `#header,#footer{padding:0 !important;margin:0 !important;}` +
	`html,body{margin:0;padding:0;}` +
	`.df-band{box-sizing:border-box;width:100%;height:100%;margin:0;padding:0 0.4in;display:flex;align-items:center;` +
	`font-family:Helvetica,Arial,sans-serif;font-size:9px;color:#555;-webkit-print-color-adjust:exact;print-color-adjust:exact;}`

var headerTmpl = template.Must(template.New("header").Parse(
	`<style>{{.CSS}}</style>` +
		`<div class="df-band" style="justify-content:space-between;">` +
		`{{if .Logo}}<img src="{{.Logo}}" style="height:{{.LogoHeight}}px;width:auto;margin:0;padding:0;display:block;" alt="">{{else}}<span></span>{{end}}` +
		`<span>{{.Text}}</span>` +
		`</div>`))

var footerTmpl = template.Must(template.New("footer").Parse(
	`<style>{{.CSS}}</style>` +
		`<div class="df-band" style="justify-content:space-between;">` +
		`<span>{{.Text}}</span>` +
		`{{if .PageNumbers}}<span><span class="pageNumber"></span> / <span class="totalPages"></span></span>{{end}}` +
		`</div>`))

type bandData struct {
	CSS         template.CSS
	Logo        template.URL
	LogoHeight  int
	Text        string
	PageNumbers bool
}

// Build composes header and footer markup. logo is the raw image (or nil when
// the fetch failed); it is embedded as a data URI. Build never fails: with no
// usable content a band degrades to EmptyFragment.
func Build(logo []byte, opts Options) Furniture {
	height := opts.LogoHeightPx
	if height <= 0 {
		height = 32
	}

	f := Furniture{Header: EmptyFragment, Footer: EmptyFragment}

	uri := fetch.DataURI(logo)
	if uri != "" || opts.HeaderText != "" {
		f.Header = render(headerTmpl, bandData{
			CSS:        template.CSS(resetCSS),
			Logo:       template.URL(uri),
			LogoHeight: height,
			Text:       opts.HeaderText,
		})
	}
	if opts.FooterText != "" || opts.PageNumbers {
		f.Footer = render(footerTmpl, bandData{
			CSS:         template.CSS(resetCSS),
			Text:        opts.FooterText,
			PageNumbers: opts.PageNumbers,
		})
	}
	return f
}

func render(t *template.Template, data bandData) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return EmptyFragment
	}
	return buf.String()
}
