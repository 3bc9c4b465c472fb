package domain

import "math"

// HTMLRequest is the input of the HTML-to-PDF pipeline.
type HTMLRequest struct {
	HTML         string `json:"html" form:"html"`
	Filename     string `json:"filename" form:"filename"`
	ReturnInline bool   `json:"return_inline" form:"return_inline"`
}

// DocumentRequest is the input of the PDF-to-document pipeline. Exactly one of
// SourceInline, SourceURL or Upload must be set.
type DocumentRequest struct {
	SourceInline string `json:"source_inline" form:"source_inline"`
	SourceURL    string `json:"source_url" form:"source_url"`
	Filename     string `json:"filename" form:"filename"`
	ReturnInline bool   `json:"return_inline" form:"return_inline"`

	// Upload carries the bytes of a multipart upload.
	Upload []byte `json:"-" form:"-"`
}

// ConversionResponse describes a persisted artifact.
type ConversionResponse struct {
	Success       bool    `json:"success"`
	URL           string  `json:"url"`
	Filename      string  `json:"filename"`
	SizeKB        float64 `json:"size_kb"`
	InlinePayload string  `json:"inline_payload,omitempty"`
}

// SizeKB converts a byte count to kilobytes rounded to two decimals.
func SizeKB(n int64) float64 {
	return math.Round(float64(n)/1024*100) / 100
}
