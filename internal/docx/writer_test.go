package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconvert/internal/document"
)

func readParts(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	parts := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		parts[f.Name] = string(b)
	}
	return parts
}

func wellFormed(t *testing.T, name, body string) {
	t.Helper()
	dec := xml.NewDecoder(strings.NewReader(body))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return
		}
		require.NoError(t, err, "part %s is not well-formed XML", name)
	}
}

func TestWrite_PackageStructure(t *testing.T) {
	doc := document.Document{
		Title: "Q3 <draft>",
		Pages: []document.Page{
			{Blocks: []document.Block{
				{Kind: document.Heading, Level: 1, Text: "Quarterly Report"},
				{Kind: document.Paragraph, Text: "Revenue & costs", Bold: true},
				{Kind: document.Table, Rows: [][]string{{"Item", "Qty"}, {"Apples"}}},
			}},
			{Blocks: []document.Block{{Kind: document.Heading, Level: 4, Text: "Appendix"}}},
		},
	}

	data, err := Bytes(doc)
	require.NoError(t, err)
	parts := readParts(t, data)

	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml", "word/_rels/document.xml.rels", "docProps/core.xml"} {
		require.Contains(t, parts, name)
		wellFormed(t, name, parts[name])
	}

	body := parts["word/document.xml"]
	assert.Contains(t, body, `<w:pStyle w:val="Heading1"/>`)
	assert.Contains(t, body, `<w:pStyle w:val="Heading2"/>`, "levels beyond 2 are clamped")
	assert.Contains(t, body, "Revenue &amp; costs")
	assert.Contains(t, body, `<w:b/>`)
	assert.Contains(t, body, `<w:br w:type="page"/>`)
	assert.Equal(t, 2, strings.Count(body, "<w:gridCol/>"))
	assert.Equal(t, 4, strings.Count(body, "<w:tc>"), "ragged rows are padded")
	assert.Contains(t, parts["docProps/core.xml"], "Q3 &lt;draft&gt;")
}

func TestWrite_EmptyDocumentIsValid(t *testing.T) {
	data, err := Bytes(document.Document{})
	require.NoError(t, err)
	body := readParts(t, data)["word/document.xml"]
	wellFormed(t, "word/document.xml", body)
	assert.Contains(t, body, "<w:p/>")
}

func TestWrite_DropsInvalidXMLRunes(t *testing.T) {
	doc := document.Document{Pages: []document.Page{{Blocks: []document.Block{{Text: "a\x00b\x1fc\td"}}}}}
	data, err := Bytes(doc)
	require.NoError(t, err)
	body := readParts(t, data)["word/document.xml"]
	wellFormed(t, "word/document.xml", body)
	assert.Contains(t, body, ">abc d<")
}

func TestWrite_Deterministic(t *testing.T) {
	doc := document.Document{Pages: []document.Page{{Blocks: []document.Block{{Text: "same"}}}}}
	a, err := Bytes(doc)
	require.NoError(t, err)
	b, err := Bytes(doc)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWrite_CoreProperties(t *testing.T) {
	titled, err := Bytes(document.Document{Title: "Invoice \x01#42 & co"})
	require.NoError(t, err)
	core := readParts(t, titled)["docProps/core.xml"]
	wellFormed(t, "docProps/core.xml", core)
	assert.Contains(t, core, "<dc:title>Invoice #42 &amp; co</dc:title>")
	assert.Contains(t, core, "<dc:creator>docconvert</dc:creator>")

	untitled, err := Bytes(document.Document{})
	require.NoError(t, err)
	assert.NotContains(t, readParts(t, untitled)["docProps/core.xml"], "<dc:title>")
}
