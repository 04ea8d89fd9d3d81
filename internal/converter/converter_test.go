package converter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTypeDetection(t *testing.T) {
	assert.True(t, IsDocxFile("report.docx"))
	assert.True(t, IsDocxFile("REPORT.DOCX"))
	assert.False(t, IsDocxFile("report.doc"))
	assert.False(t, IsDocxFile("report.txt"))

	assert.True(t, IsHTMLFile("page.html"))
	assert.True(t, IsHTMLFile("page.htm"))
	assert.False(t, IsHTMLFile("page.xhtml.bak"))
}

func TestSanitizeEditorHTML(t *testing.T) {
	c := New()

	t.Run("StripsScript", func(t *testing.T) {
		out := c.SanitizeEditorHTML(`<p>hello</p><script>alert(1)</script>`)
		assert.Contains(t, out, "<p>hello</p>")
		assert.NotContains(t, out, "script")
		assert.NotContains(t, out, "alert")
	})

	t.Run("StripsStyleBlocks", func(t *testing.T) {
		out := c.SanitizeEditorHTML(`<style>p{display:none}</style><p>visible</p>`)
		assert.NotContains(t, out, "display:none")
		assert.Contains(t, out, "visible")
	})

	t.Run("KeepsFormatting", func(t *testing.T) {
		out := c.SanitizeEditorHTML(`<p><strong>bold</strong> and <em>italic</em></p>`)
		assert.Contains(t, out, "<strong>bold</strong>")
		assert.Contains(t, out, "<em>italic</em>")
	})
}

func TestHTMLToDocxRoundTrip(t *testing.T) {
	c := New()

	t.Run("Paragraphs", func(t *testing.T) {
		docx, err := c.HTMLToDocx("<p>first paragraph</p><p>second paragraph</p>")
		require.NoError(t, err)
		require.NotEmpty(t, docx)

		htmlOut, text, err := c.DocxToHTML(docx)
		require.NoError(t, err)
		assert.Contains(t, htmlOut, "<p>first paragraph</p>")
		assert.Contains(t, htmlOut, "<p>second paragraph</p>")
		assert.Equal(t, "first paragraph\nsecond paragraph", text)
	})

	t.Run("Formatting", func(t *testing.T) {
		docx, err := c.HTMLToDocx("<p><strong>bold</strong><em>italic</em><u>underline</u></p>")
		require.NoError(t, err)

		htmlOut, _, err := c.DocxToHTML(docx)
		require.NoError(t, err)
		assert.Contains(t, htmlOut, "<strong>bold</strong>")
		assert.Contains(t, htmlOut, "<em>italic</em>")
		assert.Contains(t, htmlOut, "<u>underline</u>")
	})

	t.Run("Headings", func(t *testing.T) {
		docx, err := c.HTMLToDocx("<h1>Title</h1><h2>Subtitle</h2><p>body</p>")
		require.NoError(t, err)

		htmlOut, text, err := c.DocxToHTML(docx)
		require.NoError(t, err)
		assert.Contains(t, htmlOut, "<h1>Title</h1>")
		assert.Contains(t, htmlOut, "<h2>Subtitle</h2>")
		assert.Contains(t, htmlOut, "<p>body</p>")
		assert.Contains(t, text, "Title")
	})

	t.Run("EscapesMarkupInText", func(t *testing.T) {
		docx, err := c.HTMLToDocx("<p>a &lt; b &amp; c</p>")
		require.NoError(t, err)

		htmlOut, text, err := c.DocxToHTML(docx)
		require.NoError(t, err)
		assert.Contains(t, htmlOut, "a &lt; b &amp; c")
		assert.Equal(t, "a < b & c", text)
	})
}

func TestDocxToHTMLRejectsGarbage(t *testing.T) {
	c := New()

	_, _, err := c.DocxToHTML([]byte("this is not a zip archive"))
	assert.Error(t, err)
}

func TestEditorHTMLForUnsupported(t *testing.T) {
	out := EditorHTMLForUnsupported("data<x>.bin", 1234)
	assert.Contains(t, out, "1234 bytes")
	assert.NotContains(t, out, "<x>")
	assert.True(t, strings.HasPrefix(out, "<p>"))
}
