package converter

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Converter translates between the DOCX wire format and the HTML the
// in-browser editor works with. DOCX support is deliberately narrow:
// paragraphs, headings, bold/italic/underline runs, and line breaks —
// the subset the editor can round-trip.
type Converter struct {
	policy *bluemonday.Policy
}

// New creates a document converter
func New() *Converter {
	return &Converter{policy: bluemonday.UGCPolicy()}
}

// IsDocxFile reports whether a filename looks like a DOCX document
func IsDocxFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".docx")
}

// IsHTMLFile reports whether a filename looks like an HTML document
func IsHTMLFile(filename string) bool {
	lower := strings.ToLower(filename)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

// SanitizeEditorHTML strips markup the editor must never see (script, style,
// event handlers) before content is stored or sent to a browser.
func (c *Converter) SanitizeEditorHTML(content string) string {
	return strings.TrimSpace(c.policy.Sanitize(content))
}

// DocxToHTML converts DOCX bytes to HTML plus a plain-text rendering
func (c *Converter) DocxToHTML(docxContent []byte) (string, string, error) {
	reader, err := zip.NewReader(bytes.NewReader(docxContent), int64(len(docxContent)))
	if err != nil {
		return "", "", fmt.Errorf("failed to open DOCX package: %w", err)
	}

	var documentXML []byte
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			rc, err := file.Open()
			if err != nil {
				return "", "", fmt.Errorf("failed to open document part: %w", err)
			}
			documentXML, err = io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				return "", "", fmt.Errorf("failed to read document part: %w", err)
			}
			break
		}
	}
	if documentXML == nil {
		return "", "", fmt.Errorf("DOCX package has no word/document.xml")
	}

	htmlContent, plainText, err := documentToHTML(documentXML)
	if err != nil {
		return "", "", err
	}
	return htmlContent, plainText, nil
}

// HTMLToDocx converts editor HTML to a minimal DOCX package
func (c *Converter) HTMLToDocx(htmlContent string) ([]byte, error) {
	paragraphs := parseHTMLBlocks(c.SanitizeEditorHTML(htmlContent))

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)

	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/styles.xml", stylesXML},
		{"word/document.xml", buildDocumentXML(paragraphs)},
	}
	for _, part := range parts {
		w, err := writer.Create(part.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create DOCX part %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("failed to write DOCX part %s: %w", part.name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize DOCX package: %w", err)
	}
	return buf.Bytes(), nil
}

// EditorHTMLForUnsupported builds placeholder editor content for file types
// the converter does not understand.
func EditorHTMLForUnsupported(filename string, size int64) string {
	return fmt.Sprintf("<p>File: %s</p><p>Size: %d bytes</p>",
		html.EscapeString(filename), size)
}
