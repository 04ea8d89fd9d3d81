package converter

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
)

// runFormat tracks character formatting for a DOCX run
type runFormat struct {
	Bold      bool
	Italic    bool
	Underline bool
}

// block is one paragraph-level element on its way into a DOCX package
type block struct {
	HeadingLevel int // 0 for a plain paragraph
	Runs         []docxRun
}

type docxRun struct {
	Text   string
	Format runFormat
}

// documentToHTML walks word/document.xml and emits HTML paragraphs plus a
// plain-text rendering. Unknown elements are skipped, not errors — real
// DOCX files are full of markup this converter does not care about.
func documentToHTML(documentXML []byte) (string, string, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(documentXML)))

	var htmlOut strings.Builder
	var textOut strings.Builder

	var inParagraph bool
	var paragraph strings.Builder
	var paragraphText strings.Builder
	var headingLevel int
	var format runFormat
	var inRunProps bool

	flushParagraph := func() {
		tag := "p"
		if headingLevel > 0 {
			tag = fmt.Sprintf("h%d", headingLevel)
		}
		htmlOut.WriteString("<" + tag + ">")
		htmlOut.WriteString(paragraph.String())
		htmlOut.WriteString("</" + tag + ">")
		if textOut.Len() > 0 {
			textOut.WriteString("\n")
		}
		textOut.WriteString(paragraphText.String())
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", "", fmt.Errorf("failed to parse document XML: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				paragraph.Reset()
				paragraphText.Reset()
				headingLevel = 0
			case "pStyle":
				headingLevel = headingLevelFromStyle(attrValue(t, "val"))
			case "rPr":
				inRunProps = true
			case "r":
				format = runFormat{}
			case "b":
				if inRunProps && !isOffToggle(t) {
					format.Bold = true
				}
			case "i":
				if inRunProps && !isOffToggle(t) {
					format.Italic = true
				}
			case "u":
				if inRunProps && attrValue(t, "val") != "none" {
					format.Underline = true
				}
			case "t":
				var text string
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return "", "", fmt.Errorf("failed to decode text run: %w", err)
				}
				if inParagraph {
					paragraph.WriteString(formatRunHTML(text, format))
					paragraphText.WriteString(text)
				}
			case "br":
				if inParagraph && !inRunProps {
					paragraph.WriteString("<br/>")
					paragraphText.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inParagraph {
					flushParagraph()
					inParagraph = false
				}
			case "rPr":
				inRunProps = false
			}
		}
	}

	return htmlOut.String(), textOut.String(), nil
}

func formatRunHTML(text string, format runFormat) string {
	out := html.EscapeString(text)
	if format.Underline {
		out = "<u>" + out + "</u>"
	}
	if format.Italic {
		out = "<em>" + out + "</em>"
	}
	if format.Bold {
		out = "<strong>" + out + "</strong>"
	}
	return out
}

func headingLevelFromStyle(style string) int {
	if !strings.HasPrefix(style, "Heading") {
		return 0
	}
	switch strings.TrimPrefix(style, "Heading") {
	case "1":
		return 1
	case "2":
		return 2
	case "3":
		return 3
	case "4":
		return 4
	case "5":
		return 5
	case "6":
		return 6
	}
	return 0
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return attr.Value
		}
	}
	return ""
}

// isOffToggle reports whether a toggle property like <w:b/> carries an
// explicit off value (w:val="false" or "0").
func isOffToggle(el xml.StartElement) bool {
	val := attrValue(el, "val")
	return val == "false" || val == "0"
}

// buildDocumentXML renders blocks into the main DOCX document part
func buildDocumentXML(blocks []block) string {
	var body strings.Builder
	for _, blk := range blocks {
		body.WriteString("<w:p>")
		if blk.HeadingLevel > 0 {
			body.WriteString(fmt.Sprintf(`<w:pPr><w:pStyle w:val="Heading%d"/></w:pPr>`, blk.HeadingLevel))
		}
		for _, run := range blk.Runs {
			body.WriteString("<w:r>")
			if run.Format.Bold || run.Format.Italic || run.Format.Underline {
				body.WriteString("<w:rPr>")
				if run.Format.Bold {
					body.WriteString("<w:b/>")
				}
				if run.Format.Italic {
					body.WriteString("<w:i/>")
				}
				if run.Format.Underline {
					body.WriteString(`<w:u w:val="single"/>`)
				}
				body.WriteString("</w:rPr>")
			}
			body.WriteString(`<w:t xml:space="preserve">`)
			body.WriteString(escapeXML(run.Text))
			body.WriteString("</w:t></w:r>")
		}
		body.WriteString("</w:p>")
	}

	return xml.Header +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		"<w:body>" + body.String() + "</w:body></w:document>"
}

func escapeXML(s string) string {
	var buf strings.Builder
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

const contentTypesXML = xml.Header +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`</Types>`

const relsXML = xml.Header +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const documentRelsXML = xml.Header +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`</Relationships>`

const stylesXML = xml.Header +
	`<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:rPr><w:b/><w:sz w:val="28"/></w:rPr></w:style>` +
	`<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:rPr><w:b/><w:sz w:val="26"/></w:rPr></w:style>` +
	`</w:styles>`
