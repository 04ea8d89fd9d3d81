package converter

import (
	"strings"

	"golang.org/x/net/html"
)

// parseHTMLBlocks tokenizes editor HTML into paragraph-level blocks with
// bold/italic/underline run formatting. The editor emits a flat structure
// (p, h1-h6, br, inline formatting), so a tokenizer pass is sufficient —
// no DOM needed.
func parseHTMLBlocks(content string) []block {
	tokenizer := html.NewTokenizer(strings.NewReader(content))

	var blocks []block
	current := block{}
	var format runFormat
	var depth struct{ bold, italic, underline int }
	started := false

	flush := func() {
		if started && len(current.Runs) > 0 {
			blocks = append(blocks, current)
		}
		current = block{}
		started = false
	}

	appendText := func(text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		started = true
		current.Runs = append(current.Runs, docxRun{Text: text, Format: format})
	}

	for {
		tokenType := tokenizer.Next()
		if tokenType == html.ErrorToken {
			break
		}

		switch tokenType {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			switch tag := string(name); tag {
			case "p", "div", "li":
				flush()
				started = true
			case "h1", "h2", "h3", "h4", "h5", "h6":
				flush()
				started = true
				current.HeadingLevel = int(tag[1] - '0')
			case "br":
				appendText("\n")
			case "b", "strong":
				depth.bold++
				format.Bold = true
			case "i", "em":
				depth.italic++
				format.Italic = true
			case "u":
				depth.underline++
				format.Underline = true
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6":
				flush()
			case "b", "strong":
				if depth.bold--; depth.bold <= 0 {
					depth.bold = 0
					format.Bold = false
				}
			case "i", "em":
				if depth.italic--; depth.italic <= 0 {
					depth.italic = 0
					format.Italic = false
				}
			case "u":
				if depth.underline--; depth.underline <= 0 {
					depth.underline = 0
					format.Underline = false
				}
			}
		case html.TextToken:
			appendText(string(tokenizer.Text()))
		}
	}
	flush()

	return blocks
}
