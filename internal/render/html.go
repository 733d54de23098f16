package render

import (
	"strings"

	xhtml "golang.org/x/net/html"
)

// HNToText turns the small HTML subset HN emits into wrapped terminal text.
// Paragraphs become blank lines, <i> becomes *x*, inline <code> gets
// backticks, <pre> blocks are indented and left unwrapped, and a link keeps
// its text followed by the target when the two differ. Anything else,
// including script and style bodies, is dropped. Entities are decoded by the
// tokenizer.
func HNToText(raw string, width int) string {
	if raw == "" {
		return ""
	}

	z := xhtml.NewTokenizer(strings.NewReader(raw))
	var sb strings.Builder
	var inPre, inCode bool
	skip := 0
	href := ""
	linkStart := 0

	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			return wrapText(strings.TrimSpace(sb.String()), width)

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			t := z.Token()
			switch t.Data {
			case "script", "style":
				if tt == xhtml.StartTagToken {
					skip++
				}
			case "p":
				if sb.Len() > 0 {
					sb.WriteString("\n\n")
				}
			case "br":
				sb.WriteString("\n")
			case "i", "em":
				sb.WriteString("*")
			case "code":
				if !inPre {
					sb.WriteString("`")
				}
				inCode = true
			case "pre":
				inPre = true
				sb.WriteString("\n")
			case "a":
				href = ""
				for _, attr := range t.Attr {
					if attr.Key == "href" {
						href = attr.Val
					}
				}
				linkStart = sb.Len()
			}

		case xhtml.EndTagToken:
			t := z.Token()
			switch t.Data {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "i", "em":
				sb.WriteString("*")
			case "code":
				if !inPre {
					sb.WriteString("`")
				}
				inCode = false
			case "pre":
				inPre = false
				sb.WriteString("\n")
			case "a":
				text := strings.TrimSpace(sb.String()[linkStart:])
				if href != "" && !sameLink(text, href) {
					sb.WriteString(" [" + href + "]")
				}
				href = ""
			}

		case xhtml.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			switch {
			case inPre:
				for i, line := range strings.Split(text, "\n") {
					if i > 0 {
						sb.WriteString("\n")
					}
					if line != "" {
						sb.WriteString("    " + line)
					}
				}
			case inCode:
				sb.WriteString(text)
			default:
				sb.WriteString(text)
			}
		}
	}
}

// sameLink reports whether the visible link text already shows the target.
// HN truncates long link text with "...".
func sameLink(text, href string) bool {
	if text == href {
		return true
	}
	if trimmed, ok := strings.CutSuffix(text, "..."); ok {
		return strings.HasPrefix(href, trimmed)
	}
	return false
}

// wrapText performs simple word wrapping to the given width.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var result strings.Builder
	for _, paragraph := range strings.Split(text, "\n") {
		if strings.HasPrefix(paragraph, "    ") {
			// Don't wrap code blocks.
			result.WriteString(paragraph)
			result.WriteString("\n")
			continue
		}
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			result.WriteString("\n")
			continue
		}
		lineLen := 0
		for i, word := range words {
			wlen := len([]rune(word))
			if i > 0 && lineLen+1+wlen > width {
				result.WriteString("\n")
				lineLen = 0
			} else if i > 0 {
				result.WriteString(" ")
				lineLen++
			}
			result.WriteString(word)
			lineLen += wlen
		}
		result.WriteString("\n")
	}
	return strings.TrimRight(result.String(), "\n")
}
