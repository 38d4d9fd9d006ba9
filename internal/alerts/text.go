package alerts

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
)

var unicodeEscape = regexp.MustCompile(`\\u([0-9a-fA-F]{4})(\\u([0-9a-fA-F]{4}))?`)

var blockBreaks = strings.NewReplacer(
	"<br>", " <br>",
	"<br/>", " <br/>",
	"<br />", " <br />",
	"</p>", "</p> ",
	"</li>", "</li> ",
	"</div>", "</div> ",
)

// CleanText decodes literal \uXXXX escapes, strips HTML markup and
// collapses whitespace. Upstream texts are sometimes encoded twice.
func CleanText(s string) string {
	if s == "" {
		return ""
	}

	s = decodeUnicodeEscapes(s)
	if strings.ContainsAny(s, "<&") {
		s = stripHTML(s)
	}
	return strings.Join(strings.Fields(s), " ")
}

func decodeUnicodeEscapes(s string) string {
	if !strings.Contains(s, `\u`) {
		return s
	}

	return unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		parts := unicodeEscape.FindStringSubmatch(m)
		hi := parseHex(parts[1])
		if parts[3] != "" {
			lo := parseHex(parts[3])
			if utf16.IsSurrogate(hi) {
				return string(utf16.DecodeRune(hi, lo))
			}
			return string(hi) + string(lo)
		}
		return string(hi)
	})
}

func parseHex(s string) rune {
	v, _ := strconv.ParseUint(s, 16, 32)
	return rune(v)
}

func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockBreaks.Replace(s)))
	if err != nil {
		return s
	}
	return doc.Text()
}
