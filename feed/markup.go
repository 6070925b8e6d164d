package feed

import (
	"regexp"

	"drudge/models"
)

var (
	// Only plain text anchors match; anchors wrapping other tags yield no text.
	anchorTextPattern = regexp.MustCompile(`<a[^>]*>([^<]*)</a>`)
	anchorHrefPattern = regexp.MustCompile(`<a\s[^>]*?href\s*=\s*(?:"([^"]*)"|'([^']*)')`)
)

// LinkText returns the text between the first anchor's opening and closing tags
func LinkText(markup string) string {
	m := anchorTextPattern.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	return m[1]
}

// LinkHref returns the href attribute of the first anchor
func LinkHref(markup string) string {
	m := anchorHrefPattern.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// SourceLink turns anchor markup into a structured link that opens in a new tab
func SourceLink(markup string) models.Link {
	return models.Link{
		Href:        LinkHref(markup),
		Text:        LinkText(markup),
		OpensNewTab: true,
	}
}
