package forum

import (
	"net/url"
	"strings"
)

// url.QueryEscape turns spaces into '+' and escapes !'()* which
// encodeURIComponent leaves alone. Links built here must match the ones
// browsers produce, so the difference is patched back.
var componentReplacer = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent escapes s the way JavaScript's encodeURIComponent does
func EncodeURIComponent(s string) string {
	return componentReplacer.Replace(url.QueryEscape(s))
}
