package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"drudge/models"
)

// ErrMalformedSnapshot is wrapped by every DecodeSnapshot rejection
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// wireEntry uses pointers so absent and null fields can be told apart from empty strings
type wireEntry struct {
	Title        *string `json:"title"`
	Link         *string `json:"link"`
	PageLocation *string `json:"pageLocation"`
}

func (w wireEntry) missing() []string {
	var fields []string
	if w.Title == nil {
		fields = append(fields, "title")
	}
	if w.Link == nil {
		fields = append(fields, "link")
	}
	if w.PageLocation == nil {
		fields = append(fields, "pageLocation")
	}
	return fields
}

// DecodeSnapshot validates a push payload and returns its entries.
// The payload must be a JSON array of objects, each carrying string title,
// link and pageLocation fields. Empty strings are accepted, extra fields ignored.
func DecodeSnapshot(raw json.RawMessage) ([]models.ArticleEntry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: payload is not a list", ErrMalformedSnapshot)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	entries := make([]models.ArticleEntry, 0, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			return nil, fmt.Errorf("%w: entry %d is not an object", ErrMalformedSnapshot, i)
		}

		var w wireEntry
		if err := json.Unmarshal(item, &w); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformedSnapshot, i, err)
		}
		if missing := w.missing(); len(missing) > 0 {
			return nil, fmt.Errorf("%w: entry %d is missing %s", ErrMalformedSnapshot, i, strings.Join(missing, ", "))
		}

		entries = append(entries, models.ArticleEntry{
			Title:        *w.Title,
			Link:         *w.Link,
			PageLocation: *w.PageLocation,
		})
	}

	return entries, nil
}
