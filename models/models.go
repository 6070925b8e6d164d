package models

import "time"

// EventKind names the push channel event a snapshot arrived with
type EventKind string

const (
	// InitialDocuments is the first full list sent after connecting
	InitialDocuments EventKind = "initialDocuments"
	// UpdateDocuments is every full list sent after the first one
	UpdateDocuments EventKind = "updateDocuments"
)

// ArticleEntry is one aggregated news item as delivered by the push channel
type ArticleEntry struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	PageLocation string `json:"pageLocation"`
}

// Snapshot is a complete, accepted replacement list of article entries
type Snapshot struct {
	Version    uint64         `json:"version"`
	Kind       EventKind      `json:"kind"`
	Entries    []ArticleEntry `json:"entries"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// Link is a structured hyperlink, rendered by the consumer without markup interpolation
type Link struct {
	Href        string `json:"href"`
	Text        string `json:"text"`
	OpensNewTab bool   `json:"opensNewTab"`
}

// DisplayEntry is the derived, render-ready form of an ArticleEntry
type DisplayEntry struct {
	Title         string `json:"title"`
	Zone          string `json:"zone"`
	OrderKey      int    `json:"orderKey"`
	LinkText      string `json:"linkText"`
	SourceLink    Link   `json:"sourceLink"`
	CompanionLink Link   `json:"companionLink"`
}

// DisplayList is the ordered and enriched view of one snapshot
type DisplayList struct {
	Version   uint64         `json:"version"`
	Entries   []DisplayEntry `json:"entries"`
	DerivedAt time.Time      `json:"derivedAt"`
}

// Discussion is a candidate returned by the forum's discussion index
type Discussion struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Resolution is where a companion link should send the reader
type Resolution struct {
	URL          string `json:"url"`
	DiscussionID string `json:"discussionId,omitempty"`
	Existing     bool   `json:"existing"`
}

// ArchivedSnapshot is a row of the optional snapshot archive
type ArchivedSnapshot struct {
	Id         int64     `json:"id"`
	Version    uint64    `json:"version"`
	Kind       EventKind `json:"kind"`
	EntryCount int       `json:"entryCount"`
	ReceivedAt time.Time `json:"receivedAt"`
}
