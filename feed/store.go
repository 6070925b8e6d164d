package feed

import (
	"encoding/json"
	"sync"
	"time"

	"drudge/models"

	log "github.com/sirupsen/logrus"
)

// Listener is called once for every snapshot the store accepts
type Listener func(models.Snapshot)

// Store holds the authoritative article list for the session
type Store struct {
	sync.RWMutex
	snapshot  models.Snapshot
	listeners []Listener
}

func NewStore() *Store {
	return &Store{
		snapshot: models.Snapshot{Entries: []models.ArticleEntry{}},
	}
}

// OnReplace registers a listener for accepted snapshots
func (s *Store) OnReplace(listener Listener) {
	s.Lock()
	defer s.Unlock()
	s.listeners = append(s.listeners, listener)
}

// ReplaceAll swaps the whole list for the entries in raw. A malformed payload
// is logged and dropped, leaving the previous list in place. Initial and
// update snapshots are handled the same way.
func (s *Store) ReplaceAll(kind models.EventKind, raw json.RawMessage) bool {
	entries, err := DecodeSnapshot(raw)
	if err != nil {
		snapshotsRejected.WithLabelValues(string(kind)).Inc()
		log.WithFields(log.Fields{
			"kind":  kind,
			"error": err,
		}).Error("Rejected snapshot")
		return false
	}

	s.Lock()
	snap := models.Snapshot{
		Version:    s.snapshot.Version + 1,
		Kind:       kind,
		Entries:    entries,
		ReceivedAt: time.Now(),
	}
	s.snapshot = snap
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.Unlock()

	snapshotsAccepted.WithLabelValues(string(kind)).Inc()
	currentEntries.Set(float64(len(entries)))

	log.WithFields(log.Fields{
		"kind":    kind,
		"version": snap.Version,
		"entries": len(entries),
	}).Info("Accepted snapshot")

	for _, listener := range listeners {
		listener(snap)
	}

	return true
}

// Current returns a copy of the latest accepted entries, empty before the first snapshot
func (s *Store) Current() []models.ArticleEntry {
	s.RLock()
	defer s.RUnlock()

	entries := make([]models.ArticleEntry, len(s.snapshot.Entries))
	copy(entries, s.snapshot.Entries)
	return entries
}

// Snapshot returns the latest accepted snapshot with its version
func (s *Store) Snapshot() models.Snapshot {
	s.RLock()
	defer s.RUnlock()

	snap := s.snapshot
	snap.Entries = make([]models.ArticleEntry, len(s.snapshot.Entries))
	copy(snap.Entries, s.snapshot.Entries)
	return snap
}
