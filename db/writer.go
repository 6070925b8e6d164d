package db

import (
	"context"
	"time"

	"drudge/models"

	log "github.com/sirupsen/logrus"
)

// Archiver is the part of DB the writer needs
type Archiver interface {
	ArchiveSnapshot(ctx context.Context, snap models.Snapshot) error
	Tidy(ctx context.Context, olderThan time.Time) (int64, error)
}

// Writer archives accepted snapshots off the hot path and prunes old rows
type Writer struct {
	archive   Archiver
	snapChan  chan models.Snapshot
	retention time.Duration
	tidyEvery time.Duration
}

func NewWriter(archive Archiver, retention time.Duration) *Writer {
	return &Writer{
		archive:   archive,
		snapChan:  make(chan models.Snapshot, 64),
		retention: retention,
		tidyEvery: 5 * time.Minute,
	}
}

// Enqueue hands a snapshot to the writer without blocking. The snapshot is
// dropped with a warning when the queue is full.
func (writer *Writer) Enqueue(snap models.Snapshot) {
	select {
	case writer.snapChan <- snap:
	default:
		log.WithFields(log.Fields{
			"version": snap.Version,
		}).Warn("Archive queue full, dropping snapshot")
	}
}

// Subscribe consumes the queue until ctx is done
func (writer *Writer) Subscribe(ctx context.Context) {
	ticker := time.NewTicker(writer.tidyEvery)
	defer ticker.Stop()

	writer.tidy(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writer.tidy(ctx)
		case snap := <-writer.snapChan:
			if err := writer.archive.ArchiveSnapshot(ctx, snap); err != nil {
				log.WithFields(log.Fields{
					"version": snap.Version,
					"error":   err,
				}).Error("Error archiving snapshot")
			}
		}
	}
}

func (writer *Writer) tidy(ctx context.Context) {
	removed, err := writer.archive.Tidy(ctx, time.Now().Add(-writer.retention))
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Error("Error tidying archive")
		return
	}
	log.WithFields(log.Fields{
		"removed": removed,
	}).Info("Tidied archive")
}
