package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"drudge/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 30 * time.Second

var ErrSnapshotNotFound = errors.New("snapshot not found")

// DB handles all archive operations with a shared connection pool
type DB struct {
	db *sql.DB
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// quoteValue quotes a libpq keyword/value connection string value
func quoteValue(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

func buildConnectionString(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		quoteValue(host), port, quoteValue(user), quoteValue(password), quoteValue(dbname),
	)
}

func NewDB(host string, port int, user, password, dbname string) (*DB, error) {
	db, err := sql.Open("postgres", buildConnectionString(host, port, user, password, dbname))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(time.Hour)

	return &DB{db: db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func insertSnapshotQuery(snap models.Snapshot, blob []byte) (string, []interface{}) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("snapshots").
		Cols("version", "kind", "entry_count", "entries", "received_at").
		Values(snap.Version, string(snap.Kind), len(snap.Entries), blob, snap.ReceivedAt)
	return ib.Build()
}

func listSnapshotsQuery(limit int) (string, []interface{}) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "version", "kind", "entry_count", "received_at").
		From("snapshots").
		OrderBy("id").Desc().
		Limit(limit)
	return sb.Build()
}

func snapshotEntriesQuery(id int64) (string, []interface{}) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("entries").From("snapshots").Where(sb.Equal("id", id))
	return sb.Build()
}

func tidyQuery(cutoff time.Time) (string, []interface{}) {
	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("snapshots").Where(del.LessThan("received_at", cutoff))
	return del.Build()
}

// ArchiveSnapshot inserts one accepted snapshot
func (db *DB) ArchiveSnapshot(ctx context.Context, snap models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	blob, err := CompressEntries(snap.Entries)
	if err != nil {
		return err
	}

	sql, args := insertSnapshotQuery(snap, blob)
	if _, err := db.db.ExecContext(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert error: %w", err)
	}

	log.WithFields(log.Fields{
		"version": snap.Version,
		"kind":    snap.Kind,
		"entries": len(snap.Entries),
		"bytes":   len(blob),
	}).Debug("Archived snapshot")

	return nil
}

// ListSnapshots returns the newest archived snapshots first
func (db *DB) ListSnapshots(ctx context.Context, limit int) ([]models.ArchivedSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sql, args := listSnapshotsQuery(limit)
	rows, err := db.db.QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var snapshots []models.ArchivedSnapshot
	for rows.Next() {
		var snap models.ArchivedSnapshot
		var kind string
		if err := rows.Scan(&snap.Id, &snap.Version, &kind, &snap.EntryCount, &snap.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		snap.Kind = models.EventKind(kind)
		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}

// SnapshotEntries loads and decompresses the entries of one archived snapshot
func (db *DB) SnapshotEntries(ctx context.Context, id int64) ([]models.ArticleEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var blob []byte
	query, args := snapshotEntriesQuery(id)
	err := db.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	return DecompressEntries(blob)
}

// Tidy deletes snapshots received before olderThan
func (db *DB) Tidy(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sql, args := tidyQuery(olderThan)
	log.WithFields(log.Fields{
		"sql":  sql,
		"args": args,
	}).Info("Tidying archive")

	res, err := db.db.ExecContext(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}
	return res.RowsAffected()
}
