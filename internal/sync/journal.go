package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// defaultJournalLimit caps List when the caller passes no limit.
const defaultJournalLimit = 100

const journalDirPermissions = 0o700

const (
	sqlInsertConflict = `INSERT INTO conflicts
		(id, local_root, remote_root, path,
		 local_mtime, local_size, local_exists,
		 remote_mtime, remote_size, remote_exists,
		 policy, action, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListConflicts = `SELECT id, local_root, remote_root, path,
		local_mtime, local_size, local_exists,
		remote_mtime, remote_size, remote_exists,
		policy, action, detected_at
		FROM conflicts ORDER BY detected_at DESC, id LIMIT ?`

	sqlPruneConflicts = `DELETE FROM conflicts WHERE detected_at < ?`
)

// JournalEntry is one persisted conflict together with the pairing it
// happened in.
type JournalEntry struct {
	ConflictRecord
	LocalRoot  string
	RemoteRoot string
}

// Journal persists every conflict the watch loop resolves, so the operator
// can review after the fact what was kept and what was overwritten. Unlike
// the baselines it outlives the session.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenJournal opens (creating if needed) the SQLite journal at dbPath and
// applies pending migrations.
func OpenJournal(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), journalDirPermissions); err != nil {
		return nil, fmt.Errorf("sync: creating journal directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening journal %s: %w", dbPath, err)
	}

	// One writer at a time; several watch sessions may share the file.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("conflict journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Record stores a resolved conflict. An empty ID gets a fresh UUID.
func (j *Journal) Record(ctx context.Context, localRoot, remoteRoot string, rec ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = j.nowFunc()
	}

	_, err := j.db.ExecContext(ctx, sqlInsertConflict,
		rec.ID, localRoot, remoteRoot, rec.Path,
		rec.Local.ModTime, rec.Local.Size, boolToInt(rec.Local.Exists),
		rec.Remote.ModTime, rec.Remote.Size, boolToInt(rec.Remote.Exists),
		rec.Policy, rec.Action.String(), rec.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sync: recording conflict for %s: %w", rec.Path, err)
	}

	return nil
}

// List returns the most recent conflicts, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}

	rows, err := j.db.QueryContext(ctx, sqlListConflicts, limit)
	if err != nil {
		return nil, fmt.Errorf("sync: listing conflicts: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry

	for rows.Next() {
		e, err := scanJournalRow(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating conflict rows: %w", err)
	}

	return out, nil
}

// Prune deletes conflicts detected before cutoff and returns how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, sqlPruneConflicts, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sync: pruning conflicts: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sync: pruning conflicts: %w", err)
	}

	return n, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func scanJournalRow(rows *sql.Rows) (JournalEntry, error) {
	var (
		e            JournalEntry
		localExists  int
		remoteExists int
		action       string
		detectedAt   int64
	)

	err := rows.Scan(
		&e.ID, &e.LocalRoot, &e.RemoteRoot, &e.Path,
		&e.Local.ModTime, &e.Local.Size, &localExists,
		&e.Remote.ModTime, &e.Remote.Size, &remoteExists,
		&e.Policy, &action, &detectedAt,
	)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("sync: scanning conflict row: %w", err)
	}

	e.Local.Path = e.Path
	e.Local.Exists = localExists != 0
	e.Remote.Path = e.Path
	e.Remote.Exists = remoteExists != 0
	e.Action = ParseAction(action)
	e.DetectedAt = time.Unix(0, detectedAt)

	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
