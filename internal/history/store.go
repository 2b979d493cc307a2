// Package history is a write-only debugging ledger (§9 "durable
// episode/mode-switch ledger"): it records provider transitions, the
// shutdown handshake, and data-collection episode-state transitions so a
// crashed or misbehaving run can be diagnosed after the fact. Nothing in
// the control-flow path ever reads it back.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/brainbot-robotics/brainbot/internal/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Kind enumerates the event categories this package records.
type Kind string

const (
	KindProviderSwitch    Kind = "provider_switch"
	KindShutdownRequest   Kind = "shutdown_request"
	KindShutdownAck       Kind = "shutdown_ack"
	KindShutdownTimeout   Kind = "shutdown_timeout"
	KindEpisodeTransition Kind = "episode_transition"
)

// Store wraps a sqlite-backed event_log table, grounded on the teacher's
// internal/store Open/migrate idiom.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at dsn and applies
// any unapplied migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Append records one event. subject is the provider key, episode index, or
// similar identifying detail; detail is free-form (may be empty).
func (s *Store) Append(kind Kind, subject, detail string) error {
	_, err := s.db.Exec(
		"INSERT INTO event_log (kind, subject, detail) VALUES (?, ?, ?)",
		string(kind), subject, detail,
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// Entry is one recorded row, returned by Recent for tests and operator
// diagnosis tooling; never consulted by any control-flow decision.
type Entry struct {
	ID      int64
	Kind    string
	Subject string
	Detail  string
}

// Recent returns the last n rows, most recent first.
func (s *Store) Recent(n int) ([]Entry, error) {
	rows, err := s.db.Query("SELECT id, kind, subject, detail FROM event_log ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &detail); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendBestEffort records the event and logs rather than propagates any
// failure (§9: the ledger is a debugging aid, never allowed to affect the
// orchestrator's own control flow). s may be nil, in which case this is a
// silent no-op — callers are not required to have a history store
// configured.
func (s *Store) AppendBestEffort(kind Kind, subject, detail string) {
	if s == nil {
		return
	}
	if err := s.Append(kind, subject, detail); err != nil {
		logger.Warn("history: failed to record event", "kind", kind, "err", err)
	}
}
