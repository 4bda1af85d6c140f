// Package index maintains an advisory SQLite index over the session store:
// fast listing and FTS5 full-text search without touching every metadata
// file. It uses modernc.org/sqlite (pure Go, no CGO) with WAL mode.
//
// The filesystem is always the source of truth. The index is rebuilt from
// it on demand and is never trusted over it.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pbellet/sessionlog/pkg/conversation"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000 // milliseconds

// Source is the slice of the store the index reads when rebuilding.
type Source interface {
	ListSessions() ([]conversation.Metadata, error)
	LoadSession(sessionID string) ([]conversation.Message, error)
}

// Index is a SQLite-backed session index.
type Index struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the index database at path. The database
// uses WAL mode, a 5 s busy timeout, and a single connection (SQLite
// serializes writes). The schema is migrated automatically.
func Open(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("index: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.TODO()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("index: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Index{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// IndexSession replaces the indexed state for one session.
func (ix *Index) IndexSession(meta conversation.Metadata, messages []conversation.Message) error {
	ctx := context.TODO()

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages_fts WHERE session_id = ?", meta.SessionID); err != nil {
		return fmt.Errorf("index: clear session text: %w", err)
	}

	hasSummary := 0
	if meta.HasSummary {
		hasSummary = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (session_id, title, created_at, updated_at, message_count, has_summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		meta.SessionID,
		meta.Title,
		meta.Created.UTC().Format(time.RFC3339Nano),
		meta.Updated.UTC().Format(time.RFC3339Nano),
		meta.MessageCount,
		hasSummary,
	); err != nil {
		return fmt.Errorf("index: upsert session: %w", err)
	}

	for i := range messages {
		text := searchableText(messages[i])
		if text == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages_fts (session_id, uuid, content) VALUES (?, ?, ?)",
			messages[i].SessionID, messages[i].UUID, text,
		); err != nil {
			return fmt.Errorf("index: insert message text: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// Remove drops one session from the index.
func (ix *Index) Remove(sessionID string) error {
	ctx := context.TODO()
	if _, err := ix.db.ExecContext(ctx, "DELETE FROM messages_fts WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("index: remove session text: %w", err)
	}
	if _, err := ix.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("index: remove session: %w", err)
	}
	return nil
}

// Rebuild re-derives the whole index from the store. Sessions that fail to
// load are skipped with a warning so one bad session cannot block the
// rebuild.
func (ix *Index) Rebuild(src Source) error {
	sessions, err := src.ListSessions()
	if err != nil {
		return err
	}

	for _, meta := range sessions {
		messages, err := src.LoadSession(meta.SessionID)
		if err != nil {
			ix.logger.Warn("index: skipping session during rebuild",
				"session", meta.SessionID,
				"error", err,
			)
			continue
		}
		if err := ix.IndexSession(meta, messages); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the sessions whose message text matches the FTS5 query,
// most recently updated first.
func (ix *Index) Search(query string, limit int) ([]conversation.Metadata, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx := context.TODO()
	rows, err := ix.db.QueryContext(ctx,
		`SELECT s.session_id, s.title, s.created_at, s.updated_at, s.message_count, s.has_summary
		 FROM sessions s
		 WHERE s.session_id IN (
			SELECT DISTINCT session_id FROM messages_fts WHERE messages_fts MATCH ?
		 )
		 ORDER BY s.updated_at DESC
		 LIMIT ?`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var results []conversation.Metadata
	for rows.Next() {
		var (
			meta       conversation.Metadata
			created    string
			updated    string
			hasSummary int
		)
		if err := rows.Scan(&meta.SessionID, &meta.Title, &created, &updated, &meta.MessageCount, &hasSummary); err != nil {
			return nil, fmt.Errorf("index: scan result: %w", err)
		}
		meta.Created, _ = time.Parse(time.RFC3339Nano, created)
		meta.Updated, _ = time.Parse(time.RFC3339Nano, updated)
		meta.HasSummary = hasSummary != 0
		results = append(results, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: search rows: %w", err)
	}
	return results, nil
}

// searchableText extracts the plain text of a message for indexing.
func searchableText(msg conversation.Message) string {
	var b strings.Builder
	b.WriteString(msg.Payload.Content)
	for _, block := range msg.Payload.Blocks {
		if block.Type == conversation.BlockText && block.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
