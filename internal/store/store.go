// Package store persists sessions on disk. Each session is a directory under
// the store root holding a pretty-printed metadata.json and an append-only
// messages.jsonl with one compact JSON object per line. The layout is an
// interop contract: other tools read these files directly.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pbellet/sessionlog/pkg/conversation"
)

const (
	metadataFile = "metadata.json"
	messagesFile = "messages.jsonl"
)

// maxLineSize bounds a single JSONL line. Large tool results can run into
// megabytes; the default bufio limit of 64 KiB is not enough.
const maxLineSize = 16 * 1024 * 1024

// Store handles persistence of sessions under a single root directory.
// It performs no locking: callers that interleave append and metadata
// updates on the same session must serialize them (the history manager does).
type Store struct {
	root   string
	logger *slog.Logger

	// now is injectable for deterministic testing.
	now func() time.Time
}

// New creates a store rooted at root. The directory is created lazily on
// first write. A nil logger falls back to slog.Default().
func New(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger, now: time.Now}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *Store) metadataPath(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), metadataFile)
}

func (s *Store) messagesPath(sessionID string) string {
	return filepath.Join(s.sessionDir(sessionID), messagesFile)
}

// CreateSession allocates a new session: directory, empty message log, and
// initial metadata. It returns the generated session id.
func (s *Store) CreateSession(title string) (string, error) {
	sessionID := uuid.NewString()

	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create session directory: %w", err)
	}

	// Touch the empty log so a session with zero messages is still loadable.
	f, err := os.OpenFile(s.messagesPath(sessionID), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("store: create message log: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("store: create message log: %w", err)
	}

	cwd, _ := os.Getwd()
	now := s.now()
	meta := conversation.Metadata{
		SessionID: sessionID,
		Title:     title,
		Created:   now,
		Updated:   now,
		CWD:       cwd,
		Version:   conversation.FormatVersion,
		UserType:  conversation.DefaultUserType,
	}
	if err := s.WriteMetadata(sessionID, meta); err != nil {
		return "", err
	}

	return sessionID, nil
}

// LoadSession parses the session's message log line by line. A line that
// fails to parse is skipped and logged; partial corruption never makes the
// whole session unreadable. Loading a session whose directory does not exist
// returns ErrSessionNotFound.
func (s *Store) LoadSession(sessionID string) ([]conversation.Message, error) {
	if err := s.ensureExists(sessionID); err != nil {
		return nil, err
	}

	f, err := os.Open(s.messagesPath(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Directory exists but the log was never created: empty session.
			return []conversation.Message{}, nil
		}
		return nil, fmt.Errorf("store: open message log: %w", err)
	}
	defer f.Close()

	messages := []conversation.Message{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg conversation.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("store: skipping malformed log line",
				"session", sessionID,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: read message log: %w", err)
	}

	return messages, nil
}

// LoadSessionSince streams the log once, skipping lines until one carries
// the given uuid, then collects that message and everything after it. The
// bool return reports whether the uuid was found; when false the returned
// slice is nil and the caller should fall back to a full load.
func (s *Store) LoadSessionSince(sessionID, fromUUID string) ([]conversation.Message, bool, error) {
	if err := s.ensureExists(sessionID); err != nil {
		return nil, false, err
	}

	f, err := os.Open(s.messagesPath(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: open message log: %w", err)
	}
	defer f.Close()

	var (
		collecting bool
		messages   []conversation.Message
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg conversation.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("store: skipping malformed log line",
				"session", sessionID,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		if !collecting && msg.UUID == fromUUID {
			collecting = true
		}
		if collecting {
			messages = append(messages, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, false, fmt.Errorf("store: read message log: %w", err)
	}

	return messages, collecting, nil
}

// SaveSession overwrites the session's message log with the given messages.
// Parent directories are created as needed.
func (s *Store) SaveSession(sessionID string, messages []conversation.Message) error {
	if err := os.MkdirAll(s.sessionDir(sessionID), 0o755); err != nil {
		return fmt.Errorf("store: create session directory: %w", err)
	}

	f, err := os.OpenFile(s.messagesPath(sessionID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("store: open message log: %w", err)
	}

	w := bufio.NewWriter(f)
	for i := range messages {
		line, err := json.Marshal(messages[i])
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("store: marshal message %s: %w", messages[i].UUID, err)
		}
		if _, err := w.Write(line); err != nil {
			_ = f.Close()
			return fmt.Errorf("store: write message log: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return fmt.Errorf("store: write message log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: flush message log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close message log: %w", err)
	}
	return nil
}

// AppendMessage appends one message as a single JSONL line.
func (s *Store) AppendMessage(sessionID string, msg conversation.Message) error {
	if err := s.ensureExists(sessionID); err != nil {
		return err
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("store: marshal message %s: %w", msg.UUID, err)
	}

	f, err := os.OpenFile(s.messagesPath(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: open message log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("store: append message: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: close message log: %w", err)
	}
	return nil
}

// DeleteSession removes the session directory and everything in it.
// Deleting a missing session is a no-op.
func (s *Store) DeleteSession(sessionID string) error {
	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}

// ListSessions returns metadata for every session under the root, sorted by
// Updated descending. Entries whose metadata cannot be read are skipped with
// a warning.
func (s *Store) ListSessions() ([]conversation.Metadata, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []conversation.Metadata{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}

	sessions := []conversation.Metadata{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.ReadMetadata(entry.Name())
		if err != nil {
			s.logger.Warn("store: skipping unreadable session",
				"session", entry.Name(),
				"error", err,
			)
			continue
		}
		sessions = append(sessions, meta)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Updated.After(sessions[j].Updated)
	})
	return sessions, nil
}

// ReadMetadata reads and parses the session's metadata record.
func (s *Store) ReadMetadata(sessionID string) (conversation.Metadata, error) {
	data, err := os.ReadFile(s.metadataPath(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return conversation.Metadata{}, ErrSessionNotFound
		}
		return conversation.Metadata{}, fmt.Errorf("store: read metadata: %w", err)
	}
	var meta conversation.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return conversation.Metadata{}, fmt.Errorf("store: parse metadata: %w", err)
	}
	return meta, nil
}

// WriteMetadata replaces the session's metadata record. The file is
// pretty-printed for hand inspection.
func (s *Store) WriteMetadata(sessionID string, meta conversation.Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}
	if err := os.MkdirAll(s.sessionDir(sessionID), 0o755); err != nil {
		return fmt.Errorf("store: create session directory: %w", err)
	}
	if err := os.WriteFile(s.metadataPath(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("store: write metadata: %w", err)
	}
	return nil
}

// UpdateMetadata reads the metadata record, applies the mutation, writes it
// back, and returns the updated record. This is a read-modify-write with no
// locking; the history manager serializes calls per session.
func (s *Store) UpdateMetadata(sessionID string, apply func(*conversation.Metadata)) (conversation.Metadata, error) {
	meta, err := s.ReadMetadata(sessionID)
	if err != nil {
		return conversation.Metadata{}, err
	}
	apply(&meta)
	if err := s.WriteMetadata(sessionID, meta); err != nil {
		return conversation.Metadata{}, err
	}
	return meta, nil
}

// ensureExists maps a missing session directory to ErrSessionNotFound.
func (s *Store) ensureExists(sessionID string) error {
	info, err := os.Stat(s.sessionDir(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("store: stat session: %w", err)
	}
	if !info.IsDir() {
		return ErrSessionNotFound
	}
	return nil
}
