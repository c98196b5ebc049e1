package stores

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// fileMessage is the serialized form written to the history file. It mirrors
// the structure external tooling expects: role plus the raw parts array.
type fileMessage struct {
	Sequence   int             `json:"sequence"`
	Role       string          `json:"role"`
	Type       string          `json:"type"`
	FunctionID string          `json:"function_id,omitempty"`
	Parts      json.RawMessage `json:"parts"`
}

// FileStore implements MessageStore by writing one timestamped JSON file per
// conversation. The file holds the full ordered history and is rewritten
// whenever a message is appended; it is never read back by the core.
type FileStore struct {
	dir string

	mu       sync.Mutex
	sessions map[string][]Message
	paths    map[string]string
	now      func() time.Time
}

// NewFileStore creates a file store rooted at dir (created if missing).
func NewFileStore(dir string) (*FileStore, error) {
	store := &FileStore{
		dir:      dir,
		sessions: make(map[string][]Message),
		paths:    make(map[string]string),
		now:      time.Now,
	}
	if err := store.Connect(); err != nil {
		return nil, err
	}
	return store, nil
}

// Connect ensures the history directory exists
func (s *FileStore) Connect() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create history directory %s: %w", s.dir, err)
	}
	return nil
}

// Close is a no-op; every append already reaches disk.
func (s *FileStore) Close() error {
	return nil
}

// Ping checks the history directory is still writable
func (s *FileStore) Ping() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("history directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("history path %s is not a directory", s.dir)
	}
	return nil
}

// HistoryPath returns the file backing a session ("" before the first save).
func (s *FileStore) HistoryPath(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paths[sessionID]
}

// SaveMessage appends the message in memory and rewrites the session's
// history file.
func (s *FileStore) SaveMessage(sessionID, role, messageType string, parts interface{}, functionID string) error {
	partsJSONBytes, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("failed to marshal parts for history file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[sessionID]
	msg := Message{
		ConversationID: sessionID,
		Sequence:       len(msgs) + 1,
		Role:           role,
		Type:           messageType,
		FunctionID:     functionID,
		PartsJSON:      string(partsJSONBytes),
	}
	s.sessions[sessionID] = append(msgs, msg)

	return s.writeLocked(sessionID)
}

// writeLocked rewrites the session's history file. Caller holds s.mu.
func (s *FileStore) writeLocked(sessionID string) error {
	path, ok := s.paths[sessionID]
	if !ok {
		// One file per session, named by creation timestamp.
		timestamp := s.now().Format("20060102150405")
		path = filepath.Join(s.dir, fmt.Sprintf("chat_history%s.json", timestamp))
		s.paths[sessionID] = path
	}

	msgs := s.sessions[sessionID]
	fileMsgs := make([]fileMessage, len(msgs))
	for i, m := range msgs {
		fileMsgs[i] = fileMessage{
			Sequence:   m.Sequence,
			Role:       m.Role,
			Type:       m.Type,
			FunctionID: m.FunctionID,
			Parts:      json.RawMessage(m.PartsJSON),
		}
	}

	data, err := json.MarshalIndent(fileMsgs, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal history for %s: %w", sessionID, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file %s: %w", path, err)
	}
	return nil
}

// FetchHistory returns the in-memory history for a session in order.
// limit: maximum number of messages to retrieve (0 = return all messages)
func (s *FileStore) FetchHistory(sessionID string, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CreateConversation registers a session so it shows up in listings even
// before its first message.
func (s *FileStore) CreateConversation(convoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[convoID]; !ok {
		s.sessions[convoID] = nil
	}
	return nil
}

// ListConversations returns all known session IDs, sorted for stable output
func (s *FileStore) ListConversations() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
