// Package feedback persists per-request outcomes as append-only JSON lines
// for offline review and golden-example curation. The store is optional and
// never affects request correctness.
package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is one recorded request outcome.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id,omitempty"`
	Utterance string    `json:"utterance"`
	SQL       string    `json:"sql,omitempty"`
	Source    string    `json:"source,omitempty"`
	Success   bool      `json:"success"`
	ErrorType string    `json:"error_type,omitempty"`
	Stages    []Stage   `json:"stages,omitempty"`

	// User-submitted fields, present only on explicit feedback posts.
	Comment string `json:"comment,omitempty"`
	Helpful *bool  `json:"helpful,omitempty"`
}

// Stage is one pipeline transition attached to an entry.
type Stage struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Store appends entries to a dated JSONL file. A disabled store accepts
// writes and drops them.
type Store struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	logger  *zap.Logger
}

// NewStore creates the store, creating the directory when enabled.
func NewStore(dir string, enabled bool, logger *zap.Logger) (*Store, error) {
	s := &Store{dir: dir, enabled: enabled, logger: logger.Named("feedback")}
	if !enabled {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feedback dir: %w", err)
	}
	return s, nil
}

// Enabled reports whether entries are persisted.
func (s *Store) Enabled() bool {
	return s.enabled
}

// Record appends one entry. Persistence failures are logged and swallowed;
// feedback must never fail a request.
func (s *Store) Record(entry Entry) {
	if !s.enabled {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("marshal feedback entry", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, entry.Timestamp.Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Warn("open feedback file", zap.Error(err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		s.logger.Warn("write feedback entry", zap.Error(err))
	}
}
