// Package conversation keeps per-session message histories in memory with a
// per-session cap and a TTL reaper for idle sessions.
package conversation

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carelens/carelens-engine/pkg/models"
)

// Config bounds the store.
type Config struct {
	// HistoryCap is the per-session message cap; oldest entries drop first.
	HistoryCap int
	// TTL is how long an untouched session survives before the reaper
	// purges it wholesale.
	TTL time.Duration
	// ReapInterval is how often the reaper runs. Zero uses TTL/4.
	ReapInterval time.Duration
}

type session struct {
	mu          sync.Mutex
	messages    []models.ChatMessage
	branch      *models.BranchContext
	lastTouched time.Time
}

// Store is the in-memory conversation store. Operations on one session are
// serialized by that session's mutex; different sessions proceed
// independently.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	cfg      Config
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStore creates a store and starts its TTL reaper.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 40
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = cfg.TTL / 4
	}

	s := &Store{
		sessions: make(map[string]*session),
		cfg:      cfg,
		logger:   logger.Named("conversation"),
		stopCh:   make(chan struct{}),
	}
	go s.reapLoop()
	return s
}

// Stop halts the TTL reaper.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) reapLoop() {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reap()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) reap() {
	cutoff := time.Now().Add(-s.cfg.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastTouched.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			reaped++
		}
	}

	if reaped > 0 {
		s.logger.Debug("reaped idle sessions", zap.Int("count", reaped))
	}
}

func (s *Store) getOrCreate(sessionID string) *session {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok = s.sessions[sessionID]; ok {
		return sess
	}
	sess = &session{lastTouched: time.Now()}
	s.sessions[sessionID] = sess
	return sess
}

// Append adds a message to a session, evicting the oldest entry when the
// history cap is exceeded. Metadata for CHAT turns must never carry SQL or
// warehouse rows; callers enforce that by construction.
func (s *Store) Append(sessionID string, role models.ChatRole, content string, branchID string, metadata map[string]string) {
	sess := s.getOrCreate(sessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.messages = append(sess.messages, models.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Metadata:  metadata,
	})
	if len(sess.messages) > s.cfg.HistoryCap {
		sess.messages = sess.messages[len(sess.messages)-s.cfg.HistoryCap:]
	}

	if branchID != "" {
		if sess.branch == nil || sess.branch.BranchID != branchID {
			sess.branch = &models.BranchContext{BranchID: branchID, SessionID: sessionID}
		}
		sess.branch.LastUpdated = time.Now()
		if sql, ok := metadata["sql"]; ok {
			sess.branch.LastSQL = sql
		}
	}

	sess.lastTouched = time.Now()
}

// History returns up to max most recent messages in order; max <= 0 returns
// everything retained.
func (s *Store) History(sessionID string, max int) []models.ChatMessage {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	msgs := sess.messages
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}

	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	sess.lastTouched = time.Now()
	return out
}

// followUpPrefixes are connective openers that mark an utterance as a
// follow-up to the previous turn.
var followUpPrefixes = []string{
	"and ", "also ", "what about", "how about", "now ", "then ",
	"same ", "instead", "but ",
}

// Summary builds a compact description of the session's recent user turns
// for the generator prompt, flagging follow-up character when the latest
// utterance is short or opens with a connective. turns <= 0 uses 3.
func (s *Store) Summary(sessionID string, turns int) string {
	if turns <= 0 {
		turns = 3
	}
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ""
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var userTurns []string
	for _, m := range sess.messages {
		if m.Role == models.ChatRoleUser {
			userTurns = append(userTurns, m.Content)
		}
	}
	if len(userTurns) == 0 {
		return ""
	}
	if len(userTurns) > turns {
		userTurns = userTurns[len(userTurns)-turns:]
	}

	var b strings.Builder
	b.WriteString("Recent questions: ")
	b.WriteString(strings.Join(userTurns, " | "))

	latest := strings.ToLower(strings.TrimSpace(userTurns[len(userTurns)-1]))
	if isFollowUp(latest) {
		b.WriteString(" (latest question appears to be a follow-up)")
	}

	return b.String()
}

// IsFollowUp reports whether an utterance looks like a continuation of the
// previous turn.
func IsFollowUp(utterance string) bool {
	return isFollowUp(strings.ToLower(strings.TrimSpace(utterance)))
}

func isFollowUp(latest string) bool {
	if len(strings.Fields(latest)) <= 3 && latest != "" {
		return true
	}
	for _, prefix := range followUpPrefixes {
		if strings.HasPrefix(latest, prefix) {
			return true
		}
	}
	return false
}

// BranchContext returns the stored context for a branch within a session,
// or nil when absent.
func (s *Store) BranchContext(sessionID, branchID string) *models.BranchContext {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.branch == nil || sess.branch.BranchID != branchID {
		return nil
	}
	branch := *sess.branch
	return &branch
}

// Clear removes a session entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// SessionCount returns the number of live sessions, for health reporting.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
