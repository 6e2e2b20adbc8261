package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when an operation names an unknown session ID.
var ErrSessionNotFound = errors.New("server: session not found")

// Manager owns the set of live dictation sessions. Sessions are created when a
// client connects and torn down when the connection closes or the server
// shuts down.
type Manager struct {
	cfg SessionConfig

	mu       sync.Mutex
	sessions map[string]*DictationSession
}

// NewManager creates a [Manager] that builds every session from cfg.
func NewManager(cfg SessionConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*DictationSession),
	}
}

// Open creates and registers a new dictation session.
func (m *Manager) Open(ctx context.Context) (*DictationSession, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("server: generate session id: %w", err)
	}

	sess := newDictationSession(id, m.cfg)

	m.mu.Lock()
	m.sessions[id] = sess
	count := len(m.sessions)
	m.mu.Unlock()

	m.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session opened", "session_id", id, "active_sessions", count)
	return sess, nil
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*DictationSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess, nil
}

// CloseSession stops and unregisters the session with the given id.
// Closing an unknown ID returns [ErrSessionNotFound].
func (m *Manager) CloseSession(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
	err := sess.Close()
	slog.Info("session closed", "session_id", id, "active_sessions", count)
	return err
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every live session. Used during server teardown.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	sessions := make([]*DictationSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.sessions = make(map[string]*DictationSession)
	m.mu.Unlock()

	var errs []error
	for _, sess := range sessions {
		m.cfg.Metrics.ActiveSessions.Add(ctx, -1)
		if err := sess.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", sess.ID(), err))
		}
	}
	if len(sessions) > 0 {
		slog.Info("all sessions closed", "count", len(sessions))
	}
	return errors.Join(errs...)
}

// newSessionID returns a timestamped random identifier, e.g.
// "20260901T142233-9f1a2b3c".
func newSessionID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	ts := time.Now().UTC().Format("20060102T150405")
	return ts + "-" + hex.EncodeToString(buf), nil
}
