package sessionstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eid-tools/dds-hashcode/internal/signing"
)

// Memory keeps sessions in process memory
type Memory struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*signing.SigningSession
}

// NewMemory returns an empty in-process store
func NewMemory() *Memory {
	return &Memory{sessions: make(map[uuid.UUID]*signing.SigningSession)}
}

// Get returns a copy of the stored session or signing.ErrSessionNotFound
func (m *Memory) Get(ctx context.Context, id uuid.UUID) (*signing.SigningSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, signing.ErrSessionNotFound
	}
	return copySession(sess), nil
}

// Save stores a copy of sess, replacing any previous version
func (m *Memory) Save(ctx context.Context, sess *signing.SigningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[sess.ID] = copySession(sess)
	return nil
}

// Delete removes the session. Unknown IDs are ignored.
func (m *Memory) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// ListUpdatedBefore returns the sessions last updated before cutoff, oldest first
func (m *Memory) ListUpdatedBefore(ctx context.Context, cutoff time.Time) ([]*signing.SigningSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var expired []*signing.SigningSession
	for _, sess := range m.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			expired = append(expired, copySession(sess))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].UpdatedAt.Before(expired[j].UpdatedAt)
	})
	return expired, nil
}

// Len returns the number of stored sessions
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func copySession(sess *signing.SigningSession) *signing.SigningSession {
	c := *sess
	c.DataFiles = slices.Clone(sess.DataFiles)
	c.Signatures = slices.Clone(sess.Signatures)
	return &c
}
