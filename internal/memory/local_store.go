package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/avvvet/council-intake/internal/models"
)

// LocalStore is an in-process Store for tests and single-instance development.
// Sessions are kept serialized so callers never share memory with the store.
type LocalStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

func NewLocalStore() *LocalStore {
	return &LocalStore{sessions: make(map[string][]byte)}
}

func (l *LocalStore) Get(ctx context.Context, sessionID string) (*models.DialogueSession, error) {
	l.mu.Lock()
	data, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	var session models.DialogueSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}
	if session.CollectedData == nil {
		session.CollectedData = make(map[string]string)
	}
	return &session, nil
}

func (l *LocalStore) Put(ctx context.Context, session *models.DialogueSession, expectedVersion int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var current int64
	if data, ok := l.sessions[session.SessionID]; ok {
		var stored models.DialogueSession
		if err := json.Unmarshal(data, &stored); err != nil {
			return 0, fmt.Errorf("failed to parse session data: %w", err)
		}
		current = stored.Version
	}
	if current != expectedVersion {
		return 0, ErrConflict
	}

	toSave := *session
	toSave.Version = expectedVersion + 1
	data, err := json.Marshal(&toSave)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal session: %w", err)
	}
	l.sessions[session.SessionID] = data

	session.Version = toSave.Version
	return toSave.Version, nil
}

// Len returns the number of stored sessions.
func (l *LocalStore) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sessions)
}
