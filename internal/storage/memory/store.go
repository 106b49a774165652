package memory

import (
	"context"
	"sync"

	"github.com/CristianMarastoni/GameThrive-Unity-SDK/pkg/push"
)

// Store is an in-memory implementation of push.IdentityStore
type Store struct {
	mu         sync.RWMutex
	identities map[string]push.Identity
}

// New creates a new in-memory store
func New() *Store {
	return &Store{identities: make(map[string]push.Identity)}
}

// Ensure Store implements the interface
var _ push.IdentityStore = (*Store)(nil)

func (s *Store) Load(_ context.Context, appID string) (*push.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[appID]
	if !ok {
		return nil, push.ErrIdentityNotFound
	}
	return &identity, nil
}

func (s *Store) Save(_ context.Context, identity push.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.AppID] = identity
	return nil
}

func (s *Store) Clear(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, appID)
	return nil
}
