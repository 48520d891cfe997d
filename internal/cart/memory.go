package cart

import (
	"context"
	"encoding/json"
	"sync"
)

// InMemoryStore backs tests and the degraded mode used when Redis is
// unavailable at startup. Carts are stored as JSON to keep copy semantics
// identical to the Redis store.
type InMemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{carts: make(map[string][]byte)}
}

func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (*Cart, error) {
	s.mu.RLock()
	data, ok := s.carts[sessionID]
	s.mu.RUnlock()
	if !ok {
		return &Cart{SessionID: sessionID}, nil
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	c.SessionID = sessionID
	return &c, nil
}

func (s *InMemoryStore) Save(ctx context.Context, c *Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.carts[c.SessionID] = data
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()
	return nil
}
