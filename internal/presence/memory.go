package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// MemoryStore is an in-process Store. Records live as long as the process.
type MemoryStore struct {
	mu     sync.RWMutex
	order  []string
	agents map[string]models.Agent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]models.Agent)}
}

func (m *MemoryStore) Insert(ctx context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.agents[agent.ID]; exists {
		return fmt.Errorf("presence: duplicate agent ID %s", agent.ID)
	}
	m.agents[agent.ID] = *agent
	m.order = append(m.order, agent.ID)
	return nil
}

func (m *MemoryStore) Touch(ctx context.Context, id string, seen time.Time, status *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return false, nil
	}
	a.LastSeen = seen
	if status != nil {
		a.Status = *status
	}
	m.agents[id] = a
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return nil
	}
	delete(m.agents, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *MemoryStore) All(ctx context.Context) ([]models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Agent, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.agents[id])
	}
	return out, nil
}
