package judge

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/lancer-labs/arbiter/internal/usdc"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for demo/testing.
type MemoryStore struct {
	judges  map[string]*Judge
	applied map[appliedKey]bool
	mu      sync.RWMutex
}

type appliedKey struct {
	disputeID uint64
	judge     string
}

// NewMemoryStore creates a new in-memory judge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		judges:  make(map[string]*Judge),
		applied: make(map[appliedKey]bool),
	}
}

func (m *MemoryStore) Create(_ context.Context, j *Judge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.judges[j.Address]; ok {
		return ErrAlreadyRegistered
	}
	cp := *j
	m.judges[j.Address] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, addr string) (*Judge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.judges[addr]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, j *Judge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.judges[j.Address]; !ok {
		return ErrNotFound
	}
	cp := *j
	m.judges[j.Address] = &cp
	return nil
}

func (m *MemoryStore) ApplySettlement(_ context.Context, disputeID uint64, addr, reward string, repDelta int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.judges[addr]
	if !ok {
		return false, ErrNotFound
	}
	key := appliedKey{disputeID: disputeID, judge: addr}
	if m.applied[key] {
		return false, nil
	}

	bal, ok := usdc.Parse(j.Balance)
	if !ok {
		return false, fmt.Errorf("corrupt balance for %s: %q", addr, j.Balance)
	}
	amount, ok := usdc.Parse(reward)
	if !ok {
		return false, ErrInvalidAmount
	}

	j.Balance = usdc.Format(new(big.Int).Add(bal, amount))
	j.Reputation += repDelta
	m.applied[key] = true
	return true, nil
}
