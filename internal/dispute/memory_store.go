package dispute

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory dispute store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	disputes map[uint64]*Dispute
	nextID   uint64
}

// NewMemoryStore creates a new in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disputes: make(map[uint64]*Dispute),
		nextID:   1,
	}
}

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d.ID = m.nextID
	m.nextID++
	m.disputes[d.ID] = copyDispute(d)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uint64) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDispute(d), nil
}

func (m *MemoryStore) Update(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.disputes[d.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = d.Status
	cur.Winner = d.Winner
	cur.VotesFor = d.VotesFor
	cur.VotesAgainst = d.VotesAgainst
	cur.UpdatedAt = d.UpdatedAt
	cur.ResolvedAt = d.ResolvedAt
	return nil
}

func (m *MemoryStore) AddVoter(ctx context.Context, id uint64, judge string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[id]
	if !ok {
		return ErrNotFound
	}
	d.Roster = append(d.Roster, judge)
	return nil
}

func (m *MemoryStore) PutCommitment(ctx context.Context, id uint64, c *Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[id]
	if !ok {
		return ErrNotFound
	}
	cc := *c
	d.Commitments[c.Judge] = &cc
	return nil
}

func (m *MemoryStore) MarkRevealed(ctx context.Context, id uint64, c *Commitment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[id]
	if !ok {
		return ErrNotFound
	}
	cur, ok := d.Commitments[c.Judge]
	if !ok {
		return ErrNoCommitment
	}
	cur.Revealed = true
	cur.Vote = c.Vote
	cur.Secret = append([]byte(nil), c.Secret...)
	cur.RevealedAt = c.RevealedAt
	return nil
}

func (m *MemoryStore) AddEvidence(ctx context.Context, id uint64, ev *Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.disputes[id]
	if !ok {
		return ErrNotFound
	}
	d.Evidence = append(d.Evidence, *ev)
	return nil
}

func (m *MemoryStore) Count(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID - 1, nil
}

func copyDispute(d *Dispute) *Dispute {
	cp := *d
	cp.Roster = append([]string(nil), d.Roster...)
	cp.Commitments = make(map[string]*Commitment, len(d.Commitments))
	for k, c := range d.Commitments {
		cc := *c
		cc.Secret = append([]byte(nil), c.Secret...)
		cp.Commitments[k] = &cc
	}
	cp.Evidence = append([]Evidence(nil), d.Evidence...)
	return &cp
}

var _ Store = (*MemoryStore)(nil)
