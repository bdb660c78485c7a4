// Package judge tracks the pool of registered judges: their reward balances
// and reputation scores.
//
// Judges register once and are never deleted; reputation persists across
// disputes. Balances and reputation are only mutated by dispute settlement
// (ApplyPayout) and by the judge's own withdrawal.
package judge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lancer-labs/arbiter/internal/usdc"
)

var (
	ErrAlreadyRegistered = errors.New("judge already registered")
	ErrNotFound          = errors.New("judge not found")
	ErrNoBalance         = errors.New("no balance to withdraw")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Judge is a staked participant eligible to vote on disputes.
type Judge struct {
	Address      string    `json:"address"`
	Balance      string    `json:"balance"`    // USDC decimal string, smallest-unit precision
	Reputation   int       `json:"reputation"` // May go negative
	RegisteredAt time.Time `json:"registeredAt"`
}

// Store persists judge records.
type Store interface {
	// Create inserts a new judge; returns ErrAlreadyRegistered if the
	// address is already present.
	Create(ctx context.Context, j *Judge) error
	Get(ctx context.Context, addr string) (*Judge, error)
	// Update overwrites balance and reputation for an existing judge.
	Update(ctx context.Context, j *Judge) error
	// ApplySettlement credits reward to the judge's balance, applies the
	// reputation delta, and records the (disputeID, addr) application, all
	// atomically. Returns false with no mutation when that pair was already
	// applied.
	ApplySettlement(ctx context.Context, disputeID uint64, addr, reward string, repDelta int) (bool, error)
}

// Service implements judge registry business logic.
type Service struct {
	store Store
}

// NewService creates a new judge registry service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates a judge with zero balance and baseline reputation.
// Registering twice fails with ErrAlreadyRegistered and has no side effect.
func (s *Service) Register(ctx context.Context, addr string) (*Judge, error) {
	j := &Judge{
		Address:      strings.ToLower(addr),
		Balance:      "0.000000",
		Reputation:   0,
		RegisteredAt: time.Now(),
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// Get returns a judge's balance and reputation.
func (s *Service) Get(ctx context.Context, addr string) (*Judge, error) {
	return s.store.Get(ctx, strings.ToLower(addr))
}

// IsRegistered reports whether the address belongs to a registered judge.
func (s *Service) IsRegistered(ctx context.Context, addr string) (bool, error) {
	_, err := s.Get(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Withdraw zeroes the judge's balance and returns the amount withdrawn.
// The actual asset transfer is the caller's concern; the registry only
// keeps the ledger.
func (s *Service) Withdraw(ctx context.Context, addr string) (string, error) {
	j, err := s.Get(ctx, addr)
	if err != nil {
		return "", err
	}

	bal, ok := usdc.Parse(j.Balance)
	if !ok {
		return "", fmt.Errorf("corrupt balance for %s: %q", j.Address, j.Balance)
	}
	if bal.Sign() == 0 {
		return "", ErrNoBalance
	}

	amount := j.Balance
	j.Balance = "0.000000"
	if err := s.store.Update(ctx, j); err != nil {
		return "", err
	}
	return amount, nil
}

// ApplyPayout credits a settlement reward and applies a reputation delta for
// one judge. Each (dispute, judge) pair is applied at most once: a repeated
// call reports applied=false and leaves the judge untouched, so a settlement
// that failed partway can be retried without paying anyone twice. An empty
// reward means reputation-only.
func (s *Service) ApplyPayout(ctx context.Context, disputeID uint64, addr, reward string, repDelta int) (bool, error) {
	if reward == "" {
		reward = "0.000000"
	}
	amount, ok := usdc.Parse(reward)
	if !ok || amount.Sign() < 0 {
		return false, ErrInvalidAmount
	}
	return s.store.ApplySettlement(ctx, disputeID, strings.ToLower(addr), reward, repDelta)
}
