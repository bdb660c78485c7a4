// Package protocol is the facade over the dispute-resolution protocol: judge
// registry, dispute state machine, settlement, and the owner's treasury.
// It is the only surface the HTTP layer talks to.
package protocol

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/lancer-labs/arbiter/internal/dispute"
	"github.com/lancer-labs/arbiter/internal/judge"
	"github.com/lancer-labs/arbiter/internal/metrics"
	"github.com/lancer-labs/arbiter/internal/settlement"
	"github.com/lancer-labs/arbiter/internal/traces"
	"github.com/lancer-labs/arbiter/internal/usdc"
)

var (
	ErrNotInitialized     = errors.New("protocol not initialized")
	ErrAlreadyInitialized = errors.New("protocol already initialized")
	ErrNotOwner           = errors.New("caller is not the protocol owner")
	ErrMustBePositive     = errors.New("value must be positive")
	ErrEmptyTreasury      = errors.New("treasury is empty")
)

// Defaults applied at Init when Options leave them unset.
const (
	DefaultVotesRequired = 5
	DefaultDisputePrice  = "50"
)

// Options tune the protocol's initial parameters.
type Options struct {
	VotesRequired int    // 0 means DefaultVotesRequired
	DisputePrice  string // "" means DefaultDisputePrice
	Events        dispute.Events
}

// Protocol is the initialized protocol instance. All operations fail with
// ErrNotInitialized until Init is called exactly once.
type Protocol struct {
	mu            sync.RWMutex
	initialized   bool
	owner         string
	usdcToken     string
	votesRequired int
	disputePrice  string
	treasury      *big.Int
	accrued       map[uint64]bool // dispute ids already counted into the treasury

	judges   *judge.Service
	disputes *dispute.Service
	events   dispute.Events
}

// New wires the protocol from its stores. Parameters take effect at Init.
func New(judgeStore judge.Store, disputeStore dispute.Store, opts Options) *Protocol {
	if opts.VotesRequired <= 0 {
		opts.VotesRequired = DefaultVotesRequired
	}
	if opts.DisputePrice == "" {
		opts.DisputePrice = DefaultDisputePrice
	}

	p := &Protocol{
		votesRequired: opts.VotesRequired,
		disputePrice:  opts.DisputePrice,
		treasury:      new(big.Int),
		accrued:       make(map[uint64]bool),
		events:        opts.Events,
	}
	p.judges = judge.NewService(judgeStore)
	engine := settlement.NewEngine(p.judges, p)
	p.disputes = dispute.NewService(disputeStore, p.judges, engine, p)
	if opts.Events != nil {
		p.disputes.WithEvents(opts.Events)
	}
	return p
}

// Init activates the protocol with its owner and settlement token. Must be
// called exactly once before any other operation.
func (p *Protocol) Init(ctx context.Context, owner, usdcToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return ErrAlreadyInitialized
	}
	p.initialized = true
	p.owner = strings.ToLower(owner)
	p.usdcToken = strings.ToLower(usdcToken)
	return nil
}

func (p *Protocol) requireInit() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return ErrNotInitialized
	}
	return nil
}

// VotesRequired returns the roster quorum. Part of the dispute configuration.
func (p *Protocol) VotesRequired() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.votesRequired
}

// DisputePrice returns the default dispute fee in USDC.
func (p *Protocol) DisputePrice() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disputePrice
}

// Accrue adds the protocol's share of a settled pot to the treasury.
// Called by the settlement engine inside a dispute's critical section. Each
// dispute accrues at most once, so a retried settlement cannot count the
// same retained share twice.
func (p *Protocol) Accrue(disputeID uint64, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accrued[disputeID] {
		return
	}
	p.accrued[disputeID] = true
	p.treasury.Add(p.treasury, amount)
}

// Snapshot is the protocol's public configuration and counters.
type Snapshot struct {
	Owner         string `json:"owner"`
	USDCToken     string `json:"usdcToken"`
	VotesRequired int    `json:"votesRequired"`
	DisputePrice  string `json:"disputePrice"`
	DisputeCount  uint64 `json:"disputeCount"`
	Treasury      string `json:"treasury"`
}

// Describe returns the current protocol snapshot.
func (p *Protocol) Describe(ctx context.Context) (*Snapshot, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}

	count, err := p.disputes.Count(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return &Snapshot{
		Owner:         p.owner,
		USDCToken:     p.usdcToken,
		VotesRequired: p.votesRequired,
		DisputePrice:  p.disputePrice,
		DisputeCount:  count,
		Treasury:      usdc.Format(p.treasury),
	}, nil
}

// UpdateVotesRequired changes the roster quorum for future disputes.
// Owner only. Disputes already accepting voters keep the quorum they see at
// registration time.
func (p *Protocol) UpdateVotesRequired(ctx context.Context, caller string, n int) error {
	if err := p.requireInit(); err != nil {
		return err
	}
	if n <= 0 {
		return ErrMustBePositive
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.ToLower(caller) != p.owner {
		return ErrNotOwner
	}
	p.votesRequired = n
	return nil
}

// OwnerWithdraw drains the treasury and returns the amount. Owner only.
func (p *Protocol) OwnerWithdraw(ctx context.Context, caller string) (string, error) {
	if err := p.requireInit(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.ToLower(caller) != p.owner {
		return "", ErrNotOwner
	}
	if p.treasury.Sign() == 0 {
		return "", ErrEmptyTreasury
	}

	amount := usdc.Format(p.treasury)
	p.treasury = new(big.Int)
	return amount, nil
}

// RegisterJudge adds the caller to the judge pool.
func (p *Protocol) RegisterJudge(ctx context.Context, addr string) (*judge.Judge, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.RegisterJudge", traces.JudgeAddr(addr))
	defer span.End()

	j, err := p.judges.Register(ctx, addr)
	if err != nil {
		return nil, err
	}

	metrics.JudgesRegisteredTotal.Inc()
	if p.events != nil {
		p.events.Publish("judge_registered", map[string]interface{}{
			"judge": j.Address,
		})
	}
	return j, nil
}

// GetJudge returns a judge's balance and reputation.
func (p *Protocol) GetJudge(ctx context.Context, addr string) (*judge.Judge, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}
	return p.judges.Get(ctx, addr)
}

// JudgeWithdraw drains the caller's reward balance.
func (p *Protocol) JudgeWithdraw(ctx context.Context, addr string) (string, error) {
	if err := p.requireInit(); err != nil {
		return "", err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.JudgeWithdraw", traces.JudgeAddr(addr))
	defer span.End()

	return p.judges.Withdraw(ctx, addr)
}

// CreateDispute opens a dispute on behalf of the requester.
func (p *Protocol) CreateDispute(ctx context.Context, requester, beneficiary, amount, reason string) (*dispute.Dispute, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.CreateDispute",
		traces.CallerAddr(requester), traces.Amount(amount))
	defer span.End()

	return p.disputes.Create(ctx, requester, beneficiary, amount, reason)
}

// GetDispute returns a dispute snapshot.
func (p *Protocol) GetDispute(ctx context.Context, id uint64) (*dispute.Dispute, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}
	return p.disputes.Get(ctx, id)
}

// RegisterToVote adds a judge to a dispute's voter roster.
func (p *Protocol) RegisterToVote(ctx context.Context, id uint64, judgeAddr string) (*dispute.Dispute, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.RegisterToVote",
		traces.DisputeID(id), traces.JudgeAddr(judgeAddr))
	defer span.End()

	return p.disputes.RegisterToVote(ctx, id, judgeAddr)
}

// CommitVote stores a judge's vote commitment.
func (p *Protocol) CommitVote(ctx context.Context, id uint64, judgeAddr, commitHash string) error {
	if err := p.requireInit(); err != nil {
		return err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.CommitVote",
		traces.DisputeID(id), traces.JudgeAddr(judgeAddr))
	defer span.End()

	return p.disputes.Commit(ctx, id, judgeAddr, commitHash)
}

// RevealVote opens a judge's commitment.
func (p *Protocol) RevealVote(ctx context.Context, id uint64, judgeAddr string, vote bool, secret []byte) error {
	if err := p.requireInit(); err != nil {
		return err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.RevealVote",
		traces.DisputeID(id), traces.JudgeAddr(judgeAddr))
	defer span.End()

	return p.disputes.Reveal(ctx, id, judgeAddr, vote, secret)
}

// AppendEvidence records a proof from a dispute party.
func (p *Protocol) AppendEvidence(ctx context.Context, id uint64, caller, proof string) error {
	if err := p.requireInit(); err != nil {
		return err
	}
	return p.disputes.AppendEvidence(ctx, id, caller, proof)
}

// CloseDispute abandons a dispute that never reached quorum.
func (p *Protocol) CloseDispute(ctx context.Context, id uint64, caller string) (*dispute.Dispute, error) {
	if err := p.requireInit(); err != nil {
		return nil, err
	}

	ctx, span := traces.StartSpan(ctx, "protocol.CloseDispute",
		traces.DisputeID(id), traces.CallerAddr(caller))
	defer span.End()

	return p.disputes.Close(ctx, id, caller)
}

// CheckResolved reports whether the dispute has resolved, retrying a
// deferred settlement if one is pending.
func (p *Protocol) CheckResolved(ctx context.Context, id uint64) (bool, error) {
	if err := p.requireInit(); err != nil {
		return false, err
	}
	return p.disputes.CheckResolved(ctx, id)
}

// Winner returns the outcome of a resolved dispute.
func (p *Protocol) Winner(ctx context.Context, id uint64) (dispute.Winner, error) {
	if err := p.requireInit(); err != nil {
		return dispute.WinnerUndecided, err
	}
	return p.disputes.Winner(ctx, id)
}

// Votes returns the revealed tallies for a dispute.
func (p *Protocol) Votes(ctx context.Context, id uint64) (forCount, againstCount int, err error) {
	if err := p.requireInit(); err != nil {
		return 0, 0, err
	}
	return p.disputes.Votes(ctx, id)
}

var (
	_ dispute.Config      = (*Protocol)(nil)
	_ settlement.Treasury = (*Protocol)(nil)
)
