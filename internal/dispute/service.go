package dispute

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lancer-labs/arbiter/internal/logging"
	"github.com/lancer-labs/arbiter/internal/metrics"
	"github.com/lancer-labs/arbiter/internal/syncutil"
	"github.com/lancer-labs/arbiter/internal/usdc"
)

// JudgeDirectory answers whether an address belongs to a registered judge.
// Implemented by the judge registry; declared here so dispute does not
// import judge.
type JudgeDirectory interface {
	IsRegistered(ctx context.Context, addr string) (bool, error)
}

// Settler applies balance and reputation adjustments once a dispute resolves.
// Settlement is all-or-nothing: an error leaves the dispute unresolved.
type Settler interface {
	Settle(ctx context.Context, res *Resolution) error
}

// Config exposes the protocol parameters the state machine depends on.
// The facade owns these; they can change between disputes (owner updates),
// so they are read per operation rather than captured at construction.
type Config interface {
	VotesRequired() int
	DisputePrice() string
}

// Events receives protocol lifecycle events for streaming to subscribers.
type Events interface {
	Publish(event string, data map[string]interface{})
}

// Service implements the dispute state machine.
type Service struct {
	store  Store
	judges JudgeDirectory
	settle Settler
	cfg    Config
	events Events
	locks  syncutil.ShardedMutex // one exclusive section per dispute id
}

// NewService creates a new dispute service.
func NewService(store Store, judges JudgeDirectory, settler Settler, cfg Config) *Service {
	return &Service{
		store:  store,
		judges: judges,
		settle: settler,
		cfg:    cfg,
	}
}

// WithEvents attaches an event publisher.
func (s *Service) WithEvents(events Events) *Service {
	s.events = events
	return s
}

func (s *Service) lock(id uint64) func() {
	return s.locks.Lock(strconv.FormatUint(id, 10))
}

func (s *Service) publish(event string, data map[string]interface{}) {
	if s.events != nil {
		s.events.Publish(event, data)
	}
}

// Create opens a dispute. The amount is escrowed as the pot funding judge
// rewards; empty amount falls back to the protocol's dispute price.
func (s *Service) Create(ctx context.Context, requester, beneficiary, amount, reason string) (*Dispute, error) {
	requester = strings.ToLower(requester)
	beneficiary = strings.ToLower(beneficiary)

	if requester == beneficiary {
		return nil, ErrInvalidBeneficiary
	}

	if amount == "" {
		amount = s.cfg.DisputePrice()
	}
	pot, ok := usdc.Parse(amount)
	if !ok || pot.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	d := &Dispute{
		Requester:   requester,
		Beneficiary: beneficiary,
		Reason:      reason,
		Pot:         usdc.Format(pot),
		Status:      StatusWaitingForJudges,
		Winner:      WinnerUndecided,
		Commitments: make(map[string]*Commitment),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create dispute: %w", err)
	}

	metrics.DisputesCreatedTotal.Inc()
	s.publish("dispute_created", map[string]interface{}{
		"disputeId":   d.ID,
		"requester":   d.Requester,
		"beneficiary": d.Beneficiary,
		"pot":         d.Pot,
	})

	return d, nil
}

// Get returns a dispute snapshot.
func (s *Service) Get(ctx context.Context, id uint64) (*Dispute, error) {
	return s.store.Get(ctx, id)
}

// Count returns the number of disputes ever created.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	return s.store.Count(ctx)
}

// RegisterToVote adds a registered judge to the dispute's roster. The roster
// closes the moment it reaches quorum: voting opens and later registrations
// fail with ErrNotAcceptingVoters. No late joiners.
func (s *Service) RegisterToVote(ctx context.Context, id uint64, judgeAddr string) (*Dispute, error) {
	judgeAddr = strings.ToLower(judgeAddr)

	registered, err := s.judges.IsRegistered(ctx, judgeAddr)
	if err != nil {
		return nil, err
	}
	if !registered {
		return nil, ErrJudgeNotRegistered
	}

	unlock := s.lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if d.Status != StatusWaitingForJudges {
		return nil, ErrNotAcceptingVoters
	}
	if d.OnRoster(judgeAddr) {
		return nil, ErrAlreadyOnRoster
	}

	if err := s.store.AddVoter(ctx, id, judgeAddr); err != nil {
		return nil, err
	}
	d.Roster = append(d.Roster, judgeAddr)
	d.UpdatedAt = time.Now()

	if len(d.Roster) >= s.cfg.VotesRequired() {
		d.Status = StatusVoting
		s.publish("voting_opened", map[string]interface{}{
			"disputeId":  d.ID,
			"rosterSize": len(d.Roster),
		})
	}

	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	return d, nil
}

// Commit stores a judge's vote commitment verbatim. The hash is opaque at
// this stage; it is only compared at reveal time.
func (s *Service) Commit(ctx context.Context, id uint64, judgeAddr, commitHash string) error {
	judgeAddr = strings.ToLower(judgeAddr)

	hash, err := normalizeCommitHash(commitHash)
	if err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if d.Status == StatusResolved {
		return ErrDisputeResolved
	}
	if d.Status != StatusVoting {
		return ErrVotingNotOpen
	}
	if !d.OnRoster(judgeAddr) {
		return ErrNotOnRoster
	}
	if _, ok := d.Commitments[judgeAddr]; ok {
		return ErrAlreadyCommitted
	}

	c := &Commitment{Judge: judgeAddr, Hash: hash}
	if err := s.store.PutCommitment(ctx, id, c); err != nil {
		return err
	}

	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return err
	}

	metrics.VoteCommitsTotal.Inc()
	s.publish("vote_committed", map[string]interface{}{
		"disputeId": d.ID,
		"judge":     judgeAddr,
	})

	return nil
}

// Reveal opens a judge's commitment. The declared vote and secret are
// re-hashed through the canonical encoding and must reproduce the stored
// commitment exactly. The reveal that completes the roster triggers
// resolution and settlement.
func (s *Service) Reveal(ctx context.Context, id uint64, judgeAddr string, vote bool, secret []byte) error {
	judgeAddr = strings.ToLower(judgeAddr)

	unlock := s.lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if d.Status == StatusResolved {
		// Late reveals are not retroactively settled.
		return ErrDisputeResolved
	}
	if d.Status != StatusVoting {
		return ErrVotingNotOpen
	}
	if !d.OnRoster(judgeAddr) {
		return ErrNotOnRoster
	}

	c, ok := d.Commitments[judgeAddr]
	if !ok {
		return ErrNoCommitment
	}
	if c.Revealed {
		return ErrAlreadyRevealed
	}

	if CommitmentHash(vote, secret) != c.Hash {
		metrics.RevealMismatchesTotal.Inc()
		return ErrCommitmentMismatch
	}

	now := time.Now()
	c.Revealed = true
	c.Vote = vote
	c.Secret = secret
	c.RevealedAt = &now

	if err := s.store.MarkRevealed(ctx, id, c); err != nil {
		return err
	}

	if vote {
		d.VotesFor++
	} else {
		d.VotesAgainst++
	}
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return err
	}

	metrics.VoteRevealsTotal.WithLabelValues(strconv.FormatBool(vote)).Inc()
	s.publish("vote_revealed", map[string]interface{}{
		"disputeId": d.ID,
		"judge":     judgeAddr,
		"vote":      vote,
	})

	if d.AllRevealed() {
		if err := s.resolve(ctx, d); err != nil {
			// The reveal itself stands; resolution is retried via
			// CheckResolved once the settlement dependency recovers.
			logging.L(ctx).Warn("resolution deferred",
				"dispute_id", d.ID,
				"error", err,
			)
		}
	}

	return nil
}

// CheckResolved reports whether the dispute is resolved. On an already
// resolved dispute this is a pure read and never re-triggers settlement.
// When every reveal is in but a previous settlement attempt failed, it
// retries resolution.
func (s *Service) CheckResolved(ctx context.Context, id uint64) (bool, error) {
	unlock := s.lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}

	if d.Status == StatusResolved {
		return true, nil
	}
	if d.Status == StatusVoting && d.AllRevealed() {
		if err := s.resolve(ctx, d); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Winner returns the dispute outcome; ErrNotResolved before resolution.
func (s *Service) Winner(ctx context.Context, id uint64) (Winner, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return WinnerUndecided, err
	}
	if d.Status != StatusResolved {
		return WinnerUndecided, ErrNotResolved
	}
	return d.Winner, nil
}

// Votes returns the revealed tallies. Un-revealed commitments contribute to
// neither count.
func (s *Service) Votes(ctx context.Context, id uint64) (forCount, againstCount int, err error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return d.VotesFor, d.VotesAgainst, nil
}

// Close abandons a dispute that is still waiting for judges. Only the
// requester may close, and only before voting opens; closed disputes are
// terminal and never settled.
func (s *Service) Close(ctx context.Context, id uint64, caller string) (*Dispute, error) {
	caller = strings.ToLower(caller)

	unlock := s.lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller != d.Requester {
		return nil, ErrNotRequester
	}
	if d.Status == StatusResolved {
		return nil, ErrDisputeResolved
	}
	if d.Status != StatusWaitingForJudges {
		return nil, ErrCannotClose
	}

	d.Status = StatusClosed
	d.UpdatedAt = time.Now()
	if err := s.store.Update(ctx, d); err != nil {
		return nil, err
	}

	metrics.DisputesClosedTotal.Inc()
	return d, nil
}

// AppendEvidence records a proof from either party while the dispute is live.
func (s *Service) AppendEvidence(ctx context.Context, id uint64, caller, proof string) error {
	caller = strings.ToLower(caller)

	if strings.TrimSpace(proof) == "" {
		return ErrEmptyProof
	}

	unlock := s.lock(id)
	defer unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if caller != d.Requester && caller != d.Beneficiary {
		return ErrNotParticipant
	}
	if d.IsTerminal() {
		return ErrDisputeResolved
	}

	ev := &Evidence{Author: caller, Proof: proof, CreatedAt: time.Now()}
	return s.store.AddEvidence(ctx, id, ev)
}

// resolve tallies revealed votes, decides the winner, settles, and marks the
// dispute resolved. Caller must hold the dispute's lock. The requester wins
// only on strict majority; ties go to the beneficiary.
func (s *Service) resolve(ctx context.Context, d *Dispute) error {
	winner := WinnerBeneficiary
	if d.VotesFor > d.VotesAgainst {
		winner = WinnerRequester
	}

	res := &Resolution{
		DisputeID:    d.ID,
		Winner:       winner,
		Pot:          d.Pot,
		Roster:       append([]string(nil), d.Roster...),
		Reveals:      make(map[string]bool, len(d.Commitments)),
		VotesFor:     d.VotesFor,
		VotesAgainst: d.VotesAgainst,
	}
	for addr, c := range d.Commitments {
		if c.Revealed {
			res.Reveals[addr] = c.Vote
		}
	}

	// Settlement is part of the same atomic transition: if it fails, the
	// dispute stays in voting and nothing below runs.
	if err := s.settle.Settle(ctx, res); err != nil {
		return fmt.Errorf("settle dispute %d: %w", d.ID, err)
	}

	now := time.Now()
	d.Status = StatusResolved
	d.Winner = winner
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := s.store.Update(ctx, d); err != nil {
		return fmt.Errorf("persist resolution for dispute %d: %w", d.ID, err)
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(winner)).Inc()
	metrics.DisputeResolutionDuration.Observe(now.Sub(d.CreatedAt).Seconds())
	s.publish("dispute_resolved", map[string]interface{}{
		"disputeId":    d.ID,
		"winner":       string(winner),
		"votesFor":     d.VotesFor,
		"votesAgainst": d.VotesAgainst,
	})

	logging.L(ctx).Info("dispute resolved",
		"dispute_id", d.ID,
		"winner", winner,
		"votes_for", d.VotesFor,
		"votes_against", d.VotesAgainst,
	)

	return nil
}
