// Package dispute implements the dispute lifecycle and the commit-reveal
// voting state machine.
//
// Flow:
//  1. Requester opens a dispute against a beneficiary → fee escrowed in the pot
//  2. Judges register to vote → voting opens when the roster reaches quorum
//  3. Each roster judge commits keccak256(vote ++ secret)
//  4. Each judge reveals (vote, secret); the protocol verifies the commitment
//  5. The final reveal triggers tally, resolution, and settlement
package dispute

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("dispute not found")
	ErrInvalidBeneficiary = errors.New("beneficiary cannot equal the requester")
	ErrInvalidAmount      = errors.New("invalid dispute amount")
	ErrJudgeNotRegistered = errors.New("caller is not a registered judge")
	ErrAlreadyOnRoster    = errors.New("judge already on the voter roster")
	ErrNotAcceptingVoters = errors.New("dispute is not accepting voters")
	ErrNotOnRoster        = errors.New("judge is not on the voter roster")
	ErrVotingNotOpen      = errors.New("voting is not open")
	ErrAlreadyCommitted   = errors.New("judge already committed a vote")
	ErrInvalidCommitment  = errors.New("commitment must be a 32-byte hash")
	ErrNoCommitment       = errors.New("no commitment to reveal")
	ErrAlreadyRevealed    = errors.New("vote already revealed")
	ErrCommitmentMismatch = errors.New("reveal does not match the commitment")
	ErrNotResolved        = errors.New("dispute is not resolved yet")
	ErrDisputeResolved    = errors.New("dispute already resolved")
	ErrNotRequester       = errors.New("caller is not the dispute requester")
	ErrNotParticipant     = errors.New("caller is not a party to the dispute")
	ErrEmptyProof         = errors.New("proof cannot be empty")
	ErrCannotClose        = errors.New("dispute can no longer be abandoned")
)

// Status represents the lifecycle state of a dispute.
type Status string

const (
	StatusWaitingForJudges Status = "waiting_for_judges" // Roster still filling
	StatusVoting           Status = "voting"             // Roster full, commit/reveal in progress
	StatusResolved         Status = "resolved"           // Winner decided, settlement applied
	StatusClosed           Status = "closed"             // Abandoned before voting, never settled
)

// Winner is the tri-state outcome of a dispute.
type Winner string

const (
	WinnerUndecided   Winner = "undecided"
	WinnerRequester   Winner = "requester"
	WinnerBeneficiary Winner = "beneficiary"
)

// Commitment is one judge's vote commitment on a dispute. Immutable once
// stored, except for the one-time reveal transition.
type Commitment struct {
	Judge      string     `json:"judge"`
	Hash       string     `json:"hash"` // 0x-prefixed keccak256, stored verbatim at commit time
	Revealed   bool       `json:"revealed"`
	Vote       bool       `json:"vote,omitempty"`   // Valid only after reveal
	Secret     []byte     `json:"secret,omitempty"` // Opening value, kept for auditability
	RevealedAt *time.Time `json:"revealedAt,omitempty"`
}

// Evidence is a proof submitted by either party while the dispute is live.
type Evidence struct {
	Author    string    `json:"author"`
	Proof     string    `json:"proof"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dispute is a request for adjudication between a requester and a beneficiary.
type Dispute struct {
	ID           uint64                 `json:"id"`
	Requester    string                 `json:"requester"`
	Beneficiary  string                 `json:"beneficiary"`
	Reason       string                 `json:"reason"`
	Pot          string                 `json:"pot"` // Escrowed fee funding judge rewards
	Status       Status                 `json:"status"`
	Winner       Winner                 `json:"winner"`
	Roster       []string               `json:"roster"` // Registration order
	Commitments  map[string]*Commitment `json:"commitments,omitempty"`
	Evidence     []Evidence             `json:"evidence,omitempty"`
	VotesFor     int                    `json:"votesFor"`     // Revealed votes favoring the requester
	VotesAgainst int                    `json:"votesAgainst"` // Revealed votes favoring the beneficiary
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	ResolvedAt   *time.Time             `json:"resolvedAt,omitempty"`
}

// IsTerminal returns true if the dispute is in a final state.
func (d *Dispute) IsTerminal() bool {
	return d.Status == StatusResolved || d.Status == StatusClosed
}

// OnRoster reports whether the judge registered to vote on this dispute.
func (d *Dispute) OnRoster(judge string) bool {
	for _, j := range d.Roster {
		if j == judge {
			return true
		}
	}
	return false
}

// AllRevealed reports whether every roster member has revealed. Roster
// members who never committed block resolution until they do; the roster is
// fixed, so a full reveal set is the only auto-resolution trigger.
func (d *Dispute) AllRevealed() bool {
	if len(d.Roster) == 0 {
		return false
	}
	for _, j := range d.Roster {
		c, ok := d.Commitments[j]
		if !ok || !c.Revealed {
			return false
		}
	}
	return true
}

// Resolution is the consistent snapshot handed to settlement when a dispute
// resolves. It is taken inside the dispute's exclusive section, so reveals
// arriving later cannot change it.
type Resolution struct {
	DisputeID    uint64
	Winner       Winner
	Pot          string
	Roster       []string
	Reveals      map[string]bool // judge → revealed vote; absent key = never revealed
	VotesFor     int
	VotesAgainst int
}
