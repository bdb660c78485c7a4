package dispute

import "context"

// Store persists dispute aggregates. Get loads the full aggregate (roster,
// commitments, evidence); the fine-grained mutators keep the PostgreSQL
// implementation from rewriting child rows on every change. The service
// serializes all mutations per dispute, so stores do not need cross-call
// transactions.
type Store interface {
	// Create inserts the dispute and assigns the next sequential ID
	// (starting at 1) to d.ID.
	Create(ctx context.Context, d *Dispute) error
	Get(ctx context.Context, id uint64) (*Dispute, error)
	// Update persists the dispute's own fields (status, winner, counts,
	// timestamps) — not roster, commitments, or evidence.
	Update(ctx context.Context, d *Dispute) error

	AddVoter(ctx context.Context, id uint64, judge string) error
	PutCommitment(ctx context.Context, id uint64, c *Commitment) error
	// MarkRevealed persists the one-time reveal transition of an existing
	// commitment.
	MarkRevealed(ctx context.Context, id uint64, c *Commitment) error
	AddEvidence(ctx context.Context, id uint64, ev *Evidence) error

	// Count returns the number of disputes ever created.
	Count(ctx context.Context) (uint64, error)
}
