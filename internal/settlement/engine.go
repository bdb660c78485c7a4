// Package settlement turns a dispute resolution into balance and reputation
// adjustments on the judge registry plus a treasury accrual.
package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/lancer-labs/arbiter/internal/dispute"
	"github.com/lancer-labs/arbiter/internal/logging"
	"github.com/lancer-labs/arbiter/internal/metrics"
	"github.com/lancer-labs/arbiter/internal/usdc"
)

// JudgeLedger is the slice of the judge registry settlement needs.
type JudgeLedger interface {
	IsRegistered(ctx context.Context, addr string) (bool, error)
	// ApplyPayout applies one judge's reward and reputation delta, at most
	// once per (dispute, judge). Reports whether this call applied it.
	ApplyPayout(ctx context.Context, disputeID uint64, addr, reward string, repDelta int) (bool, error)
}

// Treasury accumulates the protocol's share of each settled pot. Accrue is
// applied at most once per dispute.
type Treasury interface {
	Accrue(disputeID uint64, amount *big.Int)
}

// Engine applies settlements.
type Engine struct {
	ledger   JudgeLedger
	treasury Treasury
}

// NewEngine creates a settlement engine.
func NewEngine(ledger JudgeLedger, treasury Treasury) *Engine {
	return &Engine{ledger: ledger, treasury: treasury}
}

type payout struct {
	judge    string
	reward   string // empty means reputation-only
	repDelta int
}

// Settle distributes the pot and adjusts reputation for every roster judge.
//
// The pot is split into equal shares, one per roster seat. Judges who
// revealed with the majority earn their share and +1 reputation. Judges who
// revealed with the minority, and judges who never revealed, lose 1
// reputation and forfeit their share to the treasury. Integer division
// remainders also accrue to the treasury.
//
// The full plan is validated against the registry before anything is
// applied, so a roster judge missing from the registry cannot leave a
// half-settled dispute. Each payout is recorded per (dispute, judge) by the
// ledger, so a Settle that fails partway can be retried with the same
// resolution: judges already paid are skipped, the rest are applied.
func (e *Engine) Settle(ctx context.Context, res *dispute.Resolution) error {
	pot, ok := usdc.Parse(res.Pot)
	if !ok {
		return fmt.Errorf("corrupt pot for dispute %d: %q", res.DisputeID, res.Pot)
	}
	if len(res.Roster) == 0 {
		return fmt.Errorf("dispute %d has an empty roster", res.DisputeID)
	}

	share := new(big.Int).Div(pot, big.NewInt(int64(len(res.Roster))))
	reward := usdc.Format(share)
	majorityVote := res.Winner == dispute.WinnerRequester

	plan := make([]payout, 0, len(res.Roster))
	distributed := new(big.Int)
	for _, addr := range res.Roster {
		vote, revealed := res.Reveals[addr]
		if revealed && vote == majorityVote {
			plan = append(plan, payout{judge: addr, reward: reward, repDelta: 1})
			distributed.Add(distributed, share)
		} else {
			plan = append(plan, payout{judge: addr, repDelta: -1})
		}
	}

	for _, p := range plan {
		registered, err := e.ledger.IsRegistered(ctx, p.judge)
		if err != nil {
			return fmt.Errorf("verify judge %s: %w", p.judge, err)
		}
		if !registered {
			return fmt.Errorf("roster judge %s is not in the registry", p.judge)
		}
	}

	for _, p := range plan {
		applied, err := e.ledger.ApplyPayout(ctx, res.DisputeID, p.judge, p.reward, p.repDelta)
		if err != nil {
			return fmt.Errorf("apply payout for %s: %w", p.judge, err)
		}
		if applied && p.reward != "" {
			metrics.SettlementPayoutsTotal.Inc()
		}
	}

	retained := new(big.Int).Sub(pot, distributed)
	if retained.Sign() > 0 {
		e.treasury.Accrue(res.DisputeID, retained)
	}

	logging.L(ctx).Info("dispute settled",
		"dispute_id", res.DisputeID,
		"winner", res.Winner,
		"reward_per_judge", reward,
		"treasury_retained", usdc.Format(retained),
	)

	return nil
}

var _ dispute.Settler = (*Engine)(nil)
