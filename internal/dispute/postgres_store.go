package dispute

import (
	"context"
	"database/sql"
)

// PostgresStore persists disputes in PostgreSQL across four tables: the
// dispute row plus child rows for roster, commitments, and evidence.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed dispute store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, d *Dispute) error {
	return p.db.QueryRowContext(ctx, `
		INSERT INTO disputes (requester, beneficiary, reason, pot, status, winner,
			votes_for, votes_against, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		d.Requester, d.Beneficiary, d.Reason, d.Pot, d.Status, d.Winner,
		d.VotesFor, d.VotesAgainst, d.CreatedAt, d.UpdatedAt,
	).Scan(&d.ID)
}

func (p *PostgresStore) Get(ctx context.Context, id uint64) (*Dispute, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, requester, beneficiary, reason, pot::TEXT, status, winner,
			votes_for, votes_against, created_at, updated_at, resolved_at
		FROM disputes WHERE id = $1`, id)

	d := &Dispute{Commitments: make(map[string]*Commitment)}
	err := row.Scan(&d.ID, &d.Requester, &d.Beneficiary, &d.Reason, &d.Pot,
		&d.Status, &d.Winner, &d.VotesFor, &d.VotesAgainst,
		&d.CreatedAt, &d.UpdatedAt, &d.ResolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := p.loadRoster(ctx, d); err != nil {
		return nil, err
	}
	if err := p.loadCommitments(ctx, d); err != nil {
		return nil, err
	}
	if err := p.loadEvidence(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *PostgresStore) loadRoster(ctx context.Context, d *Dispute) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT judge FROM dispute_voters
		WHERE dispute_id = $1 ORDER BY position`, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var judge string
		if err := rows.Scan(&judge); err != nil {
			return err
		}
		d.Roster = append(d.Roster, judge)
	}
	return rows.Err()
}

func (p *PostgresStore) loadCommitments(ctx context.Context, d *Dispute) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT judge, hash, revealed, vote, secret, revealed_at
		FROM vote_commitments WHERE dispute_id = $1`, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		c := &Commitment{}
		var vote sql.NullBool
		if err := rows.Scan(&c.Judge, &c.Hash, &c.Revealed, &vote, &c.Secret, &c.RevealedAt); err != nil {
			return err
		}
		c.Vote = vote.Bool
		d.Commitments[c.Judge] = c
	}
	return rows.Err()
}

func (p *PostgresStore) loadEvidence(ctx context.Context, d *Dispute) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT author, proof, created_at FROM dispute_evidence
		WHERE dispute_id = $1 ORDER BY created_at`, d.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ev Evidence
		if err := rows.Scan(&ev.Author, &ev.Proof, &ev.CreatedAt); err != nil {
			return err
		}
		d.Evidence = append(d.Evidence, ev)
	}
	return rows.Err()
}

func (p *PostgresStore) Update(ctx context.Context, d *Dispute) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE disputes SET status = $1, winner = $2, votes_for = $3,
			votes_against = $4, updated_at = $5, resolved_at = $6
		WHERE id = $7`,
		d.Status, d.Winner, d.VotesFor, d.VotesAgainst,
		d.UpdatedAt, d.ResolvedAt, d.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) AddVoter(ctx context.Context, id uint64, judge string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dispute_voters (dispute_id, judge, position)
		VALUES ($1, $2, (SELECT COUNT(*) FROM dispute_voters WHERE dispute_id = $1))`,
		id, judge,
	)
	return err
}

func (p *PostgresStore) PutCommitment(ctx context.Context, id uint64, c *Commitment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO vote_commitments (dispute_id, judge, hash, revealed)
		VALUES ($1, $2, $3, FALSE)`,
		id, c.Judge, c.Hash,
	)
	return err
}

func (p *PostgresStore) MarkRevealed(ctx context.Context, id uint64, c *Commitment) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE vote_commitments
		SET revealed = TRUE, vote = $1, secret = $2, revealed_at = $3
		WHERE dispute_id = $4 AND judge = $5`,
		c.Vote, c.Secret, c.RevealedAt, id, c.Judge,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNoCommitment
	}
	return nil
}

func (p *PostgresStore) AddEvidence(ctx context.Context, id uint64, ev *Evidence) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO dispute_evidence (dispute_id, author, proof, created_at)
		VALUES ($1, $2, $3, $4)`,
		id, ev.Author, ev.Proof, ev.CreatedAt,
	)
	return err
}

func (p *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM disputes`).Scan(&n)
	return n, err
}

var _ Store = (*PostgresStore)(nil)
