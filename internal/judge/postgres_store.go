package judge

import (
	"context"
	"database/sql"
)

// PostgresStore persists judge records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed judge store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, j *Judge) error {
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO judges (address, balance, reputation, registered_at)
		VALUES ($1, $2::NUMERIC(20,6), $3, $4)
		ON CONFLICT (address) DO NOTHING`,
		j.Address, j.Balance, j.Reputation, j.RegisteredAt,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyRegistered
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, addr string) (*Judge, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT address, balance::TEXT, reputation, registered_at
		FROM judges WHERE address = $1`, addr)

	j := &Judge{}
	err := row.Scan(&j.Address, &j.Balance, &j.Reputation, &j.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return j, err
}

func (p *PostgresStore) Update(ctx context.Context, j *Judge) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE judges SET balance = $1::NUMERIC(20,6), reputation = $2
		WHERE address = $3`,
		j.Balance, j.Reputation, j.Address,
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

// ApplySettlement inserts the (dispute, judge) payout marker and updates the
// judge's balance and reputation in one transaction. The marker's primary key
// makes a repeated application a no-op, so a crashed or retried settlement
// never credits a judge twice.
func (p *PostgresStore) ApplySettlement(ctx context.Context, disputeID uint64, addr, reward string, repDelta int) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	marker, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_payouts (dispute_id, judge, reward, rep_delta)
		VALUES ($1, $2, $3::NUMERIC(20,6), $4)
		ON CONFLICT (dispute_id, judge) DO NOTHING`,
		disputeID, addr, reward, repDelta,
	)
	if err != nil {
		return false, err
	}
	rows, err := marker.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	updated, err := tx.ExecContext(ctx, `
		UPDATE judges
		SET balance = balance + $1::NUMERIC(20,6), reputation = reputation + $2
		WHERE address = $3`,
		reward, repDelta, addr,
	)
	if err != nil {
		return false, err
	}
	rows, err = updated.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, ErrNotFound
	}

	return true, tx.Commit()
}
