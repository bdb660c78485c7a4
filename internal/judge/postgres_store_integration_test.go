//go:build integration

package judge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lancer-labs/arbiter/internal/judge"
	"github.com/lancer-labs/arbiter/internal/testutil"
)

func TestPostgresStore_CreateGet(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := judge.NewPostgresStore(db)
	ctx := context.Background()

	j := &judge.Judge{
		Address:      "0x1111111111111111111111111111111111111111",
		Balance:      "0.000000",
		Reputation:   0,
		RegisteredAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, j.Address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Address != j.Address {
		t.Errorf("address = %q, want %q", got.Address, j.Address)
	}
	if got.Balance != "0.000000" {
		t.Errorf("balance = %q, want 0.000000", got.Balance)
	}
	if got.Reputation != 0 {
		t.Errorf("reputation = %d, want 0", got.Reputation)
	}
}

func TestPostgresStore_DuplicateCreate(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := judge.NewPostgresStore(db)
	ctx := context.Background()

	j := &judge.Judge{
		Address:      "0x2222222222222222222222222222222222222222",
		Balance:      "0.000000",
		RegisteredAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := store.Create(ctx, j); !errors.Is(err, judge.ErrAlreadyRegistered) {
		t.Fatalf("second Create: err = %v, want ErrAlreadyRegistered", err)
	}
}

func TestPostgresStore_UpdateBalanceAndReputation(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := judge.NewPostgresStore(db)
	ctx := context.Background()

	j := &judge.Judge{
		Address:      "0x3333333333333333333333333333333333333333",
		Balance:      "0.000000",
		RegisteredAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	j.Balance = "12.500000"
	j.Reputation = -2
	if err := store.Update(ctx, j); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, j.Address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Balance != "12.500000" {
		t.Errorf("balance = %q, want 12.500000", got.Balance)
	}
	if got.Reputation != -2 {
		t.Errorf("reputation = %d, want -2", got.Reputation)
	}
}

func TestPostgresStore_ApplySettlementOnce(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := judge.NewPostgresStore(db)
	ctx := context.Background()

	j := &judge.Judge{
		Address:      "0x5555555555555555555555555555555555555555",
		Balance:      "0.000000",
		RegisteredAt: time.Now().UTC(),
	}
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO disputes (requester, beneficiary, pot)
		VALUES ('0xr', '0xb', 10.000000)`); err != nil {
		t.Fatalf("seed dispute: %v", err)
	}

	applied, err := store.ApplySettlement(ctx, 1, j.Address, "10.000000", 1)
	if err != nil {
		t.Fatalf("ApplySettlement: %v", err)
	}
	if !applied {
		t.Fatal("first application reported applied=false")
	}

	// Same (dispute, judge) pair again: skipped, nothing changes.
	applied, err = store.ApplySettlement(ctx, 1, j.Address, "10.000000", 1)
	if err != nil {
		t.Fatalf("repeated ApplySettlement: %v", err)
	}
	if applied {
		t.Fatal("repeated application reported applied=true")
	}

	got, err := store.Get(ctx, j.Address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Balance != "10.000000" {
		t.Errorf("balance = %q, want 10.000000 after a repeated application", got.Balance)
	}
	if got.Reputation != 1 {
		t.Errorf("reputation = %d, want 1 after a repeated application", got.Reputation)
	}
}

func TestPostgresStore_ApplySettlementUnknownJudge(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := judge.NewPostgresStore(db)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		INSERT INTO disputes (requester, beneficiary, pot)
		VALUES ('0xr', '0xb', 10.000000)`); err != nil {
		t.Fatalf("seed dispute: %v", err)
	}

	_, err := store.ApplySettlement(ctx, 1, "0x6666666666666666666666666666666666666666", "1.000000", 1)
	if err == nil {
		t.Fatal("expected an error for an unregistered judge")
	}
}

func TestPostgresStore_NotFound(t *testing.T) {
	db := testutil.StartPostgres(t)
	store := judge.NewPostgresStore(db)
	ctx := context.Background()

	if _, err := store.Get(ctx, "0x4444444444444444444444444444444444444444"); !errors.Is(err, judge.ErrNotFound) {
		t.Errorf("Get unknown: err = %v, want ErrNotFound", err)
	}

	err := store.Update(ctx, &judge.Judge{
		Address: "0x4444444444444444444444444444444444444444",
		Balance: "1.000000",
	})
	if !errors.Is(err, judge.ErrNotFound) {
		t.Errorf("Update unknown: err = %v, want ErrNotFound", err)
	}
}
