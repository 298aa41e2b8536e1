package identity

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/infra"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/migrations"
)

// Runs against a disposable database: TEST_DATABASE_URL=postgres://... go test ./...
func TestPostgresProvisionAndLedger(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := migrations.Up(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if err := migrations.Down(url); err != nil {
			t.Logf("migrate down: %v", err)
		}
	})

	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	store := ledger.NewPostgresStore(pool)
	ids := NewService(NewPostgresRepository(pool), store)
	engine := ledger.NewEngine(store)

	alice, aliceAcc, err := ids.Provision(ctx, Profile{ExternalID: "pg:alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("provision alice: %v", err)
	}
	bob, bobAcc, err := ids.Provision(ctx, Profile{ExternalID: "pg:bob", Email: "bob@example.com"})
	if err != nil {
		t.Fatalf("provision bob: %v", err)
	}
	again, againAcc, err := ids.Provision(ctx, Profile{ExternalID: "pg:alice", Email: "alice@example.com", Name: "Alice"})
	if err != nil || again.ID != alice.ID || againAcc.ID != aliceAcc.ID {
		t.Fatalf("returning sign-in created new records: %v", err)
	}

	dep, err := engine.InitiateDeposit(ctx, alice.ID, 10_000)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := engine.ConfirmDeposit(ctx, dep.Reference); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}

	if _, err := engine.Transfer(ctx, alice.ID, bobAcc.Number, 20_000); !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(ctx, alice.ID, bobAcc.Number, 100); err != nil {
				t.Errorf("alice->bob: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			// Bob may not have funds yet; only deadlocks or corruption are failures.
			if _, err := engine.Transfer(ctx, bob.ID, aliceAcc.Number, 50); err != nil && !errors.Is(err, apperr.ErrInsufficientFunds) {
				t.Errorf("bob->alice: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := engine.Balance(ctx, alice.ID)
	b, _ := engine.Balance(ctx, bob.ID)
	if a.Balance+b.Balance != 10_000 {
		t.Fatalf("money created or destroyed: %d + %d", a.Balance, b.Balance)
	}

	entries, err := engine.ListEntries(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var sum int64
	for _, e := range entries {
		if e.Status == ledger.StatusSuccess {
			sum += e.Amount
		}
	}
	if sum != a.Balance {
		t.Fatalf("entries sum %d does not match balance %d", sum, a.Balance)
	}
}
