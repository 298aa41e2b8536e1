package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/ledger"
)

func newTestService() (*Service, ledger.Store) {
	accounts := ledger.NewInMemory()
	return NewService(NewMemoryRepository(accounts), accounts), accounts
}

func TestProvisionCreatesPrincipalAndAccount(t *testing.T) {
	svc, accounts := newTestService()
	ctx := context.Background()

	p, acct, err := svc.Provision(ctx, Profile{ExternalID: "google:1", Email: "a@example.com", Name: "A"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if acct.PrincipalID != p.ID || acct.Balance != 0 {
		t.Fatalf("unexpected account %+v", acct)
	}
	if len(acct.Number) != 16 {
		t.Fatalf("unexpected account number %q", acct.Number)
	}
	stored, err := accounts.AccountByPrincipal(ctx, p.ID)
	if err != nil || stored.ID != acct.ID {
		t.Fatalf("account not persisted: %+v, %v", stored, err)
	}
	if ok, _ := svc.Exists(ctx, p.ID); !ok {
		t.Fatalf("expected principal to exist")
	}
}

func TestProvisionReturningUserKeepsAccount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, acct1, err := svc.Provision(ctx, Profile{ExternalID: "google:1", Email: "a@example.com", Name: "A"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	second, acct2, err := svc.Provision(ctx, Profile{ExternalID: "google:1", Email: "a@example.com", Name: "Renamed"})
	if err != nil {
		t.Fatalf("provision again: %v", err)
	}
	if first.ID != second.ID || acct1.ID != acct2.ID {
		t.Fatalf("returning user got a new principal or account")
	}
	got, _ := svc.Get(ctx, first.ID)
	if got.Name != "Renamed" {
		t.Fatalf("expected profile refreshed, got %q", got.Name)
	}
}

func TestProvisionConcurrentFirstSignIn(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const workers = 8
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, _, err := svc.Provision(ctx, Profile{ExternalID: "google:race", Email: "r@example.com"})
			if err != nil {
				t.Errorf("provision: %v", err)
				return
			}
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()
	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("concurrent sign-ins produced different principals")
		}
	}
}

func TestProvisionRequiresStableID(t *testing.T) {
	svc, _ := newTestService()
	_, _, err := svc.Provision(context.Background(), Profile{Email: "a@example.com"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStaticProviderIsDeterministic(t *testing.T) {
	p := StaticProvider{BaseURL: "https://accounts.example.com/auth", RedirectURL: "http://localhost/cb"}
	a, err := p.Exchange(context.Background(), "code-1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	b, _ := p.Exchange(context.Background(), "code-1")
	c, _ := p.Exchange(context.Background(), "code-2")
	if a != b || a.ExternalID == c.ExternalID {
		t.Fatalf("expected deterministic, distinct profiles: %+v %+v %+v", a, b, c)
	}
	if _, err := p.Exchange(context.Background(), " "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error for empty code, got %v", err)
	}
}
