package webhook

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/ledger"
)

type spySettler struct {
	confirms int
	fails    int
}

func (s *spySettler) ConfirmDeposit(context.Context, string) (ledger.Confirmation, error) {
	s.confirms++
	return ledger.Confirmation{Applied: true}, nil
}

func (s *spySettler) FailDeposit(context.Context, string) (ledger.Confirmation, error) {
	s.fails++
	return ledger.Confirmation{Applied: true}, nil
}

func event(name, ref string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"status":"success","amount":5000}}`, name, ref))
}

func TestBadSignatureNeverReachesLedger(t *testing.T) {
	spy := &spySettler{}
	guard := NewGuard("whsec", spy, nil)
	payload := event(EventChargeSuccess, "dep_01h2xcejqtf2nbrexx3vqjhp41")

	forged := NewGuard("other-secret", spy, nil).Sign(payload)
	cases := map[string]string{
		"missing":   "",
		"not hex":   "zz",
		"forged":    forged,
		"truncated": guard.Sign(payload)[:64],
	}
	for name, sig := range cases {
		if _, err := guard.Handle(context.Background(), payload, sig); !errors.Is(err, apperr.ErrSignature) {
			t.Fatalf("%s: expected signature error, got %v", name, err)
		}
	}
	if spy.confirms != 0 || spy.fails != 0 {
		t.Fatalf("ledger touched by unauthenticated delivery: %+v", spy)
	}
}

func TestTamperedPayloadRejected(t *testing.T) {
	spy := &spySettler{}
	guard := NewGuard("whsec", spy, nil)
	sig := guard.Sign(event(EventChargeSuccess, "dep_a"))
	if _, err := guard.Handle(context.Background(), event(EventChargeSuccess, "dep_b"), sig); !errors.Is(err, apperr.ErrSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if spy.confirms != 0 {
		t.Fatalf("ledger touched by tampered delivery")
	}
}

func TestIgnoresForeignEventsAndReferences(t *testing.T) {
	spy := &spySettler{}
	guard := NewGuard("whsec", spy, nil)
	for _, payload := range [][]byte{
		event("transfer.success", "dep_x"),
		event(EventChargeSuccess, "xfer_x"),
		event(EventChargeSuccess, ""),
	} {
		out, err := guard.Handle(context.Background(), payload, guard.Sign(payload))
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if !out.Ignored {
			t.Fatalf("expected %s to be ignored", payload)
		}
	}
	if spy.confirms != 0 || spy.fails != 0 {
		t.Fatalf("ignored events reached the ledger: %+v", spy)
	}
}

func TestMalformedPayload(t *testing.T) {
	guard := NewGuard("whsec", &spySettler{}, nil)
	payload := []byte(`{"event":`)
	if _, err := guard.Handle(context.Background(), payload, guard.Sign(payload)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func newLedger(t *testing.T) (*ledger.Engine, ledger.Store, string) {
	t.Helper()
	store := ledger.NewInMemory()
	principal := uuid.NewString()
	acct := ledger.Account{ID: uuid.NewString(), PrincipalID: principal, Number: "1700000000000100"}
	if err := store.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return ledger.NewEngine(store), store, principal
}

func TestDoubleDeliveryCreditsOnce(t *testing.T) {
	engine, _, principal := newLedger(t)
	ctx := context.Background()
	entry, err := engine.InitiateDeposit(ctx, principal, 5000)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	guard := NewGuard("whsec", engine, nil)
	payload := event(EventChargeSuccess, entry.Reference)
	sig := guard.Sign(payload)

	first, err := guard.Handle(ctx, payload, sig)
	if err != nil || !first.Applied {
		t.Fatalf("first delivery: %+v, %v", first, err)
	}
	second, err := guard.Handle(ctx, payload, sig)
	if err != nil || second.Applied {
		t.Fatalf("second delivery: %+v, %v", second, err)
	}

	acct, _ := engine.Balance(ctx, principal)
	if acct.Balance != 5000 {
		t.Fatalf("expected balance 5000, got %d", acct.Balance)
	}
}

func TestChargeFailedMarksDepositFailed(t *testing.T) {
	engine, _, principal := newLedger(t)
	ctx := context.Background()
	entry, _ := engine.InitiateDeposit(ctx, principal, 5000)

	guard := NewGuard("whsec", engine, nil)
	failed := event(EventChargeFailed, entry.Reference)
	if _, err := guard.Handle(ctx, failed, guard.Sign(failed)); err != nil {
		t.Fatalf("fail delivery: %v", err)
	}
	got, _ := engine.DepositStatus(ctx, principal, entry.Reference)
	if got.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}

	// A late success for a failed deposit must not credit.
	success := event(EventChargeSuccess, entry.Reference)
	if _, err := guard.Handle(ctx, success, guard.Sign(success)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	acct, _ := engine.Balance(ctx, principal)
	if acct.Balance != 0 {
		t.Fatalf("failed deposit credited: %d", acct.Balance)
	}
}

func TestUnknownDepositAcknowledged(t *testing.T) {
	engine, _, _ := newLedger(t)
	guard := NewGuard("whsec", engine, nil)
	payload := event(EventChargeSuccess, "dep_01h2xcejqtf2nbrexx3vqjhp41")
	out, err := guard.Handle(context.Background(), payload, guard.Sign(payload))
	if err != nil || !out.Ignored {
		t.Fatalf("expected ignored, got %+v, %v", out, err)
	}
}
