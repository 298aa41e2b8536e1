package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLockOrderSortsAndDeduplicates(t *testing.T) {
	got := lockOrder([]string{"b", "a", "c", "a"})
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestInMemoryTxRequiresLockBeforeWrite(t *testing.T) {
	s := NewInMemory()
	a := openAccount(t, s, "1000000000001", 100)

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.SetBalance(context.Background(), a.ID, 50, time.Now())
	})
	if err == nil {
		t.Fatalf("expected error writing an unlocked account")
	}
	if got := balanceOf(t, s, a); got != 100 {
		t.Fatalf("expected balance untouched, got %d", got)
	}
}

func TestInMemoryTxRejectsNegativeBalance(t *testing.T) {
	s := NewInMemory()
	a := openAccount(t, s, "1000000000001", 100)

	err := s.InTx(context.Background(), func(tx Tx) error {
		if _, err := tx.LockAccounts(context.Background(), a.ID); err != nil {
			return err
		}
		return tx.SetBalance(context.Background(), a.ID, -1, time.Now())
	})
	if err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
}

func TestInMemoryTxDiscardsOnError(t *testing.T) {
	s := NewInMemory()
	a := openAccount(t, s, "1000000000001", 100)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(tx Tx) error {
		if _, err := tx.LockAccounts(context.Background(), a.ID); err != nil {
			return err
		}
		if err := tx.SetBalance(context.Background(), a.ID, 1, time.Now()); err != nil {
			return err
		}
		if err := tx.InsertEntry(context.Background(), Entry{ID: uuid.NewString(), AccountID: a.ID, Reference: "xfer_1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := balanceOf(t, s, a); got != 100 {
		t.Fatalf("expected balance untouched, got %d", got)
	}
	if _, err := s.EntryByReference(context.Background(), "xfer_1"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected staged entry discarded, got %v", err)
	}
}

func TestInMemoryDuplicateReference(t *testing.T) {
	s := NewInMemory()
	a := openAccount(t, s, "1000000000001", 0)
	ctx := context.Background()

	e := Entry{ID: uuid.NewString(), AccountID: a.ID, Reference: "dep_1", Status: StatusPending}
	if err := s.InsertEntry(ctx, e); err != nil {
		t.Fatalf("insert: %v", err)
	}
	e.ID = uuid.NewString()
	if err := s.InsertEntry(ctx, e); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}
	err := s.InTx(ctx, func(tx Tx) error { return tx.InsertEntry(ctx, e) })
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference inside tx, got %v", err)
	}
}

func TestInMemoryAccountUniqueness(t *testing.T) {
	s := NewInMemory()
	a := openAccount(t, s, "1000000000001", 0)

	dupNumber := Account{ID: uuid.NewString(), PrincipalID: uuid.NewString(), Number: a.Number}
	if err := s.CreateAccount(context.Background(), dupNumber); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate number rejected, got %v", err)
	}
	dupPrincipal := Account{ID: uuid.NewString(), PrincipalID: a.PrincipalID, Number: "1000000000002"}
	if err := s.CreateAccount(context.Background(), dupPrincipal); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected second account for principal rejected, got %v", err)
	}
}
