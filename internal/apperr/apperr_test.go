package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("transfer: %w", Validation("amount must be positive"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("validation error must not match not found")
	}
	if KindOf(err) != KindValidation {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
}

func TestForbiddenNamesPermission(t *testing.T) {
	err := Forbidden("transfer")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden kind")
	}
	if got := MissingPermission(err); got != "transfer" {
		t.Fatalf("expected missing permission transfer, got %q", got)
	}
}

func TestExternalUnwraps(t *testing.T) {
	cause := errors.New("gateway timeout")
	err := External("payment initiation failed", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable")
	}
	if KindOf(err) != KindExternalService {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
}
