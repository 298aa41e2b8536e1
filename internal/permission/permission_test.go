package permission

import (
	"errors"
	"reflect"
	"testing"

	"github.com/congo-pay/walletd/internal/apperr"
)

func TestParse(t *testing.T) {
	set, err := Parse([]string{"read", "TRANSFER", "read"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := set.Strings(); !reflect.DeepEqual(got, []string{"read", "transfer"}) {
		t.Fatalf("unexpected set %v", got)
	}
	if set.Has(Deposit) {
		t.Fatalf("deposit must not be granted")
	}
}

func TestParseRejectsUnknownAndEmpty(t *testing.T) {
	for _, names := range [][]string{nil, {"admin"}, {"read", "withdraw"}} {
		if _, err := Parse(names); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("Parse(%v): expected validation error, got %v", names, err)
		}
	}
}

func TestZeroSetGrantsNothing(t *testing.T) {
	var s Set
	for _, p := range []Permission{Deposit, Transfer, Read} {
		if s.Has(p) {
			t.Fatalf("zero set grants %s", p)
		}
	}
	if All().Len() != 3 {
		t.Fatalf("expected full set of 3")
	}
}
