package auth

import (
	"errors"
	"testing"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/permission"
)

func TestRequireNamesMissingPermission(t *testing.T) {
	err := Require(permission.NewSet(permission.Read), permission.Transfer)
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if got := apperr.MissingPermission(err); got != "transfer" {
		t.Fatalf("expected missing permission transfer, got %q", got)
	}
	if err := Require(permission.NewSet(permission.Read), permission.Read); err != nil {
		t.Fatalf("expected read granted, got %v", err)
	}
}

func TestPrincipalVariants(t *testing.T) {
	var session Principal = SessionPrincipal{PrincipalID: "p1"}
	for _, perm := range []permission.Permission{permission.Deposit, permission.Transfer, permission.Read} {
		if err := Require(session.Permissions(), perm); err != nil {
			t.Fatalf("session principal denied %s", perm)
		}
	}

	var scoped Principal = CredentialPrincipal{PrincipalID: "p1", CredentialID: "k1", Granted: permission.NewSet(permission.Deposit)}
	if scoped.Kind() != KindCredential || scoped.ID() != "p1" {
		t.Fatalf("unexpected credential principal %+v", scoped)
	}
	if err := Require(scoped.Permissions(), permission.Read); err == nil {
		t.Fatalf("credential principal must not gain read")
	}
}
