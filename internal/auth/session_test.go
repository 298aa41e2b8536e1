package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionRoundTrip(t *testing.T) {
	s := NewSessions("secret", "walletd", time.Hour)
	tok, err := s.Issue("principal-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := s.Verify(tok.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sub != "principal-1" {
		t.Fatalf("unexpected subject %q", sub)
	}
}

func TestSessionRejectsExpiredAndForeignTokens(t *testing.T) {
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSessions("secret", "walletd", time.Hour)
	s.now = func() time.Time { return issued }
	tok, err := s.Issue("principal-1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	s.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := s.Verify(tok.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}

	s.now = func() time.Time { return issued }
	other := NewSessions("other-secret", "walletd", time.Hour)
	other.now = s.now
	if _, err := other.Verify(tok.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected foreign signature rejected, got %v", err)
	}
}

func TestSessionRejectsNoneAlgorithm(t *testing.T) {
	s := NewSessions("secret", "walletd", time.Hour)
	claims := jwt.RegisteredClaims{
		Subject:   "principal-1",
		Issuer:    "walletd",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Verify(unsigned); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected none algorithm rejected, got %v", err)
	}
}
