package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSession is returned for any token that fails verification.
var ErrInvalidSession = errors.New("auth: invalid session token")

type sessionClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions builds a token issuer. secret must not be empty.
func NewSessions(secret, issuer string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
}

// Token is an issued session token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Issue signs a token for principalID.
func (s *Sessions) Issue(principalID, email string) (Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("auth: sign session: %w", err)
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token and
// returns its subject.
func (s *Sessions) Verify(token string) (string, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}
