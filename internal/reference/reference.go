// Package reference generates the identifiers attached to ledger records.
//
// References are TypeIDs: a kind prefix followed by a K-sortable, UUIDv7
// based suffix ("dep_01h2xcejqtf2nbrexx3vqjhp41"). The suffix makes them
// unique across processes without coordination, and the prefix lets anyone
// reading a webhook or a statement tell deposits from transfers.
package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the kind of record a reference belongs to.
type Prefix string

const (
	PrefixDeposit  Prefix = "dep"  // gateway deposit
	PrefixTransfer Prefix = "xfer" // one leg of a wallet transfer
	PrefixGroup    Prefix = "grp"  // correlates the two legs of a transfer
)

// Generator produces references. The zero value is ready to use.
type Generator struct{}

// New returns a fresh reference for the prefix.
func (Generator) New(prefix Prefix) (string, error) {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		return "", fmt.Errorf("reference: generate %q: %w", prefix, err)
	}
	return tid.String(), nil
}

// Deposit returns a new deposit reference.
func (g Generator) Deposit() (string, error) { return g.New(PrefixDeposit) }

// Transfer returns a new transfer-leg reference.
func (g Generator) Transfer() (string, error) { return g.New(PrefixTransfer) }

// Group returns a new transfer correlation id.
func (g Generator) Group() (string, error) { return g.New(PrefixGroup) }

// HasPrefix reports whether ref was minted with prefix. It only inspects the
// text; use Parse to validate the suffix too.
func HasPrefix(ref string, prefix Prefix) bool {
	return strings.HasPrefix(ref, string(prefix)+"_")
}

// Parse validates ref and returns its prefix.
func Parse(ref string) (Prefix, error) {
	tid, err := typeid.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("reference: parse %q: %w", ref, err)
	}
	return Prefix(tid.Prefix()), nil
}

// AccountNumber returns a human-facing wallet number: the millisecond Unix
// time followed by three random digits. Callers retry on a unique-constraint
// collision.
func (Generator) AccountNumber(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900))
	if err != nil {
		return "", fmt.Errorf("reference: account number: %w", err)
	}
	return fmt.Sprintf("%d%03d", now.UnixMilli(), n.Int64()+100), nil
}
