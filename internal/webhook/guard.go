// Package webhook authenticates payment processor notifications and applies
// them to the ledger.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/metrics"
	"github.com/congo-pay/walletd/internal/reference"
)

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// Settler is the part of the ledger engine a webhook can drive.
type Settler interface {
	ConfirmDeposit(ctx context.Context, reference string) (ledger.Confirmation, error)
	FailDeposit(ctx context.Context, reference string) (ledger.Confirmation, error)
}

// Outcome reports what a delivery did.
type Outcome struct {
	Event     string
	Reference string
	// Applied is true only when this delivery changed the ledger.
	Applied bool
	// Ignored is true for events and references the ledger does not track.
	Ignored bool
}

// Guard verifies the HMAC-SHA512 signature of every delivery before it is
// allowed near the ledger. Redeliveries are safe: confirmation of an already
// settled deposit is a no-op.
type Guard struct {
	secret  []byte
	settler Settler
	logger  *slog.Logger
}

// NewGuard builds a guard. secret is the processor's webhook signing key.
func NewGuard(secret string, settler Settler, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Guard{secret: []byte(secret), settler: settler, logger: logger}
}

// Sign returns the hex signature the processor would attach to payload.
func (g *Guard) Sign(payload []byte) string {
	mac := hmac.New(sha512.New, g.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *Guard) verify(payload []byte, signature string) error {
	if signature == "" {
		return apperr.Signature("missing webhook signature")
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return apperr.Signature("invalid webhook signature")
	}
	mac := hmac.New(sha512.New, g.secret)
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return apperr.Signature("invalid webhook signature")
	}
	return nil
}

// Handle authenticates payload and applies the event it carries.
func (g *Guard) Handle(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	if err := g.verify(payload, signature); err != nil {
		metrics.RecordWebhook("unknown", "rejected")
		return Outcome{}, err
	}
	if !gjson.ValidBytes(payload) {
		metrics.RecordWebhook("unknown", "malformed")
		return Outcome{}, apperr.Validation("webhook payload is not valid JSON")
	}

	parsed := gjson.GetManyBytes(payload, "event", "data.reference")
	out := Outcome{Event: parsed[0].String(), Reference: parsed[1].String()}

	if !reference.HasPrefix(out.Reference, reference.PrefixDeposit) {
		out.Ignored = true
		metrics.RecordWebhook(out.Event, "ignored")
		return out, nil
	}

	var (
		res ledger.Confirmation
		err error
	)
	switch out.Event {
	case EventChargeSuccess:
		res, err = g.settler.ConfirmDeposit(ctx, out.Reference)
	case EventChargeFailed:
		res, err = g.settler.FailDeposit(ctx, out.Reference)
	default:
		out.Ignored = true
		metrics.RecordWebhook(out.Event, "ignored")
		return out, nil
	}
	if errors.Is(err, ledger.ErrEntryNotFound) {
		g.logger.Warn("webhook for unknown deposit", "event", out.Event, "reference", out.Reference)
		out.Ignored = true
		metrics.RecordWebhook(out.Event, "ignored")
		return out, nil
	}
	if err != nil {
		metrics.RecordWebhook(out.Event, "error")
		return out, err
	}

	out.Applied = res.Applied
	if out.Applied {
		metrics.RecordWebhook(out.Event, "applied")
	} else {
		metrics.RecordWebhook(out.Event, "duplicate")
	}
	g.logger.Info("webhook processed", "event", out.Event, "reference", out.Reference, "applied", out.Applied)
	return out, nil
}
