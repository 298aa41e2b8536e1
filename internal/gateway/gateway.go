// Package gateway is the boundary to the external payment processor that
// collects deposits.
package gateway

import (
	"context"
	"strings"
)

// Checkout describes a deposit the processor should collect.
type Checkout struct {
	Reference string
	Amount    int64
	Email     string
	Currency  string
}

// Authorization is the processor's answer to a checkout: where to send the
// payer.
type Authorization struct {
	URL        string
	AccessCode string
}

// Verification is the processor's view of a past checkout. Data is the raw
// processor payload, passed through to clients unchanged.
type Verification struct {
	Status string
	Data   map[string]any
}

// Gateway starts and inspects deposits. The reference is passed through
// unmodified and comes back in webhook notifications.
type Gateway interface {
	Initialize(ctx context.Context, checkout Checkout) (Authorization, error)
	Verify(ctx context.Context, reference string) (Verification, error)
}

// StaticGateway simulates a processor that accepts every checkout. Payers are
// sent to BaseURL/<reference>; settlement arrives through the webhook.
type StaticGateway struct {
	BaseURL string
}

func (g StaticGateway) Initialize(_ context.Context, checkout Checkout) (Authorization, error) {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = "https://checkout.walletd.local"
	}
	return Authorization{URL: base + "/" + checkout.Reference, AccessCode: checkout.Reference}, nil
}

func (StaticGateway) Verify(_ context.Context, reference string) (Verification, error) {
	return Verification{
		Status: "pending",
		Data:   map[string]any{"reference": reference, "status": "pending"},
	}, nil
}
