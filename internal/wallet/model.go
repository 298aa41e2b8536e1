package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/walletd/internal/ledger"
)

// minorExponent is the number of minor units per major unit, as a power of
// ten. Kobo, cents and centimes all use two.
const minorExponent = -2

// Major renders a minor-unit amount in major units, e.g. 150050 -> "1500.50".
func Major(minor int64) string {
	return decimal.New(minor, minorExponent).StringFixed(-minorExponent)
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type depositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

type depositStatusResponse struct {
	Reference string     `json:"reference"`
	Status    string     `json:"status"`
	Amount    int64      `json:"amount"`
	PaidAt    *time.Time `json:"paid_at"`
}

type depositVerifyResponse struct {
	depositStatusResponse
	GatewayStatus string         `json:"paystack_status"`
	GatewayData   map[string]any `json:"paystack_data"`
}

type balanceResponse struct {
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`
	Display      string `json:"balance_major"`
	Currency     string `json:"currency"`
}

type transferRequest struct {
	RecipientWalletNumber string `json:"recipient_wallet_number"`
	Amount                int64  `json:"amount"`
}

type transferResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Reference string `json:"reference"`
	Balance   int64  `json:"balance"`
}

type entryResponse struct {
	ID          string    `json:"id"`
	Reference   string    `json:"reference"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Display     string    `json:"amount_major"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func statusOf(e ledger.Entry) depositStatusResponse {
	return depositStatusResponse{Reference: e.Reference, Status: string(e.Status), Amount: e.Amount, PaidAt: e.SettledAt}
}

func entryOf(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		Reference:   e.Reference,
		Type:        string(e.Kind),
		Amount:      e.Amount,
		Display:     Major(e.Amount),
		Status:      string(e.Status),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
	}
}
