package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/apperr"
	"github.com/congo-pay/walletd/internal/auth"
)

// Handler exposes wallet HTTP endpoints. Permission checks happen in the
// route middleware; handlers only need the resolved principal.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func principalID(c *fiber.Ctx) (string, error) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		return "", apperr.ErrUnauthenticated
	}
	return p.ID(), nil
}

// Deposit starts a gateway deposit.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	pid, err := principalID(c)
	if err != nil {
		return err
	}
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.service.Deposit(c.UserContext(), pid, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(depositResponse{Reference: entry.Reference, AuthorizationURL: entry.AuthorizationURL})
}

// DepositStatus reports a deposit's settlement state.
func (h *Handler) DepositStatus(c *fiber.Ctx) error {
	pid, err := principalID(c)
	if err != nil {
		return err
	}
	entry, err := h.service.DepositStatus(c.UserContext(), pid, c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(statusOf(entry))
}

// VerifyDeposit asks the gateway about a deposit without crediting it.
func (h *Handler) VerifyDeposit(c *fiber.Ctx) error {
	pid, err := principalID(c)
	if err != nil {
		return err
	}
	entry, v, err := h.service.VerifyDeposit(c.UserContext(), pid, c.Params("reference"))
	if err != nil {
		if errors.Is(err, apperr.ErrExternalService) {
			return fiber.NewError(http.StatusBadGateway, err.Error())
		}
		return err
	}
	data := v.Data
	if data == nil {
		data = map[string]any{}
	}
	status := v.Status
	if status == "" {
		status = "unknown"
	}
	return c.Status(http.StatusOK).JSON(depositVerifyResponse{
		depositStatusResponse: statusOf(entry),
		GatewayStatus:         status,
		GatewayData:           data,
	})
}

// Balance returns the caller's balance in minor and major units.
func (h *Handler) Balance(c *fiber.Ctx) error {
	pid, err := principalID(c)
	if err != nil {
		return err
	}
	acct, err := h.service.Balance(c.UserContext(), pid)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		WalletNumber: acct.Number,
		Balance:      acct.Balance,
		Display:      Major(acct.Balance),
		Currency:     h.service.Currency(),
	})
}

// Transfer moves funds to another wallet by number.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	pid, err := principalID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.RecipientWalletNumber == "" {
		return apperr.Validation("recipient_wallet_number is required")
	}
	res, err := h.service.Transfer(c.UserContext(), pid, req.RecipientWalletNumber, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(transferResponse{
		Status:    "success",
		Message:   "Transfer completed successfully.",
		Reference: res.Group,
		Balance:   res.SenderBalance,
	})
}

// Transactions lists the caller's ledger entries, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	pid, err := principalID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.Transactions(c.UserContext(), pid)
	if err != nil {
		return err
	}
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = entryOf(e)
	}
	return c.Status(http.StatusOK).JSON(out)
}
