package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/middleware"
	"github.com/congo-pay/walletd/internal/permission"
	"github.com/congo-pay/walletd/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints, each behind the permission it
// exercises.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, authn []fiber.Handler) {
	deposit := with(authn, middleware.RequirePermission(permission.Deposit))
	transfer := with(authn, middleware.RequirePermission(permission.Transfer))
	read := with(authn, middleware.RequirePermission(permission.Read))

	r.Post("/wallet/deposit", with(deposit, h.Deposit)...)
	r.Get("/wallet/deposit/:reference/status", with(read, h.DepositStatus)...)
	r.Get("/wallet/deposit/:reference/verify", with(read, h.VerifyDeposit)...)
	r.Get("/wallet/balance", with(read, h.Balance)...)
	r.Post("/wallet/transfer", with(transfer, h.Transfer)...)
	r.Get("/wallet/transactions", with(read, h.Transactions)...)
}
