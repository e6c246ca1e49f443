package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/npp_sim/internal/directory"
	"github.com/congo-pay/npp_sim/internal/ledger"
	"github.com/congo-pay/npp_sim/internal/mandates"
	"github.com/congo-pay/npp_sim/internal/messages"
	"github.com/congo-pay/npp_sim/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints. limit guards initiation only.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, limit fiber.Handler) {
	r.Post("/payments", limit, h.Initiate)
	r.Get("/payments", h.List)
	r.Get("/payments/:id", h.Get)
	r.Post("/payments/:id/return", h.Return)
	r.Get("/payments/:id/events", h.Events)
}

// RegisterSettlementRoutes wires settlement balance and history endpoints.
func RegisterSettlementRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/settlement/balances", h.Balances)
	r.Get("/settlement/transactions", h.Transactions)
	r.Get("/participants", h.Balances)
}

// RegisterMessageRoutes wires the message trail endpoints.
func RegisterMessageRoutes(r fiber.Router, h *messages.Handler) {
	r.Get("/messages", h.List)
	r.Get("/messages/:id", h.Get)
	r.Get("/messages/:id/xml", h.Raw)
}

// RegisterDirectoryRoutes wires PayID resolution.
func RegisterDirectoryRoutes(r fiber.Router, h *directory.Handler) {
	r.Get("/payids/resolve", h.Resolve)
	r.Get("/payids", h.List)
}

// RegisterMandateRoutes wires PayTo mandate endpoints.
func RegisterMandateRoutes(r fiber.Router, h *mandates.Handler) {
	r.Post("/mandates", h.Create)
	r.Get("/mandates", h.List)
	r.Get("/mandates/:id", h.Get)
	r.Post("/mandates/:id/approve", h.Approve)
	r.Post("/mandates/:id/reject", h.Reject)
	r.Post("/mandates/:id/execute", h.Execute)
}
