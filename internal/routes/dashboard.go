package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/npp_sim/internal/ledger"
	"github.com/congo-pay/npp_sim/internal/payments"
)

const recentPayments = 10

// RegisterDashboardRoutes wires the aggregate view of payments and balances.
func RegisterDashboardRoutes(r fiber.Router, svc *payments.Service, l ledger.Ledger) {
	r.Get("/dashboard", func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		all, err := svc.List(ctx)
		if err != nil {
			return payments.HTTPError(err)
		}
		balances, err := l.Balances(ctx)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		byState, err := svc.CountByState(ctx)
		if err != nil {
			return payments.HTTPError(err)
		}
		counts := make(map[payments.State]int, len(payments.States))
		total := 0
		for _, s := range payments.States {
			counts[s] = byState[s]
			total += byState[s]
		}
		recent := all
		if len(recent) > recentPayments {
			recent = recent[:recentPayments]
		}

		return c.JSON(fiber.Map{
			"total_payments":     total,
			"settled_payments":   counts[payments.StateSettled],
			"confirmed_payments": counts[payments.StateConfirmed],
			"rejected_payments":  counts[payments.StateRejected],
			"returned_payments":  counts[payments.StateReturned],
			"by_status":          counts,
			"recent_payments":    payments.Views(recent),
			"balances":           ledger.BalanceViews(balances),
		})
	})
}
