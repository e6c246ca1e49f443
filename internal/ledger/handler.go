package ledger

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes settlement balances and the transfer history.
type Handler struct {
	ledger Ledger
}

// NewHandler constructs a settlement handler.
func NewHandler(l Ledger) *Handler {
	return &Handler{ledger: l}
}

type balanceView struct {
	ID              string `json:"id"`
	ParticipantName string `json:"participant_name"`
	ShortName       string `json:"short_name"`
	BIC             string `json:"bic"`
	BSB             string `json:"bsb,omitempty"`
	Balance         string `json:"esa_balance"`
}

type participantSummary struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
	BIC       string `json:"bic"`
}

type entryView struct {
	ID                 string             `json:"id"`
	PaymentID          string             `json:"payment_id"`
	Kind               EntryKind          `json:"kind"`
	Amount             string             `json:"amount"`
	DebitBalanceAfter  string             `json:"debit_balance_after"`
	CreditBalanceAfter string             `json:"credit_balance_after"`
	SettledAt          time.Time          `json:"settled_at"`
	DebitParticipant   participantSummary `json:"debit_participant"`
	CreditParticipant  participantSummary `json:"credit_participant"`
}

// BalanceViews converts participants into their JSON representation.
func BalanceViews(ps []Participant) []any {
	out := make([]any, 0, len(ps))
	for _, p := range ps {
		out = append(out, balanceView{
			ID:              p.ID,
			ParticipantName: p.Name,
			ShortName:       p.ShortName,
			BIC:             p.BIC,
			BSB:             p.Routing,
			Balance:         p.Balance.StringFixed(2),
		})
	}
	return out
}

// Balances lists every participant's settlement balance.
func (h *Handler) Balances(c *fiber.Ctx) error {
	ps, err := h.ledger.Balances(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(BalanceViews(ps))
}

// Transactions lists the settlement history, most recent first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	ctx := c.UserContext()
	ps, err := h.ledger.Balances(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	byID := make(map[string]participantSummary, len(ps))
	for _, p := range ps {
		byID[p.ID] = participantSummary{Name: p.Name, ShortName: p.ShortName, BIC: p.BIC}
	}

	entries, err := h.ledger.Entries(ctx)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{
			ID:                 e.ID,
			PaymentID:          e.PaymentID,
			Kind:               e.Kind,
			Amount:             e.Amount.StringFixed(2),
			DebitBalanceAfter:  e.DebitBalanceAfter.StringFixed(2),
			CreditBalanceAfter: e.CreditBalanceAfter.StringFixed(2),
			SettledAt:          e.CreatedAt,
			DebitParticipant:   byID[e.DebitParticipantID],
			CreditParticipant:  byID[e.CreditParticipantID],
		})
	}
	return c.JSON(out)
}
