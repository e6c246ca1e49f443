package payments

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"

	"github.com/congo-pay/npp_sim/internal/ledger"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type initiateRequest struct {
	Amount                decimal.Decimal `json:"amount"`
	PayIDType             string          `json:"payid_type"`
	PayIDValue            string          `json:"payid_value"`
	CreditorBSB           string          `json:"creditor_bsb"`
	CreditorAccountNumber string          `json:"creditor_account_number"`
	DebtorBSB             string          `json:"debtor_bsb"`
	DebtorAccountNumber   string          `json:"debtor_account_number"`
	RemittanceInfo        string          `json:"remittance_info"`
}

type paymentView struct {
	ID                    string    `json:"id"`
	CorrelationID         string    `json:"correlation_id"`
	EndToEndID            string    `json:"end_to_end_id"`
	Amount                string    `json:"amount"`
	Currency              string    `json:"currency"`
	Status                State     `json:"status"`
	RemittanceInfo        string    `json:"remittance_info,omitempty"`
	PayIDUsed             string    `json:"payid_used,omitempty"`
	RejectionReason       string    `json:"rejection_reason,omitempty"`
	DebtorAccountName     string    `json:"debtor_account_name"`
	DebtorBSB             string    `json:"debtor_bsb"`
	DebtorAccountNumber   string    `json:"debtor_account_number"`
	DebtorBankName        string    `json:"debtor_bank_name"`
	CreditorAccountName   string    `json:"creditor_account_name"`
	CreditorBSB           string    `json:"creditor_bsb"`
	CreditorAccountNumber string    `json:"creditor_account_number"`
	CreditorBankName      string    `json:"creditor_bank_name"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// View converts a payment into its JSON representation.
func View(p Payment) any {
	return paymentView{
		ID:                    p.ID,
		CorrelationID:         p.CorrelationID,
		EndToEndID:            p.EndToEndID,
		Amount:                p.Amount.StringFixed(2),
		Currency:              p.Currency,
		Status:                p.State,
		RemittanceInfo:        p.Remittance,
		PayIDUsed:             p.AliasUsed,
		RejectionReason:       p.RejectionReason,
		DebtorAccountName:     p.Debtor.OwnerName,
		DebtorBSB:             p.Debtor.Routing,
		DebtorAccountNumber:   p.Debtor.Number,
		DebtorBankName:        p.Debtor.Agent.Name,
		CreditorAccountName:   p.Creditor.OwnerName,
		CreditorBSB:           p.Creditor.Routing,
		CreditorAccountNumber: p.Creditor.Number,
		CreditorBankName:      p.Creditor.Agent.Name,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// Views converts a slice of payments.
func Views(ps []Payment) []any {
	out := make([]any, 0, len(ps))
	for _, p := range ps {
		out = append(out, View(p))
	}
	return out
}

// HTTPError maps service errors onto HTTP responses.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrStateConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

// Initiate submits a new payment.
func (h *Handler) Initiate(c *fiber.Ctx) error {
	var req initiateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	p, err := h.service.Initiate(c.UserContext(), InitiateInput{
		Amount:          req.Amount,
		DebtorRouting:   req.DebtorBSB,
		DebtorNumber:    req.DebtorAccountNumber,
		AliasType:       req.PayIDType,
		AliasValue:      req.PayIDValue,
		CreditorRouting: req.CreditorBSB,
		CreditorNumber:  req.CreditorAccountNumber,
		Remittance:      req.RemittanceInfo,
	})
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(View(p))
}

// List returns all payments, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	ps, err := h.service.List(c.UserContext())
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(Views(ps))
}

// Get returns one payment.
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(View(p))
}

// Return reverses a settled payment.
func (h *Handler) Return(c *fiber.Ctx) error {
	p, err := h.service.Return(c.UserContext(), c.Params("id"))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(View(p))
}

type statusData struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Events streams status updates as server-sent events until the payment reaches a
// final state, the subscription idles out, or the client goes away.
func (h *Handler) Events(c *fiber.Ctx) error {
	sub, err := h.service.Subscribe(c.UserContext(), c.Params("id"))
	if err != nil {
		return HTTPError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		for ev := range sub.Events() {
			data, err := json.Marshal(statusData{Status: ev.State, Message: ev.Message})
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
