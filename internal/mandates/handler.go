package mandates

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/npp_sim/internal/payments"
)

// Handler exposes mandate endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a mandate handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	CreditorBSB           string          `json:"creditor_bsb"`
	CreditorAccountNumber string          `json:"creditor_account_number"`
	DebtorBSB             string          `json:"debtor_bsb"`
	DebtorAccountNumber   string          `json:"debtor_account_number"`
	Description           string          `json:"description"`
	MaximumAmount         decimal.Decimal `json:"maximum_amount"`
	Frequency             string          `json:"frequency"`
}

type executeRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	RemittanceInfo string          `json:"remittance_info"`
}

type mandateView struct {
	ID                    string    `json:"id"`
	Description           string    `json:"description"`
	MaximumAmount         string    `json:"maximum_amount"`
	Frequency             string    `json:"frequency"`
	Status                State     `json:"status"`
	ValidFrom             string    `json:"valid_from"`
	ValidTo               string    `json:"valid_to"`
	CreditorAccountName   string    `json:"creditor_account_name"`
	CreditorBSB           string    `json:"creditor_bsb"`
	CreditorAccountNumber string    `json:"creditor_account_number"`
	DebtorAccountName     string    `json:"debtor_account_name"`
	DebtorBSB             string    `json:"debtor_bsb"`
	DebtorAccountNumber   string    `json:"debtor_account_number"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func view(m Mandate) mandateView {
	return mandateView{
		ID:                    m.ID,
		Description:           m.Description,
		MaximumAmount:         m.MaxAmount.StringFixed(2),
		Frequency:             m.Frequency,
		Status:                m.State,
		ValidFrom:             m.ValidFrom.Format(time.DateOnly),
		ValidTo:               m.ValidTo.Format(time.DateOnly),
		CreditorAccountName:   m.Creditor.OwnerName,
		CreditorBSB:           m.Creditor.Routing,
		CreditorAccountNumber: m.Creditor.Number,
		DebtorAccountName:     m.Debtor.OwnerName,
		DebtorBSB:             m.Debtor.Routing,
		DebtorAccountNumber:   m.Debtor.Number,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidState):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return payments.HTTPError(err)
	}
}

// Create registers a new PENDING mandate.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	m, err := h.service.Create(c.UserContext(), CreateInput{
		CreditorRouting: req.CreditorBSB,
		CreditorNumber:  req.CreditorAccountNumber,
		DebtorRouting:   req.DebtorBSB,
		DebtorNumber:    req.DebtorAccountNumber,
		Description:     req.Description,
		MaxAmount:       req.MaximumAmount,
		Frequency:       req.Frequency,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(view(m))
}

// List returns every mandate, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	all, err := h.service.List(c.UserContext())
	if err != nil {
		return httpError(err)
	}
	out := make([]mandateView, 0, len(all))
	for _, m := range all {
		out = append(out, view(m))
	}
	return c.JSON(out)
}

// Get returns one mandate.
func (h *Handler) Get(c *fiber.Ctx) error {
	m, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(view(m))
}

// Approve activates a PENDING mandate.
func (h *Handler) Approve(c *fiber.Ctx) error {
	m, err := h.service.Approve(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(view(m))
}

// Reject declines a PENDING mandate.
func (h *Handler) Reject(c *fiber.Ctx) error {
	m, err := h.service.Reject(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(view(m))
}

// Execute initiates a payment under an ACTIVE mandate.
func (h *Handler) Execute(c *fiber.Ctx) error {
	var req executeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.Execute(c.UserContext(), c.Params("id"), ExecuteInput{
		Amount:     req.Amount,
		Remittance: req.RemittanceInfo,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(payments.View(p))
}
