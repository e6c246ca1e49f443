package directory

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes alias resolution endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a directory handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func resolutionView(r Resolution) fiber.Map {
	return fiber.Map{
		"payid_type":       r.Alias.Type,
		"payid_value":      r.Alias.Value,
		"display_name":     r.Alias.DisplayName,
		"bsb":              r.Account.Routing,
		"account_number":   r.Account.Number,
		"participant_name": r.Account.Agent.Name,
		"participant_bic":  r.Account.Agent.BIC,
	}
}

// Resolve looks up ?type=&value=.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	t, err := ParseAliasType(c.Query("type"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.ResolveAlias(c.UserContext(), t, c.Query("value"))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidAlias):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "PayID not found")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(resolutionView(res))
}

// List returns every alias.
func (h *Handler) List(c *fiber.Ctx) error {
	all, err := h.service.Aliases(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(all))
	for _, r := range all {
		out = append(out, resolutionView(r))
	}
	return c.JSON(out)
}
