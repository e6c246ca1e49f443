package messages

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the stored message trail.
type Handler struct {
	synth *Synthesizer
}

// NewHandler constructs a message handler.
func NewHandler(synth *Synthesizer) *Handler {
	return &Handler{synth: synth}
}

type messageView struct {
	ID          string    `json:"id"`
	Type        Type      `json:"message_type"`
	MessageID   string    `json:"message_id"`
	Direction   Direction `json:"direction"`
	SenderBIC   string    `json:"sender_bic"`
	ReceiverBIC string    `json:"receiver_bic"`
	PaymentID   string    `json:"payment_id"`
	Fallback    bool      `json:"fallback"`
	Content     string    `json:"xml_content"`
	CreatedAt   time.Time `json:"created_at"`
}

// View converts a message into its JSON representation.
func View(m Message) any {
	return messageView{
		ID:          m.ID,
		Type:        m.Type,
		MessageID:   m.MessageID,
		Direction:   m.Direction,
		SenderBIC:   m.SenderBIC,
		ReceiverBIC: m.ReceiverBIC,
		PaymentID:   m.PaymentID,
		Fallback:    m.Fallback,
		Content:     m.Content,
		CreatedAt:   m.CreatedAt,
	}
}

// List returns all messages, newest first.
func (h *Handler) List(c *fiber.Ctx) error {
	msgs, err := h.synth.List(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, View(m))
	}
	return c.JSON(out)
}

// Get returns one message.
func (h *Handler) Get(c *fiber.Ctx) error {
	msg, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(View(msg))
}

// Raw returns the rendered message content as XML.
func (h *Handler) Raw(c *fiber.Ctx) error {
	msg, err := h.lookup(c)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.SendString(msg.Content)
}

func (h *Handler) lookup(c *fiber.Ctx) (Message, error) {
	msg, err := h.synth.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, fiber.NewError(http.StatusNotFound, "message not found")
		}
		return Message{}, fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return msg, nil
}
