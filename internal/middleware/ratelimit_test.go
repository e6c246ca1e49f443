package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/npp_sim/internal/logging"
)

func TestRateLimitRejectsAboveLimit(t *testing.T) {
	cache, _ := newRedis(t)
	app := fiber.New()
	app.Post("/payments", RateLimit(cache, "initiate", 3, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/payments", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/payments", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-RateLimit-Remaining") != "0" || resp.Header.Get(fiber.HeaderRetryAfter) == "" {
		t.Fatalf("missing rate limit headers: %v", resp.Header)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	cache, mr := newRedis(t)
	mr.Close()
	app := fiber.New()
	app.Post("/payments", RateLimit(cache, "initiate", 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/payments", nil), -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("expected requests through while Redis is down, got %d", resp.StatusCode)
		}
	}

	open := fiber.New()
	open.Post("/payments", RateLimit(nil, "initiate", 1, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusCreated)
	})
	for i := 0; i < 3; i++ {
		resp, _ := open.Test(httptest.NewRequest(fiber.MethodPost, "/payments", nil))
		if resp.StatusCode != fiber.StatusCreated {
			t.Fatalf("nil cache must disable limiting, got %d", resp.StatusCode)
		}
	}
}
