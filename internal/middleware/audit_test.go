package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestAuditLogsRequestWithID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	app := fiber.New()
	app.Use(RequestID(), Audit(logger))
	app.Get("/payments/:id", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "payment not found")
	})

	req := httptest.NewRequest(fiber.MethodGet, "/payments/p-1", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get(requestIDHeader) != "req-42" {
		t.Fatalf("request id not echoed: %q", resp.Header.Get(requestIDHeader))
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &record); err != nil {
		t.Fatalf("decode log record %q: %v", buf.String(), err)
	}
	if record["level"] != "WARN" || record["status"] != float64(404) || record["request_id"] != "req-42" {
		t.Fatalf("unexpected record %v", record)
	}
	if record["route"] != "/payments/:id" || record["component"] != "http" {
		t.Fatalf("unexpected record %v", record)
	}
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(RequestIDFrom(c)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	id := resp.Header.Get(requestIDHeader)
	if len(id) != 36 {
		t.Fatalf("expected generated uuid, got %q", id)
	}
}
