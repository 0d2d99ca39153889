package middleware

import (
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

type staticValidator map[string]int64

func (v staticValidator) Validate(token string) (int64, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid token")
}

func newAuthApp() *fiber.App {
	app := fiber.New()
	auth := Auth(staticValidator{"good": 42})
	echo := func(c *fiber.Ctx) error {
		return c.SendString(strconv.FormatInt(GetUserID(c), 10))
	}
	app.Get("/me", auth, echo)
	app.Get("/ws/:token", auth, echo)
	return app
}

func TestAuthTokenSources(t *testing.T) {
	app := newAuthApp()

	tests := []struct {
		name   string
		path   string
		header map[string]string
		status int
	}{
		{"path param", "/ws/good", nil, fiber.StatusOK},
		{"query", "/me?token=good", nil, fiber.StatusOK},
		{"cookie", "/me", map[string]string{"Cookie": "token=good"}, fiber.StatusOK},
		{"bearer", "/me", map[string]string{"Authorization": "Bearer good"}, fiber.StatusOK},
		{"missing", "/me", nil, fiber.StatusUnauthorized},
		{"invalid", "/me?token=bad", nil, fiber.StatusUnauthorized},
		{"invalid path token", "/ws/bad", nil, fiber.StatusUnauthorized},
		{"basic auth is not a token", "/me", map[string]string{"Authorization": "Basic Zm9vOmJhcg=="}, fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestGetUserIDWithoutAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if id := GetUserID(c); id != 0 {
			t.Errorf("GetUserID() = %d, want 0", id)
		}
		return nil
	})

	if _, err := app.Test(httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
}

func TestRateLimiterBlocksAfterMax(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimiter(2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}
