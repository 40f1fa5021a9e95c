package handlerUtil

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"VisionStream/pkg/response"
)

func TestFiberErrorHandlerMapsErrors(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New(fiber.Config{ErrorHandler: New(logger).FiberErrorHandler})
	app.Get("/coded", func(c *fiber.Ctx) error {
		return response.NewError(http.StatusUpgradeRequired, "websocket upgrade required")
	})
	app.Get("/fiber", func(c *fiber.Ctx) error {
		return fiber.ErrForbidden
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return errors.New("disk on fire")
	})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{path: "/coded", status: http.StatusUpgradeRequired, body: "websocket upgrade required"},
		{path: "/fiber", status: http.StatusForbidden, body: "Forbidden"},
		{path: "/plain", status: http.StatusInternalServerError, body: "An unexpected error occurred"},
		{path: "/missing", status: http.StatusNotFound, body: "Cannot GET /missing"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, tt.path, nil))
			require.NoError(t, err)
			require.Equal(t, tt.status, resp.StatusCode)

			var got ErrorResponse
			require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&got))
			require.Equal(t, tt.body, got.Error)
		})
	}
}
