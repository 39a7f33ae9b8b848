package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h *HealthHandler) (int, OverallHealth) {
	t.Helper()
	app := fiber.New()
	app.Get("/v1/health", h.HandleHealth)
	req, err := http.NewRequest(http.MethodGet, "/v1/health", nil)
	require.NoError(t, err)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body OverallHealth
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthReportsComponents(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"redis":        func(context.Context) error { return nil },
		"browser_pool": func(context.Context) error { return errors.New("all idle browsers disconnected") },
	})

	code, body := get(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "starting", body.OverallStatus)

	h.SetReady()
	code, body = get(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body.OverallStatus)
	assert.Equal(t, "ok", body.Components["redis"].Status)
	assert.Equal(t, "all idle browsers disconnected", body.Components["browser_pool"].Error)
}

func TestHealthyWhenReadyAndAllPass(t *testing.T) {
	h := NewHealthHandler(map[string]Check{"redis": func(context.Context) error { return nil }})
	h.SetReady()
	code, body := get(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.OverallStatus)
}
