package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navigator/internal/core/navigate"
	"navigator/internal/core/sites"
	"navigator/internal/health"
)

func TestRegisterRoutes(t *testing.T) {
	catalog, err := sites.Load("duckduckgo")
	require.NoError(t, err)

	app := fiber.New()
	hh := RegisterRoutes(app, Dependencies{
		Navigate: navigate.NewService(navigate.Deps{Catalog: catalog}),
		Checks:   map[string]health.Check{"redis": func(context.Context) error { return nil }},
	})
	hh.SetReady()

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/health", http.StatusOK},
		{http.MethodGet, "/v1/plan?query=widget&sites=flipkart", http.StatusOK},
		{http.MethodGet, "/v1/plan", http.StatusBadRequest},
		{http.MethodGet, "/v1/unknown", http.StatusNotFound},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, tc.path, nil)
		require.NoError(t, err)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode, tc.path)
	}
}
