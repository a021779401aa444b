package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"meu_perito_go/services"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActorMiddleware(t *testing.T) {
	e := echo.New()

	var seen services.Actor
	var found bool
	handler := Actor()(func(c echo.Context) error {
		seen, found = GetActor(c)
		return c.NoContent(http.StatusOK)
	})

	t.Run("reads proxy headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/cases", nil)
		req.Header.Set(HeaderActorID, " perito-1 ")
		req.Header.Set(HeaderActorRole, "Perito")
		c := e.NewContext(req, httptest.NewRecorder())

		require.NoError(t, handler(c))
		assert.True(t, found)
		assert.Equal(t, services.Actor{ID: "perito-1", Role: "perito"}, seen)
	})

	t.Run("anonymous reads pass", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/locations", nil)
		c := e.NewContext(req, httptest.NewRecorder())

		require.NoError(t, handler(c))
		assert.False(t, found)
	})

	t.Run("anonymous mutations are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/cases/1", nil)
		c := e.NewContext(req, httptest.NewRecorder())

		err := handler(c)
		he, ok := err.(*echo.HTTPError)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, he.Code)
	})
}
