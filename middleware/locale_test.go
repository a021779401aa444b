package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"meu_perito_go/config"
	"meu_perito_go/services/i18n"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocaleMiddleware(t *testing.T) {
	catalog, err := i18n.Load(zerolog.Nop())
	require.NoError(t, err)

	e := echo.New()
	cfg := &config.Config{Environment: "production"}

	run := func(req *http.Request) (string, string, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		var fromCtx string
		h := Locale(cfg, catalog)(func(c echo.Context) error {
			fromCtx = i18n.GetLocale(c.Request().Context())
			return nil
		})
		require.NoError(t, h(c))
		return GetLocale(c), fromCtx, rec
	}

	t.Run("query param sets cookie", func(t *testing.T) {
		lang, fromCtx, rec := run(httptest.NewRequest(http.MethodGet, "/?lang=en", nil))
		assert.Equal(t, "en", lang)
		assert.Equal(t, "en", fromCtx)

		cookie := rec.Result().Cookies()
		require.Len(t, cookie, 1)
		assert.Equal(t, "en", cookie[0].Value)
		assert.True(t, cookie[0].Secure)
	})

	t.Run("unsupported query falls back to default", func(t *testing.T) {
		lang, _, _ := run(httptest.NewRequest(http.MethodGet, "/?lang=es", nil))
		assert.Equal(t, i18n.DefaultLang, lang)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "lang", Value: "en"})
		lang, _, _ := run(req)
		assert.Equal(t, "en", lang)
	})

	t.Run("accept-language header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", "en-GB,en;q=0.8")
		lang, _, _ := run(req)
		assert.Equal(t, "en", lang)
	})

	t.Run("default", func(t *testing.T) {
		lang, fromCtx, _ := run(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, i18n.DefaultLang, lang)
		assert.Equal(t, i18n.DefaultLang, fromCtx)
	})
}
