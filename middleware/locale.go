package middleware

import (
	"net/http"
	"time"

	"meu_perito_go/config"
	"meu_perito_go/services/i18n"

	"github.com/labstack/echo/v4"
)

const localeCookie = "lang"

// Locale picks the response language.
// Priority:
// 1. Query param "lang" (sets cookie)
// 2. Cookie "lang"
// 3. Accept-Language header
// 4. Default (pt-BR)
func Locale(cfg *config.Config, catalog *i18n.Catalog) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			lang := c.QueryParam("lang")
			if lang != "" {
				if !catalog.Supported(lang) {
					lang = i18n.DefaultLang
				}
				SetLanguageCookie(c, cfg, lang)
			} else if cookie, err := c.Cookie(localeCookie); err == nil && catalog.Supported(cookie.Value) {
				lang = cookie.Value
			}

			if lang == "" {
				lang = catalog.Match(c.Request().Header.Get("Accept-Language"))
			}

			c.Set("locale", lang)
			c.SetRequest(c.Request().WithContext(i18n.WithLocale(c.Request().Context(), lang)))
			return next(c)
		}
	}
}

// SetLanguageCookie remembers the language for a year
func SetLanguageCookie(c echo.Context, cfg *config.Config, lang string) {
	c.SetCookie(&http.Cookie{
		Name:     localeCookie,
		Value:    lang,
		Expires:  time.Now().Add(24 * 365 * time.Hour),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   cfg.IsProduction(),
	})
}

// GetLocale returns the language chosen by Locale
func GetLocale(c echo.Context) string {
	if lang, ok := c.Get("locale").(string); ok {
		return lang
	}
	return i18n.DefaultLang
}
