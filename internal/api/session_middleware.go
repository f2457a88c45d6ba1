// session_middleware.go - Binds each request to a browser session
package api

import (
	"net/http"

	"github.com/fin-ner/wizard/internal/session"
	"github.com/labstack/echo/v4"
)

const (
	// SessionCookieName is the cookie carrying the session id
	SessionCookieName = "fin_session"
	// SessionHeader overrides the cookie for non-browser clients
	SessionHeader = "X-Session-ID"

	sessionContextKey = "session"
)

// SessionMiddleware resolves the caller's session, creating one when the
// request carries no usable id, and stores it on the echo context.
func SessionMiddleware(sessions SessionManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(SessionHeader)
			if id == "" {
				if cookie, err := c.Cookie(SessionCookieName); err == nil {
					id = cookie.Value
				}
			}

			state, created, err := sessions.Ensure(id)
			if err != nil {
				return wizardError(err)
			}
			if created || state.ID != id {
				c.SetCookie(&http.Cookie{
					Name:     SessionCookieName,
					Value:    state.ID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Response().Header().Set(SessionHeader, state.ID)
			sessions.TouchSession(state.ID)

			c.Set(sessionContextKey, state)
			return next(c)
		}
	}
}

// sessionFrom returns the session bound by SessionMiddleware
func sessionFrom(c echo.Context) (*session.State, error) {
	state, ok := c.Get(sessionContextKey).(*session.State)
	if !ok || state == nil {
		return nil, NewInternalError("request has no session", nil)
	}
	return state, nil
}
