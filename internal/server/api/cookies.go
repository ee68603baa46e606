package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"securesend/internal/server/session"
)

// guestSession decodes the guest cookie. A missing or unreadable cookie is
// treated as an empty session, never as an error.
func (h *Handler) guestSession(c echo.Context) *session.Guest {
	g := &session.Guest{}
	cookie, err := c.Cookie(session.GuestCookieName)
	if err != nil {
		return g
	}
	if h.sessions.Decode(cookie.Value, g) != nil {
		return &session.Guest{}
	}
	return g
}

func (h *Handler) saveGuestSession(c echo.Context, g *session.Guest) error {
	if g.IssuedAt.IsZero() {
		g.IssuedAt = time.Now().UTC()
	}
	value, err := h.sessions.Encode(g)
	if err != nil {
		return err
	}
	c.SetCookie(sessionCookie(session.GuestCookieName, value, int(h.sessions.TTL().Seconds())))
	return nil
}

// internalSession decodes the internal-user cookie, or returns nil when the
// request carries no valid login.
func (h *Handler) internalSession(c echo.Context) *session.Internal {
	cookie, err := c.Cookie(session.InternalCookieName)
	if err != nil {
		return nil
	}
	s := &session.Internal{}
	if h.sessions.Decode(cookie.Value, s) != nil {
		return nil
	}
	if time.Since(s.IssuedAt) > h.sessions.TTL() {
		return nil
	}
	return s
}

func (h *Handler) saveInternalSession(c echo.Context, s *session.Internal) error {
	s.IssuedAt = time.Now().UTC()
	value, err := h.sessions.Encode(s)
	if err != nil {
		return err
	}
	c.SetCookie(sessionCookie(session.InternalCookieName, value, int(h.sessions.TTL().Seconds())))
	return nil
}

func (h *Handler) clearInternalSession(c echo.Context) {
	c.SetCookie(sessionCookie(session.InternalCookieName, "", -1))
}

func sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
