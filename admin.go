package gitcms

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/gitcms/tokenexchange"
)

type sessionBody struct {
	Authenticated bool   `json:"authenticated"`
	CSRFToken     string `json:"csrfToken"`
	Repo          string `json:"repo"`
	Branch        string `json:"branch"`
}

// handleSession tells the editor whether it is signed in and hands it
// the CSRF token required by every other admin call.
func (a *App) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionBody{
		Authenticated: IsAdmin(c),
		CSRFToken:     CsrfToken(c),
		Repo:          a.Config.Repo.Owner + "/" + a.Config.Repo.Name,
		Branch:        a.Config.Repo.Branch,
	})
}

// handleAdminLogin exchanges an identity-provider access token for a Git
// Gateway token and keeps the latter in the session.
func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.JSON(http.StatusTooManyRequests, errorBody{Error: "Too many login attempts. Try again later."})
	}
	var req tokenexchange.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "Invalid JSON body"})
	}
	token, err := a.Exchange.Exchange(c.Request().Context(), req.SupabaseToken)
	if err != nil {
		a.loginLimiter.Record(ip)
		status, body := tokenexchange.StatusOf(err, a.logger)
		a.logger.Warn("sign-in rejected", "ip", ip, "status", status, "error", body.Error)
		return c.JSON(status, body)
	}
	if err := setAdminSession(c, token); err != nil {
		return err
	}
	a.logger.Info("editor signed in", "ip", ip)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
