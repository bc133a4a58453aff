package httpapi

import (
	"net/http"

	"llm_console/internal/auth"
	"llm_console/internal/web"
)

func (d *Dependencies) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := d.Sessions.Operator(r); ok {
		http.Redirect(w, r, settingsPath, http.StatusSeeOther)
		return
	}
	d.renderLogin(w, r, http.StatusOK, d.Flash.Pop(w, r))
}

// handleLogin checks the submitted password against ADMIN_PASSWORD_HASH.
func (d *Dependencies) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !d.Sessions.Enabled() {
		http.Redirect(w, r, settingsPath, http.StatusSeeOther)
		return
	}

	ok, err := auth.VerifyPasswordArgon2(r.PostFormValue("password"), d.Config.AdminPasswordHash)
	if err != nil {
		d.Logger.Error("operator password hash is invalid", "error", err)
		d.renderLogin(w, r, http.StatusInternalServerError, &Message{Type: "danger", Text: "Login is misconfigured."})
		return
	}
	if !ok {
		d.Logger.Warn("failed operator login", "remote", r.RemoteAddr)
		d.renderLogin(w, r, http.StatusUnauthorized, &Message{Type: "danger", Text: "Invalid password."})
		return
	}

	if err := d.Sessions.Issue(w); err != nil {
		d.Logger.Error("error issuing session", "error", err)
		d.renderLogin(w, r, http.StatusInternalServerError, &Message{Type: "danger", Text: "Could not start a session."})
		return
	}
	d.Logger.Info("operator logged in", "remote", r.RemoteAddr)
	http.Redirect(w, r, settingsPath, http.StatusSeeOther)
}

func (d *Dependencies) handleLogout(w http.ResponseWriter, r *http.Request) {
	d.Sessions.Clear(w)
	d.Flash.Set(w, Message{Type: "info", Text: "You have been logged out."})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (d *Dependencies) renderLogin(w http.ResponseWriter, r *http.Request, status int, flash *Message) {
	d.render(w, status, web.PageLogin, pageData{
		Title:          "Sign in",
		AuthEnabled:    d.Sessions.Enabled(),
		PollIntervalMs: d.Config.Status.PollInterval.Milliseconds(),
		Flash:          flash,
	})
}
