package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/session"
)

const (
	msgBadCredentials = "Please enter a correct username and password."
	msgNoGroup        = "Access denied. Your account is not assigned to an authorized group."
	msgThrottled      = "Too many login attempts. Please wait a moment and try again."
	msgLoggedOut      = "You have been logged out successfully."
)

type loginData struct {
	Username string
	Next     string
	Error    string
}

// landing is where a user goes after signing in.
func landing(u *model.User) string {
	if identity.IsPrivileged(u) {
		return "/quality/"
	}
	return "/documents/"
}

// safeNext only accepts local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if u, err := s.currentUser(r); err == nil {
		http.Redirect(w, r, landing(u), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "login", "Sign in", loginData{Next: safeNext(r.URL.Query().Get("next"))})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(clientIP(r)) {
		s.logger.Warn("login throttled", zap.String("remote_addr", clientIP(r)))
		s.render(w, r, http.StatusTooManyRequests, "login", "Sign in", loginData{Error: msgThrottled})
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	data := loginData{
		Username: strings.TrimSpace(r.PostForm.Get("username")),
		Next:     safeNext(r.PostForm.Get("next")),
	}
	u, err := s.store.GetUserByUsername(r.Context(), data.Username)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		s.serverError(w, r, "load user", err)
		return
	}
	if u == nil || !u.IsActive || !identity.CheckPassword(r.PostForm.Get("password"), u.PasswordHash) {
		data.Error = msgBadCredentials
		s.render(w, r, http.StatusOK, "login", "Sign in", data)
		return
	}
	if !identity.CanLogin(u) {
		s.logger.Info("login refused", zap.String("username", u.Username), zap.String("reason", "no authorized group"))
		redirectWithFlash(w, r, session.FlashError, msgNoGroup, "/login/")
		return
	}
	if err := s.sessions.Issue(w, u.ID); err != nil {
		s.serverError(w, r, "issue session", err)
		return
	}
	s.logger.Info("login", zap.String("username", u.Username), zap.Stringer("role", identity.RoleOf(u)))
	target := data.Next
	if target == "" {
		target = landing(u)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Clear(w)
	redirectWithFlash(w, r, session.FlashSuccess, msgLoggedOut, "/login/")
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, landing(session.UserFrom(r.Context())), http.StatusFound)
}
