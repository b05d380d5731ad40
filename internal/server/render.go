package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
	"github.com/dharsanguruparan/QMSVault/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// page is the data every template receives.
type page struct {
	Title     string
	User      *model.User
	Role      identity.Role
	CanManage bool
	Unread    int64
	Flash     *session.Flash
	Data      any
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006 15:04")
	},
	"filesize": func(n int64) string {
		switch {
		case n >= 1<<20:
			return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
		case n >= 1<<10:
			return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
		}
		return fmt.Sprintf("%d B", n)
	},
	"deref": func(id *int64) int64 {
		if id == nil {
			return 0
		}
		return *id
	},
}

// parsePages builds one template set per page on top of the shared layout.
func parsePages() (map[string]*template.Template, error) {
	names, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		base := path.Base(name)
		if base == "layout.html" {
			continue
		}
		t, err := template.New(base).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", name)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", base, err)
		}
		pages[strings.TrimSuffix(base, ".html")] = t
	}
	return pages, nil
}

// render executes a page into a buffer first so a template error never
// leaves a half written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	t, ok := s.pages[name]
	if !ok {
		s.serverError(w, r, "render page", fmt.Errorf("unknown page %q", name))
		return
	}
	p := page{Title: title, Data: data}
	if u := session.UserFrom(r.Context()); u != nil {
		p.User = u
		p.Role = identity.RoleOf(u)
		p.CanManage = policy.CanManage(u)
		unread, err := s.store.CountUnread(r.Context(), u.ID)
		if err != nil {
			s.logger.Warn("count unread notifications", zap.Error(err), zap.Int64("user_id", u.ID))
		}
		p.Unread = unread
	}
	p.Flash = session.PopFlash(w, r)
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		s.serverError(w, r, "render page", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

// redirectWithFlash stores a message and sends the browser to target.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, level, message, target string) {
	session.SetFlash(w, level, message)
	http.Redirect(w, r, target, http.StatusFound)
}
