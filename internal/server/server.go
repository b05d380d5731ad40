// Package server wires together HTTP routes, dependency injection, and the
// document workflows: sign-in, listing, viewing, upload, edit, delete and the
// quality dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/api"
	"github.com/dharsanguruparan/QMSVault/internal/audit"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
	"github.com/dharsanguruparan/QMSVault/internal/queue"
	"github.com/dharsanguruparan/QMSVault/internal/session"
	"github.com/dharsanguruparan/QMSVault/internal/signing"
)

// Store is everything the web handlers read and write. The Postgres
// repository and the memory store both satisfy it.
type Store interface {
	api.Store
	audit.Recorder
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	GetDepartment(ctx context.Context, id int64) (*model.Department, error)
	ListDepartments(ctx context.Context, activeOnly bool) ([]model.Department, error)
	ListDocuments(ctx context.Context, f policy.ListFilter) ([]model.Document, error)
	CreateDocument(ctx context.Context, doc *model.Document) error
	UpdateDocument(ctx context.Context, doc *model.Document) error
	DeleteDocument(ctx context.Context, id int64) error
	ListActivities(ctx context.Context, offset, limit int) ([]model.Activity, error)
	CountActivities(ctx context.Context, f analytics.ActivityFilter) (int64, error)
}

// Blobs stores the uploaded PDF files.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Deps groups the collaborators a Server needs.
type Deps struct {
	Store     Store
	Blobs     Blobs
	Analytics *analytics.Aggregator
	Tasks     queue.Enqueuer
	Sessions  *session.Manager
	Signer    *signing.Signer
	Logger    *zap.Logger
}

// Server hosts the HTTP handlers for QMSVault.
type Server struct {
	cfg       *config.Config
	store     Store
	blobs     Blobs
	audit     *audit.Logger
	analytics *analytics.Aggregator
	tasks     queue.Enqueuer
	sessions  *session.Manager
	signer    *signing.Signer
	logger    *zap.Logger
	pages     map[string]*template.Template
	limiter   *loginLimiter
	handler   http.Handler
}

// New creates a configured server.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	logger := deps.Logger.Named("http")
	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		blobs:     deps.Blobs,
		audit:     audit.NewLogger(deps.Store, deps.Logger),
		analytics: deps.Analytics,
		tasks:     deps.Tasks,
		sessions:  deps.Sessions,
		signer:    deps.Signer,
		logger:    logger,
		pages:     pages,
		limiter:   newLoginLimiter(cfg.LoginRate, cfg.LoginBurst),
	}
	s.handler = s.requestLogger(s.recoverer(s.routes()))
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.logger.Info("listening", zap.String("address", s.cfg.Address))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /login/", s.handleLoginPage)
	mux.HandleFunc("POST /login/", s.handleLogin)
	mux.HandleFunc("POST /logout/", s.authed(s.handleLogout))
	mux.HandleFunc("GET /{$}", s.authed(s.handleHome))

	mux.HandleFunc("GET /documents/{$}", s.authed(s.handleDocumentList))
	mux.HandleFunc("GET /documents/view/{id}/", s.authed(s.handleDocumentView))
	mux.HandleFunc("GET /documents/file/{id}/", s.handleDocumentFile)
	mux.HandleFunc("GET /documents/create/", s.authed(s.manage("You are not allowed to upload documents.", s.handleCreatePage)))
	mux.HandleFunc("POST /documents/create/", s.authed(s.manage("You are not allowed to upload documents.", s.handleCreate)))
	mux.HandleFunc("GET /documents/edit/{id}/", s.authed(s.manage("You are not allowed to edit documents.", s.handleEditPage)))
	mux.HandleFunc("POST /documents/edit/{id}/", s.authed(s.manage("You are not allowed to edit documents.", s.handleEdit)))
	mux.HandleFunc("GET /documents/delete/{id}/", s.authed(s.manage("You are not allowed to delete documents.", s.handleDeletePage)))
	mux.HandleFunc("POST /documents/delete/{id}/", s.authed(s.manage("You are not allowed to delete documents.", s.handleDelete)))

	mux.HandleFunc("GET /quality/{$}", s.authed(s.manage("Access denied. Quality group only.", s.handleQuality)))

	api.New(s.store, s.analytics, s.logger).Register(mux, s.authed)
	return mux
}

// manage gates a handler on document management rights, redirecting with a
// flash message otherwise.
func (s *Server) manage(denied string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !policy.CanManage(session.UserFrom(r.Context())) {
			redirectWithFlash(w, r, session.FlashError, denied, "/documents/")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg, zap.Error(err), zap.String("request_id", requestIDFrom(r.Context())))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
