// Package api serves the JSON endpoints used by the dashboard and the
// document pages: security metrics, KPIs, department pickers, notifications
// and print requests.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
	"github.com/dharsanguruparan/QMSVault/internal/session"
)

// Store is the persistence the JSON endpoints need.
type Store interface {
	GetDocument(ctx context.Context, id int64) (*model.Document, error)
	ListDepartmentUsers(ctx context.Context, departmentID int64) ([]model.User, error)
	ListNotifications(ctx context.Context, recipientID int64, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, id, recipientID int64) error
	CreatePrintRequest(ctx context.Context, p *model.PrintRequest) error
	ListPrintRequests(ctx context.Context, status model.PrintStatus) ([]model.PrintRequest, error)
	DecidePrintRequest(ctx context.Context, id, handlerID int64, status model.PrintStatus, notes string) error
}

// Metrics produces the dashboard figures.
type Metrics interface {
	SecurityMetrics(ctx context.Context) (*analytics.SecurityMetrics, error)
	EnterpriseKPI(ctx context.Context, days int) (*analytics.KPI, error)
}

// Middleware wraps a handler, typically with session authentication.
type Middleware func(http.HandlerFunc) http.HandlerFunc

const notificationLimit = 50

// Handler exposes the JSON endpoints.
type Handler struct {
	store   Store
	metrics Metrics
	logger  *zap.Logger
}

// New constructs a Handler.
func New(store Store, metrics Metrics, logger *zap.Logger) *Handler {
	return &Handler{store: store, metrics: metrics, logger: logger.Named("api")}
}

// Register mounts every endpoint on mux behind auth.
func (h *Handler) Register(mux *http.ServeMux, auth Middleware) {
	mux.HandleFunc("GET /api/security-metrics/", auth(h.handleSecurityMetrics))
	mux.HandleFunc("GET /api/kpi/", auth(h.handleKPI))
	mux.HandleFunc("GET /documents/ajax/department-users/", auth(h.handleDepartmentUsers))
	mux.HandleFunc("GET /notifications/", auth(h.handleNotifications))
	mux.HandleFunc("POST /notifications/{id}/read/", auth(h.handleNotificationRead))
	mux.HandleFunc("POST /documents/print/{id}/", auth(h.handlePrintRequest))
	mux.HandleFunc("GET /print-requests/", auth(h.handlePrintRequests))
	mux.HandleFunc("POST /print-requests/{id}/approve/", auth(h.decide(model.PrintApproved)))
	mux.HandleFunc("POST /print-requests/{id}/reject/", auth(h.decide(model.PrintRejected)))
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) unauthorized(w http.ResponseWriter) {
	h.respondJSON(w, http.StatusForbidden, errorBody{Error: "Unauthorized"})
}

func (h *Handler) internal(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	h.respondJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal error"})
}

// manager returns the current user when they may manage documents, writing
// the 403 body otherwise.
func (h *Handler) manager(w http.ResponseWriter, r *http.Request) *model.User {
	u := session.UserFrom(r.Context())
	if !policy.CanManage(u) {
		h.unauthorized(w)
		return nil
	}
	return u
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handleSecurityMetrics(w http.ResponseWriter, r *http.Request) {
	if h.manager(w, r) == nil {
		return
	}
	m, err := h.metrics.SecurityMetrics(r.Context())
	if err != nil {
		h.internal(w, "security metrics", err)
		return
	}
	h.respondJSON(w, http.StatusOK, m)
}

func (h *Handler) handleKPI(w http.ResponseWriter, r *http.Request) {
	if h.manager(w, r) == nil {
		return
	}
	days := analytics.ParseRange(r.URL.Query().Get("range"))
	kpi, err := h.metrics.EnterpriseKPI(r.Context(), days)
	if err != nil {
		h.internal(w, "enterprise kpi", err)
		return
	}
	h.respondJSON(w, http.StatusOK, kpi)
}

type userOption struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (h *Handler) handleDepartmentUsers(w http.ResponseWriter, r *http.Request) {
	out := []userOption{}
	deptID, err := strconv.ParseInt(r.URL.Query().Get("department_id"), 10, 64)
	if err != nil || deptID <= 0 {
		h.respondJSON(w, http.StatusOK, out)
		return
	}
	users, err := h.store.ListDepartmentUsers(r.Context(), deptID)
	if err != nil {
		h.internal(w, "department users", err)
		return
	}
	for _, u := range users {
		out = append(out, userOption{ID: u.ID, Username: u.Username})
	}
	h.respondJSON(w, http.StatusOK, out)
}

type notificationList struct {
	Unread        int64                `json:"unread"`
	Notifications []model.Notification `json:"notifications"`
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	u := session.UserFrom(r.Context())
	notes, err := h.store.ListNotifications(r.Context(), u.ID, notificationLimit)
	if err != nil {
		h.internal(w, "list notifications", err)
		return
	}
	unread, err := h.store.CountUnread(r.Context(), u.ID)
	if err != nil {
		h.internal(w, "count unread", err)
		return
	}
	h.respondJSON(w, http.StatusOK, notificationList{Unread: unread, Notifications: notes})
}

func (h *Handler) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	u := session.UserFrom(r.Context())
	id, ok := pathID(r)
	if !ok {
		h.respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
		return
	}
	err := h.store.MarkNotificationRead(r.Context(), id, u.ID)
	if errors.Is(err, model.ErrNotFound) {
		h.respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
		return
	}
	if err != nil {
		h.internal(w, "mark notification", err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePrintRequest(w http.ResponseWriter, r *http.Request) {
	u := session.UserFrom(r.Context())
	id, ok := pathID(r)
	if !ok {
		h.respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
		return
	}
	doc, err := h.store.GetDocument(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		h.respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
		return
	}
	if err != nil {
		h.internal(w, "load document", err)
		return
	}
	if !policy.CanView(u, doc).Allowed() {
		h.unauthorized(w)
		return
	}
	p := &model.PrintRequest{UserID: u.ID, DocumentID: doc.ID, Reason: r.FormValue("reason")}
	if err := h.store.CreatePrintRequest(r.Context(), p); err != nil {
		h.internal(w, "create print request", err)
		return
	}
	p.Username = u.Username
	p.DocumentTitle = doc.Title
	h.logger.Info("print requested", zap.Int64("document_id", doc.ID), zap.String("user", u.Username))
	h.respondJSON(w, http.StatusCreated, p)
}

func (h *Handler) handlePrintRequests(w http.ResponseWriter, r *http.Request) {
	if h.manager(w, r) == nil {
		return
	}
	status := model.PrintStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = model.PrintPending
	case "all":
		status = ""
	case model.PrintPending, model.PrintApproved, model.PrintRejected:
	default:
		h.respondJSON(w, http.StatusBadRequest, errorBody{Error: "Unknown status"})
		return
	}
	list, err := h.store.ListPrintRequests(r.Context(), status)
	if err != nil {
		h.internal(w, "list print requests", err)
		return
	}
	h.respondJSON(w, http.StatusOK, list)
}

func (h *Handler) decide(status model.PrintStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := h.manager(w, r)
		if u == nil {
			return
		}
		id, ok := pathID(r)
		if !ok {
			h.respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
			return
		}
		err := h.store.DecidePrintRequest(r.Context(), id, u.ID, status, r.FormValue("notes"))
		switch {
		case errors.Is(err, model.ErrNotFound):
			h.respondJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
			return
		case errors.Is(err, model.ErrConflict):
			h.respondJSON(w, http.StatusConflict, errorBody{Error: "Already decided"})
			return
		case err != nil:
			h.internal(w, "decide print request", err)
			return
		}
		h.logger.Info("print request decided",
			zap.Int64("print_request_id", id),
			zap.String("status", string(status)),
			zap.String("by", u.Username))
		h.respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
	}
}
