package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
	"github.com/dharsanguruparan/QMSVault/internal/queue"
	"github.com/dharsanguruparan/QMSVault/internal/session"
	"github.com/dharsanguruparan/QMSVault/internal/signing"
)

const (
	msgAccessDenied = "Access denied. You are not allowed to view this document."
	msgUploaded     = "Document uploaded successfully."
	msgUpdated      = "Document updated successfully."
	msgDeleted      = "Document deleted successfully."
)

type listData struct {
	Documents   []model.Document
	Departments []model.Department
	Department  int64
	Privileged  bool
}

type viewData struct {
	Document  *model.Document
	FileURL   string
	Watermark string
}

type formData struct {
	Action      string
	Document    *model.Document
	Form        *documentForm
	Departments []model.Department
	Users       []model.User
	Statuses    []model.DocumentStatus
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// loadDocument resolves the {id} path value, answering 404 itself when the
// document does not exist.
func (s *Server) loadDocument(w http.ResponseWriter, r *http.Request) (*model.Document, bool) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	doc, err := s.store.GetDocument(r.Context(), id)
	if errors.Is(err, model.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, "load document", err)
		return nil, false
	}
	return doc, true
}

func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := session.UserFrom(ctx)
	data := listData{Privileged: identity.IsPrivileged(u)}
	var requested *int64
	if raw := r.URL.Query().Get("department"); raw != "" && data.Privileged {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			requested = &id
			data.Department = id
		}
	}
	docs, err := s.store.ListDocuments(ctx, policy.ListFilterFor(u, requested))
	if err != nil {
		s.serverError(w, r, "list documents", err)
		return
	}
	data.Documents = docs
	if data.Privileged {
		if data.Departments, err = s.store.ListDepartments(ctx, false); err != nil {
			s.serverError(w, r, "list departments", err)
			return
		}
	}
	s.render(w, r, http.StatusOK, "documents", "Documents", data)
}

func (s *Server) handleDocumentView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := session.UserFrom(ctx)
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	switch policy.CanView(u, doc) {
	case policy.Allow:
		if _, err := s.audit.Log(ctx, doc, u, model.ActionView); err != nil {
			s.serverError(w, r, "log view", err)
			return
		}
		watermark := u.Username
		if u.DepartmentName != "" {
			watermark += " / " + u.DepartmentName
		}
		s.render(w, r, http.StatusOK, "view", doc.Title, viewData{
			Document:  doc,
			FileURL:   s.signer.URL(fileURLPath(doc.ID), doc.ID),
			Watermark: watermark,
		})
	case policy.DenyDisabled:
		if _, err := s.audit.Log(ctx, doc, u, model.ActionAttemptDisabled); err != nil {
			s.serverError(w, r, "log disabled attempt", err)
			return
		}
		s.logger.Info("disabled document attempt",
			zap.Int64("document_id", doc.ID),
			zap.String("username", u.Username),
			zap.String("request_id", requestIDFrom(ctx)))
		msg := fmt.Sprintf("This document is disabled. Reason: %s", doc.DisabledReason)
		redirectWithFlash(w, r, session.FlashError, msg, "/documents/")
	default:
		redirectWithFlash(w, r, session.FlashError, msgAccessDenied, "/documents/")
	}
}

func fileURLPath(id int64) string {
	return fmt.Sprintf("/documents/file/%d/", id)
}

// handleDocumentFile streams the PDF behind a signed link. The signature is
// the only credential; the viewer page issues it after the view check.
func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	if err := s.signer.Verify(id, q.Get("expires"), q.Get("signature")); err != nil {
		if errors.Is(err, signing.ErrExpired) {
			s.logger.Debug("expired file link", zap.Int64("document_id", id))
		}
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	rc, err := s.blobs.Open(r.Context(), doc.ObjectKey)
	if errors.Is(err, model.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, "open document file", err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.FileName))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if doc.FileSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("stream document file", zap.Error(err), zap.Int64("document_id", doc.ID))
	}
}

func (s *Server) renderForm(w http.ResponseWriter, r *http.Request, status int, title string, data formData) {
	ctx := r.Context()
	var err error
	if data.Departments, err = s.store.ListDepartments(ctx, false); err != nil {
		s.serverError(w, r, "list departments", err)
		return
	}
	if data.Users, err = s.store.ListUsers(ctx); err != nil {
		s.serverError(w, r, "list users", err)
		return
	}
	data.Statuses = model.DocumentStatuses
	s.render(w, r, status, "form", title, data)
}

func (s *Server) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	s.renderForm(w, r, http.StatusOK, "Upload document", formData{Action: "/documents/create/", Form: newDocumentForm()})
}

// readValidForm reads and validates a submission. It returns false after
// answering the request itself for malformed bodies and internal errors.
func (s *Server) readValidForm(w http.ResponseWriter, r *http.Request, requireFile bool) (*documentForm, bool) {
	form, err := s.readDocumentForm(w, r)
	if errors.Is(err, errMalformedForm) {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, "read document form", err)
		return nil, false
	}
	if err := s.validate(r.Context(), form, requireFile); err != nil {
		form.close()
		s.serverError(w, r, "validate document form", err)
		return nil, false
	}
	return form, true
}

// storeUpload copies the validated temp file into blob storage under a fresh
// object key.
func (s *Server) storeUpload(ctx context.Context, tmp *tempUpload) (string, error) {
	key := fmt.Sprintf("documents/%s/%s", uuid.NewString(), tmp.filename)
	if _, err := tmp.f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	if err := s.blobs.Put(ctx, key, tmp.f, tmp.size, tmp.contentType); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return key, nil
}

func (f *documentForm) apply(doc *model.Document) {
	doc.Title = f.Title
	doc.Description = f.Description
	doc.DepartmentID = f.DepartmentID
	doc.Status = f.Status
	doc.DisabledReason = f.DisabledReason
	doc.ReaderIDs = f.ReaderIDs
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := session.UserFrom(ctx)
	form, ok := s.readValidForm(w, r, true)
	if !ok {
		return
	}
	defer form.close()
	if !form.Valid() {
		s.renderForm(w, r, http.StatusOK, "Upload document", formData{Action: "/documents/create/", Form: form})
		return
	}
	key, err := s.storeUpload(ctx, form.upload)
	if err != nil {
		s.serverError(w, r, "store upload", err)
		return
	}
	creator := u.ID
	doc := &model.Document{
		ObjectKey: key,
		FileName:  form.upload.filename,
		FileSize:  form.upload.size,
		CreatedBy: &creator,
	}
	form.apply(doc)
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		_ = s.blobs.Remove(ctx, key)
		if errors.Is(err, model.ErrConflict) {
			form.fail("readers", msgInvalidChoice)
			s.renderForm(w, r, http.StatusOK, "Upload document", formData{Action: "/documents/create/", Form: form})
			return
		}
		s.serverError(w, r, "create document", err)
		return
	}
	if _, err := s.audit.Log(ctx, doc, u, model.ActionCreate); err != nil {
		s.serverError(w, r, "log create", err)
		return
	}
	s.enqueueInspect(ctx, doc)
	redirectWithFlash(w, r, session.FlashSuccess, msgUploaded, "/documents/")
}

func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	s.renderForm(w, r, http.StatusOK, "Edit document", formData{
		Action:   fmt.Sprintf("/documents/edit/%d/", doc.ID),
		Document: doc,
		Form:     formFromDocument(doc),
	})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := session.UserFrom(ctx)
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	form, ok := s.readValidForm(w, r, false)
	if !ok {
		return
	}
	defer form.close()
	data := formData{Action: fmt.Sprintf("/documents/edit/%d/", doc.ID), Document: doc, Form: form}
	if !form.Valid() {
		s.renderForm(w, r, http.StatusOK, "Edit document", data)
		return
	}
	before := doc.Status
	oldKey := doc.ObjectKey
	updated := doc.Clone()
	form.apply(updated)
	updated.ObjectKey = ""
	if form.upload != nil {
		key, err := s.storeUpload(ctx, form.upload)
		if err != nil {
			s.serverError(w, r, "store upload", err)
			return
		}
		updated.ObjectKey = key
		updated.FileName = form.upload.filename
		updated.FileSize = form.upload.size
		updated.PageCount = nil
	}
	if err := s.store.UpdateDocument(ctx, updated); err != nil {
		if updated.ObjectKey != "" {
			_ = s.blobs.Remove(ctx, updated.ObjectKey)
		}
		switch {
		case errors.Is(err, model.ErrNotFound):
			http.NotFound(w, r)
		case errors.Is(err, model.ErrConflict):
			form.fail("readers", msgInvalidChoice)
			s.renderForm(w, r, http.StatusOK, "Edit document", data)
		default:
			s.serverError(w, r, "update document", err)
		}
		return
	}
	if _, err := s.audit.Log(ctx, updated, u, model.ActionEdit); err != nil {
		s.serverError(w, r, "log edit", err)
		return
	}
	if updated.ObjectKey != "" {
		if err := s.blobs.Remove(ctx, oldKey); err != nil && !errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("remove replaced file", zap.Error(err), zap.String("object_key", oldKey))
		}
		s.enqueueInspect(ctx, updated)
	}
	actor := u.ID
	payload := queue.NotifyPayload{
		DocumentID:     updated.ID,
		ActorID:        &actor,
		Type:           model.TransitionType(before, updated.Status),
		PreviousStatus: before,
	}
	if err := s.tasks.EnqueueNotify(ctx, payload); err != nil {
		s.logger.Warn("enqueue notify", zap.Error(err), zap.Int64("document_id", updated.ID))
	}
	redirectWithFlash(w, r, session.FlashSuccess, msgUpdated, "/documents/")
}

func (s *Server) enqueueInspect(ctx context.Context, doc *model.Document) {
	payload := queue.InspectPayload{DocumentID: doc.ID, ObjectKey: doc.ObjectKey}
	if err := s.tasks.EnqueueInspect(ctx, payload); err != nil {
		s.logger.Warn("enqueue inspect", zap.Error(err), zap.Int64("document_id", doc.ID))
	}
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "delete", "Delete document", doc)
}

// handleDelete records the delete before removing the document, so the
// record is removed with it by the cascade.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u := session.UserFrom(ctx)
	doc, ok := s.loadDocument(w, r)
	if !ok {
		return
	}
	if _, err := s.audit.Log(ctx, doc, u, model.ActionDelete); err != nil {
		s.serverError(w, r, "log delete", err)
		return
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		s.serverError(w, r, "delete document", err)
		return
	}
	if err := s.blobs.Remove(ctx, doc.ObjectKey); err != nil && !errors.Is(err, model.ErrNotFound) {
		s.logger.Warn("remove document file", zap.Error(err), zap.String("object_key", doc.ObjectKey))
	}
	redirectWithFlash(w, r, session.FlashSuccess, msgDeleted, "/documents/")
}
