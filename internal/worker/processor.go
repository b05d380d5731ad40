// Package worker executes background tasks, either from the asynq worker
// binary or from the in-process pool.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/model"
	pdfutil "github.com/dharsanguruparan/QMSVault/internal/pdf"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
	"github.com/dharsanguruparan/QMSVault/internal/queue"
)

// Store is the persistence the worker needs.
type Store interface {
	GetDocument(ctx context.Context, id int64) (*model.Document, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListDepartmentUsers(ctx context.Context, departmentID int64) ([]model.User, error)
	CreateNotifications(ctx context.Context, batch []model.Notification) error
	SetPageCount(ctx context.Context, id int64, pages int) error
}

// Blobs opens stored PDFs.
type Blobs interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store  Store
	blobs  Blobs
	logger *zap.Logger
	pages  func(io.Reader) (int, error)
}

// NewProcessor constructs a worker processor.
func NewProcessor(store Store, blobs Blobs, logger *zap.Logger) *Processor {
	return &Processor{
		store:  store,
		blobs:  blobs,
		logger: logger.Named("worker"),
		pages:  pdfutil.PageCountFromReader,
	}
}

// Handler registers the task handlers for the asynq server.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.NotifyTask, p.handleNotify)
	mux.HandleFunc(queue.InspectTask, p.handleInspect)
	return mux
}

func (p *Processor) handleNotify(ctx context.Context, task *asynq.Task) error {
	var payload queue.NotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	return p.Notify(ctx, payload)
}

func (p *Processor) handleInspect(ctx context.Context, task *asynq.Task) error {
	var payload queue.InspectPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry)
	}
	return p.Inspect(ctx, payload)
}

// Notify writes one notification per audience member: explicit readers and
// active members of the owning department who pass the view rules, never the
// actor.
func (p *Processor) Notify(ctx context.Context, payload queue.NotifyPayload) error {
	doc, err := p.store.GetDocument(ctx, payload.DocumentID)
	if errors.Is(err, model.ErrNotFound) {
		p.logger.Info("document gone before notify", zap.Int64("document_id", payload.DocumentID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	recipients, err := p.audience(ctx, doc, payload)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		return nil
	}
	msg := Message(doc, payload.Type)
	batch := make([]model.Notification, 0, len(recipients))
	for _, u := range recipients {
		batch = append(batch, model.Notification{
			RecipientID: u.ID,
			DocumentID:  doc.ID,
			Type:        payload.Type,
			Message:     msg,
		})
	}
	if err := p.store.CreateNotifications(ctx, batch); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	p.logger.Info("notifications sent",
		zap.Int64("document_id", doc.ID),
		zap.String("type", string(payload.Type)),
		zap.Int("recipients", len(batch)))
	return nil
}

// audience collects the explicit readers and active department members who
// may view the document now or could view it before the change. The actor
// is never included.
func (p *Processor) audience(ctx context.Context, doc *model.Document, payload queue.NotifyPayload) ([]*model.User, error) {
	members, err := p.store.ListDepartmentUsers(ctx, doc.DepartmentID)
	if err != nil {
		return nil, fmt.Errorf("list department users: %w", err)
	}
	candidates := make([]*model.User, 0, len(members)+len(doc.ReaderIDs))
	for i := range members {
		candidates = append(candidates, &members[i])
	}
	for _, id := range doc.ReaderIDs {
		u, err := p.store.GetUser(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load reader %d: %w", id, err)
		}
		candidates = append(candidates, u)
	}

	previous := doc
	if payload.PreviousStatus != "" && payload.PreviousStatus != doc.Status {
		previous = doc.Clone()
		previous.Status = payload.PreviousStatus
	}
	seen := make(map[int64]bool, len(candidates))
	out := make([]*model.User, 0, len(candidates))
	for _, u := range candidates {
		if seen[u.ID] || !u.IsActive || (payload.ActorID != nil && *payload.ActorID == u.ID) {
			continue
		}
		seen[u.ID] = true
		if policy.CanView(u, doc).Allowed() || policy.CanView(u, previous).Allowed() {
			out = append(out, u)
		}
	}
	return out, nil
}

// Message renders the notification text for a change.
func Message(doc *model.Document, t model.NotificationType) string {
	switch t {
	case model.NotifyDisabled:
		if doc.DisabledReason != "" {
			return fmt.Sprintf("%q was disabled: %s", doc.Title, doc.DisabledReason)
		}
		return fmt.Sprintf("%q was disabled", doc.Title)
	case model.NotifyReactivated:
		return fmt.Sprintf("%q is available again", doc.Title)
	}
	return fmt.Sprintf("%q was updated", doc.Title)
}

// Inspect counts the pages of a stored PDF and records them on the document.
func (p *Processor) Inspect(ctx context.Context, payload queue.InspectPayload) error {
	rc, err := p.blobs.Open(ctx, payload.ObjectKey)
	if errors.Is(err, model.ErrNotFound) {
		p.logger.Warn("object gone before inspect", zap.String("object_key", payload.ObjectKey))
		return nil
	}
	if err != nil {
		return fmt.Errorf("open object: %w", err)
	}
	defer rc.Close()
	pages, err := p.pages(rc)
	if err != nil {
		p.logger.Warn("unreadable pdf", zap.Int64("document_id", payload.DocumentID), zap.Error(err))
		return fmt.Errorf("count pages: %w: %w", err, asynq.SkipRetry)
	}
	if err := p.store.SetPageCount(ctx, payload.DocumentID, pages); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("set page count: %w", err)
	}
	p.logger.Info("document inspected", zap.Int64("document_id", payload.DocumentID), zap.Int("pages", pages))
	return nil
}
