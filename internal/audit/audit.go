// Package audit appends immutable activity records for document operations.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/model"
)

// ErrUnknownAction rejects actions outside the closed enum.
var ErrUnknownAction = errors.New("unknown activity action")

// Recorder persists activity records. Implementations assign the ID.
type Recorder interface {
	AppendActivity(ctx context.Context, a *model.Activity) error
}

// Logger writes one record per audited action.
type Logger struct {
	rec    Recorder
	logger *zap.Logger
	now    func() time.Time
}

// NewLogger constructs a Logger.
func NewLogger(rec Recorder, logger *zap.Logger) *Logger {
	return &Logger{rec: rec, logger: logger.Named("audit"), now: time.Now}
}

// Log records that actor performed action on doc. The actor's department is
// copied onto the record so later department moves do not rewrite history.
// A nil actor produces a system record.
func (l *Logger) Log(ctx context.Context, doc *model.Document, actor *model.User, action model.Action) (*model.Activity, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if doc == nil {
		return nil, errors.New("audit: nil document")
	}
	a := &model.Activity{
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		Action:        action,
		Timestamp:     l.now().UTC(),
	}
	if actor != nil {
		id := actor.ID
		a.UserID = &id
		a.Username = actor.Username
		if actor.DepartmentID != nil {
			dept := *actor.DepartmentID
			a.DepartmentID = &dept
			a.DepartmentName = actor.DepartmentName
		}
	}
	if err := l.rec.AppendActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("append activity: %w", err)
	}
	l.logger.Info("document activity",
		zap.Int64("activity_id", a.ID),
		zap.Int64("document_id", a.DocumentID),
		zap.String("user", a.Actor()),
		zap.String("action", string(a.Action)))
	return a, nil
}
