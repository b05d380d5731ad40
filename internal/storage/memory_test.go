package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/policy"
)

type fixture struct {
	store    *MemoryStore
	dept     *model.Department
	quality  *model.User
	employee *model.User
	doc      *model.Document
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := NewMemoryStore()
	dept := &model.Department{Name: "Quality", IsActive: true}
	require.NoError(t, s.CreateDepartment(ctx, dept))
	q := &model.User{Username: "quinn", IsActive: true, DepartmentID: &dept.ID, Groups: []string{identity.GroupQuality}}
	require.NoError(t, s.CreateUser(ctx, q))
	e := &model.User{Username: "emma", IsActive: true, DepartmentID: &dept.ID, Groups: []string{identity.GroupEmployees}}
	require.NoError(t, s.CreateUser(ctx, e))
	doc := &model.Document{Title: "SOP-1", DepartmentID: dept.ID, Status: model.StatusActive, CreatedBy: &q.ID, ObjectKey: "k1", ReaderIDs: []int64{e.ID, e.ID}}
	require.NoError(t, s.CreateDocument(ctx, doc))
	return &fixture{store: s, dept: dept, quality: q, employee: e, doc: doc}
}

func TestCreateDocumentResolvesNames(t *testing.T) {
	f := newFixture(t)
	got, err := f.store.GetDocument(context.Background(), f.doc.ID)
	require.NoError(t, err)
	require.Equal(t, "Quality", got.DepartmentName)
	require.Equal(t, "quinn", got.CreatedByName)
	require.Equal(t, []int64{f.employee.ID}, got.ReaderIDs)

	got.ReaderIDs[0] = 999
	again, err := f.store.GetDocument(context.Background(), f.doc.ID)
	require.NoError(t, err)
	require.Equal(t, f.employee.ID, again.ReaderIDs[0])
}

func TestDuplicateNamesConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.store.CreateDepartment(ctx, &model.Department{Name: "Quality"})
	require.True(t, errors.Is(err, model.ErrConflict))
	err = f.store.CreateUser(ctx, &model.User{Username: "emma"})
	require.True(t, errors.Is(err, model.ErrConflict))
}

func TestDeleteDocumentCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AppendActivity(ctx, &model.Activity{DocumentID: f.doc.ID, UserID: &f.quality.ID, Action: model.ActionView}))
	require.NoError(t, f.store.CreateNotifications(ctx, []model.Notification{{RecipientID: f.employee.ID, DocumentID: f.doc.ID, Type: model.NotifyUpdated}}))
	require.NoError(t, f.store.CreatePrintRequest(ctx, &model.PrintRequest{UserID: f.employee.ID, DocumentID: f.doc.ID, Reason: "audit"}))

	require.NoError(t, f.store.DeleteDocument(ctx, f.doc.ID))

	_, err := f.store.GetDocument(ctx, f.doc.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
	n, err := f.store.CountActivities(ctx, analytics.ActivityFilter{})
	require.NoError(t, err)
	require.Zero(t, n)
	notes, err := f.store.ListNotifications(ctx, f.employee.ID, 0)
	require.NoError(t, err)
	require.Empty(t, notes)
	prints, err := f.store.ListPrintRequests(ctx, "")
	require.NoError(t, err)
	require.Empty(t, prints)
}

func TestDeleteUserKeepsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AppendActivity(ctx, &model.Activity{DocumentID: f.doc.ID, UserID: &f.employee.ID, Action: model.ActionAttemptDisabled}))

	require.NoError(t, f.store.DeleteUser(ctx, f.employee.ID))

	acts, err := f.store.ListActivities(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	require.Nil(t, acts[0].UserID)
	require.Equal(t, model.SystemActor, acts[0].Actor())

	users, err := f.store.AttemptsByUser(ctx, time.Time{}, 1, 0)
	require.NoError(t, err)
	require.Empty(t, users)
	docs, err := f.store.AttemptsByDocument(ctx, time.Time{}, 1, 0)
	require.NoError(t, err)
	require.Equal(t, []analytics.Count{{Key: "SOP-1", Label: "SOP-1", Total: 1}}, docs)

	doc, err := f.store.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Empty(t, doc.ReaderIDs)
}

func TestDeleteCreatorClearsCreatedBy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.DeleteUser(ctx, f.quality.ID))
	doc, err := f.store.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Nil(t, doc.CreatedBy)
	require.Empty(t, doc.CreatedByName)
}

func TestDocumentStateEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		status model.DocumentStatus
		reason string
	}{
		{"disabled without reason", model.StatusDisabled, ""},
		{"unknown status", "retired", "n/a"},
		{"empty status", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &model.Document{Title: "Bad", DepartmentID: f.dept.ID, Status: tt.status, DisabledReason: tt.reason}
			require.ErrorIs(t, f.store.CreateDocument(ctx, doc), model.ErrConflict)

			edit := f.doc.Clone()
			edit.Status = tt.status
			edit.DisabledReason = tt.reason
			require.ErrorIs(t, f.store.UpdateDocument(ctx, edit), model.ErrConflict)
		})
	}

	got, err := f.store.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, got.Status)

	edit := f.doc.Clone()
	edit.Status = model.StatusDisabled
	edit.DisabledReason = "superseded"
	require.NoError(t, f.store.UpdateDocument(ctx, edit))
}

func TestListDocumentsAppliesFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := &model.Document{Title: "Other", DepartmentID: f.dept.ID, Status: model.StatusArchived, CreatedBy: &f.employee.ID}
	require.NoError(t, f.store.CreateDocument(ctx, other))

	emp, err := f.store.GetUser(ctx, f.employee.ID)
	require.NoError(t, err)
	docs, err := f.store.ListDocuments(ctx, policy.ListFilterFor(emp, nil))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, f.doc.ID, docs[0].ID)

	q, err := f.store.GetUser(ctx, f.quality.ID)
	require.NoError(t, err)
	docs, err = f.store.ListDocuments(ctx, policy.ListFilterFor(q, nil))
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestUpdateDocumentKeepsFileWhenNotReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	later := time.Now().Add(time.Hour)
	f.store.SetClock(func() time.Time { return later })

	edit := f.doc.Clone()
	edit.ObjectKey = ""
	edit.Title = "SOP-1 rev B"
	require.NoError(t, f.store.UpdateDocument(ctx, edit))

	got, err := f.store.GetDocument(ctx, f.doc.ID)
	require.NoError(t, err)
	require.Equal(t, "SOP-1 rev B", got.Title)
	require.Equal(t, "k1", got.ObjectKey)
	require.True(t, got.UpdatedAt.Equal(later.UTC()))
	require.True(t, got.CreatedAt.Before(got.UpdatedAt))
}

func TestListActivitiesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, action := range []model.Action{model.ActionCreate, model.ActionView, model.ActionEdit} {
		a := &model.Activity{DocumentID: f.doc.ID, UserID: &f.quality.ID, Action: action, Timestamp: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, f.store.AppendActivity(ctx, a))
	}
	page, err := f.store.ListActivities(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, model.ActionView, page[0].Action)
	require.Equal(t, "SOP-1", page[0].DocumentTitle)
	require.Equal(t, "quinn", page[0].Username)

	empty, err := f.store.ListActivities(ctx, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestAppendActivityRequiresDocument(t *testing.T) {
	f := newFixture(t)
	err := f.store.AppendActivity(context.Background(), &model.Activity{DocumentID: 404, Action: model.ActionView})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestPrintRequestDecidedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := &model.PrintRequest{UserID: f.employee.ID, DocumentID: f.doc.ID, Reason: "training"}
	require.NoError(t, f.store.CreatePrintRequest(ctx, p))
	require.Equal(t, model.PrintPending, p.Status)

	require.NoError(t, f.store.DecidePrintRequest(ctx, p.ID, f.quality.ID, model.PrintApproved, "ok"))
	err := f.store.DecidePrintRequest(ctx, p.ID, f.quality.ID, model.PrintRejected, "")
	require.ErrorIs(t, err, model.ErrConflict)

	got, err := f.store.GetPrintRequest(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.PrintApproved, got.Status)
	require.Equal(t, "emma", got.Username)
	require.NotNil(t, got.HandledAt)
}

func TestNotificationsReadByOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	batch := []model.Notification{{RecipientID: f.employee.ID, DocumentID: f.doc.ID, Type: model.NotifyDisabled}}
	require.NoError(t, f.store.CreateNotifications(ctx, batch))

	require.ErrorIs(t, f.store.MarkNotificationRead(ctx, batch[0].ID, f.quality.ID), model.ErrNotFound)
	n, err := f.store.CountUnread(ctx, f.employee.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, f.store.MarkNotificationRead(ctx, batch[0].ID, f.employee.ID))
	n, err = f.store.CountUnread(ctx, f.employee.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestDepartmentUsersActiveOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gone := &model.User{Username: "alex", IsActive: false, DepartmentID: &f.dept.ID}
	require.NoError(t, f.store.CreateUser(ctx, gone))
	users, err := f.store.ListDepartmentUsers(ctx, f.dept.ID)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "emma", users[0].Username)
	require.Equal(t, "quinn", users[1].Username)
}

func TestMemoryBlobs(t *testing.T) {
	b := NewMemoryBlobs()
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "a.pdf", strings.NewReader("%PDF-1.4"), 8, "application/pdf"))
	rc, err := b.Open(ctx, "a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))
	require.NoError(t, b.Remove(ctx, "a.pdf"))
	_, err = b.Open(ctx, "a.pdf")
	require.ErrorIs(t, err, model.ErrNotFound)
}
