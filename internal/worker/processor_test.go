package worker

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/queue"
	"github.com/dharsanguruparan/QMSVault/internal/storage"
)

type env struct {
	store   *storage.MemoryStore
	blobs   *storage.MemoryBlobs
	proc    *Processor
	doc     *model.Document
	actor   *model.User
	peer    *model.User
	outside *model.User
	clerk   *model.User
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	prod := &model.Department{Name: "Production", IsActive: true}
	qa := &model.Department{Name: "QA", IsActive: true}
	require.NoError(t, s.CreateDepartment(ctx, prod))
	require.NoError(t, s.CreateDepartment(ctx, qa))
	actor := &model.User{Username: "quinn", IsActive: true, DepartmentID: &qa.ID, Groups: []string{identity.GroupQuality}}
	peer := &model.User{Username: "pat", IsActive: true, DepartmentID: &prod.ID, Groups: []string{identity.GroupManagers}}
	outside := &model.User{Username: "olga", IsActive: true, DepartmentID: &qa.ID, Groups: []string{identity.GroupEmployees}}
	clerk := &model.User{Username: "carl", IsActive: true, DepartmentID: &prod.ID, Groups: []string{identity.GroupEmployees}}
	for _, u := range []*model.User{actor, peer, outside, clerk} {
		require.NoError(t, s.CreateUser(ctx, u))
	}
	doc := &model.Document{Title: "WI-9", DepartmentID: prod.ID, Status: model.StatusDisabled, DisabledReason: "superseded", ObjectKey: "wi9.pdf", ReaderIDs: []int64{outside.ID, actor.ID}}
	require.NoError(t, s.CreateDocument(ctx, doc))
	blobs := storage.NewMemoryBlobs()
	return &env{store: s, blobs: blobs, proc: NewProcessor(s, blobs, zap.NewNop()), doc: doc, actor: actor, peer: peer, outside: outside, clerk: clerk}
}

func TestNotifySkipsActor(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	payload := queue.NotifyPayload{DocumentID: e.doc.ID, ActorID: &e.actor.ID, Type: model.NotifyDisabled, PreviousStatus: model.StatusActive}
	require.NoError(t, e.proc.Notify(ctx, payload))

	for _, u := range []*model.User{e.peer, e.outside} {
		notes, err := e.store.ListNotifications(ctx, u.ID, 0)
		require.NoError(t, err)
		require.Len(t, notes, 1, u.Username)
		require.Equal(t, `"WI-9" was disabled: superseded`, notes[0].Message)
	}
	for _, u := range []*model.User{e.actor, e.clerk} {
		notes, err := e.store.ListNotifications(ctx, u.ID, 0)
		require.NoError(t, err)
		require.Empty(t, notes, u.Username)
	}
}

func TestNotifyFollowsViewRules(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		previous model.DocumentStatus
		want     []string
	}{
		{"disabled from active reaches former viewers", model.StatusActive, []string{"olga", "pat"}},
		{"disabled from archived reaches nobody", model.StatusArchived, nil},
		{"unknown previous state uses current state", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			payload := queue.NotifyPayload{DocumentID: e.doc.ID, ActorID: &e.actor.ID, Type: model.NotifyDisabled, PreviousStatus: tt.previous}
			require.NoError(t, e.proc.Notify(ctx, payload))

			var got []string
			for _, u := range []*model.User{e.actor, e.clerk, e.outside, e.peer} {
				notes, err := e.store.ListNotifications(ctx, u.ID, 0)
				require.NoError(t, err)
				if len(notes) > 0 {
					got = append(got, u.Username)
				}
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNotifyReactivatedReachesCurrentViewers(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	edit := e.doc.Clone()
	edit.Status = model.StatusActive
	edit.DisabledReason = ""
	require.NoError(t, e.store.UpdateDocument(ctx, edit))

	payload := queue.NotifyPayload{DocumentID: e.doc.ID, Type: model.NotifyReactivated, PreviousStatus: model.StatusDisabled}
	require.NoError(t, e.proc.Notify(ctx, payload))

	notes, err := e.store.ListNotifications(ctx, e.clerk.ID, 0)
	require.NoError(t, err)
	require.Empty(t, notes)
	for _, u := range []*model.User{e.actor, e.peer, e.outside} {
		notes, err := e.store.ListNotifications(ctx, u.ID, 0)
		require.NoError(t, err)
		require.Len(t, notes, 1, u.Username)
	}
}

func TestNotifyMissingDocumentIsNoop(t *testing.T) {
	e := setup(t)
	require.NoError(t, e.proc.Notify(context.Background(), queue.NotifyPayload{DocumentID: 999, Type: model.NotifyUpdated}))
}

func TestHandlerRoutesTasks(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	mux := e.proc.Handler()

	payload := `{"document_id":` + strconv.FormatInt(e.doc.ID, 10) + `,"type":"updated","previous_status":"active"}`
	require.NoError(t, mux.ProcessTask(ctx, asynq.NewTask(queue.NotifyTask, []byte(payload))))
	notes, err := e.store.ListNotifications(ctx, e.peer.ID, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	err = mux.ProcessTask(ctx, asynq.NewTask(queue.InspectTask, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestInspectRecordsPages(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.blobs.Put(ctx, "wi9.pdf", strings.NewReader("%PDF"), 4, "application/pdf"))
	e.proc.pages = func(io.Reader) (int, error) { return 3, nil }

	require.NoError(t, e.proc.Inspect(ctx, queue.InspectPayload{DocumentID: e.doc.ID, ObjectKey: "wi9.pdf"}))
	doc, err := e.store.GetDocument(ctx, e.doc.ID)
	require.NoError(t, err)
	require.NotNil(t, doc.PageCount)
	require.Equal(t, 3, *doc.PageCount)
}

func TestInspectUnreadablePDF(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	require.NoError(t, e.blobs.Put(ctx, "wi9.pdf", strings.NewReader("junk"), 4, "application/pdf"))
	e.proc.pages = func(io.Reader) (int, error) { return 0, errors.New("malformed") }

	err := e.proc.Inspect(ctx, queue.InspectPayload{DocumentID: e.doc.ID, ObjectKey: "wi9.pdf"})
	require.Error(t, err)
}

func TestMessages(t *testing.T) {
	doc := &model.Document{Title: "SOP"}
	require.Equal(t, `"SOP" was updated`, Message(doc, model.NotifyUpdated))
	require.Equal(t, `"SOP" is available again`, Message(doc, model.NotifyReactivated))
	require.Equal(t, `"SOP" was disabled`, Message(doc, model.NotifyDisabled))
}
