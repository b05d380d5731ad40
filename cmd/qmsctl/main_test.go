package main

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/app"
	"github.com/dharsanguruparan/QMSVault/internal/config"
	"github.com/dharsanguruparan/QMSVault/internal/identity"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/storage"
)

type testCLI struct {
	t     *testing.T
	cli   *cli
	store *storage.MemoryStore
}

func newTestCLI(t *testing.T) *testCLI {
	store := storage.NewMemoryStore()
	backend := &app.Backend{Store: store, Blobs: storage.NewMemoryBlobs()}
	return &testCLI{
		t:     t,
		store: store,
		cli: &cli{
			cfg:    &config.Config{Store: config.StoreMemory, SuspiciousThreshold: 2},
			logger: zap.NewNop(),
			open:   func(context.Context) (*app.Backend, error) { return backend, nil },
		},
	}
}

func (tc *testCLI) run(args ...string) (string, error) {
	tc.t.Helper()
	var out bytes.Buffer
	cmd := tc.cli.rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (tc *testCLI) mustRun(args ...string) string {
	tc.t.Helper()
	out, err := tc.run(args...)
	require.NoError(tc.t, err, args)
	return out
}

func TestDepartmentLifecycle(t *testing.T) {
	tc := newTestCLI(t)
	require.Contains(t, tc.mustRun("department", "create", "--name", "Production", "--code", "PRD"), "created department 1 Production")
	_, err := tc.run("department", "create", "--name", "Production")
	require.ErrorIs(t, err, model.ErrConflict)
	_, err = tc.run("department", "create")
	require.ErrorContains(t, err, "--name is required")

	out := tc.mustRun("department", "list")
	require.Contains(t, out, "Production")
	require.Contains(t, out, "PRD")

	tc.mustRun("dept", "deactivate", "1")
	require.NotContains(t, tc.mustRun("department", "list"), "Production")
	require.Contains(t, tc.mustRun("department", "list", "--all"), "false")

	tc.mustRun("department", "deactivate", "1", "--activate")
	require.Contains(t, tc.mustRun("department", "list"), "Production")

	_, err = tc.run("department", "deactivate", "abc")
	require.ErrorContains(t, err, "invalid department id")
}

func TestUserLifecycle(t *testing.T) {
	tc := newTestCLI(t)
	tc.mustRun("department", "create", "--name", "Quality")

	out := tc.mustRun("user", "create", "--username", "quinn", "--password", "s3cret-pass", "--department", "1", "--group", identity.GroupQuality)
	require.Contains(t, out, "(quality)")

	u, err := tc.store.GetUserByUsername(context.Background(), "quinn")
	require.NoError(t, err)
	require.True(t, identity.CheckPassword("s3cret-pass", u.PasswordHash))
	require.Equal(t, "Quality", u.DepartmentName)

	require.Contains(t, tc.mustRun("user", "grant", "quinn", identity.GroupAdmin), "quinn is now admin")
	require.Contains(t, tc.mustRun("user", "revoke", "quinn", identity.GroupAdmin), "quinn is now quality")
	require.Contains(t, tc.mustRun("user", "revoke", "quinn", identity.GroupQuality), "quinn is now none")

	list := tc.mustRun("user", "list")
	require.Contains(t, list, "quinn")
	require.Contains(t, list, "Quality")

	tc.mustRun("user", "delete", "quinn")
	_, err = tc.store.GetUserByUsername(context.Background(), "quinn")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserCreateValidation(t *testing.T) {
	tc := newTestCLI(t)
	_, err := tc.run("user", "create", "--username", "amy", "--password", "short")
	require.ErrorIs(t, err, identity.ErrPasswordTooShort)
	_, err = tc.run("user", "create", "--username", "amy", "--password", "long-enough", "--group", "Interns")
	require.ErrorContains(t, err, "unknown group")
	_, err = tc.run("user", "grant", "ghost", identity.GroupEmployees)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestMigrateNeedsPostgres(t *testing.T) {
	tc := newTestCLI(t)
	_, err := tc.run("migrate")
	require.ErrorContains(t, err, "migrate needs store=postgres")
}

func TestRiskReport(t *testing.T) {
	tc := newTestCLI(t)
	ctx := context.Background()
	require.Contains(t, tc.mustRun("risk"), "No suspicious activity")

	tc.mustRun("department", "create", "--name", "Production")
	tc.mustRun("user", "create", "--username", "emma", "--password", "long-enough", "--department", "1", "--group", identity.GroupEmployees)
	emma, err := tc.store.GetUserByUsername(ctx, "emma")
	require.NoError(t, err)
	doc := &model.Document{Title: "SOP-1", DepartmentID: 1, Status: model.StatusDisabled, DisabledReason: "hold"}
	require.NoError(t, tc.store.CreateDocument(ctx, doc))
	for i := 0; i < 2; i++ {
		require.NoError(t, tc.store.AppendActivity(ctx, &model.Activity{DocumentID: doc.ID, UserID: &emma.ID, Action: model.ActionAttemptDisabled}))
	}

	out := tc.mustRun("risk")
	require.Contains(t, out, "Attempts:     2")
	require.Contains(t, out, "Risk level:   Low")
	require.Contains(t, out, "Top user:     emma")
	require.Contains(t, out, "user emma: 2 attempts")
	require.Contains(t, out, "document SOP-1: 2 attempts")

	require.Contains(t, tc.mustRun("risk", "--json"), `"risk_level": "Low"`)
}
