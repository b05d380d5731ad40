package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/analytics"
	"github.com/dharsanguruparan/QMSVault/internal/cache"
	"github.com/dharsanguruparan/QMSVault/internal/model"
	"github.com/dharsanguruparan/QMSVault/internal/storage"
)

// countingSource records how often the windowed counters are queried.
type countingSource struct {
	*storage.MemoryStore
	calls int
}

func (c *countingSource) CountDocumentsCreated(ctx context.Context, since, until time.Time) (int64, error) {
	c.calls++
	return c.MemoryStore.CountDocumentsCreated(ctx, since, until)
}

type world struct {
	store *storage.MemoryStore
	users map[string]*model.User
	docs  map[string]*model.Document
	dept  *model.Department
}

func seed(t *testing.T, now time.Time) *world {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStore()
	s.SetClock(func() time.Time { return now })
	dept := &model.Department{Name: "Production", IsActive: true}
	require.NoError(t, s.CreateDepartment(ctx, dept))
	w := &world{store: s, dept: dept, users: map[string]*model.User{}, docs: map[string]*model.Document{}}
	for _, name := range []string{"amy", "bob"} {
		u := &model.User{Username: name, IsActive: true, DepartmentID: &dept.ID}
		require.NoError(t, s.CreateUser(ctx, u))
		w.users[name] = u
	}
	for _, title := range []string{"Alpha", "Beta"} {
		d := &model.Document{Title: title, DepartmentID: dept.ID, Status: model.StatusDisabled, DisabledReason: "recalled"}
		require.NoError(t, s.CreateDocument(ctx, d))
		w.docs[title] = d
	}
	return w
}

func (w *world) attempt(t *testing.T, user, doc string, at time.Time) {
	t.Helper()
	a := &model.Activity{DocumentID: w.docs[doc].ID, Action: model.ActionAttemptDisabled, Timestamp: at}
	if user != "" {
		a.UserID = &w.users[user].ID
	}
	require.NoError(t, w.store.AppendActivity(context.Background(), a))
}

func (w *world) act(t *testing.T, action model.Action, at time.Time) {
	t.Helper()
	a := &model.Activity{DocumentID: w.docs["Alpha"].ID, UserID: &w.users["amy"].ID, Action: action, Timestamp: at}
	require.NoError(t, w.store.AppendActivity(context.Background(), a))
}

func TestSecurityMetricsEmpty(t *testing.T) {
	s := storage.NewMemoryStore()
	agg := analytics.New(s, nil, zap.NewNop(), analytics.Options{})
	m, err := agg.SecurityMetrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, &analytics.SecurityMetrics{DisabledDocs: 0, Attempts: 0, TopUser: "-"}, m)
}

func TestSecurityMetricsTopUserTieBreak(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	w := seed(t, now)
	w.attempt(t, "bob", "Alpha", now.Add(-time.Hour))
	w.attempt(t, "amy", "Beta", now.Add(-time.Hour))
	w.attempt(t, "", "Beta", now.Add(-time.Hour))

	agg := analytics.New(w.store, nil, zap.NewNop(), analytics.Options{Now: func() time.Time { return now }})
	m, err := agg.SecurityMetrics(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, m.DisabledDocs)
	require.EqualValues(t, 2, m.Attempts)
	require.Equal(t, "amy", m.TopUser)

	o, err := agg.Overview(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Beta", o.TopDocument)
	require.Equal(t, analytics.RiskLow, o.RiskLevel)
}

func TestEnterpriseKPIWindowAndCache(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	w := seed(t, now)
	w.act(t, model.ActionView, now.Add(-2*24*time.Hour))
	w.act(t, model.ActionView, now.Add(-3*24*time.Hour))
	w.attempt(t, "bob", "Alpha", now.Add(-24*time.Hour))
	w.attempt(t, "bob", "Alpha", now.Add(-24*time.Hour))
	w.act(t, model.ActionEdit, now.Add(-10*24*time.Hour))

	src := &countingSource{MemoryStore: w.store}
	agg := analytics.New(src, cache.NewMemory(), zap.NewNop(), analytics.Options{
		CacheTTL: time.Minute,
		Now:      func() time.Time { return now },
	})

	kpi, err := agg.EnterpriseKPI(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 7, kpi.RangeDays)
	require.EqualValues(t, 2, kpi.Documents)
	require.EqualValues(t, 100, kpi.DocumentsChange)
	require.EqualValues(t, 4, kpi.Activities)
	require.EqualValues(t, 300, kpi.ActivitiesChange)
	require.EqualValues(t, 2, kpi.Attempts)
	require.EqualValues(t, 50, kpi.AttemptRatio)
	require.Equal(t, analytics.RiskMedium, kpi.RiskLevel)
	require.Equal(t, "bob", kpi.TopUser)
	require.Equal(t, "Alpha", kpi.TopDocument)
	require.Equal(t, 60, kpi.CacheTTLSeconds)
	require.Equal(t, 2, src.calls)

	again, err := agg.EnterpriseKPI(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, kpi.Attempts, again.Attempts)
	require.Equal(t, 2, src.calls, "second read should come from the cache")

	_, err = agg.EnterpriseKPI(context.Background(), 30)
	require.NoError(t, err)
	require.Equal(t, 4, src.calls, "ranges are cached independently")
}

func TestWeeklyTrendBuckets(t *testing.T) {
	loc := time.FixedZone("GST", 4*60*60)
	now := time.Date(2024, 6, 10, 1, 0, 0, 0, loc)
	w := seed(t, now)
	w.act(t, model.ActionView, now.Add(-30*time.Minute))
	w.act(t, model.ActionView, now.Add(-2*time.Hour))
	w.act(t, model.ActionCreate, now.Add(-6*24*time.Hour))
	w.act(t, model.ActionCreate, now.Add(-8*24*time.Hour))

	agg := analytics.New(w.store, nil, zap.NewNop(), analytics.Options{Location: loc, Now: func() time.Time { return now }})
	trend, err := agg.WeeklyTrend(context.Background())
	require.NoError(t, err)
	require.Len(t, trend, 7)
	require.Equal(t, "04 Jun", trend[0].Label)
	require.Equal(t, "10 Jun", trend[6].Label)
	require.EqualValues(t, 1, trend[6].Total)
	require.EqualValues(t, 1, trend[5].Total)
	require.EqualValues(t, 1, trend[0].Total)
}

func TestDistributionsAreLabelled(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	w := seed(t, now)
	w.act(t, model.ActionView, now)
	w.act(t, model.ActionView, now)
	w.attempt(t, "amy", "Alpha", now)

	agg := analytics.New(w.store, nil, zap.NewNop(), analytics.Options{Now: func() time.Time { return now }})
	actions, err := agg.ActivitiesByAction(context.Background())
	require.NoError(t, err)
	require.Equal(t, []analytics.Count{
		{Key: "view", Label: "Viewed", Total: 2},
		{Key: "attempt_disabled", Label: "Disabled Attempt", Total: 1},
	}, actions)

	depts, err := agg.DocumentsByDepartment(context.Background())
	require.NoError(t, err)
	require.Equal(t, []analytics.Count{{Key: "Production", Label: "Production", Total: 2}}, depts)
}

func TestSuspiciousThreshold(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	w := seed(t, now)
	for i := 0; i < 3; i++ {
		w.attempt(t, "amy", "Alpha", now.Add(-time.Duration(i)*time.Hour))
	}
	w.attempt(t, "bob", "Beta", now.Add(-time.Hour))
	w.attempt(t, "amy", "Beta", now.Add(-48*time.Hour))

	agg := analytics.New(w.store, nil, zap.NewNop(), analytics.Options{
		SuspiciousThreshold: 3,
		Now:                 func() time.Time { return now },
	})
	report, err := agg.Suspicious(context.Background())
	require.NoError(t, err)
	require.False(t, report.Empty())
	require.Equal(t, []analytics.Count{{Key: "amy", Label: "amy", Total: 3}}, report.Users)
	require.Equal(t, []analytics.Count{{Key: "Alpha", Label: "Alpha", Total: 3}}, report.Documents)
}
