package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/QMSVault/internal/cache"
	"github.com/dharsanguruparan/QMSVault/internal/model"
)

const (
	// DefaultRangeDays is used when the requested KPI range is unknown.
	DefaultRangeDays = 30

	noneLabel         = "-"
	unknownDepartment = "N/A"
	trendDays         = 7
	recentDocuments   = 5
	recentActivities  = 8
)

var allowedRanges = map[string]int{"1": 1, "7": 7, "30": 30, "90": 90, "365": 365}

// Ranges lists the KPI window sizes in days, smallest first.
var Ranges = []int{1, 7, 30, 90, 365}

// ParseRange maps the range query parameter to a window in days.
func ParseRange(raw string) int {
	if days, ok := allowedRanges[raw]; ok {
		return days
	}
	return DefaultRangeDays
}

// Options tunes an Aggregator. Zero values fall back to defaults.
type Options struct {
	CacheTTL            time.Duration
	Location            *time.Location
	SuspiciousThreshold int64
	SuspiciousWindow    time.Duration
	Now                 func() time.Time
}

// Aggregator computes dashboard figures from a Source.
type Aggregator struct {
	src    Source
	cache  cache.Cache
	logger *zap.Logger
	opts   Options
}

// New constructs an Aggregator. A nil cache disables KPI caching.
func New(src Source, c cache.Cache, logger *zap.Logger, opts Options) *Aggregator {
	if c == nil {
		c = cache.Nop{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SuspiciousThreshold <= 0 {
		opts.SuspiciousThreshold = 5
	}
	if opts.SuspiciousWindow <= 0 {
		opts.SuspiciousWindow = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Aggregator{src: src, cache: c, logger: logger.Named("analytics"), opts: opts}
}

// DayCount is one bucket of the weekly trend.
type DayCount struct {
	Date  time.Time `json:"date"`
	Label string    `json:"label"`
	Total int64     `json:"total"`
}

// SuspiciousReport lists users and documents with repeated attempts inside
// the lookback window.
type SuspiciousReport struct {
	Since     time.Time `json:"since"`
	Threshold int64     `json:"threshold"`
	Users     []Count   `json:"users"`
	Documents []Count   `json:"documents"`
}

// Empty reports whether nothing crossed the threshold.
func (r SuspiciousReport) Empty() bool {
	return len(r.Users) == 0 && len(r.Documents) == 0
}

// Overview is everything the quality dashboard shows.
type Overview struct {
	TotalDocuments    int64            `json:"total_docs"`
	ActiveDocuments   int64            `json:"active_docs"`
	ArchivedDocuments int64            `json:"archived_docs"`
	DisabledDocuments int64            `json:"disabled_docs"`
	Departments       int64            `json:"departments"`
	Users             int64            `json:"users"`
	Activities        int64            `json:"activities"`
	Attempts          int64            `json:"attempts_disabled"`
	RiskLevel         RiskLevel        `json:"risk_level"`
	TopUser           string           `json:"top_user"`
	TopDocument       string           `json:"top_document"`
	DepartmentStats   []Count          `json:"department_stats"`
	ActionStats       []Count          `json:"action_stats"`
	Weekly            []DayCount       `json:"weekly"`
	RecentDocuments   []model.Document `json:"recent_documents"`
	RecentActivities  []model.Activity `json:"recent_activities"`
	Suspicious        SuspiciousReport `json:"suspicious"`
}

// SecurityMetrics is the payload of the security metrics endpoint.
type SecurityMetrics struct {
	DisabledDocs int64  `json:"disabled_docs"`
	Attempts     int64  `json:"attempts"`
	TopUser      string `json:"top_user"`
}

// KPI is the windowed bundle served to dashboard polling. It may be up to
// CacheTTLSeconds old.
type KPI struct {
	RangeDays        int       `json:"range"`
	Documents        int64     `json:"documents"`
	DocumentsChange  float64   `json:"documents_change"`
	Activities       int64     `json:"activities"`
	ActivitiesChange float64   `json:"activities_change"`
	Attempts         int64     `json:"attempts"`
	AttemptsChange   float64   `json:"attempts_change"`
	AttemptRatio     float64   `json:"attempt_ratio"`
	RiskLevel        RiskLevel `json:"risk_level"`
	TopUser          string    `json:"top_user"`
	TopDocument      string    `json:"top_document"`
	GeneratedAt      time.Time `json:"generated_at"`
	CacheTTLSeconds  int       `json:"cache_ttl_seconds"`
}

func attemptFilter(since, until time.Time) ActivityFilter {
	return ActivityFilter{Action: model.ActionAttemptDisabled, Since: since, Until: until, RequireUser: true}
}

// Overview gathers the all-time dashboard figures.
func (a *Aggregator) Overview(ctx context.Context) (*Overview, error) {
	byStatus, err := a.src.CountDocumentsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	o := &Overview{
		ActiveDocuments:   byStatus[model.StatusActive],
		ArchivedDocuments: byStatus[model.StatusArchived],
		DisabledDocuments: byStatus[model.StatusDisabled],
	}
	for _, n := range byStatus {
		o.TotalDocuments += n
	}
	if o.Departments, err = a.src.CountActiveDepartments(ctx); err != nil {
		return nil, fmt.Errorf("count departments: %w", err)
	}
	if o.Users, err = a.src.CountActiveUsers(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if o.Activities, err = a.src.CountActivities(ctx, ActivityFilter{}); err != nil {
		return nil, fmt.Errorf("count activities: %w", err)
	}
	if o.Attempts, err = a.src.CountActivities(ctx, attemptFilter(time.Time{}, time.Time{})); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	o.RiskLevel = RiskLevelByCount(o.Attempts)
	if o.TopUser, o.TopDocument, err = a.topOffenders(ctx, time.Time{}); err != nil {
		return nil, err
	}
	if o.DepartmentStats, err = a.DocumentsByDepartment(ctx); err != nil {
		return nil, err
	}
	if o.ActionStats, err = a.ActivitiesByAction(ctx); err != nil {
		return nil, err
	}
	if o.Weekly, err = a.WeeklyTrend(ctx); err != nil {
		return nil, err
	}
	if o.RecentDocuments, err = a.src.RecentDocuments(ctx, recentDocuments); err != nil {
		return nil, fmt.Errorf("recent documents: %w", err)
	}
	if o.RecentActivities, err = a.src.ListActivities(ctx, 0, recentActivities); err != nil {
		return nil, fmt.Errorf("recent activities: %w", err)
	}
	report, err := a.Suspicious(ctx)
	if err != nil {
		return nil, err
	}
	o.Suspicious = *report
	return o, nil
}

// SecurityMetrics returns the compact security summary.
func (a *Aggregator) SecurityMetrics(ctx context.Context) (*SecurityMetrics, error) {
	byStatus, err := a.src.CountDocumentsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	attempts, err := a.src.CountActivities(ctx, attemptFilter(time.Time{}, time.Time{}))
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	top, err := a.src.AttemptsByUser(ctx, time.Time{}, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("top user: %w", err)
	}
	return &SecurityMetrics{
		DisabledDocs: byStatus[model.StatusDisabled],
		Attempts:     attempts,
		TopUser:      firstLabel(top),
	}, nil
}

// EnterpriseKPI returns the KPI bundle for a window of days, served from the
// cache when a fresh copy exists.
func (a *Aggregator) EnterpriseKPI(ctx context.Context, days int) (*KPI, error) {
	if days <= 0 {
		days = DefaultRangeDays
	}
	key := fmt.Sprintf("enterprise_kpi_%d", days)
	var cached KPI
	ok, err := a.cache.Get(ctx, key, &cached)
	if err != nil {
		a.logger.Warn("kpi cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		return &cached, nil
	}
	kpi, err := a.computeKPI(ctx, days)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(ctx, key, kpi, a.opts.CacheTTL); err != nil {
		a.logger.Warn("kpi cache write failed", zap.String("key", key), zap.Error(err))
	}
	return kpi, nil
}

func (a *Aggregator) computeKPI(ctx context.Context, days int) (*KPI, error) {
	now := a.opts.Now()
	window := time.Duration(days) * 24 * time.Hour
	start := now.Add(-window)
	prevStart := start.Add(-window)

	docs, err := a.src.CountDocumentsCreated(ctx, start, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	prevDocs, err := a.src.CountDocumentsCreated(ctx, prevStart, start)
	if err != nil {
		return nil, fmt.Errorf("count previous documents: %w", err)
	}
	acts, err := a.src.CountActivities(ctx, ActivityFilter{Since: start})
	if err != nil {
		return nil, fmt.Errorf("count activities: %w", err)
	}
	prevActs, err := a.src.CountActivities(ctx, ActivityFilter{Since: prevStart, Until: start})
	if err != nil {
		return nil, fmt.Errorf("count previous activities: %w", err)
	}
	attempts, err := a.src.CountActivities(ctx, attemptFilter(start, time.Time{}))
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	prevAttempts, err := a.src.CountActivities(ctx, attemptFilter(prevStart, start))
	if err != nil {
		return nil, fmt.Errorf("count previous attempts: %w", err)
	}
	topUser, topDoc, err := a.topOffenders(ctx, start)
	if err != nil {
		return nil, err
	}
	return &KPI{
		RangeDays:        days,
		Documents:        docs,
		DocumentsChange:  PercentChange(docs, prevDocs),
		Activities:       acts,
		ActivitiesChange: PercentChange(acts, prevActs),
		Attempts:         attempts,
		AttemptsChange:   PercentChange(attempts, prevAttempts),
		AttemptRatio:     AttemptRatio(attempts, acts),
		RiskLevel:        RiskLevelByRatio(attempts, acts),
		TopUser:          topUser,
		TopDocument:      topDoc,
		GeneratedAt:      now.UTC(),
		CacheTTLSeconds:  int(a.opts.CacheTTL / time.Second),
	}, nil
}

func (a *Aggregator) topOffenders(ctx context.Context, since time.Time) (string, string, error) {
	users, err := a.src.AttemptsByUser(ctx, since, 1, 1)
	if err != nil {
		return "", "", fmt.Errorf("top user: %w", err)
	}
	docs, err := a.src.AttemptsByDocument(ctx, since, 1, 1)
	if err != nil {
		return "", "", fmt.Errorf("top document: %w", err)
	}
	return firstLabel(users), firstLabel(docs), nil
}

func firstLabel(rows []Count) string {
	if len(rows) == 0 {
		return noneLabel
	}
	return rows[0].Label
}

// WeeklyTrend counts activity per calendar day for the last seven days,
// oldest first, using the configured time zone for day boundaries.
func (a *Aggregator) WeeklyTrend(ctx context.Context) ([]DayCount, error) {
	now := a.opts.Now().In(a.opts.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.opts.Location)
	out := make([]DayCount, 0, trendDays)
	for i := trendDays - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		n, err := a.src.CountActivities(ctx, ActivityFilter{Since: day, Until: day.AddDate(0, 0, 1)})
		if err != nil {
			return nil, fmt.Errorf("count activities on %s: %w", day.Format("2006-01-02"), err)
		}
		out = append(out, DayCount{Date: day, Label: day.Format("02 Jan"), Total: n})
	}
	return out, nil
}

// DocumentsByDepartment labels the department distribution.
func (a *Aggregator) DocumentsByDepartment(ctx context.Context) ([]Count, error) {
	rows, err := a.src.DocumentsByDepartment(ctx)
	if err != nil {
		return nil, fmt.Errorf("documents by department: %w", err)
	}
	for i := range rows {
		rows[i].Label = rows[i].Key
		if rows[i].Label == "" {
			rows[i].Label = unknownDepartment
		}
	}
	return rows, nil
}

// ActivitiesByAction substitutes display labels for stored action keys.
func (a *Aggregator) ActivitiesByAction(ctx context.Context) ([]Count, error) {
	rows, err := a.src.ActivitiesByAction(ctx)
	if err != nil {
		return nil, fmt.Errorf("activities by action: %w", err)
	}
	for i := range rows {
		rows[i].Label = model.Action(rows[i].Key).Label()
	}
	return rows, nil
}

// Suspicious reports users and documents with at least the configured number
// of attempts in the recent window.
func (a *Aggregator) Suspicious(ctx context.Context) (*SuspiciousReport, error) {
	since := a.opts.Now().Add(-a.opts.SuspiciousWindow)
	users, err := a.src.AttemptsByUser(ctx, since, a.opts.SuspiciousThreshold, 0)
	if err != nil {
		return nil, fmt.Errorf("suspicious users: %w", err)
	}
	docs, err := a.src.AttemptsByDocument(ctx, since, a.opts.SuspiciousThreshold, 0)
	if err != nil {
		return nil, fmt.Errorf("suspicious documents: %w", err)
	}
	return &SuspiciousReport{
		Since:     since.UTC(),
		Threshold: a.opts.SuspiciousThreshold,
		Users:     users,
		Documents: docs,
	}, nil
}
