package maintenance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultTokenSpec          = "@daily"
	defaultReportSpec         = "*/15 * * * *"
	defaultCacheSpec          = "@hourly"
)

// Job names double as the "job" label on maintenance metrics.
const (
	JobSessions = "sessions"
	JobTokens   = "user_tokens"
	JobAudit    = "audit_retention"
	JobReports  = "scheduled_reports"
	JobCache    = "cache"
)

// ExpiringStore is a cache backend that can drop expired entries.
type ExpiringStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Dependencies lists the services the cleaner drives. Nil members skip
// their job.
type Dependencies struct {
	Sessions *iauth.SessionService
	Tokens   *services.UserTokenService
	Audit    *services.AuditService
	Reports  *services.ScheduledReportService
	Cache    ExpiringStore
}

// Cleaner runs housekeeping on cron schedules. Invitations are not swept
// here; they expire when read.
type Cleaner struct {
	deps      Dependencies
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int
	schedules map[string]string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to time job runs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSchedule overrides the cron specification of one job.
func WithSchedule(job, spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedules[job] = spec
		}
	}
}

// NewCleaner constructs a Cleaner with default schedules.
func NewCleaner(deps Dependencies, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		deps:      deps,
		now:       time.Now,
		retention: defaultAuditRetentionDays,
		log:       logger.WithModule("maintenance"),
		schedules: map[string]string{
			JobSessions: defaultSessionSpec,
			JobTokens:   defaultTokenSpec,
			JobAudit:    defaultAuditSpec,
			JobReports:  defaultReportSpec,
			JobCache:    defaultCacheSpec,
		},
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

type job struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.deps.Sessions != nil {
		jobs = append(jobs, job{JobSessions, c.deps.Sessions.CleanupExpired})
	}
	if c.deps.Tokens != nil {
		jobs = append(jobs, job{JobTokens, c.deps.Tokens.CleanupExpired})
	}
	if c.deps.Audit != nil && c.retention > 0 {
		jobs = append(jobs, job{JobAudit, func(ctx context.Context) (int64, error) {
			return c.deps.Audit.CleanupOlderThan(ctx, c.retention)
		}})
	}
	if c.deps.Reports != nil {
		jobs = append(jobs, job{JobReports, func(ctx context.Context) (int64, error) {
			n, err := c.deps.Reports.RunDue(ctx)
			return int64(n), err
		}})
	}
	if c.deps.Cache != nil {
		jobs = append(jobs, job{JobCache, c.deps.Cache.CleanupExpired})
	}
	return jobs
}

// Start registers every configured job with the scheduler and launches it.
// Nothing is scheduled when no dependency was supplied.
func (c *Cleaner) Start() error {
	jobs := c.jobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		spec := c.schedules[j.name]
		if _, err := c.cron.AddFunc(spec, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s (%q): %w", j.name, spec, err)
		}
	}

	c.cron.Start()
	c.log.Info("maintenance scheduler started", zap.Int("jobs", len(jobs)))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured job sequentially and joins their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.jobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := c.now()
	affected, err := j.run(ctx)
	duration := c.now().Sub(start)

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		monitoring.RecordMaintenanceRun(j.name, "failure", err.Error(), duration)
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}

	c.log.Debug("maintenance job finished",
		zap.String("job", j.name),
		zap.Int64("affected", affected),
		zap.Duration("duration", duration),
	)
	monitoring.RecordMaintenanceRun(j.name, "success", strconv.FormatInt(affected, 10)+" rows", duration)
	return nil
}
