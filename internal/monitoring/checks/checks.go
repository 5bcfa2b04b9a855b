// Package checks holds the dependency checks registered by the API router.
package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/monitoring"
)

// failureThreshold is the number of consecutive failed runs after which a
// maintenance job reports down instead of degraded.
const failureThreshold = 3

// maxDropRate is the realtime undelivered share tolerated before degrading.
const maxDropRate = 0.1

// Database pings the pool and confirms the tenant schema exists.
func Database(db *gorm.DB) monitoring.Check {
	return monitoring.Check{Name: "database", Run: func(ctx context.Context) monitoring.Result {
		started := time.Now()
		if db == nil {
			return monitoring.Result{Status: monitoring.StatusDown, Details: "no database handle"}
		}
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return monitoring.FromError(err, started)
		}
		if !db.WithContext(ctx).Migrator().HasTable(&models.Organization{}) {
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "schema not migrated"}
		}
		open := sqlDB.Stats().OpenConnections
		return monitoring.Result{Status: monitoring.StatusUp, Details: fmt.Sprintf("%d open connections", open)}
	}}
}

// Pinger is implemented by cache.RedisClient.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis checks the shared rate-limit store. It is optional because the
// limiter fails open.
func Redis(client Pinger) monitoring.Check {
	return monitoring.Check{Name: "redis", Optional: true, Run: func(ctx context.Context) monitoring.Result {
		if client == nil {
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "client not configured"}
		}
		return monitoring.FromError(client.Ping(ctx), time.Now())
	}}
}

// Maintenance reads the recorded cron history. A job whose last success is
// older than its window is degraded; repeated failures take it down. Jobs
// missing from windows use fallback, and a zero window disables the age test.
func Maintenance(fallback time.Duration, windows map[string]time.Duration) monitoring.Check {
	return monitoring.Check{Name: "maintenance", Run: func(context.Context) monitoring.Result {
		jobs := monitoring.Snapshot().Maintenance.Jobs
		if len(jobs) == 0 {
			return monitoring.Result{Status: monitoring.StatusUp, Details: "no runs recorded"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			switch {
			case job.ConsecutiveFailures >= failureThreshold:
				status = monitoring.Worst(status, monitoring.StatusDown)
				problems = append(problems, fmt.Sprintf("%s failed %d times: %s", job.Job, job.ConsecutiveFailures, job.LastError))
				continue
			case job.ConsecutiveFailures > 0:
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+" failed: "+job.LastError)
				continue
			}

			window, ok := windows[job.Job]
			if !ok {
				window = fallback
			}
			if window > 0 && now.Sub(job.LastSuccessAt) > window {
				status = monitoring.Worst(status, monitoring.StatusDegraded)
				problems = append(problems, job.Job+" last succeeded "+job.LastSuccessAt.UTC().Format(time.RFC3339))
			}
		}
		sort.Strings(problems)
		return monitoring.Result{Status: status, Details: strings.Join(problems, "; ")}
	}}
}

// HubObserver is implemented by realtime.Hub.
type HubObserver interface {
	ActiveConnections() int64
}

// Realtime reports the notification stream. It degrades when the hub is
// missing or more than a tenth of deliveries were dropped.
func Realtime(hub HubObserver) monitoring.Check {
	return monitoring.Check{Name: "realtime", Optional: true, Run: func(context.Context) monitoring.Result {
		if hub == nil {
			return monitoring.Result{Status: monitoring.StatusDegraded, Details: "hub not running"}
		}
		rt := monitoring.Snapshot().Realtime
		details := fmt.Sprintf("%d connections", hub.ActiveConnections())
		if rate := rt.DropRate(); rate > maxDropRate {
			return monitoring.Result{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("%s; %.0f%% of deliveries dropped", details, rate*100),
			}
		}
		return monitoring.Result{Status: monitoring.StatusUp, Details: details}
	}}
}
