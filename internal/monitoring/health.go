package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is the state a dependency check reports.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

func (s Status) severity() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worst returns the more severe of a and b.
func Worst(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Kind separates liveness checks from readiness checks.
type Kind string

const (
	Liveness  Kind = "live"
	Readiness Kind = "ready"
)

// Result is one component's check outcome.
type Result struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report folds the results of one evaluation. It is unsuccessful only when a
// component is down.
type Report struct {
	Success bool     `json:"success"`
	Status  Status   `json:"status"`
	Checks  []Result `json:"checks"`
}

// Check tests one dependency. An optional check never reports worse than
// degraded.
type Check struct {
	Name     string
	Optional bool
	Run      func(ctx context.Context) Result
}

// Health holds the registered checks per kind.
type Health struct {
	mu      sync.RWMutex
	checks  map[Kind][]Check
	timeout time.Duration
}

// NewHealth returns an empty registry. Each evaluation runs under timeout
// when it is positive.
func NewHealth(timeout time.Duration) *Health {
	return &Health{checks: make(map[Kind][]Check), timeout: timeout}
}

// Add registers checks under kind, skipping unnamed ones.
func (h *Health) Add(kind Kind, checks ...Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, check := range checks {
		if check.Name == "" || check.Run == nil {
			continue
		}
		h.checks[kind] = append(h.checks[kind], check)
	}
}

// Evaluate runs the checks of kind concurrently under a shared deadline.
// Results keep registration order.
func (h *Health) Evaluate(ctx context.Context, kind Kind) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	h.mu.RLock()
	checks := append([]Check(nil), h.checks[kind]...)
	h.mu.RUnlock()

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	wg.Add(len(checks))
	for i := range checks {
		go func(i int) {
			defer wg.Done()
			results[i] = execute(ctx, checks[i])
		}(i)
	}
	wg.Wait()
	return fold(results)
}

// Combine merges reports into one.
func Combine(reports ...Report) Report {
	var results []Result
	for _, report := range reports {
		results = append(results, report.Checks...)
	}
	return fold(results)
}

func fold(results []Result) Report {
	if results == nil {
		results = []Result{}
	}
	status := StatusUp
	for _, result := range results {
		status = Worst(status, result.Status)
	}
	return Report{Success: status != StatusDown, Status: status, Checks: results}
}

func execute(ctx context.Context, check Check) (result Result) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = Result{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if check.Optional && result.Status == StatusDown {
			result.Status = StatusDegraded
		}
		if result.Duration == 0 {
			result.Duration = time.Since(started)
		}
		result.Component = check.Name
	}()
	return check.Run(ctx)
}

// FromError turns a check error into a result. An expired or cancelled
// context counts as degraded.
func FromError(err error, started time.Time) Result {
	result := Result{Status: StatusUp, Duration: time.Since(started)}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		result.Status, result.Details = StatusDegraded, err.Error()
	default:
		result.Status, result.Details = StatusDown, err.Error()
	}
	return result
}
