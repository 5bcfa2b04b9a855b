package monitoring

import (
	"sort"
	"sync"
	"time"
)

// stats mirrors the prometheus instruments in a form the summary endpoint
// can read back.
type stats struct {
	mu sync.Mutex

	connections int64
	broadcasts  uint64
	dropped     uint64
	lastDrop    *FailureRecord

	reportOK, reportFailed uint64
	reportTime             time.Duration

	notifications map[string]uint64
	jobs          map[string]*MaintenanceJobSummary
}

func newStats() *stats {
	return &stats{
		notifications: make(map[string]uint64),
		jobs:          make(map[string]*MaintenanceJobSummary),
	}
}

// connection applies delta and returns the open count, never below zero.
func (s *stats) connection(delta int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections = max(s.connections+delta, 0)
	return s.connections
}

func (s *stats) broadcast() {
	s.mu.Lock()
	s.broadcasts++
	s.mu.Unlock()
}

func (s *stats) drop(record FailureRecord) {
	s.mu.Lock()
	s.dropped++
	s.lastDrop = &record
	s.mu.Unlock()
}

func (s *stats) report(ok bool, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.reportOK++
	} else {
		s.reportFailed++
	}
	s.reportTime += max(d, 0)
}

func (s *stats) notification(kind string) {
	s.mu.Lock()
	s.notifications[kind]++
	s.mu.Unlock()
}

func (s *stats) job(name string, ok bool, message string, d time.Duration, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, found := s.jobs[name]
	if !found {
		entry = &MaintenanceJobSummary{Job: name}
		s.jobs[name] = entry
	}
	entry.TotalRuns++
	entry.LastRunAt = at
	entry.LastDuration = max(d, 0)
	if ok {
		entry.LastStatus = "success"
		entry.LastError = ""
		entry.LastSuccessAt = at
		entry.ConsecutiveFailures = 0
		return
	}
	entry.LastStatus = "failure"
	entry.LastError = message
	entry.ConsecutiveFailures++
}

func (s *stats) summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{
		GeneratedAt: time.Now(),
		Realtime: RealtimeSummary{
			ActiveConnections: s.connections,
			Broadcasts:        s.broadcasts,
			Failures:          s.dropped,
		},
		Reports: ReportSummary{Success: s.reportOK, Failure: s.reportFailed},
		Notifications: NotificationSummary{
			ByType: make(map[string]uint64, len(s.notifications)),
		},
		Maintenance: MaintenanceSummary{Jobs: make([]MaintenanceJobSummary, 0, len(s.jobs))},
	}
	if s.lastDrop != nil {
		record := *s.lastDrop
		out.Realtime.LastFailure = &record
	}
	if runs := s.reportOK + s.reportFailed; runs > 0 {
		out.Reports.AverageDurationSeconds = s.reportTime.Seconds() / float64(runs)
	}
	for kind, n := range s.notifications {
		out.Notifications.ByType[kind] = n
		out.Notifications.Created += n
	}
	for _, entry := range s.jobs {
		out.Maintenance.Jobs = append(out.Maintenance.Jobs, *entry)
	}
	sort.Slice(out.Maintenance.Jobs, func(i, j int) bool {
		return out.Maintenance.Jobs[i].Job < out.Maintenance.Jobs[j].Job
	})
	return out
}
