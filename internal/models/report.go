package models

import (
	"time"

	"gorm.io/datatypes"
)

// Report frequencies.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Report is a saved report definition. Aggregation happens elsewhere.
type Report struct {
	TenantModel

	Name          string            `gorm:"not null" json:"name"`
	Description   string            `gorm:"type:text" json:"description"`
	ReportType    string            `gorm:"type:varchar(16);not null" json:"report_type"`
	Configuration datatypes.JSONMap `json:"configuration"`
	IsShared      bool              `gorm:"default:false" json:"is_shared"`
}

// ScheduledReport delivers a report to recipients on a fixed cadence.
type ScheduledReport struct {
	TenantModel

	ReportID   string                      `gorm:"type:uuid;not null;index" json:"report"`
	Report     *Report                     `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE" json:"-"`
	Frequency  string                      `gorm:"type:varchar(16);not null" json:"frequency"`
	Recipients datatypes.JSONSlice[string] `json:"recipients"`
	NextRunAt  time.Time                   `gorm:"index" json:"next_run_at"`
	LastRunAt  *time.Time                  `json:"last_run_at"`
	IsActive   bool                        `gorm:"default:true;index" json:"is_active"`
}

// Advance moves NextRunAt past now according to the frequency.
func (s *ScheduledReport) Advance(now time.Time) {
	next := s.NextRunAt
	if next.IsZero() {
		next = now
	}
	for !next.After(now) {
		switch s.Frequency {
		case FrequencyWeekly:
			next = next.AddDate(0, 0, 7)
		case FrequencyMonthly:
			next = next.AddDate(0, 1, 0)
		default:
			next = next.AddDate(0, 0, 1)
		}
	}
	s.NextRunAt = next
}
