package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/logger"
)

// ReportInput creates or patches a saved report.
type ReportInput struct {
	Name          *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Description   *string        `json:"description"`
	ReportType    *string        `json:"report_type" validate:"omitempty,oneof=sales activity pipeline forecast custom"`
	Configuration map[string]any `json:"configuration"`
	IsShared      *bool          `json:"is_shared"`
}

// ReportService manages saved report definitions.
type ReportService struct {
	store *ScopedStore[models.Report, *models.Report]
}

// NewReportService constructs a ReportService.
func NewReportService(db *gorm.DB, audit *AuditService) (*ReportService, error) {
	store, err := NewScopedStore[models.Report](db, audit, "report", "Report", ListSpec{
		SearchFields: []string{"name", "description"},
		Filters:      map[string]string{"report_type": "report_type", "is_shared": "is_shared"},
		Orderings:    map[string]string{"name": "name", "created_at": "created_at", "updated_at": "updated_at"},
		DefaultOrder: "reports.created_at DESC",
	})
	if err != nil {
		return nil, err
	}
	return &ReportService{store: store}, nil
}

func (s *ReportService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Report], error) {
	return s.store.List(ctx, scope, q)
}

func (s *ReportService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Report, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *ReportService) Create(ctx context.Context, scope tenancy.Scope, input ReportInput) (*models.Report, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}
	if input.ReportType == nil {
		return nil, apperrors.FieldError("report_type", "This field is required.")
	}
	report := &models.Report{
		Name:          strings.TrimSpace(*input.Name),
		Description:   deref(input.Description),
		ReportType:    *input.ReportType,
		Configuration: datatypes.JSONMap{},
	}
	if input.Configuration != nil {
		report.Configuration = datatypes.JSONMap(input.Configuration)
	}
	if input.IsShared != nil {
		report.IsShared = *input.IsShared
	}
	if err := s.store.Create(ctx, scope, report, nil, nil); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *ReportService) Update(ctx context.Context, scope tenancy.Scope, id string, input ReportInput) (*models.Report, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "name", input.Name)
	setString(updates, "description", input.Description)
	setString(updates, "report_type", input.ReportType)
	if input.Configuration != nil {
		updates["configuration"] = datatypes.JSONMap(input.Configuration)
	}
	if input.IsShared != nil {
		updates["is_shared"] = *input.IsShared
	}
	return s.store.Update(ctx, scope, id, updates, nil, nil)
}

func (s *ReportService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// ScheduledReportInput creates or patches a report schedule.
type ScheduledReportInput struct {
	ReportID   *string    `json:"report" validate:"omitempty,uuid"`
	Frequency  *string    `json:"frequency" validate:"omitempty,oneof=daily weekly monthly"`
	Recipients *[]string  `json:"recipients" validate:"omitempty,dive,email"`
	NextRunAt  *time.Time `json:"next_run_at"`
	IsActive   *bool      `json:"is_active"`
}

// ScheduledReportOption customises ScheduledReportService.
type ScheduledReportOption func(*ScheduledReportService)

// WithScheduleClock injects a custom clock.
func WithScheduleClock(clock func() time.Time) ScheduledReportOption {
	return func(s *ScheduledReportService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithScheduleNotifications notifies report creators when a schedule runs.
func WithScheduleNotifications(notifications *NotificationService) ScheduledReportOption {
	return func(s *ScheduledReportService) {
		s.notifications = notifications
	}
}

// ScheduledReportService manages report schedules and runs the due ones.
type ScheduledReportService struct {
	store         *ScopedStore[models.ScheduledReport, *models.ScheduledReport]
	notifications *NotificationService
	now           func() time.Time
}

// NewScheduledReportService constructs a ScheduledReportService.
func NewScheduledReportService(db *gorm.DB, audit *AuditService, opts ...ScheduledReportOption) (*ScheduledReportService, error) {
	store, err := NewScopedStore[models.ScheduledReport](db, audit, "scheduled_report", "Scheduled report", ListSpec{
		Filters:      map[string]string{"report": "report_id", "frequency": "frequency", "is_active": "is_active"},
		Orderings:    map[string]string{"created_at": "created_at", "next_run_at": "next_run_at"},
		DefaultOrder: "scheduled_reports.next_run_at ASC",
		Preloads:     []string{"Report"},
	})
	if err != nil {
		return nil, err
	}
	svc := &ScheduledReportService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *ScheduledReportService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.ScheduledReport], error) {
	return s.store.List(ctx, scope, q)
}

func (s *ScheduledReportService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.ScheduledReport, error) {
	return s.store.Get(ctx, scope, id)
}

// Create schedules a report of the same organization. Without next_run_at the
// first run is one period from now.
func (s *ScheduledReportService) Create(ctx context.Context, scope tenancy.Scope, input ScheduledReportInput) (*models.ScheduledReport, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if optionalID(input.ReportID) == nil {
		return nil, apperrors.FieldError("report", "This field is required.")
	}
	if input.Frequency == nil {
		return nil, apperrors.FieldError("frequency", "This field is required.")
	}

	schedule := &models.ScheduledReport{
		ReportID:   *optionalID(input.ReportID),
		Frequency:  *input.Frequency,
		Recipients: addressList(input.Recipients),
		IsActive:   true,
	}
	if input.NextRunAt != nil && !input.NextRunAt.IsZero() {
		schedule.NextRunAt = input.NextRunAt.UTC()
	} else {
		schedule.Advance(s.now().UTC())
	}

	refs := []ReferenceCheck{Ref("report", &models.Report{}, input.ReportID)}
	err := s.store.Create(ctx, scope, schedule, refs, func(tx *gorm.DB) error {
		if input.IsActive != nil && !*input.IsActive {
			schedule.IsActive = false
			return tx.Model(schedule).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope, schedule.ID)
}

func (s *ScheduledReportService) Update(ctx context.Context, scope tenancy.Scope, id string, input ScheduledReportInput) (*models.ScheduledReport, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if optionalID(input.ReportID) != nil {
		updates["report_id"] = *optionalID(input.ReportID)
	}
	setString(updates, "frequency", input.Frequency)
	if input.Recipients != nil {
		updates["recipients"] = addressList(input.Recipients)
	}
	if input.NextRunAt != nil {
		updates["next_run_at"] = input.NextRunAt.UTC()
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	refs := []ReferenceCheck{Ref("report", &models.Report{}, input.ReportID)}
	return s.store.Update(ctx, scope, id, updates, refs, nil)
}

func (s *ScheduledReportService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// RunDue advances every active schedule whose next run has passed and notifies
// the report creator. It returns how many schedules ran.
func (s *ScheduledReportService) RunDue(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	var due []models.ScheduledReport
	if err := s.store.DB().WithContext(ctx).
		Preload("Report").
		Where("is_active = ? AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Find(&due).Error; err != nil {
		return 0, fmt.Errorf("scheduled report service: load due: %w", err)
	}

	ran := 0
	for i := range due {
		started := time.Now()
		schedule := &due[i]
		previous := schedule.NextRunAt
		schedule.Advance(now)

		result := s.store.DB().WithContext(ctx).Model(&models.ScheduledReport{}).
			Where("id = ? AND next_run_at = ?", schedule.ID, previous).
			Updates(map[string]any{"next_run_at": schedule.NextRunAt, "last_run_at": now})
		if result.Error != nil {
			monitoring.RecordReportRun("scheduled", "failure", time.Since(started))
			return ran, fmt.Errorf("scheduled report service: advance: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		ran++
		s.notifyCreator(ctx, schedule)
		monitoring.RecordReportRun("scheduled", "success", time.Since(started))
	}
	if ran > 0 {
		logger.WithModule("reports").Info("scheduled reports ran", zap.Int("count", ran))
	}
	return ran, nil
}

func (s *ScheduledReportService) notifyCreator(ctx context.Context, schedule *models.ScheduledReport) {
	recipient := schedule.CreatedByID
	name := "Scheduled report"
	if schedule.Report != nil {
		name = schedule.Report.Name
		if schedule.Report.CreatedByID != nil {
			recipient = schedule.Report.CreatedByID
		}
	}
	if recipient == nil {
		return
	}
	s.notifications.Notify(ctx, CreateNotificationInput{
		UserID:         *recipient,
		OrganizationID: &schedule.OrganizationID,
		Type:           models.NotificationReportReady,
		Title:          "Report ready",
		Message:        fmt.Sprintf("%s is ready.", name),
		Link:           "/reports/" + schedule.ReportID,
		Metadata: map[string]any{
			"report_id":   schedule.ReportID,
			"schedule_id": schedule.ID,
			"recipients":  []string(schedule.Recipients),
			"next_run_at": schedule.NextRunAt,
		},
	})
}
