package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// TaskInput creates or patches a task.
type TaskInput struct {
	Title          *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description    *string    `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	Priority       *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status         *string    `json:"status" validate:"omitempty,oneof=pending in_progress completed cancelled"`
	IsRecurring    *bool      `json:"is_recurring"`
	RecurrenceRule *string    `json:"recurrence_rule" validate:"omitempty,max=255"`
	AssignedToID   *string    `json:"assigned_to" validate:"omitempty,uuid"`
	ContactID      *string    `json:"contact" validate:"omitempty,uuid"`
	CompanyID      *string    `json:"company" validate:"omitempty,uuid"`
	OpportunityID  *string    `json:"opportunity" validate:"omitempty,uuid"`
	ParentTaskID   *string    `json:"parent_task" validate:"omitempty,uuid"`
}

func (in TaskInput) refs() []ReferenceCheck {
	return []ReferenceCheck{
		MemberRef("assigned_to", in.AssignedToID),
		Ref("contact", &models.Contact{}, in.ContactID),
		Ref("company", &models.Company{}, in.CompanyID),
		Ref("opportunity", &models.Opportunity{}, in.OpportunityID),
		Ref("parent_task", &models.Task{}, in.ParentTaskID),
	}
}

func (in TaskInput) updates() map[string]any {
	updates := map[string]any{}
	setString(updates, "title", in.Title)
	setString(updates, "description", in.Description)
	setString(updates, "priority", in.Priority)
	setString(updates, "status", in.Status)
	setString(updates, "recurrence_rule", in.RecurrenceRule)
	if in.DueDate != nil {
		updates["due_date"] = in.DueDate.UTC()
	}
	if in.IsRecurring != nil {
		updates["is_recurring"] = *in.IsRecurring
	}
	setRef(updates, "assigned_to_id", in.AssignedToID)
	setRef(updates, "contact_id", in.ContactID)
	setRef(updates, "company_id", in.CompanyID)
	setRef(updates, "opportunity_id", in.OpportunityID)
	setRef(updates, "parent_task_id", in.ParentTaskID)
	return updates
}

// CalendarEntry is the compact calendar view of a task.
type CalendarEntry struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	DueDate *time.Time `json:"due_date"`
	Status  string     `json:"status"`
}

var taskListSpec = ListSpec{
	SearchFields: []string{"title", "description"},
	Filters: map[string]string{
		"status":      "status",
		"priority":    "priority",
		"assigned_to": "assigned_to_id",
		"contact":     "contact_id",
		"company":     "company_id",
		"opportunity": "opportunity_id",
	},
	DateFilters:  map[string]string{"due": "due_date", "created": "created_at"},
	Orderings:    map[string]string{"due_date": "due_date", "created_at": "created_at", "updated_at": "updated_at"},
	DefaultOrder: "tasks.created_at DESC",
}

// TaskOption customises TaskService.
type TaskOption func(*TaskService)

// WithTaskClock injects a custom clock.
func WithTaskClock(clock func() time.Time) TaskOption {
	return func(s *TaskService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTaskNotifications notifies assignees.
func WithTaskNotifications(notifications *NotificationService) TaskOption {
	return func(s *TaskService) {
		s.notifications = notifications
	}
}

// TaskService manages tasks.
type TaskService struct {
	store         *ScopedStore[models.Task, *models.Task]
	notifications *NotificationService
	now           func() time.Time
}

// NewTaskService constructs a TaskService.
func NewTaskService(db *gorm.DB, audit *AuditService, opts ...TaskOption) (*TaskService, error) {
	store, err := NewScopedStore[models.Task](db, audit, "task", "Task", taskListSpec)
	if err != nil {
		return nil, err
	}
	svc := &TaskService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *TaskService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Task], error) {
	return s.store.List(ctx, scope, q)
}

func (s *TaskService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Task, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *TaskService) Create(ctx context.Context, scope tenancy.Scope, input TaskInput) (*models.Task, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		return nil, apperrors.FieldError("title", "This field is required.")
	}

	task := &models.Task{
		Title:          strings.TrimSpace(*input.Title),
		Description:    deref(input.Description),
		Priority:       "medium",
		Status:         models.TaskPending,
		RecurrenceRule: deref(input.RecurrenceRule),
		AssignedToID:   optionalID(input.AssignedToID),
		ContactID:      optionalID(input.ContactID),
		CompanyID:      optionalID(input.CompanyID),
		OpportunityID:  optionalID(input.OpportunityID),
		ParentTaskID:   optionalID(input.ParentTaskID),
	}
	if input.DueDate != nil {
		due := input.DueDate.UTC()
		task.DueDate = &due
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if input.IsRecurring != nil {
		task.IsRecurring = *input.IsRecurring
	}
	if task.Status == models.TaskCompleted {
		now := s.now().UTC()
		task.CompletedAt = &now
	}

	if err := s.store.Create(ctx, scope, task, input.refs(), nil); err != nil {
		return nil, err
	}
	if task.AssignedToID != nil && *task.AssignedToID != scope.UserID {
		s.notifyAssignee(ctx, task)
	}
	return task, nil
}

func (s *TaskService) Update(ctx context.Context, scope tenancy.Scope, id string, input TaskInput) (*models.Task, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.ParentTaskID != nil && strings.TrimSpace(*input.ParentTaskID) == strings.TrimSpace(id) {
		return nil, apperrors.FieldError("parent_task", "A task cannot be its own parent.")
	}

	updates := input.updates()
	var previousAssignee *string
	task, err := s.store.Update(ctx, scope, id, updates, input.refs(), func(tx *gorm.DB, task *models.Task) error {
		previousAssignee = task.AssignedToID
		if updates["status"] == models.TaskCompleted && task.CompletedAt == nil {
			return tx.Model(task).Update("completed_at", s.now().UTC()).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reassigned(previousAssignee, task.AssignedToID) && *task.AssignedToID != scope.UserID {
		s.notifyAssignee(ctx, task)
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// Complete marks the task completed. completedAt defaults to now.
func (s *TaskService) Complete(ctx context.Context, scope tenancy.Scope, id string, completedAt *time.Time) (*models.Task, error) {
	at := s.now().UTC()
	if completedAt != nil && !completedAt.IsZero() {
		at = completedAt.UTC()
	}
	return s.store.Update(ctx, scope, id, map[string]any{
		"status":       models.TaskCompleted,
		"completed_at": at,
	}, nil, nil)
}

// MyTasks lists tasks assigned to the caller.
func (s *TaskService) MyTasks(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Task], error) {
	filters := make(map[string]string, len(q.Filters)+1)
	for k, v := range q.Filters {
		filters[k] = v
	}
	filters["assigned_to"] = scope.UserID
	q.Filters = filters
	return s.store.List(ctx, scope, q)
}

// Calendar returns tasks due within [start, end]. Zero bounds are open.
func (s *TaskService) Calendar(ctx context.Context, scope tenancy.Scope, start, end time.Time, q ListQuery) ([]CalendarEntry, error) {
	query, ok := s.store.Scoped(ctx, scope)
	if !ok {
		return []CalendarEntry{}, nil
	}
	query = taskListSpec.apply(query, "tasks", q.normalised())
	query = query.Where("tasks.due_date IS NOT NULL")
	if !start.IsZero() {
		query = query.Where("tasks.due_date >= ?", start.UTC())
	}
	if !end.IsZero() {
		query = query.Where("tasks.due_date <= ?", end.UTC())
	}

	var tasks []models.Task
	if err := query.Order("tasks.due_date ASC").Find(&tasks).Error; err != nil {
		return nil, s.store.translate(err, "calendar")
	}
	entries := make([]CalendarEntry, 0, len(tasks))
	for _, task := range tasks {
		entries = append(entries, CalendarEntry{ID: task.ID, Title: task.Title, DueDate: task.DueDate, Status: task.Status})
	}
	return entries, nil
}

func (s *TaskService) notifyAssignee(ctx context.Context, task *models.Task) {
	s.notifications.Notify(ensureContext(ctx), CreateNotificationInput{
		UserID:         *task.AssignedToID,
		OrganizationID: &task.OrganizationID,
		Type:           models.NotificationTaskAssigned,
		Title:          "New task assigned",
		Message:        fmt.Sprintf("You have been assigned %q.", task.Title),
		Link:           "/tasks/" + task.ID,
		Metadata:       map[string]any{"task_id": task.ID},
	})
}

func reassigned(before, after *string) bool {
	if after == nil {
		return false
	}
	return before == nil || *before != *after
}
