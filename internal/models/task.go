package models

import "time"

// Task statuses.
const (
	TaskPending    = "pending"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

// Task is a to-do item, optionally linked to CRM records.
type Task struct {
	TenantModel

	Title          string     `gorm:"not null" json:"title"`
	Description    string     `gorm:"type:text" json:"description"`
	DueDate        *time.Time `gorm:"index" json:"due_date"`
	Priority       string     `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`
	Status         string     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	IsRecurring    bool       `gorm:"default:false" json:"is_recurring"`
	RecurrenceRule string     `json:"recurrence_rule"`
	CompletedAt    *time.Time `json:"completed_at"`

	AssignedToID  *string      `gorm:"type:uuid;index" json:"assigned_to"`
	AssignedTo    *User        `gorm:"foreignKey:AssignedToID;constraint:OnDelete:SET NULL" json:"-"`
	ContactID     *string      `gorm:"type:uuid;index" json:"contact"`
	Contact       *Contact     `gorm:"foreignKey:ContactID;constraint:OnDelete:SET NULL" json:"-"`
	CompanyID     *string      `gorm:"type:uuid;index" json:"company"`
	Company       *Company     `gorm:"foreignKey:CompanyID;constraint:OnDelete:SET NULL" json:"-"`
	OpportunityID *string      `gorm:"type:uuid;index" json:"opportunity"`
	Opportunity   *Opportunity `gorm:"foreignKey:OpportunityID;constraint:OnDelete:SET NULL" json:"-"`
	ParentTaskID  *string      `gorm:"type:uuid;index" json:"parent_task"`
	ParentTask    *Task        `gorm:"foreignKey:ParentTaskID;constraint:OnDelete:SET NULL" json:"-"`
}
