package models

import "time"

// InvitationStatus enumerates the invitation lifecycle. Every state other than
// pending is terminal.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "PENDING"
	InvitationAccepted  InvitationStatus = "ACCEPTED"
	InvitationExpired   InvitationStatus = "EXPIRED"
	InvitationCancelled InvitationStatus = "CANCELLED"
)

// Invitation offers an email address a membership in an organization.
//
// PendingKey carries the email while the invitation is pending and is NULL
// otherwise, so the unique (organization_id, pending_key) index admits only
// one pending invitation per address.
type Invitation struct {
	BaseModel

	OrganizationID string           `gorm:"type:uuid;not null;index;uniqueIndex:idx_invitation_pending,priority:1" json:"organization"`
	Email          string           `gorm:"not null;index" json:"email"`
	RoleID         *string          `gorm:"type:uuid;index" json:"role_id"`
	Role           *Role            `gorm:"foreignKey:RoleID;constraint:OnDelete:SET NULL" json:"role,omitempty"`
	Teams          []Team           `gorm:"many2many:invitation_teams;" json:"teams,omitempty"`
	TokenHash      string           `gorm:"uniqueIndex;not null" json:"-"`
	Status         InvitationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	PendingKey     *string          `gorm:"uniqueIndex:idx_invitation_pending,priority:2" json:"-"`
	ExpiresAt      time.Time        `gorm:"index" json:"expires_at"`
	AcceptedAt     *time.Time       `json:"accepted_at"`
	InvitedByID    *string          `gorm:"type:uuid" json:"invited_by"`
	AcceptedByID   *string          `gorm:"type:uuid" json:"accepted_by"`
}

// IsPending reports whether the invitation can still transition.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationPending
}
