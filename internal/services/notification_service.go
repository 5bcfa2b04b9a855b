package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/realtime"
	"github.com/charlesng35/crmhub/pkg/logger"
)

var notificationTypes = map[string]struct{}{
	models.NotificationTaskAssigned:   {},
	models.NotificationOpportunityWon: {},
	models.NotificationInvitation:     {},
	models.NotificationReportReady:    {},
	models.NotificationGeneric:        {},
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID         string
	OrganizationID *string
	Type           string
	Title          string
	Message        string
	Link           string
	Metadata       map[string]any
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification   *models.Notification `json:"notification,omitempty"`
	NotificationID string               `json:"notification_id,omitempty"`
	Unread         *int64               `json:"unread,omitempty"`
}

// NotificationOption customises NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationClock injects a custom clock.
func WithNotificationClock(clock func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NotificationService manages user in-app notifications.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
	now func() time.Time
}

// NewNotificationService constructs a NotificationService. hub may be nil.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	svc := &NotificationService{db: db, hub: hub, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

var notificationListSpec = ListSpec{
	SearchFields: []string{"title", "message"},
	Filters:      map[string]string{"type": "type", "is_read": "is_read", "organization": "organization_id"},
	Orderings:    map[string]string{"created_at": "created_at"},
	DefaultOrder: "notifications.created_at DESC",
	Custom: func(query *gorm.DB, filters map[string]string) *gorm.DB {
		if strings.EqualFold(strings.TrimSpace(filters["unread"]), "true") {
			query = query.Where("notifications.is_read = ?", false)
		}
		return query
	},
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, q ListQuery) (Page[models.Notification], error) {
	ctx = ensureContext(ctx)
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", strings.TrimSpace(userID))
	page, err := paginate[models.Notification](query, notificationListSpec, "notifications", q)
	if err != nil {
		return page, fmt.Errorf("notification service: %w", err)
	}
	return page, nil
}

// UnreadCount returns how many unread notifications the user has.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ensureContext(ctx)).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// Create registers a new notification and pushes it to connected clients.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	kind := strings.TrimSpace(input.Type)
	if kind == "" {
		kind = models.NotificationGeneric
	}
	if _, ok := notificationTypes[kind]; !ok {
		return nil, fmt.Errorf("notification service: unknown type %q", kind)
	}

	notification := models.Notification{
		UserID:         userID,
		OrganizationID: optionalID(input.OrganizationID),
		Type:           kind,
		Title:          strings.TrimSpace(input.Title),
		Message:        strings.TrimSpace(input.Message),
		Link:           strings.TrimSpace(input.Link),
	}
	if input.Metadata != nil {
		notification.Metadata = datatypes.JSONMap(input.Metadata)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	monitoring.RecordNotification(notification.Type)
	s.broadcast(userID, "notification.created", &NotificationEventPayload{Notification: &notification})
	return &notification, nil
}

// Notify creates a notification and logs instead of failing. Used by flows
// where the notification is a side effect of a committed change.
func (s *NotificationService) Notify(ctx context.Context, input CreateNotificationInput) {
	if s == nil {
		return
	}
	if _, err := s.Create(ctx, input); err != nil {
		logger.WithModule("notifications").Warn("failed to create notification",
			zap.String("user_id", input.UserID),
			zap.String("type", input.Type),
			zap.Error(err),
		)
	}
}

// MarkRead sets the read flag on one of the user's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	notification, err := s.load(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}
	if notification.IsRead {
		return notification, nil
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(notification).Updates(map[string]any{
		"is_read": true,
		"read_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}
	notification.IsRead = true
	notification.ReadAt = &now

	s.broadcast(userID, "notification.read", &NotificationEventPayload{NotificationID: notification.ID})
	return notification, nil
}

// MarkAllRead marks every unread notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{
			"is_read": true,
			"read_at": s.now().UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}

	var unread int64
	s.broadcast(userID, "notification.read_all", &NotificationEventPayload{Unread: &unread})
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("Notification")
	}

	s.broadcast(userID, "notification.deleted", &NotificationEventPayload{NotificationID: notificationID})
	return nil
}

func (s *NotificationService) load(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(notificationID), userID).
		Take(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Notification")
	}
	if err != nil {
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}
	return &notification, nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{
		Stream: realtime.StreamNotifications,
		Event:  event,
	}
	if payload != nil {
		message.Data = payload
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, message)
}
