package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType is the visual kind of a notification.
type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
	NotificationTypeSystem  NotificationType = "system"
)

// NotificationCategory groups notifications by subject.
type NotificationCategory string

const (
	CategoryGeneral   NotificationCategory = "general"
	CategoryAccount   NotificationCategory = "account"
	CategorySecurity  NotificationCategory = "security"
	CategorySocial    NotificationCategory = "social"
	CategoryPromotion NotificationCategory = "promotion"
	CategorySystem    NotificationCategory = "system"
)

// NotificationPriority orders notifications by urgency.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

var (
	notificationTypes = []NotificationType{
		NotificationTypeInfo, NotificationTypeSuccess, NotificationTypeWarning,
		NotificationTypeError, NotificationTypeSystem,
	}
	notificationCategories = []NotificationCategory{
		CategoryGeneral, CategoryAccount, CategorySecurity,
		CategorySocial, CategoryPromotion, CategorySystem,
	}
	notificationPriorities = []NotificationPriority{
		PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent,
	}
)

func ParseNotificationType(s string) (NotificationType, error) {
	return parseEnum(s, notificationTypes, "notification type")
}

func ParseNotificationCategory(s string) (NotificationCategory, error) {
	return parseEnum(s, notificationCategories, "notification category")
}

func ParseNotificationPriority(s string) (NotificationPriority, error) {
	return parseEnum(s, notificationPriorities, "notification priority")
}

func parseEnum[T ~string](s string, valid []T, what string) (T, error) {
	for _, v := range valid {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown %s %q", what, s)
}

// Notification is a server-owned record; the client only reads it, marks it
// read, or deletes it.
type Notification struct {
	ID       uuid.UUID            `json:"id"`
	UserID   uuid.UUID            `json:"user_id"`
	Title    string               `json:"title"`
	Body     string               `json:"body"`
	Type     NotificationType     `json:"type"`
	Category NotificationCategory `json:"category"`
	Priority NotificationPriority `json:"priority"`
	IsRead   bool                 `json:"is_read"`

	// Data is an arbitrary JSON object attached by the sender (deep links,
	// related ids).
	Data json.RawMessage `json:"data,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the notification has an expiry not after now.
func (n Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !now.Before(*n.ExpiresAt)
}
