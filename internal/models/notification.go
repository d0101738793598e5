package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeEmergency NotificationType = "emergency"
	NotificationTypeInfo      NotificationType = "info"
	NotificationTypeSuccess   NotificationType = "success"
	NotificationTypeWarning   NotificationType = "warning"
)

type NotificationPriority string

const (
	NotificationPriorityHigh   NotificationPriority = "high"
	NotificationPriorityMedium NotificationPriority = "medium"
	NotificationPriorityLow    NotificationPriority = "low"
)

type NotificationAction string

const (
	ActionFriendRequest  NotificationAction = "friend_request"
	ActionFriendAccepted NotificationAction = "friend_accepted"
	ActionEmergencyAlert NotificationAction = "emergency_alert"
)

// Notification is an alert record for a single user. Rows are only ever
// created, read-toggled, or deleted; the payload itself never changes.
type Notification struct {
	ID            uuid.UUID            `json:"id"`
	UserID        uuid.UUID            `json:"user_id"`
	Type          NotificationType     `json:"type"`
	Title         string               `json:"title"`
	Message       string               `json:"message"`
	Priority      NotificationPriority `json:"priority"`
	ActionType    NotificationAction   `json:"action_type,omitempty"`
	ActionData    string               `json:"action_data,omitempty"`
	Location      string               `json:"location,omitempty"`
	Phone         string               `json:"phone,omitempty"`
	EmergencyType string               `json:"emergency_type,omitempty"`
	IsRead        bool                 `json:"is_read"`
	CreatedAt     time.Time            `json:"created_at"`
}
