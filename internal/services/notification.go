package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

const notificationsTable = "notifications"

type CreateNotificationParams struct {
	UserID        uuid.UUID
	Type          models.NotificationType
	Title         string
	Message       string
	Priority      models.NotificationPriority
	ActionType    models.NotificationAction
	ActionData    string
	Location      string
	Phone         string
	EmergencyType string
}

type NotificationListParams struct {
	Limit      int
	Before     *time.Time
	UnreadOnly bool
}

type NotificationService struct {
	db       DB
	feed     ChangeFeed
	email    EmailSender
	async    func(fn func())
	asyncCtx context.Context
}

func NewNotificationService(db DB, feed ChangeFeed, email EmailSender) *NotificationService {
	return &NotificationService{
		db:    db,
		feed:  feed,
		email: email,
		async: func(fn func()) {
			go fn()
		},
		asyncCtx: context.Background(),
	}
}

// SetAsync replaces the goroutine runner, letting tests run dispatch inline.
func (s *NotificationService) SetAsync(fn func(fn func())) {
	s.async = fn
}

func (s *NotificationService) SetAsyncContext(ctx context.Context) {
	if ctx == nil {
		s.asyncCtx = context.Background()
		return
	}
	s.asyncCtx = ctx
}

// Notify creates an alert record for the target user. It is best-effort by
// contract: any failure is logged and swallowed so the triggering workflow
// is never aborted by its advisory notification.
func (s *NotificationService) Notify(ctx context.Context, params CreateNotificationParams) {
	if _, err := s.Create(ctx, params); err != nil {
		logging.Warn("Failed to create notification", map[string]interface{}{
			"user_id": params.UserID.String(),
			"type":    string(params.Type),
			"error":   err.Error(),
		})
	}
}

// Create inserts the alert row and reports failure to the caller. Fan-out
// paths that need to count successes use this instead of Notify.
func (s *NotificationService) Create(ctx context.Context, params CreateNotificationParams) (*models.Notification, error) {
	if params.UserID == uuid.Nil {
		return nil, missingField("user_id")
	}
	if params.Title == "" {
		return nil, missingField("title")
	}
	if params.Type == "" {
		params.Type = models.NotificationTypeInfo
	}
	if params.Priority == "" {
		params.Priority = models.NotificationPriorityMedium
	}

	n := &models.Notification{}
	var actionType, actionData, location, phone, emergencyType *string
	err := s.db.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, message, priority, action_type, action_data, location, phone, emergency_type)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''))
		 RETURNING id, user_id, type, title, message, priority, action_type, action_data, location, phone, emergency_type, is_read, created_at`,
		params.UserID, string(params.Type), params.Title, params.Message, string(params.Priority),
		string(params.ActionType), params.ActionData, params.Location, params.Phone, params.EmergencyType,
	).Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority,
		&actionType, &actionData, &location, &phone, &emergencyType, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	n.ActionType = models.NotificationAction(deref(actionType))
	n.ActionData = deref(actionData)
	n.Location = deref(location)
	n.Phone = deref(phone)
	n.EmergencyType = deref(emergencyType)

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  notificationsTable,
		Op:     ChangeOpInsert,
		RowID:  n.ID,
		UserID: n.UserID,
	})

	if n.Type == models.NotificationTypeEmergency {
		s.dispatchEmail(n)
	}

	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, params NotificationListParams) ([]models.Notification, error) {
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT id, user_id, type, title, message, priority, action_type, action_data, location, phone, emergency_type, is_read, created_at
	          FROM notifications
	          WHERE user_id = $1`
	args := []any{userID}
	idx := 2

	if params.Before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, *params.Before)
		idx++
	}
	if params.UnreadOnly {
		query += " AND is_read = false"
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		var actionType, actionData, location, phone, emergencyType *string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Priority,
			&actionType, &actionData, &location, &phone, &emergencyType, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		n.ActionType = models.NotificationAction(deref(actionType))
		n.ActionData = deref(actionData)
		n.Location = deref(location)
		n.Phone = deref(phone)
		n.EmergencyType = deref(emergencyType)
		notifications = append(notifications, n)
	}

	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.setRead(ctx, userID, notificationID, true)
}

// MarkUnread restores the unread state; the client uses it to roll back an
// optimistic read-toggle when a later sync fails.
func (s *NotificationService) MarkUnread(ctx context.Context, userID, notificationID uuid.UUID) error {
	return s.setRead(ctx, userID, notificationID, false)
}

func (s *NotificationService) setRead(ctx context.Context, userID, notificationID uuid.UUID, read bool) error {
	result, err := s.db.Exec(ctx,
		"UPDATE notifications SET is_read = $3 WHERE id = $1 AND user_id = $2",
		notificationID, userID, read,
	)
	if err != nil {
		return fmt.Errorf("updating notification read state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  notificationsTable,
		Op:     ChangeOpUpdate,
		RowID:  notificationID,
		UserID: userID,
	})
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		"UPDATE notifications SET is_read = true WHERE user_id = $1 AND is_read = false",
		userID,
	)
	if err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  notificationsTable,
		Op:     ChangeOpUpdate,
		UserID: userID,
	})
	return nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	result, err := s.db.Exec(ctx,
		"DELETE FROM notifications WHERE id = $1 AND user_id = $2",
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  notificationsTable,
		Op:     ChangeOpDelete,
		RowID:  notificationID,
		UserID: userID,
	})
	return nil
}

func (s *NotificationService) CleanupOld(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "DELETE FROM notifications WHERE created_at < NOW() - INTERVAL '1 year'")
	if err != nil {
		return fmt.Errorf("cleanup notifications: %w", err)
	}
	return nil
}

// dispatchEmail mirrors emergency alerts to email when a provider is
// configured. Always best-effort and off the request path.
func (s *NotificationService) dispatchEmail(n *models.Notification) {
	if s.email == nil || s.async == nil {
		return
	}

	notification := *n
	s.async(func() {
		baseCtx := s.asyncCtx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		ctx, cancel := context.WithTimeout(baseCtx, 10*time.Second)
		defer cancel()

		if err := s.email.SendAlertEmail(ctx, notification.UserID, notification.Title, notification.Message, notification.Location); err != nil {
			logging.Warn("Failed to send alert email", map[string]interface{}{
				"notification_id": notification.ID.String(),
				"error":           err.Error(),
			})
		}
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
