package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
)

// UserServiceInterface defines the contract for user operations.
type UserServiceInterface interface {
	Create(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EnsureProfile(ctx context.Context, user *models.User) error
	ResolveUserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// AuthServiceInterface defines the contract for authentication operations.
type AuthServiceInterface interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash, password string) bool
	CreateSession(ctx context.Context, userID uuid.UUID) (token string, err error)
	ValidateSession(ctx context.Context, token string) (*models.User, error)
	DeleteSession(ctx context.Context, token string) error
}

// FriendServiceInterface defines the contract for relationship operations.
type FriendServiceInterface interface {
	SearchUsers(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error)
	SendRequest(ctx context.Context, fromID uuid.UUID, fromName string, toID uuid.UUID, toName string) (*models.FriendRequest, error)
	AcceptRequest(ctx context.Context, userID, requestID uuid.UUID) error
	RejectRequest(ctx context.Context, userID, requestID uuid.UUID) error
	ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
	ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	ListSentRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	RemoveFriend(ctx context.Context, userID, friendshipID uuid.UUID) error
	IsFriend(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error)
	HasPendingRequest(ctx context.Context, fromID, toID uuid.UUID) (bool, error)
}

// NotificationServiceInterface defines the contract for alert operations.
type NotificationServiceInterface interface {
	List(ctx context.Context, userID uuid.UUID, params NotificationListParams) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkUnread(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, userID, notificationID uuid.UUID) error
}

// EmergencyServiceInterface defines the contract for emergency operations.
type EmergencyServiceInterface interface {
	SubmitReport(ctx context.Context, params SubmitReportParams) (*models.EmergencyReport, error)
	RecentReports(ctx context.Context, limit int) ([]models.EmergencyReport, error)
	ReportsByArea(ctx context.Context, area string, limit int) ([]models.EmergencyReport, error)
	UpdateStatus(ctx context.Context, reportID uuid.UUID, status models.EmergencyStatus) error
	SendSOSToFriends(ctx context.Context, params SOSParams) (int, error)
}
