package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/services"
)

type mockUserService struct {
	CreateFunc        func(ctx context.Context, params models.CreateUserParams) (*models.User, error)
	GetByIDFunc       func(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	EnsureProfileFunc func(ctx context.Context, user *models.User) error
	ResolveUserIDFunc func(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

func (m *mockUserService) Create(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &models.User{ID: uuid.New(), Email: params.Email, DisplayName: params.DisplayName}, nil
}

func (m *mockUserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *mockUserService) EnsureProfile(ctx context.Context, user *models.User) error {
	if m.EnsureProfileFunc != nil {
		return m.EnsureProfileFunc(ctx, user)
	}
	return nil
}

func (m *mockUserService) ResolveUserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	if m.ResolveUserIDFunc != nil {
		return m.ResolveUserIDFunc(ctx, id)
	}
	return id, nil
}

type mockAuthService struct {
	HashPasswordFunc    func(password string) (string, error)
	VerifyPasswordFunc  func(hash, password string) bool
	CreateSessionFunc   func(ctx context.Context, userID uuid.UUID) (string, error)
	ValidateSessionFunc func(ctx context.Context, token string) (*models.User, error)
	DeleteSessionFunc   func(ctx context.Context, token string) error
}

func (m *mockAuthService) HashPassword(password string) (string, error) {
	if m.HashPasswordFunc != nil {
		return m.HashPasswordFunc(password)
	}
	return "hashed_" + password, nil
}

func (m *mockAuthService) VerifyPassword(hash, password string) bool {
	if m.VerifyPasswordFunc != nil {
		return m.VerifyPasswordFunc(hash, password)
	}
	return hash == "hashed_"+password
}

func (m *mockAuthService) CreateSession(ctx context.Context, userID uuid.UUID) (string, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, userID)
	}
	return "test_session_token", nil
}

func (m *mockAuthService) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	if m.ValidateSessionFunc != nil {
		return m.ValidateSessionFunc(ctx, token)
	}
	return nil, nil
}

func (m *mockAuthService) DeleteSession(ctx context.Context, token string) error {
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, token)
	}
	return nil
}

type mockFriendService struct {
	SearchUsersFunc         func(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error)
	SendRequestFunc         func(ctx context.Context, fromID uuid.UUID, fromName string, toID uuid.UUID, toName string) (*models.FriendRequest, error)
	AcceptRequestFunc       func(ctx context.Context, userID, requestID uuid.UUID) error
	RejectRequestFunc       func(ctx context.Context, userID, requestID uuid.UUID) error
	ListFriendsFunc         func(ctx context.Context, userID uuid.UUID) ([]models.Friend, error)
	ListPendingRequestsFunc func(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	ListSentRequestsFunc    func(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error)
	RemoveFriendFunc        func(ctx context.Context, userID, friendshipID uuid.UUID) error
	IsFriendFunc            func(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error)
	HasPendingRequestFunc   func(ctx context.Context, fromID, toID uuid.UUID) (bool, error)
}

func (m *mockFriendService) SearchUsers(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error) {
	if m.SearchUsersFunc != nil {
		return m.SearchUsersFunc(ctx, currentUserID, query)
	}
	return []models.UserSearchResult{}, nil
}

func (m *mockFriendService) SendRequest(ctx context.Context, fromID uuid.UUID, fromName string, toID uuid.UUID, toName string) (*models.FriendRequest, error) {
	if m.SendRequestFunc != nil {
		return m.SendRequestFunc(ctx, fromID, fromName, toID, toName)
	}
	return &models.FriendRequest{}, nil
}

func (m *mockFriendService) AcceptRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	if m.AcceptRequestFunc != nil {
		return m.AcceptRequestFunc(ctx, userID, requestID)
	}
	return nil
}

func (m *mockFriendService) RejectRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	if m.RejectRequestFunc != nil {
		return m.RejectRequestFunc(ctx, userID, requestID)
	}
	return nil
}

func (m *mockFriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	if m.ListFriendsFunc != nil {
		return m.ListFriendsFunc(ctx, userID)
	}
	return []models.Friend{}, nil
}

func (m *mockFriendService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	if m.ListPendingRequestsFunc != nil {
		return m.ListPendingRequestsFunc(ctx, userID)
	}
	return []models.FriendRequest{}, nil
}

func (m *mockFriendService) ListSentRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	if m.ListSentRequestsFunc != nil {
		return m.ListSentRequestsFunc(ctx, userID)
	}
	return []models.FriendRequest{}, nil
}

func (m *mockFriendService) RemoveFriend(ctx context.Context, userID, friendshipID uuid.UUID) error {
	if m.RemoveFriendFunc != nil {
		return m.RemoveFriendFunc(ctx, userID, friendshipID)
	}
	return nil
}

func (m *mockFriendService) IsFriend(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error) {
	if m.IsFriendFunc != nil {
		return m.IsFriendFunc(ctx, userID, otherUserID)
	}
	return false, nil
}

func (m *mockFriendService) HasPendingRequest(ctx context.Context, fromID, toID uuid.UUID) (bool, error) {
	if m.HasPendingRequestFunc != nil {
		return m.HasPendingRequestFunc(ctx, fromID, toID)
	}
	return false, nil
}

type mockNotificationService struct {
	ListFunc        func(ctx context.Context, userID uuid.UUID, params services.NotificationListParams) ([]models.Notification, error)
	MarkReadFunc    func(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkUnreadFunc  func(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllReadFunc func(ctx context.Context, userID uuid.UUID) error
	UnreadCountFunc func(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteFunc      func(ctx context.Context, userID, notificationID uuid.UUID) error
}

func (m *mockNotificationService) List(ctx context.Context, userID uuid.UUID, params services.NotificationListParams) ([]models.Notification, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, userID, params)
	}
	return []models.Notification{}, nil
}

func (m *mockNotificationService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if m.MarkReadFunc != nil {
		return m.MarkReadFunc(ctx, userID, notificationID)
	}
	return nil
}

func (m *mockNotificationService) MarkUnread(ctx context.Context, userID, notificationID uuid.UUID) error {
	if m.MarkUnreadFunc != nil {
		return m.MarkUnreadFunc(ctx, userID, notificationID)
	}
	return nil
}

func (m *mockNotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	if m.MarkAllReadFunc != nil {
		return m.MarkAllReadFunc(ctx, userID)
	}
	return nil
}

func (m *mockNotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	if m.UnreadCountFunc != nil {
		return m.UnreadCountFunc(ctx, userID)
	}
	return 0, nil
}

func (m *mockNotificationService) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, notificationID)
	}
	return nil
}

type mockEmergencyService struct {
	SubmitReportFunc     func(ctx context.Context, params services.SubmitReportParams) (*models.EmergencyReport, error)
	RecentReportsFunc    func(ctx context.Context, limit int) ([]models.EmergencyReport, error)
	ReportsByAreaFunc    func(ctx context.Context, area string, limit int) ([]models.EmergencyReport, error)
	UpdateStatusFunc     func(ctx context.Context, reportID uuid.UUID, status models.EmergencyStatus) error
	SendSOSToFriendsFunc func(ctx context.Context, params services.SOSParams) (int, error)
}

func (m *mockEmergencyService) SubmitReport(ctx context.Context, params services.SubmitReportParams) (*models.EmergencyReport, error) {
	if m.SubmitReportFunc != nil {
		return m.SubmitReportFunc(ctx, params)
	}
	return &models.EmergencyReport{}, nil
}

func (m *mockEmergencyService) RecentReports(ctx context.Context, limit int) ([]models.EmergencyReport, error) {
	if m.RecentReportsFunc != nil {
		return m.RecentReportsFunc(ctx, limit)
	}
	return []models.EmergencyReport{}, nil
}

func (m *mockEmergencyService) ReportsByArea(ctx context.Context, area string, limit int) ([]models.EmergencyReport, error) {
	if m.ReportsByAreaFunc != nil {
		return m.ReportsByAreaFunc(ctx, area, limit)
	}
	return []models.EmergencyReport{}, nil
}

func (m *mockEmergencyService) UpdateStatus(ctx context.Context, reportID uuid.UUID, status models.EmergencyStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, reportID, status)
	}
	return nil
}

func (m *mockEmergencyService) SendSOSToFriends(ctx context.Context, params services.SOSParams) (int, error) {
	if m.SendSOSToFriendsFunc != nil {
		return m.SendSOSToFriendsFunc(ctx, params)
	}
	return 0, nil
}
