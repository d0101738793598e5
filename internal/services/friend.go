package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/models"
)

var (
	ErrRequestNotFound        = errors.New("friend request not found")
	ErrRequestExists          = errors.New("a pending friend request already exists")
	ErrCannotFriendSelf       = errors.New("cannot send a friend request to yourself")
	ErrRequestAlreadyResolved = errors.New("friend request already resolved")
	ErrNotRequestRecipient    = errors.New("only the recipient can accept or reject")
	ErrFriendshipNotFound     = errors.New("friendship not found")
)

const (
	friendsTable        = "friends"
	friendRequestsTable = "friend_requests"

	uniqueViolationCode = "23505"
)

// UserResolver maps possibly profile-keyed ids to canonical user ids.
type UserResolver interface {
	ResolveUserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
}

// Notifier is the best-effort alert sink used by workflows.
type Notifier interface {
	Notify(ctx context.Context, params CreateNotificationParams)
}

type FriendService struct {
	db            DB
	users         UserResolver
	notifications Notifier
	feed          ChangeFeed
}

func NewFriendService(db DB, users UserResolver, notifications Notifier, feed ChangeFeed) *FriendService {
	return &FriendService{
		db:            db,
		users:         users,
		notifications: notifications,
		feed:          feed,
	}
}

// SearchUsers matches display name or email case-insensitively, excluding
// the caller. Directory rows are resolved to canonical user ids in the query
// itself: legacy profiles without user_id are keyed by the user's id.
func (s *FriendService) SearchUsers(ctx context.Context, currentUserID uuid.UUID, query string) ([]models.UserSearchResult, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return []models.UserSearchResult{}, nil
	}

	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := s.db.Query(ctx,
		`SELECT COALESCE(p.user_id, p.id), p.full_name, p.email
		 FROM profiles p
		 WHERE COALESCE(p.user_id, p.id) != $1
		   AND (LOWER(p.full_name) LIKE $2 OR LOWER(p.email) LIKE $2)
		 ORDER BY p.full_name
		 LIMIT 50`,
		currentUserID, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("searching users: %w", err)
	}
	defer rows.Close()

	var results []models.UserSearchResult
	for rows.Next() {
		var r models.UserSearchResult
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.Email); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		results = append(results, r)
	}

	if results == nil {
		results = []models.UserSearchResult{}
	}
	return results, nil
}

// SendRequest creates a pending request from→to. The target id may be a
// profile row id; it is resolved before any check. A pending request in
// either direction blocks a new one. The partial unique index backs up the
// pre-insert check, so a concurrent duplicate surfaces as ErrRequestExists
// instead of a second pending row.
func (s *FriendService) SendRequest(ctx context.Context, fromID uuid.UUID, fromName string, toID uuid.UUID, toName string) (*models.FriendRequest, error) {
	resolvedTo, err := s.users.ResolveUserID(ctx, toID)
	if err != nil {
		return nil, err
	}

	if fromID == resolvedTo {
		return nil, ErrCannotFriendSelf
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE ((from_user_id = $1 AND to_user_id = $2)
			    OR (from_user_id = $2 AND to_user_id = $1))
			  AND status = 'pending'
		)`,
		fromID, resolvedTo,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking existing request: %w", err)
	}
	if exists {
		return nil, ErrRequestExists
	}

	request := &models.FriendRequest{}
	err = s.db.QueryRow(ctx,
		`INSERT INTO friend_requests (from_user_id, to_user_id, from_user_name, to_user_name, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING id, from_user_id, to_user_id, from_user_name, to_user_name, status, created_at`,
		fromID, resolvedTo, fromName, toName,
	).Scan(&request.ID, &request.FromUserID, &request.ToUserID, &request.FromUserName, &request.ToUserName, &request.Status, &request.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrRequestExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating friend request: %w", err)
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  friendRequestsTable,
		Op:     ChangeOpInsert,
		RowID:  request.ID,
		UserID: request.ToUserID,
	})

	s.notifications.Notify(ctx, CreateNotificationParams{
		UserID:     request.ToUserID,
		Type:       models.NotificationTypeInfo,
		Title:      "New Friend Request",
		Message:    fmt.Sprintf("%s sent you a friend request", fromName),
		Priority:   models.NotificationPriorityMedium,
		ActionType: models.ActionFriendRequest,
		ActionData: request.ID.String(),
	})

	return request, nil
}

// AcceptRequest flips the request to accepted and inserts both directed
// friend rows in one transaction, so a crash cannot leave a one-sided
// friendship. Only the recipient may accept, and only while pending.
func (s *FriendService) AcceptRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	request, err := s.getByID(ctx, requestID)
	if err != nil {
		return err
	}

	if request.ToUserID != userID {
		return ErrNotRequestRecipient
	}
	if request.Status != models.FriendRequestStatusPending {
		return ErrRequestAlreadyResolved
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx,
		"UPDATE friend_requests SET status = 'accepted' WHERE id = $1 AND status = 'pending'",
		requestID,
	)
	if err != nil {
		return fmt.Errorf("accepting friend request: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Lost a race with another resolution of the same request.
		return ErrRequestAlreadyResolved
	}

	if err := insertFriendPair(ctx, tx, request); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing friendship: %w", err)
	}

	for _, uid := range []uuid.UUID{request.FromUserID, request.ToUserID} {
		publishChange(ctx, s.feed, ChangeEvent{Table: friendsTable, Op: ChangeOpInsert, UserID: uid})
	}
	publishChange(ctx, s.feed, ChangeEvent{
		Table:  friendRequestsTable,
		Op:     ChangeOpUpdate,
		RowID:  request.ID,
		UserID: request.ToUserID,
	})

	s.notifications.Notify(ctx, CreateNotificationParams{
		UserID:     request.FromUserID,
		Type:       models.NotificationTypeSuccess,
		Title:      "Friend Request Accepted",
		Message:    fmt.Sprintf("%s accepted your friend request", request.ToUserName),
		Priority:   models.NotificationPriorityMedium,
		ActionType: models.ActionFriendAccepted,
		ActionData: request.ID.String(),
	})

	return nil
}

// RejectRequest moves a pending request to its rejected terminal state.
// No friend rows, no notification.
func (s *FriendService) RejectRequest(ctx context.Context, userID, requestID uuid.UUID) error {
	request, err := s.getByID(ctx, requestID)
	if err != nil {
		return err
	}

	if request.ToUserID != userID {
		return ErrNotRequestRecipient
	}
	if request.Status != models.FriendRequestStatusPending {
		return ErrRequestAlreadyResolved
	}

	result, err := s.db.Exec(ctx,
		"UPDATE friend_requests SET status = 'rejected' WHERE id = $1 AND status = 'pending'",
		requestID,
	)
	if err != nil {
		return fmt.Errorf("rejecting friend request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrRequestAlreadyResolved
	}

	publishChange(ctx, s.feed, ChangeEvent{
		Table:  friendRequestsTable,
		Op:     ChangeOpUpdate,
		RowID:  request.ID,
		UserID: request.ToUserID,
	})

	return nil
}

// EnsureFriendRows re-creates any missing directed rows for an accepted
// request. Safe to re-drive: it is the recovery path for interrupted
// accepts from before the transactional flow, and a no-op otherwise.
func (s *FriendService) EnsureFriendRows(ctx context.Context, requestID uuid.UUID) error {
	request, err := s.getByID(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != models.FriendRequestStatusAccepted {
		return nil
	}
	return insertFriendPair(ctx, s.db, request)
}

func insertFriendPair(ctx context.Context, conn DBConn, request *models.FriendRequest) error {
	_, err := conn.Exec(ctx,
		`INSERT INTO friends (user_id, friend_id, friend_name, friend_email, status)
		 SELECT $1, $2, u.display_name, u.email, 'active' FROM users u WHERE u.id = $2
		 UNION ALL
		 SELECT $2, $1, u.display_name, u.email, 'active' FROM users u WHERE u.id = $1
		 ON CONFLICT (user_id, friend_id) DO NOTHING`,
		request.FromUserID, request.ToUserID,
	)
	if err != nil {
		return fmt.Errorf("inserting friend rows: %w", err)
	}
	return nil
}

func (s *FriendService) ListFriends(ctx context.Context, userID uuid.UUID) ([]models.Friend, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, friend_id, friend_name, friend_email, status, created_at
		 FROM friends
		 WHERE user_id = $1 AND status = 'active'
		 ORDER BY friend_name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	defer rows.Close()

	var friends []models.Friend
	for rows.Next() {
		var f models.Friend
		if err := rows.Scan(&f.ID, &f.UserID, &f.FriendID, &f.FriendName, &f.FriendEmail, &f.Status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning friend: %w", err)
		}
		friends = append(friends, f)
	}

	if friends == nil {
		friends = []models.Friend{}
	}
	return friends, nil
}

func (s *FriendService) ListPendingRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	return s.listRequests(ctx, "to_user_id", userID)
}

func (s *FriendService) ListSentRequests(ctx context.Context, userID uuid.UUID) ([]models.FriendRequest, error) {
	return s.listRequests(ctx, "from_user_id", userID)
}

func (s *FriendService) listRequests(ctx context.Context, column string, userID uuid.UUID) ([]models.FriendRequest, error) {
	query := fmt.Sprintf(
		`SELECT id, from_user_id, to_user_id, from_user_name, to_user_name, status, created_at
		 FROM friend_requests
		 WHERE %s = $1 AND status = 'pending'
		 ORDER BY created_at DESC`,
		column,
	)

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing friend requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		var r models.FriendRequest
		if err := rows.Scan(&r.ID, &r.FromUserID, &r.ToUserID, &r.FromUserName, &r.ToUserName, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning friend request: %w", err)
		}
		requests = append(requests, r)
	}

	if requests == nil {
		requests = []models.FriendRequest{}
	}
	return requests, nil
}

// WatchFriends delivers an initial snapshot and a fresh one after every
// relevant change event. The returned func stops the subscription; leaking
// it keeps the feed channel open for the process lifetime.
func (s *FriendService) WatchFriends(ctx context.Context, userID uuid.UUID, onUpdate func([]models.Friend)) (func(), error) {
	snapshot, err := s.ListFriends(ctx, userID)
	if err != nil {
		return nil, err
	}
	onUpdate(snapshot)

	return s.feed.Subscribe(friendsTable, func(event ChangeEvent) {
		if event.UserID != userID {
			return
		}
		fresh, err := s.ListFriends(ctx, userID)
		if err != nil {
			logging.Warn("Failed to refresh friends snapshot", map[string]interface{}{
				"user_id": userID.String(),
				"error":   err.Error(),
			})
			return
		}
		onUpdate(fresh)
	})
}

// WatchPendingRequests is WatchFriends for the incoming request list.
func (s *FriendService) WatchPendingRequests(ctx context.Context, userID uuid.UUID, onUpdate func([]models.FriendRequest)) (func(), error) {
	snapshot, err := s.ListPendingRequests(ctx, userID)
	if err != nil {
		return nil, err
	}
	onUpdate(snapshot)

	return s.feed.Subscribe(friendRequestsTable, func(event ChangeEvent) {
		if event.UserID != userID {
			return
		}
		fresh, err := s.ListPendingRequests(ctx, userID)
		if err != nil {
			logging.Warn("Failed to refresh pending requests snapshot", map[string]interface{}{
				"user_id": userID.String(),
				"error":   err.Error(),
			})
			return
		}
		onUpdate(fresh)
	})
}

// RemoveFriend deletes the caller's row and its reciprocal together, so
// unfriending never strands a one-sided row.
func (s *FriendService) RemoveFriend(ctx context.Context, userID, friendshipID uuid.UUID) error {
	var ownerID, friendID uuid.UUID
	err := s.db.QueryRow(ctx,
		"SELECT user_id, friend_id FROM friends WHERE id = $1",
		friendshipID,
	).Scan(&ownerID, &friendID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrFriendshipNotFound
	}
	if err != nil {
		return fmt.Errorf("getting friendship: %w", err)
	}

	if ownerID != userID {
		return ErrFriendshipNotFound
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`DELETE FROM friends
		 WHERE (user_id = $1 AND friend_id = $2)
		    OR (user_id = $2 AND friend_id = $1)`,
		ownerID, friendID,
	)
	if err != nil {
		return fmt.Errorf("removing friendship: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing friendship removal: %w", err)
	}

	for _, uid := range []uuid.UUID{ownerID, friendID} {
		publishChange(ctx, s.feed, ChangeEvent{Table: friendsTable, Op: ChangeOpDelete, UserID: uid})
	}

	return nil
}

func (s *FriendService) IsFriend(ctx context.Context, userID, otherUserID uuid.UUID) (bool, error) {
	var isFriend bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM friends
			WHERE user_id = $1 AND friend_id = $2 AND status = 'active'
		)`,
		userID, otherUserID,
	).Scan(&isFriend)
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return isFriend, nil
}

func (s *FriendService) HasPendingRequest(ctx context.Context, fromID, toID uuid.UUID) (bool, error) {
	var pending bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM friend_requests
			WHERE from_user_id = $1 AND to_user_id = $2 AND status = 'pending'
		)`,
		fromID, toID,
	).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("checking pending request: %w", err)
	}
	return pending, nil
}

func (s *FriendService) getByID(ctx context.Context, requestID uuid.UUID) (*models.FriendRequest, error) {
	request := &models.FriendRequest{}
	err := s.db.QueryRow(ctx,
		`SELECT id, from_user_id, to_user_id, from_user_name, to_user_name, status, created_at
		 FROM friend_requests WHERE id = $1`,
		requestID,
	).Scan(&request.ID, &request.FromUserID, &request.ToUserID, &request.FromUserName, &request.ToUserName, &request.Status, &request.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting friend request: %w", err)
	}
	return request, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
