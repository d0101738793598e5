package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

type UserService struct {
	db DB
}

func NewUserService(db DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) Create(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", params.Email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking email existence: %w", err)
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	user := &models.User{}
	err = s.db.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, display_name, phone)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, email, password_hash, display_name, phone, created_at, updated_at`,
		params.Email, params.PasswordHash, params.DisplayName, params.Phone,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Phone, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	// The profile row is advisory; signup must not fail over it.
	if err := s.EnsureProfile(ctx, user); err != nil {
		logging.Warn("Failed to create profile at signup", map[string]interface{}{
			"user_id": user.ID.String(),
			"error":   err.Error(),
		})
	}

	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, phone, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Phone, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`SELECT id, email, password_hash, display_name, phone, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Phone, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return user, nil
}

// EnsureProfile creates the user's directory row if it is missing.
// Safe to call repeatedly.
func (s *UserService) EnsureProfile(ctx context.Context, user *models.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO profiles (user_id, full_name, email, phone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING`,
		user.ID, user.DisplayName, user.Email, user.Phone,
	)
	if err != nil {
		return fmt.Errorf("ensuring profile: %w", err)
	}
	return nil
}

// ResolveUserID maps an id that may be either a user id or a profile row id
// to the canonical user id. All relationship and notification writes go
// through this so profile-keyed ids never leak into foreign keys.
func (s *UserService) ResolveUserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving user id: %w", err)
	}
	if exists {
		return id, nil
	}

	var userID *uuid.UUID
	err = s.db.QueryRow(ctx, "SELECT user_id FROM profiles WHERE id = $1", id).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrUserNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving profile id: %w", err)
	}
	if userID == nil {
		return uuid.Nil, ErrUserNotFound
	}
	return *userID, nil
}
