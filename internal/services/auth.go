package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/models"
)

const (
	bcryptCost       = 12
	sessionDuration  = 30 * 24 * time.Hour
	sessionKeyPrefix = "session:"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

type AuthService struct {
	db    DB
	redis *redis.Client
	users *UserService
}

func NewAuthService(db DB, redisClient *redis.Client, users *UserService) *AuthService {
	return &AuthService{
		db:    db,
		redis: redisClient,
		users: users,
	}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) GenerateSessionToken() (token string, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	token = hex.EncodeToString(raw)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateSession stores the session in redis for fast lookups, with postgres
// as the durable fallback if redis is unavailable.
func (s *AuthService) CreateSession(ctx context.Context, userID uuid.UUID) (string, error) {
	token, tokenHash, err := s.GenerateSessionToken()
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+tokenHash, userID.String(), sessionDuration).Err(); err != nil {
		expiresAt := time.Now().Add(sessionDuration)
		if _, err := s.db.Exec(ctx,
			"INSERT INTO sessions (user_id, token_hash, expires_at) VALUES ($1, $2, $3)",
			userID, tokenHash, expiresAt,
		); err != nil {
			return "", fmt.Errorf("creating session: %w", err)
		}
	}

	return token, nil
}

func (s *AuthService) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	tokenHash := hashToken(token)

	userIDStr, err := s.redis.Get(ctx, sessionKeyPrefix+tokenHash).Result()
	if err == nil {
		userID, parseErr := uuid.Parse(userIDStr)
		if parseErr != nil {
			return nil, ErrSessionNotFound
		}
		return s.users.GetByID(ctx, userID)
	}
	if !errors.Is(err, redis.Nil) {
		logging.Warn("Redis session lookup failed, falling back to postgres", map[string]interface{}{
			"error": err.Error(),
		})
	}

	var userID uuid.UUID
	var expiresAt time.Time
	err = s.db.QueryRow(ctx,
		"SELECT user_id, expires_at FROM sessions WHERE token_hash = $1",
		tokenHash,
	).Scan(&userID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if time.Now().After(expiresAt) {
		_, _ = s.db.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", tokenHash)
		return nil, ErrSessionExpired
	}

	return s.users.GetByID(ctx, userID)
}

func (s *AuthService) DeleteSession(ctx context.Context, token string) error {
	tokenHash := hashToken(token)
	_ = s.redis.Del(ctx, sessionKeyPrefix+tokenHash).Err()
	if _, err := s.db.Exec(ctx, "DELETE FROM sessions WHERE token_hash = $1", tokenHash); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
