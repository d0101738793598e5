package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/services"
)

func registerBody(email, password, name string) *bytes.Buffer {
	return bytes.NewBufferString(`{"email":"` + email + `","password":"` + password + `","display_name":"` + name + `"}`)
}

func TestAuthHandler_Register_Success(t *testing.T) {
	userID := uuid.New()
	handler := NewAuthHandler(&mockUserService{
		CreateFunc: func(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
			if params.Email != "alice@example.com" {
				t.Fatalf("expected lowercased email, got %s", params.Email)
			}
			return &models.User{ID: userID, Email: params.Email, DisplayName: params.DisplayName}, nil
		},
	}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", registerBody("Alice@Example.com", "Sup3rSecret", "Alice"))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	cookies := rr.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected a session cookie")
	}
	if !sessionCookie.HttpOnly {
		t.Fatal("session cookie must be http-only")
	}
}

func TestAuthHandler_Register_InvalidEmail(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", registerBody("not-an-email", "Sup3rSecret", "Alice"))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	assertErrorResponse(t, rr, http.StatusBadRequest, "Invalid email address")
}

func TestAuthHandler_Register_WeakPassword(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{}, &mockAuthService{}, false)

	tests := []string{"short1A", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"}
	for _, password := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/register", registerBody("alice@example.com", password, "Alice"))
		rr := httptest.NewRecorder()
		handler.Register(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("password %q: expected 400, got %d", password, rr.Code)
		}
	}
}

func TestAuthHandler_Register_ShortDisplayName(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", registerBody("alice@example.com", "Sup3rSecret", "A"))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	assertErrorResponse(t, rr, http.StatusBadRequest, "Display name must be between 2 and 100 characters")
}

func TestAuthHandler_Register_EmailTaken(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{
		CreateFunc: func(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
			return nil, services.ErrEmailAlreadyExists
		},
	}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", registerBody("alice@example.com", "Sup3rSecret", "Alice"))
	rr := httptest.NewRecorder()
	handler.Register(rr, req)
	assertErrorResponse(t, rr, http.StatusConflict, "Email already registered")
}

func TestAuthHandler_Login_Success(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: uuid.New(), Email: email, PasswordHash: "hashed_Sup3rSecret"}, nil
		},
	}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"alice@example.com","password":"Sup3rSecret"}`))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAuthHandler_Login_UnknownEmail(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, services.ErrUserNotFound
		},
	}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"ghost@example.com","password":"Sup3rSecret"}`))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	assertErrorResponse(t, rr, http.StatusUnauthorized, "Invalid email or password")
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return &models.User{ID: uuid.New(), PasswordHash: "hashed_other"}, nil
		},
	}, &mockAuthService{}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(`{"email":"alice@example.com","password":"Sup3rSecret"}`))
	rr := httptest.NewRecorder()
	handler.Login(rr, req)
	assertErrorResponse(t, rr, http.StatusUnauthorized, "Invalid email or password")
}

func TestAuthHandler_Logout_ClearsCookie(t *testing.T) {
	deleted := false
	handler := NewAuthHandler(&mockUserService{}, &mockAuthService{
		DeleteSessionFunc: func(ctx context.Context, token string) error {
			deleted = true
			return nil
		},
	}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token"})
	rr := httptest.NewRecorder()
	handler.Logout(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !deleted {
		t.Fatal("expected the session to be deleted")
	}

	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.MaxAge != -1 {
			t.Fatal("expected the session cookie to be cleared")
		}
	}
}

func TestAuthHandler_Logout_SessionDeleteFailureStillLogsOut(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{}, &mockAuthService{
		DeleteSessionFunc: func(ctx context.Context, token string) error {
			return errors.New("redis down")
		},
	}, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "token"})
	rr := httptest.NewRecorder()
	handler.Logout(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	handler := NewAuthHandler(&mockUserService{}, &mockAuthService{}, false)

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/auth/me", nil), &models.User{ID: uuid.New(), Email: "alice@example.com"})
	rr := httptest.NewRecorder()
	handler.Me(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rr = httptest.NewRecorder()
	handler.Me(rr, req)
	assertErrorResponse(t, rr, http.StatusUnauthorized, "Not authenticated")
}
