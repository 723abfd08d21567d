package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/huangang/codecollab/backend/internal/config"
	"github.com/huangang/codecollab/backend/internal/store"
	"github.com/huangang/codecollab/backend/internal/utils"
	"github.com/huangang/codecollab/backend/pkg/response"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, logger.Silent)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func newTestAuthService(t *testing.T, s store.Store) *AuthService {
	t.Helper()
	return NewAuthService(s, NewMemoryBlacklist(), utils.NewTokenSigner("test-secret", 24), nil)
}

func registerUser(t *testing.T, auth *AuthService, name, email string) (*AuthResult, Identity) {
	t.Helper()
	res, err := auth.Register(context.Background(), &RegisterRequest{
		Name:     name,
		Email:    email,
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	return res, Identity{UserID: res.User.ID, Email: res.User.Email}
}

// assertAppError checks that err is an AppError with the given HTTP status.
func assertAppError(t *testing.T, err error, status int) *response.AppError {
	t.Helper()
	var appErr *response.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v (%T), expected *response.AppError", err, err)
	}
	if appErr.HTTPStatus != status {
		t.Errorf("HTTPStatus = %d, expected %d (%s)", appErr.HTTPStatus, status, appErr.Message)
	}
	return appErr
}
