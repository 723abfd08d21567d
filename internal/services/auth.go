package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/codecollab/backend/internal/models"
	"github.com/huangang/codecollab/backend/internal/store"
	"github.com/huangang/codecollab/backend/internal/utils"
	"github.com/huangang/codecollab/backend/pkg/logger"
	"github.com/huangang/codecollab/backend/pkg/response"
)

// Identity is the authenticated caller, passed explicitly to every service
// call that needs one.
type Identity struct {
	UserID string `json:"_id"`
	Email  string `json:"email"`
}

var (
	ErrNoToken      = response.NewUnauthorized("unauthorized: no token provided")
	ErrTokenRevoked = response.NewUnauthorized("unauthorized: token has been revoked")
	ErrTokenInvalid = response.NewUnauthorized("unauthorized: invalid token")
	ErrTokenExpired = response.NewUnauthorized("unauthorized: token expired")

	errInvalidCredentials = response.NewUnauthorized("invalid email or password")
)

type AuthService struct {
	users     store.UserStore
	blacklist TokenBlacklist
	signer    *utils.TokenSigner
	ldap      *LDAPService
}

func NewAuthService(users store.UserStore, blacklist TokenBlacklist, signer *utils.TokenSigner, ldap *LDAPService) *AuthService {
	return &AuthService{
		users:     users,
		blacklist: blacklist,
		signer:    signer,
		ldap:      ldap,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	AuthType string `json:"auth_type"` // local, ldap
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User     *models.User `json:"user"`
	Token    string       `json:"token"`
	ExpireAt time.Time    `json:"expire_at"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a local account and signs a session token for it.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, response.NewValidation("validation failed", []string{"name is required"})
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: hash,
		AuthType: "local",
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, response.NewConflict("email already registered")
		}
		return nil, err
	}

	logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("[Auth] User registered")
	return s.issue(user)
}

// Login verifies credentials. An unknown email and a wrong password give the
// same error.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)

	var (
		user *models.User
		err  error
	)
	switch req.AuthType {
	case "", "local":
		user, err = s.localAuth(ctx, email, req.Password)
	case "ldap":
		user, err = s.ldapAuth(ctx, email, req.Password)
	default:
		return nil, response.NewBadRequest("invalid auth type")
	}
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, err := s.signer.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResult{
		User:     user,
		Token:    token,
		ExpireAt: time.Now().Add(s.signer.TTL()),
	}, nil
}

func (s *AuthService) localAuth(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if !utils.CheckPassword(password, user.Password) {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) ldapAuth(ctx context.Context, email, password string) (*models.User, error) {
	if s.ldap == nil || !s.ldap.IsEnabled() {
		return nil, response.NewBadRequest("LDAP login is not enabled")
	}

	ldapUser, err := s.ldap.Authenticate(email, password)
	if err != nil {
		logger.Warn().Err(err).Str("email", email).Msg("[Auth] LDAP authentication failed")
		return nil, errInvalidCredentials
	}
	if ldapUser.Email != "" {
		email = normalizeEmail(ldapUser.Email)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		user = &models.User{
			Name:     ldapUser.Name,
			Email:    email,
			AuthType: "ldap",
		}
		if user.Name == "" {
			user.Name = email
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		logger.Info().Str("user_id", user.ID).Str("email", email).Msg("[Auth] LDAP user provisioned")
		return user, nil
	case err != nil:
		return nil, err
	}

	// a local account with the same email is never taken over
	if user.AuthType != "ldap" {
		return nil, errInvalidCredentials
	}
	if ldapUser.Name != "" && ldapUser.Name != user.Name {
		if err := s.users.UpdateUserName(ctx, user.ID, ldapUser.Name); err == nil {
			user.Name = ldapUser.Name
		}
	}
	return user, nil
}

// Logout revokes token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}
	return s.blacklist.Revoke(ctx, token, s.revokeTTL())
}

// revokeTTL covers the longest lifetime a token from this signer can have.
func (s *AuthService) revokeTTL() time.Duration {
	if s.signer != nil && s.signer.TTL() > BlacklistTTL {
		return s.signer.TTL()
	}
	return BlacklistTTL
}

// Authenticate resolves a raw token to the caller's identity. The blacklist
// is consulted before the signature.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoToken
	}

	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("check token blacklist: %w", err)
	}
	if revoked {
		return Identity{}, ErrTokenRevoked
	}

	claims, err := s.signer.ParseToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// Me returns the stored record of the caller.
func (s *AuthService) Me(ctx context.Context, id Identity) (*models.User, error) {
	user, err := s.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, response.NewNotFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns every user except the caller.
func (s *AuthService) ListUsers(ctx context.Context, id Identity) ([]models.User, error) {
	excludeID := id.UserID
	if excludeID == "" {
		if user, err := s.users.GetUserByEmail(ctx, id.Email); err == nil {
			excludeID = user.ID
		}
	}
	users, err := s.users.ListUsers(ctx, excludeID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// lookup prefers the id claim and falls back to the email claim.
func (s *AuthService) lookup(ctx context.Context, id Identity) (*models.User, error) {
	if id.UserID != "" {
		return s.users.GetUserByID(ctx, id.UserID)
	}
	return s.users.GetUserByEmail(ctx, id.Email)
}

func (s *AuthService) IsLDAPEnabled() bool {
	return s.ldap != nil && s.ldap.IsEnabled()
}

func (s *AuthService) BlacklistMode() string {
	return s.blacklist.Mode()
}
