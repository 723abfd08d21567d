package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codecollab/backend/internal/middleware"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/pkg/response"
)

type UserHandler struct {
	authService *services.AuthService
}

func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

// Register creates an account and starts a session
// POST /users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.startSession(c, result)
	c.JSON(http.StatusCreated, gin.H{"user": result.User, "token": result.Token})
}

// Login handles user login
// POST /users/login
func (h *UserHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BindError(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.startSession(c, result)
	c.JSON(http.StatusOK, gin.H{"user": result.User, "token": result.Token})
}

func (h *UserHandler) startSession(c *gin.Context, result *services.AuthResult) {
	middleware.SetTokenCookie(c, result.Token, int(time.Until(result.ExpireAt).Seconds()))
}

// Logout revokes the token the request authenticated with
// GET /users/logout
func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.CurrentToken(c)); err != nil {
		response.Error(c, err)
		return
	}

	middleware.ClearTokenCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// Profile returns the identity carried by the token
// GET /users/profile
func (h *UserHandler) Profile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": middleware.CurrentIdentity(c)})
}

// Me returns the stored record of the current user
// GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// All lists every other user, for the invite picker
// GET /users/all
func (h *UserHandler) All(c *gin.Context) {
	users, err := h.authService.ListUsers(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// AuthConfig tells the login page which auth types are available
// GET /users/auth-config
func (h *UserHandler) AuthConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ldap_enabled": h.authService.IsLDAPEnabled()})
}
