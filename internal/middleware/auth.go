package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/pkg/response"
)

const (
	ContextIdentity = "identity"
	ContextToken    = "token"

	// TokenCookie is the cookie carrying the session token.
	TokenCookie = "token"
)

// ExtractToken reads the session token from the cookie, falling back to a
// Bearer Authorization header.
func ExtractToken(c *gin.Context) string {
	if token, err := c.Cookie(TokenCookie); err == nil && token != "" {
		return token
	}
	return BearerToken(c.GetHeader("Authorization"))
}

// BearerToken returns the token of a "Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthRequired authenticates the request and stores the caller's identity
// in the context.
func AuthRequired(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)

		id, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrTokenRevoked) {
				ClearTokenCookie(c)
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextIdentity, id)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// SetTokenCookie stores token in an HTTP-only cookie for maxAge seconds.
func SetTokenCookie(c *gin.Context, token string, maxAge int) {
	c.SetCookie(TokenCookie, token, maxAge, "/", "", c.Request.TLS != nil, true)
}

func ClearTokenCookie(c *gin.Context) {
	c.SetCookie(TokenCookie, "", -1, "/", "", c.Request.TLS != nil, true)
}

// CurrentIdentity gets the authenticated caller from context
func CurrentIdentity(c *gin.Context) services.Identity {
	if v, exists := c.Get(ContextIdentity); exists {
		if id, ok := v.(services.Identity); ok {
			return id
		}
	}
	return services.Identity{}
}

// CurrentToken gets the raw token the request authenticated with
func CurrentToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}
