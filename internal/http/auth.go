package http

import (
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"deptfunds/internal/auth"
	"deptfunds/internal/core"
	applog "deptfunds/internal/log"
)

const userKey = "deptfunds.user"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

// authenticate resolves the bearer token to a live user. The token alone is
// not trusted for role or department: both are read from storage.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "Not authorized, no token")
			return
		}
		claims, err := s.tokens.Parse(token)
		if errors.Is(err, auth.ErrTokenExpired) {
			abortUnauthorized(c, "Session expired, please log in again")
			return
		}
		if err != nil {
			abortUnauthorized(c, "Not authorized, token failed")
			return
		}
		u, err := s.users.GetUser(c.Request.Context(), claims.UserID)
		if errors.Is(err, core.ErrNotFound) {
			abortUnauthorized(c, "Not authorized, user no longer exists")
			return
		}
		if err != nil {
			s.fail(c, err, "Authentication failed")
			return
		}
		c.Set(userKey, u)
		c.Request = c.Request.WithContext(applog.WithContext(c.Request.Context(),
			applog.FromContext(c.Request.Context()).With(applog.FieldUserID, u.ID, applog.FieldRole, u.Role)))
		c.Next()
	}
}

// requireRole lets the request through only for the listed roles.
func requireRole(roles ...core.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(roles, currentUser(c).Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) core.User {
	u, _ := c.Get(userKey)
	user, _ := u.(core.User)
	return user
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": message})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	u, err := s.svc.Departments.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err, "Login failed")
		return
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		s.fail(c, err, "Login failed")
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: token, User: u})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}
