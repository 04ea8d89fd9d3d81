package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/filecollab/filecollab/auth"
	"github.com/filecollab/filecollab/internal/slogging"
)

// UserHandler serves account and authentication endpoints
type UserHandler struct {
	store *GormUserStore
	auth  *auth.Service
}

// NewUserHandler creates a user handler
func NewUserHandler(store *GormUserStore, authSvc *auth.Service) *UserHandler {
	return &UserHandler{store: store, auth: authSvc}
}

// SignupRequest is the JSON body for account registration
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name"`
}

// TokenResponse is returned by the login endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Signup registers a new account.
// POST /api/v1/signup
func (h *UserHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "Email and a password of at least 8 characters are required",
		})
		return
	}

	user, err := h.store.Create(c.Request.Context(), strings.ToLower(req.Email), req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, Error{
				Error:   "email_taken",
				Message: err.Error(),
			})
			return
		}
		slogging.Get().Error("Signup failed: %v", err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to create account",
		})
		return
	}

	c.JSON(http.StatusCreated, user.Public())
}

// Login exchanges credentials for a bearer token. The body is form-encoded
// with username/password fields, which is what browser editor clients send.
// POST /api/v1/login/access-token
func (h *UserHandler) Login(c *gin.Context) {
	email := strings.ToLower(c.PostForm("username"))
	password := c.PostForm("password")
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_request",
			Message: "username and password form fields are required",
		})
		return
	}

	user, err := h.store.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, Error{
				Error:   "invalid_credentials",
				Message: err.Error(),
			})
			return
		}
		slogging.Get().Error("Login failed: %v", err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to authenticate",
		})
		return
	}

	token, expiresAt, err := h.auth.GenerateToken(user.ID)
	if err != nil {
		slogging.Get().Error("Token generation failed for user %s: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to issue token",
		})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt.Unix(),
	})
}

// Me returns the authenticated user's profile.
// GET /api/v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	userID := auth.UserIDFromContext(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, Error{
			Error:   "unauthorized",
			Message: "Authentication required",
		})
		return
	}

	user, err := h.store.GetByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "User no longer exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to load user",
		})
		return
	}

	c.JSON(http.StatusOK, user.Public())
}

// GetUser returns a user's profile. Only the user themselves or a superuser
// may look up an account by ID.
// GET /api/v1/users/:user_id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := ParseUUID(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Error{
			Error:   "invalid_id",
			Message: "Invalid user ID",
		})
		return
	}

	callerID := auth.UserIDFromContext(c)
	if callerID != id {
		caller, err := h.store.GetByID(c.Request.Context(), callerID)
		if err != nil || !caller.IsSuperuser {
			c.JSON(http.StatusForbidden, Error{
				Error:   "forbidden",
				Message: "The user doesn't have enough privileges",
			})
			return
		}
	}

	user, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, Error{
				Error:   "not_found",
				Message: "User not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, Error{
			Error:   "server_error",
			Message: "Failed to load user",
		})
		return
	}

	c.JSON(http.StatusOK, user.Public())
}
