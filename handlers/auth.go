package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"mangrovewatch/apperrors"
	"mangrovewatch/auth"
	"mangrovewatch/database"
	"mangrovewatch/models"
)

// Register creates a user account and returns a fresh token so the client
// can start reporting immediately.
func (h *Handlers) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid registration payload", err))
		return
	}

	user, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			h.fail(c, apperrors.Validation("email already registered", err))
			return
		}
		h.fail(c, apperrors.Internal("registration failed", err))
		return
	}

	token, _, err := h.auth.Login(c.Request.Context(), models.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, apperrors.Internal("registration succeeded but login failed", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

// Login exchanges credentials for a bearer token.
func (h *Handlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid login payload", err))
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.fail(c, apperrors.Unauthorized("invalid email or password", err))
			return
		}
		h.fail(c, apperrors.Internal("login failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated user's profile plus report stats and badges.
func (h *Handlers) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		h.fail(c, apperrors.Unauthorized("not authenticated", nil))
		return
	}

	stats, err := h.store.UserStats(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, apperrors.Internal("failed to load user stats", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "stats": stats})
}

// UpdateMe updates the authenticated user's mutable profile fields.
func (h *Handlers) UpdateMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		h.fail(c, apperrors.Unauthorized("not authenticated", nil))
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperrors.Validation("invalid profile payload", err))
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Organization != nil {
		user.Organization = *req.Organization
	}

	if err := h.store.UpdateUser(c.Request.Context(), user); err != nil {
		h.fail(c, apperrors.Internal("failed to update profile", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Leaderboard returns the top reporters ordered by points.
func (h *Handlers) Leaderboard(c *gin.Context) {
	entries, err := h.store.Leaderboard(c.Request.Context(), 20)
	if err != nil {
		h.fail(c, apperrors.Internal("failed to load leaderboard", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
