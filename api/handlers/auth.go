package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/remote-device-control/backend/internal/inventory"
	"github.com/remote-device-control/backend/internal/model"
)

// AuthHandler handles HTTP requests for admin accounts.
type AuthHandler struct {
	store *inventory.Store
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store *inventory.Store) *AuthHandler {
	return &AuthHandler{
		store: store,
	}
}

// Register handles POST /api/admins/register - creates an admin account.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to hash password")
		return
	}

	admin := &model.Admin{
		Username:     req.Username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.store.InsertAdmin(c.Request.Context(), admin); err != nil {
		if errors.Is(err, model.ErrUsernameTaken) {
			sendError(c, http.StatusConflict, "USERNAME_TAKEN", "Username "+req.Username+" is already taken")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create admin: "+err.Error())
		return
	}

	c.JSON(http.StatusCreated, admin)
}

// Login handles POST /api/admins/login - verifies admin credentials.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	admin, err := h.store.FindAdminByUsername(c.Request.Context(), req.Username)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			sendError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
			return
		}
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up admin: "+err.Error())
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		sendError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
		return
	}

	c.JSON(http.StatusOK, admin)
}

// RegisterRoutes registers the auth handler routes on a Gin router group.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	admins := rg.Group("/admins")
	{
		admins.POST("/register", h.Register)
		admins.POST("/login", h.Login)
	}
}
