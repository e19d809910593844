package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/remote-device-control/backend/internal/gateway"
	"github.com/remote-device-control/backend/internal/inventory"
	"github.com/remote-device-control/backend/internal/model"
)

// DeviceHandler handles HTTP requests for the device inventory.
type DeviceHandler struct {
	store  *inventory.Store
	notify *gateway.NotifyGateway
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(store *inventory.Store, notify *gateway.NotifyGateway) *DeviceHandler {
	return &DeviceHandler{
		store:  store,
		notify: notify,
	}
}

// Register handles POST /api/devices/register - registers or refreshes a device.
func (h *DeviceHandler) Register(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	device := &model.Device{
		DeviceID:  req.DeviceID,
		Name:      req.Name,
		Model:     req.Model,
		OSVersion: req.OSVersion,
	}

	saved, err := h.store.UpsertDevice(c.Request.Context(), device)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register device: "+err.Error())
		return
	}

	doc, err := json.Marshal(saved)
	if err == nil {
		h.notify.Publish(model.ChangeEvent{
			Collection: "devices",
			Op:         "upsert",
			Key:        saved.DeviceID,
			Doc:        doc,
		})
	}

	c.JSON(http.StatusOK, saved)
}

// List handles GET /api/devices - lists all registered devices.
func (h *DeviceHandler) List(c *gin.Context) {
	devices, err := h.store.ListDevices(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list devices: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, devices)
}

// RegisterRoutes registers the device handler routes on a Gin router group.
func (h *DeviceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	devices := rg.Group("/devices")
	{
		devices.POST("/register", h.Register)
		devices.GET("", h.List)
	}
}
