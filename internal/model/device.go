package model

import "time"

// Device is a field device document in the inventory store.
type Device struct {
	DeviceID     string    `bson:"deviceId" json:"deviceId"`
	Name         string    `bson:"name" json:"name"`
	Model        string    `bson:"model,omitempty" json:"model,omitempty"`
	OSVersion    string    `bson:"osVersion,omitempty" json:"osVersion,omitempty"`
	RegisteredAt time.Time `bson:"registeredAt" json:"registeredAt"`
	LastSeenAt   time.Time `bson:"lastSeenAt" json:"lastSeenAt"`
}

// Snapshot returns the device identity fields captured into a session at
// request time.
func (d *Device) Snapshot() DeviceSnapshot {
	return DeviceSnapshot{
		DeviceID:  d.DeviceID,
		Name:      d.Name,
		Model:     d.Model,
		OSVersion: d.OSVersion,
	}
}

// Admin is an administrator account document in the inventory store.
// The password hash never leaves the store layer.
type Admin struct {
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"passwordHash" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// RegisterDeviceRequest is the body of POST /api/devices/register.
type RegisterDeviceRequest struct {
	DeviceID  string `json:"deviceId" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Model     string `json:"model"`
	OSVersion string `json:"osVersion"`
}

// RegisterAdminRequest is the body of POST /api/admins/register.
type RegisterAdminRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the body of POST /api/admins/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
