package model

// SessionState represents the lifecycle state of a control session.
type SessionState string

const (
	SessionStatePendingAdmin  SessionState = "PENDING_ADMIN"
	SessionStateAdminAccepted SessionState = "ADMIN_ACCEPTED"
	SessionStateConnected     SessionState = "CONNECTED"
	SessionStateAdminRejected SessionState = "ADMIN_REJECTED"
	SessionStateFailed        SessionState = "FAILED"
	SessionStateDisconnected  SessionState = "DISCONNECTED"
	SessionStateTimedOut      SessionState = "TIMED_OUT"
)

// Terminal reports whether a session in this state is destroyed rather than
// kept in the session table.
func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateAdminRejected, SessionStateFailed, SessionStateDisconnected, SessionStateTimedOut:
		return true
	}
	return false
}

// DeviceSnapshot is the device identity captured when a session is requested.
// It is never re-fetched, so later inventory edits do not affect an in-flight
// session.
type DeviceSnapshot struct {
	DeviceID  string `json:"deviceId"`
	Name      string `json:"name"`
	Model     string `json:"model,omitempty"`
	OSVersion string `json:"osVersion,omitempty"`
}
