package model

import "encoding/json"

// EnvelopeType identifies a message exchanged over the device or admin
// channel. One envelope per websocket frame.
type EnvelopeType string

const (
	// Device -> Broker
	EnvelopeRequestControl EnvelopeType = "request_control"
	EnvelopeControlStatus  EnvelopeType = "control_status"

	// Broker -> Device
	EnvelopeRequestReceived EnvelopeType = "request_received"
	EnvelopeControlDecision EnvelopeType = "control_decision"
	EnvelopeError           EnvelopeType = "error"

	// Admin -> Broker
	EnvelopeControlResponse EnvelopeType = "control_response"

	// Broker -> Admin (request_control is also replayed/broadcast to admins)
	EnvelopeControlStatusUpdate EnvelopeType = "control_status_update"

	// Relayed verbatim in either direction; the broker never inspects Payload.
	EnvelopeFileBrowser EnvelopeType = "file_browser"
	EnvelopeSignaling   EnvelopeType = "signaling"
)

// Device status values carried by control_status envelopes.
const (
	StatusConnected    = "connected"
	StatusFailed       = "failed"
	StatusDisconnected = "disconnected"
)

// Decision values carried by control_decision envelopes.
const (
	DecisionAccepted = "accepted"
	DecisionRejected = "rejected"
)

// Admin action values carried by control_response envelopes.
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

// Rejection reasons carried by control_decision envelopes.
const (
	ReasonRejectedByAdmin = "rejected_by_admin"
	ReasonTimedOut        = "timed_out"
)

// Status values broadcast to admins via control_status_update.
const (
	StatusPendingDeviceConfirmation = "pending_device_confirmation"
	StatusRejected                  = "rejected"
	StatusTimedOut                  = "timed_out"
	StatusCommDisconnected          = "comm_disconnected"
	StatusPendingAdminApproval      = "pending_admin_approval"
)

// Envelope is a single structured message on either channel. Fields are
// populated per Type; Payload is opaque to the broker.
type Envelope struct {
	Type       EnvelopeType    `json:"type"`
	SessionID  string          `json:"sessionId,omitempty"`
	DeviceID   string          `json:"deviceId,omitempty"`
	DeviceName string          `json:"deviceName,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Status     string          `json:"status,omitempty"`
	Decision   string          `json:"decision,omitempty"`
	Action     string          `json:"action,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Message    string          `json:"message,omitempty"`
	Details    string          `json:"details,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// ChangeEvent mirrors an inventory mutation to dashboard clients on the
// change-notification channel. Doc is forwarded without interpretation.
type ChangeEvent struct {
	Collection string          `json:"collection"`
	Op         string          `json:"op"`
	Key        string          `json:"key"`
	Doc        json.RawMessage `json:"doc,omitempty"`
}
