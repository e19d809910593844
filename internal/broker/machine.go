package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remote-device-control/backend/internal/logger"
	"github.com/remote-device-control/backend/internal/model"
)

// DeviceSender is the device-side connection a session was opened on. The
// comm gateway implements it; the machine uses it only to route outbound
// envelopes, never to infer device identity.
type DeviceSender interface {
	// ConnID identifies the underlying connection for ownership bookkeeping.
	ConnID() string
	// SendToDevice queues an envelope for the device, reporting an error if
	// the transport is no longer writable.
	SendToDevice(env model.Envelope) error
}

// AdminBroadcaster fans an envelope out to every connected admin. The admin
// gateway implements it; send failures to individual admins are handled
// inside the gateway and never abort the broadcast.
type AdminBroadcaster interface {
	Broadcast(env model.Envelope) error
}

// DeviceFinder resolves device identifiers against the inventory store.
type DeviceFinder interface {
	FindDeviceByID(ctx context.Context, deviceID string) (*model.Device, error)
}

// session is a live entry in the session table. The pendingTimer is non-nil
// exactly while the session is in PENDING_ADMIN.
type session struct {
	id           string
	state        model.SessionState
	device       model.DeviceSnapshot
	conn         DeviceSender
	requestID    string
	requestedAt  time.Time
	pendingTimer *time.Timer
}

// Machine owns the session table. Every mutation goes through one of its
// operations; gateways never touch the table directly.
type Machine struct {
	devices        DeviceFinder
	admins         AdminBroadcaster
	pendingTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	// connSessions tracks which session ids each device connection owns,
	// keyed by ConnID. Mutated only under mu, in the same serialization
	// domain as the table itself.
	connSessions map[string]map[string]struct{}
}

// NewMachine creates a Machine with an empty session table.
func NewMachine(devices DeviceFinder, admins AdminBroadcaster, pendingTimeout time.Duration) *Machine {
	return &Machine{
		devices:        devices,
		admins:         admins,
		pendingTimeout: pendingTimeout,
		sessions:       make(map[string]*session),
		connSessions:   make(map[string]map[string]struct{}),
	}
}

// CreateSession opens a new control session for the device connection. It
// fails with model.ErrDuplicateSession if the id is already in use and with
// model.ErrDeviceNotFound if the identifier does not resolve in the
// inventory. On success the session enters PENDING_ADMIN with an armed
// timeout, admins receive a request_control broadcast and the device
// connection receives a request_received acknowledgment. Returns the
// broker-generated request id.
func (m *Machine) CreateSession(ctx context.Context, conn DeviceSender, sessionID, deviceID string) (string, error) {
	m.mu.Lock()
	_, exists := m.sessions[sessionID]
	m.mu.Unlock()
	if exists {
		return "", model.ErrDuplicateSession
	}

	// Inventory lookup happens outside the lock; the duplicate check is
	// repeated on insert so racing creates still collapse to one session.
	device, err := m.devices.FindDeviceByID(ctx, deviceID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return "", model.ErrDuplicateSession
	}

	s := &session{
		id:          sessionID,
		state:       model.SessionStatePendingAdmin,
		device:      device.Snapshot(),
		conn:        conn,
		requestID:   uuid.New().String(),
		requestedAt: time.Now(),
	}
	s.pendingTimer = time.AfterFunc(m.pendingTimeout, func() {
		m.TimeoutFired(sessionID)
	})
	m.sessions[sessionID] = s

	owned, ok := m.connSessions[conn.ConnID()]
	if !ok {
		owned = make(map[string]struct{})
		m.connSessions[conn.ConnID()] = owned
	}
	owned[sessionID] = struct{}{}
	m.mu.Unlock()

	logger.Infof("session requested session=%s device=%s request=%s", sessionID, deviceID, s.requestID)

	m.broadcast(model.Envelope{
		Type:       model.EnvelopeRequestControl,
		SessionID:  sessionID,
		DeviceID:   s.device.DeviceID,
		DeviceName: s.device.Name,
		RequestID:  s.requestID,
		Timestamp:  s.requestedAt.UnixMilli(),
	})
	m.sendToDevice(conn, model.Envelope{
		Type:      model.EnvelopeRequestReceived,
		SessionID: sessionID,
		Status:    model.StatusPendingAdminApproval,
	})

	return s.requestID, nil
}

// AdminDecision applies an admin's accept or reject. It is a no-op unless
// the session exists and is still PENDING_ADMIN, which absorbs stale and
// duplicate admin responses after a timeout or disconnect already resolved
// the session.
func (m *Machine) AdminDecision(sessionID, action string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok || s.state != model.SessionStatePendingAdmin {
		m.mu.Unlock()
		logger.Debugf("stale admin decision ignored session=%s action=%s", sessionID, action)
		return
	}

	switch action {
	case model.ActionAccept:
		s.stopTimer()
		s.state = model.SessionStateAdminAccepted
		conn := s.conn
		device := s.device
		m.mu.Unlock()

		logger.Infof("session accepted session=%s device=%s", sessionID, device.DeviceID)
		m.sendToDevice(conn, model.Envelope{
			Type:      model.EnvelopeControlDecision,
			SessionID: sessionID,
			Decision:  model.DecisionAccepted,
		})
		m.broadcast(model.Envelope{
			Type:      model.EnvelopeControlStatusUpdate,
			SessionID: sessionID,
			DeviceID:  device.DeviceID,
			Status:    model.StatusPendingDeviceConfirmation,
			Decision:  model.DecisionAccepted,
		})

	case model.ActionReject:
		s.stopTimer()
		s.state = model.SessionStateAdminRejected
		conn := s.conn
		device := s.device
		m.destroyLocked(s)
		m.mu.Unlock()

		logger.Infof("session rejected session=%s device=%s", sessionID, device.DeviceID)
		m.sendToDevice(conn, model.Envelope{
			Type:      model.EnvelopeControlDecision,
			SessionID: sessionID,
			Decision:  model.DecisionRejected,
			Reason:    model.ReasonRejectedByAdmin,
		})
		m.broadcast(model.Envelope{
			Type:      model.EnvelopeControlStatusUpdate,
			SessionID: sessionID,
			DeviceID:  device.DeviceID,
			Status:    model.StatusRejected,
			Decision:  model.DecisionRejected,
			Reason:    model.ReasonRejectedByAdmin,
		})

	default:
		// gateways validate actions; an unknown one leaves the session
		// pending with its timer intact.
		m.mu.Unlock()
		logger.Warnf("unknown admin action session=%s action=%s", sessionID, action)
	}
}

// DeviceStatus applies a device-side status report. "connected" is honored
// only from ADMIN_ACCEPTED; in any other state it is logged and ignored so a
// late report can not resurrect a decided or closed session. "failed" and
// "disconnected" terminate the session from any state.
func (m *Machine) DeviceStatus(sessionID, status, details string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		logger.Debugf("status for unknown session ignored session=%s status=%s", sessionID, status)
		return
	}

	switch status {
	case model.StatusConnected:
		if s.state != model.SessionStateAdminAccepted {
			state := s.state
			m.mu.Unlock()
			logger.Infof("connected report ignored session=%s state=%s", sessionID, state)
			return
		}
		s.state = model.SessionStateConnected
		device := s.device
		m.mu.Unlock()

		logger.Infof("session connected session=%s device=%s", sessionID, device.DeviceID)
		m.broadcast(model.Envelope{
			Type:      model.EnvelopeControlStatusUpdate,
			SessionID: sessionID,
			DeviceID:  device.DeviceID,
			Status:    model.StatusConnected,
		})

	case model.StatusFailed, model.StatusDisconnected:
		if status == model.StatusFailed {
			s.state = model.SessionStateFailed
		} else {
			s.state = model.SessionStateDisconnected
		}
		device := s.device
		m.destroyLocked(s)
		m.mu.Unlock()

		logger.Infof("session ended session=%s device=%s status=%s", sessionID, device.DeviceID, status)
		m.broadcast(model.Envelope{
			Type:      model.EnvelopeControlStatusUpdate,
			SessionID: sessionID,
			DeviceID:  device.DeviceID,
			Status:    status,
			Message:   details,
		})

	default:
		m.mu.Unlock()
		logger.Warnf("unknown device status session=%s status=%s", sessionID, status)
	}
}

// TimeoutFired resolves a session whose admin never answered. It is a no-op
// unless the session is still PENDING_ADMIN, which absorbs a timer that
// fired in the same instant a decision arrived.
func (m *Machine) TimeoutFired(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok || s.state != model.SessionStatePendingAdmin {
		m.mu.Unlock()
		return
	}

	s.state = model.SessionStateTimedOut
	conn := s.conn
	device := s.device
	m.destroyLocked(s)
	m.mu.Unlock()

	logger.Infof("session timed out session=%s device=%s", sessionID, device.DeviceID)
	m.sendToDevice(conn, model.Envelope{
		Type:      model.EnvelopeControlDecision,
		SessionID: sessionID,
		Decision:  model.DecisionRejected,
		Reason:    model.ReasonTimedOut,
	})
	m.broadcast(model.Envelope{
		Type:      model.EnvelopeControlStatusUpdate,
		SessionID: sessionID,
		DeviceID:  device.DeviceID,
		Status:    model.StatusTimedOut,
		Reason:    model.ReasonTimedOut,
	})
}

// ConnectionClosed destroys every session owned by a device connection that
// dropped. CONNECTED sessions broadcast "disconnected"; sessions still
// awaiting the admin or the device broadcast "comm_disconnected"; anything
// else goes quietly.
func (m *Machine) ConnectionClosed(conn DeviceSender) {
	type farewell struct {
		sessionID string
		device    model.DeviceSnapshot
		status    string
	}

	m.mu.Lock()
	owned := m.connSessions[conn.ConnID()]
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}

	var farewells []farewell
	for _, id := range ids {
		s, ok := m.sessions[id]
		if !ok {
			continue
		}
		switch s.state {
		case model.SessionStateConnected:
			farewells = append(farewells, farewell{id, s.device, model.StatusDisconnected})
		case model.SessionStatePendingAdmin, model.SessionStateAdminAccepted:
			farewells = append(farewells, farewell{id, s.device, model.StatusCommDisconnected})
		}
		s.state = model.SessionStateDisconnected
		m.destroyLocked(s)
	}
	delete(m.connSessions, conn.ConnID())
	m.mu.Unlock()

	if len(ids) > 0 {
		logger.Infof("device connection closed conn=%s sessions=%d", conn.ConnID(), len(ids))
	}
	for _, f := range farewells {
		m.broadcast(model.Envelope{
			Type:      model.EnvelopeControlStatusUpdate,
			SessionID: f.sessionID,
			DeviceID:  f.device.DeviceID,
			Status:    f.status,
		})
	}
}

// ForwardToAdmins relays an opaque envelope from the device side to every
// admin. Envelopes for unknown sessions are dropped.
func (m *Machine) ForwardToAdmins(env model.Envelope) {
	m.mu.Lock()
	_, ok := m.sessions[env.SessionID]
	m.mu.Unlock()
	if !ok {
		logger.Debugf("relay to admins dropped, no session session=%s type=%s", env.SessionID, env.Type)
		return
	}
	m.broadcast(env)
}

// ForwardToDevice relays an opaque envelope from the admin side to the
// device connection owning the session. Envelopes for unknown sessions are
// dropped.
func (m *Machine) ForwardToDevice(env model.Envelope) {
	m.mu.Lock()
	s, ok := m.sessions[env.SessionID]
	var conn DeviceSender
	if ok {
		conn = s.conn
	}
	m.mu.Unlock()
	if !ok {
		logger.Debugf("relay to device dropped, no session session=%s type=%s", env.SessionID, env.Type)
		return
	}
	m.sendToDevice(conn, env)
}

// ReplayEnvelopes builds the catch-up envelopes for a newly joined admin:
// request_control for every PENDING_ADMIN session and a connected status
// update for every CONNECTED session.
func (m *Machine) ReplayEnvelopes() []model.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	var envs []model.Envelope
	for _, s := range m.sessions {
		switch s.state {
		case model.SessionStatePendingAdmin:
			envs = append(envs, model.Envelope{
				Type:       model.EnvelopeRequestControl,
				SessionID:  s.id,
				DeviceID:   s.device.DeviceID,
				DeviceName: s.device.Name,
				RequestID:  s.requestID,
				Timestamp:  s.requestedAt.UnixMilli(),
			})
		case model.SessionStateConnected:
			envs = append(envs, model.Envelope{
				Type:      model.EnvelopeControlStatusUpdate,
				SessionID: s.id,
				DeviceID:  s.device.DeviceID,
				Status:    model.StatusConnected,
			})
		}
	}
	return envs
}

// SessionCount returns the number of live sessions.
func (m *Machine) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// destroyLocked removes a session from the table and detaches it from its
// owning connection's set. Safe to invoke twice; the second call finds the
// table already clean. Callers hold mu.
func (m *Machine) destroyLocked(s *session) {
	if _, ok := m.sessions[s.id]; !ok {
		return
	}
	s.stopTimer()
	delete(m.sessions, s.id)
	if owned, ok := m.connSessions[s.conn.ConnID()]; ok {
		delete(owned, s.id)
		if len(owned) == 0 {
			delete(m.connSessions, s.conn.ConnID())
		}
	}
}

// stopTimer cancels and clears the pending timer, preserving the invariant
// that it is set only while the session is PENDING_ADMIN.
func (s *session) stopTimer() {
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}
}

func (m *Machine) sendToDevice(conn DeviceSender, env model.Envelope) {
	if err := conn.SendToDevice(env); err != nil {
		logger.Warnf("send to device failed conn=%s type=%s err=%v", conn.ConnID(), env.Type, err)
	}
}

func (m *Machine) broadcast(env model.Envelope) {
	if err := m.admins.Broadcast(env); err != nil {
		logger.Warnf("admin broadcast failed type=%s err=%v", env.Type, err)
	}
}
