package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/remote-device-control/backend/internal/broker"
	"github.com/remote-device-control/backend/internal/logger"
	"github.com/remote-device-control/backend/internal/model"
)

// deviceConn adapts a Client to the machine's DeviceSender capability.
type deviceConn struct {
	*Client
}

func (d *deviceConn) ConnID() string {
	return d.ID()
}

func (d *deviceConn) SendToDevice(env model.Envelope) error {
	return d.SendEnvelope(env)
}

// CommGateway terminates device-side connections and dispatches their
// envelopes to the state machine.
type CommGateway struct {
	machine *broker.Machine
	tuning  Tuning

	mu    sync.RWMutex
	conns map[string]*deviceConn
}

// NewCommGateway creates the device-side gateway.
func NewCommGateway(machine *broker.Machine, tuning Tuning) *CommGateway {
	return &CommGateway{
		machine: machine,
		tuning:  tuning,
		conns:   make(map[string]*deviceConn),
	}
}

// ServeHTTP upgrades a device connection and runs its message pumps.
func (g *CommGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("comm upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	dc := &deviceConn{newClient(conn, g.tuning)}
	g.register(dc)
	logger.Infof("device connected conn=%s remote=%s", dc.ConnID(), r.RemoteAddr)

	go dc.writePump()
	go dc.readLoop(
		func(data []byte) { g.handleEnvelope(dc, data) },
		func() {
			g.machine.ConnectionClosed(dc)
			g.unregister(dc)
			logger.Infof("device disconnected conn=%s", dc.ConnID())
		},
	)
}

// handleEnvelope decodes one inbound frame. Malformed frames are answered
// with an error envelope and never terminate the connection.
func (g *CommGateway) handleEnvelope(dc *deviceConn, data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warnf("malformed device envelope conn=%s err=%v", dc.ConnID(), err)
		g.sendError(dc, "", "malformed envelope")
		return
	}

	switch env.Type {
	case model.EnvelopeRequestControl:
		if env.SessionID == "" || env.DeviceID == "" {
			g.sendError(dc, env.SessionID, "request_control requires sessionId and deviceId")
			return
		}
		if _, err := g.machine.CreateSession(context.Background(), dc, env.SessionID, env.DeviceID); err != nil {
			g.sendCreateError(dc, env.SessionID, err)
			return
		}

	case model.EnvelopeControlStatus:
		if env.SessionID == "" || env.Status == "" {
			g.sendError(dc, env.SessionID, "control_status requires sessionId and status")
			return
		}
		g.machine.DeviceStatus(env.SessionID, env.Status, env.Details)

	case model.EnvelopeFileBrowser, model.EnvelopeSignaling:
		if env.SessionID == "" {
			g.sendError(dc, "", string(env.Type)+" requires sessionId")
			return
		}
		g.machine.ForwardToAdmins(env)

	default:
		logger.Warnf("unexpected device envelope ignored conn=%s type=%s", dc.ConnID(), env.Type)
	}
}

func (g *CommGateway) sendCreateError(dc *deviceConn, sessionID string, err error) {
	switch {
	case errors.Is(err, model.ErrDuplicateSession):
		g.sendError(dc, sessionID, "session id already in use")
	case errors.Is(err, model.ErrDeviceNotFound):
		g.sendError(dc, sessionID, "device not found")
	default:
		logger.Errorf("create session failed session=%s err=%v", sessionID, err)
		g.sendError(dc, sessionID, "unable to create session")
	}
}

func (g *CommGateway) sendError(dc *deviceConn, sessionID, message string) {
	err := dc.SendEnvelope(model.Envelope{
		Type:      model.EnvelopeError,
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil && !errors.Is(err, model.ErrConnClosed) {
		logger.Warnf("send error envelope failed conn=%s err=%v", dc.ConnID(), err)
	}
}

func (g *CommGateway) register(dc *deviceConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[dc.ConnID()] = dc
}

func (g *CommGateway) unregister(dc *deviceConn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, dc.ConnID())
}

// ConnCount returns the number of live device connections.
func (g *CommGateway) ConnCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}
