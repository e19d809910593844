package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/remote-device-control/backend/internal/broker"
	"github.com/remote-device-control/backend/internal/logger"
	"github.com/remote-device-control/backend/internal/model"
)

// AdminGateway terminates admin-side connections, replays in-flight
// sessions to newly joined admins and fans machine events out to every
// connected admin. It implements broker.AdminBroadcaster.
type AdminGateway struct {
	tuning Tuning

	mu      sync.RWMutex
	clients map[*Client]bool
	machine *broker.Machine
}

// NewAdminGateway creates the admin-side gateway. AttachMachine must be
// called before the gateway accepts connections.
func NewAdminGateway(tuning Tuning) *AdminGateway {
	return &AdminGateway{
		tuning:  tuning,
		clients: make(map[*Client]bool),
	}
}

// AttachMachine wires the state machine the gateway dispatches to. Split
// from the constructor because the machine itself needs the gateway as its
// broadcaster.
func (g *AdminGateway) AttachMachine(machine *broker.Machine) {
	g.machine = machine
}

// Broadcast sends the envelope to every connected admin. A connection that
// fails mid-broadcast is dropped from the admin set without aborting
// delivery to the remainder.
func (g *AdminGateway) Broadcast(env model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	g.mu.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(data); err != nil {
			logger.Warnf("dropping admin conn=%s err=%v", c.ID(), err)
			g.unregister(c)
		}
	}
	return nil
}

// ServeHTTP upgrades an admin connection, replays outstanding sessions and
// runs its message pumps.
func (g *AdminGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("admin upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	c := newClient(conn, g.tuning)
	g.register(c)
	logger.Infof("admin connected conn=%s remote=%s", c.ID(), r.RemoteAddr)

	go c.writePump()
	// Registration and replay are not atomic against Broadcast, so an
	// envelope broadcast in this window can arrive twice. Delivery to
	// admins is at-least-once; a duplicate request_control keys on the
	// same sessionId.
	g.replay(c)
	go c.readLoop(
		func(data []byte) { g.handleEnvelope(c, data) },
		func() {
			g.unregister(c)
			logger.Infof("admin disconnected conn=%s", c.ID())
		},
	)
}

// replay catches a newly joined admin up on every session still pending an
// answer or actively connected.
func (g *AdminGateway) replay(c *Client) {
	for _, env := range g.machine.ReplayEnvelopes() {
		if err := c.SendEnvelope(env); err != nil {
			logger.Warnf("replay to admin failed conn=%s err=%v", c.ID(), err)
			return
		}
	}
}

// handleEnvelope decodes one inbound admin frame. Unknown types are logged
// and ignored.
func (g *AdminGateway) handleEnvelope(c *Client, data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warnf("malformed admin envelope conn=%s err=%v", c.ID(), err)
		return
	}

	switch env.Type {
	case model.EnvelopeControlResponse:
		if env.SessionID == "" || (env.Action != model.ActionAccept && env.Action != model.ActionReject) {
			logger.Warnf("invalid control_response conn=%s session=%s action=%s", c.ID(), env.SessionID, env.Action)
			return
		}
		g.machine.AdminDecision(env.SessionID, env.Action)

	case model.EnvelopeFileBrowser, model.EnvelopeSignaling:
		if env.SessionID == "" {
			logger.Warnf("relay envelope without sessionId conn=%s type=%s", c.ID(), env.Type)
			return
		}
		g.machine.ForwardToDevice(env)

	default:
		logger.Warnf("unknown admin envelope ignored conn=%s type=%s", c.ID(), env.Type)
	}
}

func (g *AdminGateway) register(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[c] = true
}

func (g *AdminGateway) unregister(c *Client) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
	c.Close()
}

// ClientCount returns the number of connected admins.
func (g *AdminGateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
