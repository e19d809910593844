package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/remote-device-control/backend/internal/logger"
	"github.com/remote-device-control/backend/internal/model"
)

// NotifyGateway pushes inventory change events to subscribed clients.
// Subscribers are listen-only; inbound frames are discarded.
type NotifyGateway struct {
	tuning Tuning

	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewNotifyGateway(tuning Tuning) *NotifyGateway {
	return &NotifyGateway{
		tuning:  tuning,
		clients: make(map[*Client]bool),
	}
}

// ServeHTTP upgrades a subscriber connection and runs its pumps.
func (g *NotifyGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("notify upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}

	c := newClient(conn, g.tuning)
	g.register(c)
	logger.Infof("notify subscriber connected conn=%s remote=%s", c.ID(), r.RemoteAddr)

	go c.writePump()
	go c.readLoop(
		func(data []byte) {
			// Subscribers have nothing to say; keep reading so pongs
			// and close frames are processed.
		},
		func() {
			g.unregister(c)
			logger.Infof("notify subscriber disconnected conn=%s", c.ID())
		},
	)
}

// Publish fans a change event out to every subscriber. Failed connections
// are evicted.
func (g *NotifyGateway) Publish(event model.ChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("marshal change event: %v", err)
		return
	}

	g.mu.RLock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(data); err != nil {
			logger.Warnf("dropping notify subscriber conn=%s err=%v", c.ID(), err)
			g.unregister(c)
		}
	}
}

func (g *NotifyGateway) register(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[c] = true
}

func (g *NotifyGateway) unregister(c *Client) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
	c.Close()
}

// SubscriberCount returns the number of connected subscribers.
func (g *NotifyGateway) SubscriberCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
