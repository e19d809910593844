package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/remote-device-control/backend/internal/broker"
	"github.com/remote-device-control/backend/internal/model"
)

// stubFinder resolves device ids against a fixed map.
type stubFinder struct {
	devices map[string]*model.Device
}

func (f *stubFinder) FindDeviceByID(_ context.Context, deviceID string) (*model.Device, error) {
	d, ok := f.devices[deviceID]
	if !ok {
		return nil, model.ErrDeviceNotFound
	}
	return d, nil
}

// recordBroadcaster collects envelopes the machine pushes to the admin side.
type recordBroadcaster struct {
	mu   sync.Mutex
	envs []model.Envelope
}

func (b *recordBroadcaster) Broadcast(env model.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, env)
	return nil
}

func (b *recordBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.envs)
}

func setupCommGateway() (*CommGateway, *broker.Machine, *recordBroadcaster) {
	finder := &stubFinder{devices: map[string]*model.Device{
		"dev-1": {DeviceID: "dev-1", Name: "Tablet A"},
	}}
	admins := &recordBroadcaster{}
	m := broker.NewMachine(finder, admins, time.Hour)
	return NewCommGateway(m, DefaultTuning), m, admins
}

func TestCommGateway_HandleEnvelope(t *testing.T) {
	t.Run("request_control opens a session", func(t *testing.T) {
		g, m, admins := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{"type":"request_control","sessionId":"sess-1","deviceId":"dev-1"}`))

		if m.SessionCount() != 1 {
			t.Fatalf("expected 1 session, got %d", m.SessionCount())
		}
		if admins.count() != 1 {
			t.Errorf("admins should receive the request broadcast, got %d envelopes", admins.count())
		}
		env := recvEnvelope(t, dc.Client)
		if env.Type != model.EnvelopeRequestReceived || env.Status != model.StatusPendingAdminApproval {
			t.Errorf("device should be acknowledged, got %+v", env)
		}
	})

	t.Run("malformed frame answers with error and keeps the connection", func(t *testing.T) {
		g, m, _ := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{{{`))

		env := recvEnvelope(t, dc.Client)
		if env.Type != model.EnvelopeError || env.Message != "malformed envelope" {
			t.Errorf("expected malformed envelope error, got %+v", env)
		}
		if dc.IsClosed() {
			t.Error("malformed frame must not close the connection")
		}
		if m.SessionCount() != 0 {
			t.Errorf("no session should exist, table has %d", m.SessionCount())
		}
	})

	t.Run("request_control with missing fields is rejected", func(t *testing.T) {
		g, m, _ := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{"type":"request_control","deviceId":"dev-1"}`))

		env := recvEnvelope(t, dc.Client)
		if env.Type != model.EnvelopeError {
			t.Errorf("expected error envelope, got %+v", env)
		}
		if m.SessionCount() != 0 {
			t.Errorf("no session should exist, table has %d", m.SessionCount())
		}
	})

	t.Run("duplicate session id answers with a specific error", func(t *testing.T) {
		g, _, _ := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{"type":"request_control","sessionId":"sess-1","deviceId":"dev-1"}`))
		drainClient(dc.Client)
		g.handleEnvelope(dc, []byte(`{"type":"request_control","sessionId":"sess-1","deviceId":"dev-1"}`))

		env := recvEnvelope(t, dc.Client)
		if env.Type != model.EnvelopeError || env.Message != "session id already in use" {
			t.Errorf("expected duplicate session error, got %+v", env)
		}
	})

	t.Run("unknown device answers with a specific error", func(t *testing.T) {
		g, _, _ := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{"type":"request_control","sessionId":"sess-1","deviceId":"nope"}`))

		env := recvEnvelope(t, dc.Client)
		if env.Type != model.EnvelopeError || env.Message != "device not found" {
			t.Errorf("expected device not found error, got %+v", env)
		}
	})

	t.Run("control_status is dispatched to the machine", func(t *testing.T) {
		g, m, _ := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}
		if _, err := m.CreateSession(context.Background(), dc, "sess-1", "dev-1"); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		m.AdminDecision("sess-1", model.ActionAccept)

		g.handleEnvelope(dc, []byte(`{"type":"control_status","sessionId":"sess-1","status":"failed","details":"camera denied"}`))

		if m.SessionCount() != 0 {
			t.Errorf("failed status should destroy the session, table has %d", m.SessionCount())
		}
	})

	t.Run("relay without sessionId is rejected", func(t *testing.T) {
		g, _, admins := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{"type":"signaling","payload":{"sdp":"offer"}}`))

		env := recvEnvelope(t, dc.Client)
		if env.Type != model.EnvelopeError {
			t.Errorf("expected error envelope, got %+v", env)
		}
		if admins.count() != 0 {
			t.Error("nothing should be relayed without a session id")
		}
	})

	t.Run("relay with live session reaches admins", func(t *testing.T) {
		g, m, admins := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}
		if _, err := m.CreateSession(context.Background(), dc, "sess-1", "dev-1"); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		before := admins.count()

		g.handleEnvelope(dc, []byte(`{"type":"file_browser","sessionId":"sess-1","payload":{"op":"list"}}`))

		if admins.count() != before+1 {
			t.Errorf("relay should reach admins, envelopes %d -> %d", before, admins.count())
		}
	})

	t.Run("unexpected type is ignored", func(t *testing.T) {
		g, m, admins := setupCommGateway()
		dc := &deviceConn{newTestClient(16)}

		g.handleEnvelope(dc, []byte(`{"type":"control_decision","sessionId":"sess-1"}`))

		if m.SessionCount() != 0 || admins.count() != 0 {
			t.Error("unexpected device envelope must have no effect")
		}
		select {
		case data := <-dc.send:
			t.Errorf("no reply expected, got %s", data)
		default:
		}
	})
}

func TestCommGateway_Registry(t *testing.T) {
	g, _, _ := setupCommGateway()
	dc := &deviceConn{newTestClient(4)}

	g.register(dc)
	if g.ConnCount() != 1 {
		t.Errorf("expected 1 connection, got %d", g.ConnCount())
	}
	g.unregister(dc)
	if g.ConnCount() != 0 {
		t.Errorf("expected 0 connections, got %d", g.ConnCount())
	}
}
