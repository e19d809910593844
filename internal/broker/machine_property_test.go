package broker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/remote-device-control/backend/internal/model"
)

// timerMatchesState reports whether every live session satisfies the timer
// invariant: a pending timer exists exactly while the session awaits the
// admin. Callers must not hold m.mu.
func timerMatchesState(m *Machine) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		pending := s.state == model.SessionStatePendingAdmin
		armed := s.pendingTimer != nil
		if pending != armed {
			return false
		}
	}
	return true
}

func TestSessionTableProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	ctx := context.Background()

	// One session per id, no matter how many creates race for it.
	properties.Property("session ids are unique in the table", prop.ForAll(
		func(numCreates int) bool {
			if numCreates <= 0 || numCreates > 20 {
				numCreates = 1
			}
			finder := &fakeFinder{devices: map[string]*model.Device{
				"dev-1": {DeviceID: "dev-1", Name: "Tablet A"},
			}}
			m := NewMachine(finder, &fakeAdmins{}, time.Hour)
			conn := &fakeConn{id: "conn-1"}

			created := 0
			for i := 0; i < numCreates; i++ {
				if _, err := m.CreateSession(ctx, conn, "sess-shared", "dev-1"); err == nil {
					created++
				}
			}
			return created == 1 && m.SessionCount() == 1
		},
		gen.IntRange(1, 20),
	))

	// The pending timer lives and dies with PENDING_ADMIN.
	properties.Property("pending timer armed exactly while pending", prop.ForAll(
		func(accept bool, connect bool) bool {
			finder := &fakeFinder{devices: map[string]*model.Device{
				"dev-1": {DeviceID: "dev-1", Name: "Tablet A"},
			}}
			m := NewMachine(finder, &fakeAdmins{}, time.Hour)
			conn := &fakeConn{id: "conn-1"}

			if _, err := m.CreateSession(ctx, conn, "sess-1", "dev-1"); err != nil {
				return false
			}
			if !timerMatchesState(m) {
				return false
			}

			if accept {
				m.AdminDecision("sess-1", model.ActionAccept)
				if connect {
					m.DeviceStatus("sess-1", model.StatusConnected, "")
				}
			} else {
				m.AdminDecision("sess-1", model.ActionReject)
			}
			return timerMatchesState(m)
		},
		gen.Bool(),
		gen.Bool(),
	))

	// Destroying a session twice leaves the table exactly as destroying it
	// once would.
	properties.Property("destruction is idempotent", prop.ForAll(
		func(numSessions int) bool {
			if numSessions <= 0 || numSessions > 10 {
				numSessions = 1
			}
			finder := &fakeFinder{devices: map[string]*model.Device{
				"dev-1": {DeviceID: "dev-1", Name: "Tablet A"},
			}}
			m := NewMachine(finder, &fakeAdmins{}, time.Hour)
			conn := &fakeConn{id: "conn-1"}

			for i := 0; i < numSessions; i++ {
				id := fmt.Sprintf("sess-%d", i)
				if _, err := m.CreateSession(ctx, conn, id, "dev-1"); err != nil {
					return false
				}
			}

			m.mu.Lock()
			victim := m.sessions["sess-0"]
			m.destroyLocked(victim)
			m.destroyLocked(victim)
			m.mu.Unlock()

			return m.SessionCount() == numSessions-1
		},
		gen.IntRange(1, 10),
	))

	// Every terminal resolution empties the session's slot and frees the id.
	properties.Property("terminal transitions always destroy the session", prop.ForAll(
		func(outcome int) bool {
			finder := &fakeFinder{devices: map[string]*model.Device{
				"dev-1": {DeviceID: "dev-1", Name: "Tablet A"},
			}}
			m := NewMachine(finder, &fakeAdmins{}, time.Hour)
			conn := &fakeConn{id: "conn-1"}

			if _, err := m.CreateSession(ctx, conn, "sess-1", "dev-1"); err != nil {
				return false
			}

			switch outcome % 4 {
			case 0:
				m.AdminDecision("sess-1", model.ActionReject)
			case 1:
				m.TimeoutFired("sess-1")
			case 2:
				m.AdminDecision("sess-1", model.ActionAccept)
				m.DeviceStatus("sess-1", model.StatusFailed, "boom")
			case 3:
				m.ConnectionClosed(conn)
			}

			if m.SessionCount() != 0 {
				return false
			}
			_, err := m.CreateSession(ctx, conn, "sess-1", "dev-1")
			return err == nil
		},
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
