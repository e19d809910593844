package model

import "testing"

func TestSessionStateTerminal(t *testing.T) {
	cases := []struct {
		state    SessionState
		terminal bool
	}{
		{SessionStatePendingAdmin, false},
		{SessionStateAdminAccepted, false},
		{SessionStateConnected, false},
		{SessionStateAdminRejected, true},
		{SessionStateFailed, true},
		{SessionStateDisconnected, true},
		{SessionStateTimedOut, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			if got := tc.state.Terminal(); got != tc.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tc.terminal)
			}
		})
	}
}
