package model

import "errors"

var (
	// ErrDuplicateSession is returned when a request_control reuses a
	// sessionId that is already in the session table.
	ErrDuplicateSession = errors.New("session id already in use")

	// ErrDeviceNotFound is returned when a session request references a
	// device identifier that does not resolve in the inventory.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrConnClosed is returned when an outbound send targets a connection
	// that is no longer writable.
	ErrConnClosed = errors.New("connection closed")

	// ErrUsernameTaken is returned when an admin registration reuses an
	// existing username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned when a login fails verification.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
