package server

import "errors"

var (
	// ErrBind reports a listening socket that could not be bound.
	ErrBind = errors.New("failed to bind listening socket")
	// ErrAlreadyRunning reports Start on a running server.
	ErrAlreadyRunning = errors.New("server is already running")
	// ErrNotRunning reports Stop on a stopped server.
	ErrNotRunning = errors.New("server is not running")
	// ErrConnectionClosed reports a write to a closed connection.
	ErrConnectionClosed = errors.New("connection is closed")
	// ErrWriteTimeout reports a write that could not be queued in time.
	ErrWriteTimeout = errors.New("write timed out")
)
