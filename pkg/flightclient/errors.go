// Package flightclient implements a host-side asynchronous Flight client
// state machine: every long-running operation is split into a non-blocking
// Start* call that kicks off background work and a non-blocking Finish*
// call that either returns the result or reports that the work is still in
// progress. This shape lets a WASM guest poll the facade without ever
// blocking its own event loop.
package flightclient

import "errors"

// ErrWouldBlock is returned by a Finish* call when the corresponding
// Start* operation has not completed yet. The caller polls by calling
// Finish* again later.
var ErrWouldBlock = errors.New("flightclient: operation would block")

// ErrNotInProgress is returned by a Finish* call when no matching Start*
// call is currently outstanding.
var ErrNotInProgress = errors.New("flightclient: no operation in progress")

// ErrInvalidState is returned by a Start* call when the client is not in a
// state that operation can begin from (e.g. starting a handshake before
// connecting).
var ErrInvalidState = errors.New("flightclient: invalid state for operation")

// ErrAlreadyConnected is returned by StartConnect when a connection attempt
// has already completed or is already underway.
var ErrAlreadyConnected = errors.New("flightclient: already connected")

// ErrInProgress is returned by a Start* call when the same operation is
// already outstanding.
var ErrInProgress = errors.New("flightclient: operation already in progress")

// ErrInvalidParameter is returned when a call's arguments can't be acted
// on, e.g. DoPutHandle.Send with no data and fin=false, which asks for
// neither a send nor a finish.
var ErrInvalidParameter = errors.New("flightclient: invalid parameter")

// ConnectionRefusedError wraps the transport error that caused a connect
// attempt to fail.
type ConnectionRefusedError struct{ Cause error }

func (e *ConnectionRefusedError) Error() string { return "flightclient: connection refused: " + e.Cause.Error() }
func (e *ConnectionRefusedError) Unwrap() error  { return e.Cause }

// InternalError wraps the failure of a background Handshake, DoGet or
// DoPut operation, as reported by the matching Finish* call.
type InternalError struct{ Cause error }

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return "flightclient: internal error"
	}
	return "flightclient: internal error: " + e.Cause.Error()
}
func (e *InternalError) Unwrap() error { return e.Cause }
