package flightclient

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
)

// StartDoGet begins a DoGet call for ticket against the connected session,
// attaching the identity JWT (if set) and the handshake-issued session
// token (if any) as outgoing metadata.
func (c *Client) StartDoGet(ticket []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	connected, ok := c.state.(stateConnected)
	if !ok {
		if _, inProgress := c.state.(stateDoGetProgress); inProgress {
			return ErrInProgress
		}
		return ErrInvalidState
	}

	jwt, token := c.jwt, c.token
	resultCh := make(chan doGetResult, 1)
	go func() {
		ctx := attachMetadata(context.Background(), jwt, token)
		stream, err := connected.client.DoGet(ctx, &flight.Ticket{Ticket: ticket})
		if err != nil {
			err = fmt.Errorf("flightclient: do_get: %w", err)
		}
		resultCh <- doGetResult{conn: connected.conn, client: connected.client, stream: stream, err: err}
	}()
	c.state = stateDoGetProgress{result: resultCh}
	return nil
}

// DoGetHandle is the resource handle returned by FinishDoGet: the raw
// Flight data stream, ready for a caller-side decoder to pull frames from.
type DoGetHandle struct {
	Stream flightDataStream
}

// FinishDoGet returns ErrWouldBlock until the DoGet call's stream has been
// opened (not until the stream has been fully read).
func (c *Client) FinishDoGet() (*DoGetHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.state.(stateDoGetProgress)
	if !ok {
		return nil, ErrNotInProgress
	}

	select {
	case res := <-st.result:
		c.state = stateConnected{conn: res.conn, client: res.client}
		if res.err != nil {
			return nil, &InternalError{Cause: res.err}
		}
		return &DoGetHandle{Stream: res.stream}, nil
	default:
		return nil, ErrWouldBlock
	}
}
