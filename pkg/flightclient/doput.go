package flightclient

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
)

// StartDoPut begins opening a DoPut stream against the connected session.
func (c *Client) StartDoPut() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	connected, ok := c.state.(stateConnected)
	if !ok {
		switch c.state.(type) {
		case stateDoPutSendProgress, stateDoPutRecvProgress:
			return ErrInProgress
		}
		return ErrInvalidState
	}

	jwt, token := c.jwt, c.token
	resultCh := make(chan doPutSendResult, 1)
	go func() {
		ctx := attachMetadata(context.Background(), jwt, token)
		stream, err := connected.client.DoPut(ctx)
		if err != nil {
			err = fmt.Errorf("flightclient: do_put: open stream: %w", err)
		}
		resultCh <- doPutSendResult{conn: connected.conn, client: connected.client, stream: stream, err: err}
	}()
	c.state = stateDoPutSendProgress{result: resultCh}
	return nil
}

// DoPutHandle lets the caller push outbound frames and, once finished,
// await the server's PutResult.
type DoPutHandle struct {
	client *Client
	stream flightPutStream
}

// Client returns the Client this handle was obtained from, so a caller that
// only holds the handle can still drive FinishDoPutRecv.
func (h *DoPutHandle) Client() *Client { return h.client }

// FinishDoPut returns ErrWouldBlock until the DoPut stream has been opened.
func (c *Client) FinishDoPut() (*DoPutHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.state.(stateDoPutSendProgress)
	if !ok {
		return nil, ErrNotInProgress
	}

	select {
	case res := <-st.result:
		if res.err != nil {
			c.state = stateConnected{conn: res.conn, client: res.client}
			return nil, &InternalError{Cause: res.err}
		}
		c.state = stateDoPutRecvProgress{conn: res.conn, client: res.client, result: nil}
		return &DoPutHandle{client: c, stream: res.stream}, nil
	default:
		return nil, ErrWouldBlock
	}
}

// Send writes one FlightData frame. The first frame sent on a handle
// should carry the governing policy document as app_metadata; subsequent
// frames pass their data through unchanged. fin, when true, closes the
// send side and kicks off the background wait for the server's PutResult
// — no further Send calls are valid after fin=true.
func (h *DoPutHandle) Send(data *flight.FlightData, fin bool) error {
	if data == nil && !fin {
		return ErrInvalidParameter
	}
	if data != nil {
		if err := h.stream.Send(data); err != nil {
			return fmt.Errorf("flightclient: do_put: send: %w", err)
		}
	}
	if fin {
		h.client.mu.Lock()
		defer h.client.mu.Unlock()

		resultCh := make(chan doPutRecvResult, 1)
		stream := h.stream
		go func() {
			res, err := stream.CloseAndRecv()
			if err != nil {
				resultCh <- doPutRecvResult{err: fmt.Errorf("flightclient: do_put: close and recv: %w", err)}
				return
			}
			resultCh <- doPutRecvResult{tableName: string(res.GetAppMetadata())}
		}()

		prev, _ := h.client.state.(stateDoPutRecvProgress)
		h.client.state = stateDoPutRecvProgress{conn: prev.conn, client: prev.client, result: resultCh}
	}
	return nil
}

// FinishDoPutRecv returns ErrWouldBlock until the server has acknowledged
// the completed put, then returns the created table's name and restores
// the Connected state.
func (c *Client) FinishDoPutRecv() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.state.(stateDoPutRecvProgress)
	if !ok || st.result == nil {
		return "", ErrNotInProgress
	}

	select {
	case res := <-st.result:
		c.state = stateConnected{conn: st.conn, client: st.client}
		if res.err != nil {
			return "", &InternalError{Cause: res.err}
		}
		return res.tableName, nil
	default:
		return "", ErrWouldBlock
	}
}
