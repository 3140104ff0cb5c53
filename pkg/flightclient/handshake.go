package flightclient

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
)

// StartHandshake begins the two-round attested handshake over the
// connected session. provider is called once with the server-issued nonce
// and must return the encoded attestation report to send back.
func (c *Client) StartHandshake(provider func(nonce []byte) ([]byte, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	connected, ok := c.state.(stateConnected)
	if !ok {
		if _, inProgress := c.state.(stateHandshakeProgress); inProgress {
			return ErrInProgress
		}
		return ErrInvalidState
	}

	resultCh := make(chan handshakeResult, 1)
	go func() {
		token, err := runHandshake(connected.client, provider)
		resultCh <- handshakeResult{conn: connected.conn, client: connected.client, token: token, err: err}
	}()
	c.state = stateHandshakeProgress{result: resultCh}
	return nil
}

func runHandshake(client flightServiceClient, provider func([]byte) ([]byte, error)) (string, error) {
	ctx := context.Background()
	stream, err := client.Handshake(ctx)
	if err != nil {
		return "", fmt.Errorf("flightclient: open handshake stream: %w", err)
	}

	if err := stream.Send(&flight.HandshakeRequest{ProtocolVersion: 1}); err != nil {
		return "", fmt.Errorf("flightclient: send round 0: %w", err)
	}
	round0, err := stream.Recv()
	if err != nil {
		return "", fmt.Errorf("flightclient: recv round 0: %w", err)
	}

	reportBytes, err := provider(round0.GetPayload())
	if err != nil {
		return "", fmt.Errorf("flightclient: build attestation report: %w", err)
	}

	if err := stream.Send(&flight.HandshakeRequest{ProtocolVersion: 1, Payload: reportBytes}); err != nil {
		return "", fmt.Errorf("flightclient: send round 1: %w", err)
	}
	round1, err := stream.Recv()
	if err != nil {
		return "", fmt.Errorf("flightclient: recv round 1: %w", err)
	}
	_ = stream.CloseSend()

	return string(round1.GetPayload()), nil
}

// FinishHandshake returns ErrWouldBlock until the handshake completes. On
// success it stores the issued session token for later DoGet/DoPut calls;
// a handshake failure restores the Connected state without a token rather
// than closing the connection.
func (c *Client) FinishHandshake() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.state.(stateHandshakeProgress)
	if !ok {
		return ErrNotInProgress
	}

	select {
	case res := <-st.result:
		c.state = stateConnected{conn: res.conn, client: res.client}
		if res.err != nil {
			return &InternalError{Cause: res.err}
		}
		c.token = res.token
		return nil
	default:
		return ErrWouldBlock
	}
}
