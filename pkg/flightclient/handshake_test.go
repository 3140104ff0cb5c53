package flightclient

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/stretchr/testify/require"
)

func newConnectedClient(fc flightServiceClient) *Client {
	c := New()
	c.state = stateConnected{client: fc}
	return c
}

func waitFor(t *testing.T, fn func() error) error {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		err = fn()
		if err != ErrWouldBlock {
			return err
		}
		time.Sleep(time.Millisecond)
	}
	return err
}

func TestHandshake_StartRequiresConnectedState(t *testing.T) {
	c := New()
	err := c.StartHandshake(func([]byte) ([]byte, error) { return nil, nil })
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestHandshake_FullRoundTrip(t *testing.T) {
	stream := &fakeHandshakeStream{
		recv: []*flight.HandshakeResponse{
			{ProtocolVersion: 1, Payload: []byte("nonce")},
			{ProtocolVersion: 1, Payload: []byte("session-token")},
		},
	}
	fc := &fakeFlightServiceClient{handshakeStream: stream}
	c := newConnectedClient(fc)

	var seenNonce []byte
	err := c.StartHandshake(func(nonce []byte) ([]byte, error) {
		seenNonce = nonce
		return []byte("report"), nil
	})
	require.NoError(t, err)

	err = waitFor(t, c.FinishHandshake)
	require.NoError(t, err)
	require.Equal(t, "nonce", string(seenNonce))
	require.Equal(t, "session-token", c.token)

	_, isConnected := c.state.(stateConnected)
	require.True(t, isConnected)
}

func TestHandshake_FinishWithoutStartIsNotInProgress(t *testing.T) {
	c := New()
	err := c.FinishHandshake()
	require.ErrorIs(t, err, ErrNotInProgress)
}
