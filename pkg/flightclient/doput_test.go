package flightclient

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type fakeDoPutStream struct {
	grpc.ClientStream
	sent []*flight.FlightData
}

func (f *fakeDoPutStream) Send(d *flight.FlightData) error {
	f.sent = append(f.sent, d)
	return nil
}

func (f *fakeDoPutStream) CloseAndRecv() (*flight.PutResult, error) {
	return &flight.PutResult{AppMetadata: []byte("alice_123")}, nil
}

func TestDoPut_StartRequiresConnectedState(t *testing.T) {
	c := New()
	err := c.StartDoPut()
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDoPutHandle_SendRejectsNoDataNoFin(t *testing.T) {
	stream := &fakeDoPutStream{}
	fc := &fakeFlightServiceClient{doPutStream: stream}
	c := newConnectedClient(fc)

	require.NoError(t, c.StartDoPut())

	var handle *DoPutHandle
	for i := 0; i < 1000 && handle == nil; i++ {
		h, err := c.FinishDoPut()
		if err != ErrWouldBlock {
			require.NoError(t, err)
			handle = h
		}
	}
	require.NotNil(t, handle)

	err := handle.Send(nil, false)
	require.ErrorIs(t, err, ErrInvalidParameter)
	require.Empty(t, stream.sent)
}

func TestDoPut_FullRoundTrip(t *testing.T) {
	stream := &fakeDoPutStream{}
	fc := &fakeFlightServiceClient{doPutStream: stream}
	c := newConnectedClient(fc)

	require.NoError(t, c.StartDoPut())

	var handle *DoPutHandle
	for i := 0; i < 1000 && handle == nil; i++ {
		h, err := c.FinishDoPut()
		if err != ErrWouldBlock {
			require.NoError(t, err)
			handle = h
		}
	}
	require.NotNil(t, handle)

	require.NoError(t, handle.Send(&flight.FlightData{AppMetadata: []byte("policy")}, false))
	require.NoError(t, handle.Send(nil, true))

	var tableName string
	for i := 0; i < 1000; i++ {
		name, err := c.FinishDoPutRecv()
		if err != ErrWouldBlock {
			require.NoError(t, err)
			tableName = name
			break
		}
	}
	require.Equal(t, "alice_123", tableName)
	require.Len(t, stream.sent, 1)
}
