package flightclient

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
)

// fakeHandshakeStream implements flight.FlightService_HandshakeClient with
// a scripted two-round exchange, enough to drive runHandshake in tests
// without a real server.
type fakeHandshakeStream struct {
	grpc.ClientStream
	sent []*flight.HandshakeRequest
	recv []*flight.HandshakeResponse
	idx  int
}

func (f *fakeHandshakeStream) Send(req *flight.HandshakeRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeHandshakeStream) Recv() (*flight.HandshakeResponse, error) {
	if f.idx >= len(f.recv) {
		return nil, context.Canceled
	}
	r := f.recv[f.idx]
	f.idx++
	return r, nil
}

func (f *fakeHandshakeStream) CloseSend() error { return nil }

type fakeFlightServiceClient struct {
	handshakeStream flight.FlightService_HandshakeClient
	handshakeErr    error

	doGetStream flight.FlightService_DoGetClient
	doGetErr    error

	doPutStream flight.FlightService_DoPutClient
	doPutErr    error
}

func (f *fakeFlightServiceClient) Handshake(ctx context.Context, opts ...grpc.CallOption) (flight.FlightService_HandshakeClient, error) {
	return f.handshakeStream, f.handshakeErr
}

func (f *fakeFlightServiceClient) DoGet(ctx context.Context, in *flight.Ticket, opts ...grpc.CallOption) (flight.FlightService_DoGetClient, error) {
	return f.doGetStream, f.doGetErr
}

func (f *fakeFlightServiceClient) DoPut(ctx context.Context, opts ...grpc.CallOption) (flight.FlightService_DoPutClient, error) {
	return f.doPutStream, f.doPutErr
}
