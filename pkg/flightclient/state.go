package flightclient

import (
	"google.golang.org/grpc"
)

// clientState is a closed sum type: every concrete state below is the only
// state a Client can be in at a given moment. Represented as an interface
// with an unexported marker method rather than a class hierarchy, since Go
// has no tagged union — this is the idiomatic substitute.
type clientState interface {
	isClientState()
}

type stateDefault struct{}

func (stateDefault) isClientState() {}

type stateConnecting struct {
	result chan connectResult
}

func (stateConnecting) isClientState() {}

type stateConnected struct {
	conn   *grpc.ClientConn
	client flightServiceClient
}

func (stateConnected) isClientState() {}

type stateHandshakeProgress struct {
	result chan handshakeResult
}

func (stateHandshakeProgress) isClientState() {}

type stateDoGetProgress struct {
	result chan doGetResult
}

func (stateDoGetProgress) isClientState() {}

type stateDoPutSendProgress struct {
	result chan doPutSendResult
}

func (stateDoPutSendProgress) isClientState() {}

type stateDoPutRecvProgress struct {
	conn   *grpc.ClientConn
	client flightServiceClient
	result chan doPutRecvResult
}

func (stateDoPutRecvProgress) isClientState() {}

type stateClosed struct{}

func (stateClosed) isClientState() {}

type connectResult struct {
	conn *grpc.ClientConn
	err  error
}

type handshakeResult struct {
	conn   *grpc.ClientConn
	client flightServiceClient
	token  string
	err    error
}

type doGetResult struct {
	conn   *grpc.ClientConn
	client flightServiceClient
	stream flightDataStream
	err    error
}

type doPutSendResult struct {
	conn   *grpc.ClientConn
	client flightServiceClient
	stream flightPutStream
	err    error
}

type doPutRecvResult struct {
	tableName string
	err       error
}
