package flightclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// flightServiceClient is the subset of the generated Flight gRPC client
// this facade drives. Narrowing to an interface (rather than depending on
// *flight.Client directly) keeps the state machine testable with a fake.
type flightServiceClient interface {
	Handshake(ctx context.Context, opts ...grpc.CallOption) (flight.FlightService_HandshakeClient, error)
	DoGet(ctx context.Context, in *flight.Ticket, opts ...grpc.CallOption) (flight.FlightService_DoGetClient, error)
	DoPut(ctx context.Context, opts ...grpc.CallOption) (flight.FlightService_DoPutClient, error)
}

type flightDataStream = flight.FlightService_DoGetClient
type flightPutStream = flight.FlightService_DoPutClient

// ConnectOptions configures StartConnect.
type ConnectOptions struct {
	ServerURL     string
	UseTLS        bool
	ClientCertPEM []byte
	ClientKeyPEM  []byte
	CACertPEM     []byte
}

// HandshakeOptions configures StartHandshake.
type HandshakeOptions struct {
	AttestationReportProvider func(nonce []byte) ([]byte, error)
}

// Client is one instance of the asynchronous Flight client state machine.
// All exported methods are safe for concurrent use; Start*/Finish* pairs
// are meant to be driven by a single logical caller (e.g. one sandboxed
// guest resource handle), as described by the package doc.
type Client struct {
	mu    sync.Mutex
	state clientState
	token string // session bearer token set by a completed handshake
	jwt   string // optional identity bearer token attached to DoGet/DoPut
}

// New returns a Client in its initial (disconnected) state.
func New() *Client {
	return &Client{state: stateDefault{}}
}

// SetIdentityToken attaches a bearer JWT to subsequent DoGet/DoPut calls.
func (c *Client) SetIdentityToken(jwt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jwt = jwt
}

// StartConnect begins dialing opts.ServerURL in the background. It fails
// immediately with ErrAlreadyConnected unless the client is in its default
// (never-yet-connected) state.
func (c *Client) StartConnect(opts ConnectOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.state.(stateDefault); !ok {
		return ErrAlreadyConnected
	}

	resultCh := make(chan connectResult, 1)
	go func() {
		conn, err := dial(opts)
		resultCh <- connectResult{conn: conn, err: err}
	}()
	c.state = stateConnecting{result: resultCh}
	return nil
}

func dial(opts ConnectOptions) (*grpc.ClientConn, error) {
	var creds credentials.TransportCredentials
	if opts.UseTLS {
		tlsCfg := &tls.Config{}
		if opts.CACertPEM != nil {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(opts.CACertPEM) {
				return nil, fmt.Errorf("flightclient: invalid CA certificate")
			}
			tlsCfg.RootCAs = pool
		}
		if (opts.ClientCertPEM == nil) != (opts.ClientKeyPEM == nil) {
			return nil, fmt.Errorf("flightclient: client cert and key must both be provided or both omitted")
		}
		if opts.ClientCertPEM != nil {
			cert, err := tls.X509KeyPair(opts.ClientCertPEM, opts.ClientKeyPEM)
			if err != nil {
				return nil, fmt.Errorf("flightclient: load client keypair: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}
		creds = credentials.NewTLS(tlsCfg)
	} else {
		creds = insecure.NewCredentials()
	}

	return grpc.NewClient(opts.ServerURL, grpc.WithTransportCredentials(creds))
}

// FinishConnect returns ErrWouldBlock until the background dial completes.
func (c *Client) FinishConnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.state.(stateConnecting)
	if !ok {
		return ErrNotInProgress
	}

	select {
	case res := <-st.result:
		if res.err != nil {
			c.state = stateDefault{}
			return &ConnectionRefusedError{Cause: res.err}
		}
		c.state = stateConnected{conn: res.conn, client: flight.NewFlightServiceClient(res.conn)}
		return nil
	default:
		return ErrWouldBlock
	}
}

func attachMetadata(ctx context.Context, jwt, token string) context.Context {
	pairs := []string{}
	if jwt != "" {
		pairs = append(pairs, "authorization", "Bearer "+jwt)
	}
	if token != "" {
		pairs = append(pairs, "x-yak-authorization", "Bearer "+token)
	}
	if len(pairs) == 0 {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}
