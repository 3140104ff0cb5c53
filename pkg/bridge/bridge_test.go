package bridge

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protodelim"

	"github.com/seera-networks/yakserv/pkg/flightclient"
)

// fakeFlightServer backs a real in-process gRPC server so the bridge is
// exercised end to end, the same way flightclient's own tests avoid a live
// network dependency by running against localhost.
type fakeFlightServer struct {
	flight.BaseFlightServer
}

func (s *fakeFlightServer) Handshake(stream flight.FlightService_HandshakeServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}
	if err := stream.Send(&flight.HandshakeResponse{ProtocolVersion: req.ProtocolVersion, Payload: []byte("nonce")}); err != nil {
		return err
	}
	if _, err := stream.Recv(); err != nil {
		return err
	}
	return stream.Send(&flight.HandshakeResponse{ProtocolVersion: req.ProtocolVersion, Payload: []byte("session-token")})
}

func (s *fakeFlightServer) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	return stream.Send(&flight.FlightData{AppMetadata: []byte(`{"rules":{}}`), DataBody: []byte("row-1")})
}

func (s *fakeFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	for {
		_, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&flight.PutResult{AppMetadata: []byte("alice_123")})
		}
		if err != nil {
			return err
		}
	}
}

func startFakeServer(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	flight.RegisterFlightServiceServer(srv, &fakeFlightServer{})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func testHandler(t *testing.T) *Handler {
	addr := startFakeServer(t)
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), flightclient.ConnectOptions{ServerURL: addr}, func(nonce []byte) ([]byte, error) {
		return []byte("report"), nil
	})
}

func TestHandleLoadData_StreamsFramesAndPolicyHeader(t *testing.T) {
	h := testHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/load_data", nil)
	req.Header.Set("X-Yak-Target", "system")
	req.Header.Set("X-Yak-Column-Name", "age")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `{"rules":{}}`, rec.Header().Get("X-Yak-Policy"))

	body := bytes.NewReader(rec.Body.Bytes())
	var fd flight.FlightData
	require.NoError(t, protodelim.UnmarshalFrom(body, &fd))
	require.Equal(t, "row-1", string(fd.DataBody))
}

func TestHandleLoadData_MissingHeadersRejected(t *testing.T) {
	h := testHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/load_data", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSaveData_RoundTrip(t *testing.T) {
	h := testHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	var buf bytes.Buffer
	_, err := protodelim.MarshalTo(&buf, &flight.FlightData{DataBody: []byte("payload")})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/save_data", &buf)
	req.Header.Set("X-Yak-Policy", `{"rules":{}}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice_123", rec.Header().Get("X-Yak-Table-Name"))
}

func TestHandleSaveData_MissingPolicyHeaderRejected(t *testing.T) {
	h := testHandler(t)
	mux := http.NewServeMux()
	h.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/save_data", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
