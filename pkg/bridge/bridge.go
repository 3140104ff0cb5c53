// Package bridge implements the HTTP-to-Flight bridge: POST /load_data
// drives a DoGet and streams the result back as length-delimited FlightData
// frames, POST /save_data reads such frames from the request body and
// drives a DoPut.
package bridge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/protobuf/encoding/protodelim"

	"github.com/seera-networks/yakserv/pkg/auth"
	"github.com/seera-networks/yakserv/pkg/flightclient"
)

// Handler serves /load_data and /save_data against one configured Flight
// server endpoint.
type Handler struct {
	logger     *slog.Logger
	connectOpt flightclient.ConnectOptions
	reportFunc func(nonce []byte) ([]byte, error)
}

// New constructs a Handler. reportFunc builds the encoded attestation
// report for a handshake nonce (see pkg/attest for the wire format).
func New(logger *slog.Logger, connectOpt flightclient.ConnectOptions, reportFunc func(nonce []byte) ([]byte, error)) *Handler {
	return &Handler{logger: logger, connectOpt: connectOpt, reportFunc: reportFunc}
}

// pollUntilReady busy-waits (with a short backoff) on a Finish* call until
// it stops returning flightclient.ErrWouldBlock. The native bridge has no
// guest event loop to yield to, so blocking here is the correct behavior —
// only the WASM-hosted variant in pkg/sandbox needs the non-blocking
// discipline this facade was built around.
func pollUntilReady[T any](finish func() (T, error)) (T, error) {
	for {
		v, err := finish()
		if err != flightclient.ErrWouldBlock {
			return v, err
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *Handler) connectAndHandshake() (*flightclient.Client, error) {
	c := flightclient.New()
	if err := c.StartConnect(h.connectOpt); err != nil {
		return nil, err
	}
	if _, err := pollUntilReady(func() (struct{}, error) { return struct{}{}, c.FinishConnect() }); err != nil {
		return nil, err
	}

	if err := c.StartHandshake(h.reportFunc); err != nil {
		return nil, err
	}
	if _, err := pollUntilReady(func() (struct{}, error) { return struct{}{}, c.FinishHandshake() }); err != nil {
		return nil, err
	}
	return c, nil
}

// getTicket is the JSON body passed to a DoGet call.
type getTicket struct {
	Target     string `json:"target"`
	ColumnName string `json:"column_name"`
}

// HandleLoadData implements POST /load_data.
func (h *Handler) HandleLoadData(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Yak-Target")
	columnName := r.Header.Get("X-Yak-Column-Name")
	if target == "" || columnName == "" {
		http.Error(w, "X-Yak-Target and X-Yak-Column-Name headers are required", http.StatusBadRequest)
		return
	}

	client, err := h.connectAndHandshake()
	if err != nil {
		h.logger.Error("load_data: connect/handshake failed", "error", err)
		http.Error(w, "upstream connection failed", http.StatusBadGateway)
		return
	}
	defer client.Close()

	ticketBytes, err := json.Marshal(getTicket{Target: target, ColumnName: columnName})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := client.StartDoGet(ticketBytes); err != nil {
		http.Error(w, "do_get failed", http.StatusBadGateway)
		return
	}
	handle, err := pollUntilReady(client.FinishDoGet)
	if err != nil {
		h.logger.Error("load_data: do_get failed", "error", err)
		http.Error(w, "do_get failed", http.StatusBadGateway)
		return
	}

	policy := "{}"
	headerWritten := false
	for {
		fd, err := handle.Stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.logger.Error("load_data: stream recv failed", "error", err)
			if !headerWritten {
				http.Error(w, "stream failed", http.StatusBadGateway)
			}
			return
		}
		if meta := fd.GetAppMetadata(); len(meta) > 0 {
			policy = string(meta)
		}
		if !headerWritten {
			w.Header().Set("X-Yak-Policy", policy)
			w.WriteHeader(http.StatusOK)
			headerWritten = true
		}
		if _, err := protodelim.MarshalTo(w, fd); err != nil {
			h.logger.Error("load_data: write frame failed", "error", err)
			return
		}
	}
	if !headerWritten {
		w.Header().Set("X-Yak-Policy", policy)
		w.WriteHeader(http.StatusOK)
	}
}

// HandleSaveData implements POST /save_data.
func (h *Handler) HandleSaveData(w http.ResponseWriter, r *http.Request) {
	policy := r.Header.Get("X-Yak-Policy")
	if policy == "" {
		http.Error(w, "X-Yak-Policy header is required", http.StatusBadRequest)
		return
	}

	client, err := h.connectAndHandshake()
	if err != nil {
		h.logger.Error("save_data: connect/handshake failed", "error", err)
		http.Error(w, "upstream connection failed", http.StatusBadGateway)
		return
	}
	defer client.Close()

	if err := client.StartDoPut(); err != nil {
		http.Error(w, "do_put failed", http.StatusBadGateway)
		return
	}
	handle, err := pollUntilReady(client.FinishDoPut)
	if err != nil {
		h.logger.Error("save_data: do_put open failed", "error", err)
		http.Error(w, "do_put failed", http.StatusBadGateway)
		return
	}

	first := true
	body := bufio.NewReader(r.Body)
	for {
		fd := &flight.FlightData{}
		if err := protodelim.UnmarshalFrom(body, fd); err != nil {
			if err == io.EOF {
				break
			}
			h.logger.Error("save_data: read frame failed", "error", err)
			http.Error(w, "malformed frame", http.StatusBadRequest)
			return
		}
		if first {
			fd.AppMetadata = []byte(policy)
			first = false
		}
		if err := handle.Send(fd, false); err != nil {
			h.logger.Error("save_data: send frame failed", "error", err)
			http.Error(w, "upstream send failed", http.StatusBadGateway)
			return
		}
	}
	if err := handle.Send(nil, true); err != nil {
		http.Error(w, "upstream send failed", http.StatusBadGateway)
		return
	}

	tableName, err := pollUntilReady(client.FinishDoPutRecv)
	if err != nil {
		h.logger.Error("save_data: do_put recv failed", "error", err)
		http.Error(w, "do_put failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("X-Yak-Table-Name", tableName)
	w.WriteHeader(http.StatusOK)
}

// Routes registers the bridge's handlers on mux, wrapped with CORS and
// request-ID middleware — the bridge faces browser and script clients
// directly, unlike the gRPC-only Flight gateway behind it.
func (h *Handler) Routes(mux *http.ServeMux) {
	wrap := func(next http.HandlerFunc) http.Handler {
		return auth.RequestIDMiddleware(auth.CORSMiddleware(nil)(next))
	}
	mux.Handle("/load_data", wrap(h.HandleLoadData))
	mux.Handle("/save_data", wrap(h.HandleSaveData))
	mux.Handle("/healthz", wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}))
}
