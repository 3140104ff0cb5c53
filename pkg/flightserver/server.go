// Package flightserver implements the authenticated Arrow Flight service:
// Handshake drives the attested session protocol, DoGet/DoPut enforce
// per-subject, per-column policy on top of the subject-scoped table store
// and the external dataset provider.
package flightserver

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/seera-networks/yakserv/pkg/attest"
	"github.com/seera-networks/yakserv/pkg/auth"
	"github.com/seera-networks/yakserv/pkg/dataset"
	"github.com/seera-networks/yakserv/pkg/handshake"
	"github.com/seera-networks/yakserv/pkg/observability"
	"github.com/seera-networks/yakserv/pkg/storage"
)

// Target SLOs for the gateway's three RPCs. A 24-hour rolling window keeps
// Status() responsive without needing a time-series backend.
var defaultSLOTargets = []*observability.SLOTarget{
	{SLOID: "handshake-slo", Name: "Handshake", Operation: "handshake", LatencyP99: 2 * time.Second, SuccessRate: 0.99, WindowHours: 24},
	{SLOID: "do_get-slo", Name: "DoGet", Operation: "do_get", LatencyP99: 500 * time.Millisecond, SuccessRate: 0.999, WindowHours: 24},
	{SLOID: "do_put-slo", Name: "DoPut", Operation: "do_put", LatencyP99: 1 * time.Second, SuccessRate: 0.999, WindowHours: 24},
}

// SLI definitions backing the targets above, one per RPC, sourced from the
// latency/success observations recordSLO feeds into the tracker.
var defaultSLIs = []*observability.SLI{
	{SLIID: "handshake-latency", Name: "Handshake latency", Operation: "handshake", Source: observability.SLISourceProbe, Unit: "ms", LinkedSLOID: "handshake-slo"},
	{SLIID: "do_get-latency", Name: "DoGet latency", Operation: "do_get", Source: observability.SLISourceProbe, Unit: "ms", LinkedSLOID: "do_get-slo"},
	{SLIID: "do_put-latency", Name: "DoPut latency", Operation: "do_put", Source: observability.SLISourceProbe, Unit: "ms", LinkedSLOID: "do_put-slo"},
}

// Server implements flight.FlightServiceServer.
type Server struct {
	flight.BaseFlightServer

	logger   *slog.Logger
	store    *storage.Store
	provider dataset.Provider
	keys     auth.KeySet
	tokens   *handshake.TokenStore
	verifier attest.Verifier
	slo      *observability.SLOTracker
	slis     *observability.SLIRegistry

	// Measurement pins the expected launch measurement; nil disables the
	// measurement check (accepting any measurement so long as report_data
	// matches the issued nonce).
	Measurement *[attest.MeasurementSize]byte

	// UseTestChallenge substitutes attest.TestChallengeNonce for a random
	// round-0 nonce, for non-SEV-SNP test environments.
	UseTestChallenge bool

	// AuthorizedSubject, when non-empty, restricts DoGet/DoPut to callers
	// whose resolved subject matches exactly; any other subject is
	// rejected as unauthenticated.
	AuthorizedSubject string
}

// New constructs a Server.
func New(logger *slog.Logger, store *storage.Store, provider dataset.Provider, keys auth.KeySet, verifier attest.Verifier) *Server {
	slo := observability.NewSLOTracker()
	for _, target := range defaultSLOTargets {
		slo.SetTarget(target)
	}

	slis := observability.NewSLIRegistry()
	for _, sli := range defaultSLIs {
		// Grounded on fixed definitions above; Register only rejects
		// incomplete SLIs, which these never are.
		_ = slis.Register(sli)
	}

	return &Server{
		logger:   logger,
		store:    store,
		provider: provider,
		keys:     keys,
		tokens:   handshake.NewTokenStore(),
		verifier: verifier,
		slo:      slo,
		slis:     slis,
	}
}

// SLOStatus reports the current compliance status for one of "handshake",
// "do_get", or "do_put".
func (s *Server) SLOStatus(operation string) (*observability.SLOStatus, error) {
	return s.slo.Status(operation)
}

// SLIsForOperation returns the SLI definitions backing one of "handshake",
// "do_get", or "do_put", for an operator dashboard to enumerate.
func (s *Server) SLIsForOperation(operation string) []*observability.SLI {
	return s.slis.ByOperation(operation)
}

// recordSLO records one RPC's outcome against its SLO target.
func (s *Server) recordSLO(operation string, start time.Time, err error) {
	s.slo.Record(observability.SLOObservation{
		Operation: operation,
		Latency:   time.Since(start),
		Success:   err == nil,
	})
}

// Handshake drives one session's two handshake rounds to completion,
// issuing a bearer token into the server's token store on success.
func (s *Server) Handshake(stream flight.FlightService_HandshakeServer) (err error) {
	start := time.Now()
	defer func() { s.recordSLO("handshake", start, err) }()

	session := handshake.NewSession(s.verifier, s.Measurement, s.UseTestChallenge)
	sessionID := uuid.NewString()
	log := s.logger.With("session_id", sessionID)

	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return status.Errorf(codes.Internal, "handshake: recv: %v", err)
		}

		payload, err := session.Advance(req.GetPayload())
		if err != nil {
			if err == handshake.ErrTooManyRounds {
				return status.Error(codes.Internal, err.Error())
			}
			log.Warn("handshake round failed", "error", err)
			return status.Errorf(codes.Unauthenticated, "handshake failed: %v", err)
		}

		if session.Completed() {
			s.tokens.Issue(string(payload))
			log.Info("handshake completed")
		}

		if err := stream.Send(&flight.HandshakeResponse{ProtocolVersion: 1, Payload: payload}); err != nil {
			return status.Errorf(codes.Internal, "handshake: send: %v", err)
		}
	}
}

// resolveCaller extracts the session bearer token and JWT-derived subject
// from the incoming gRPC metadata.
func (s *Server) resolveCaller(ctx context.Context) (subject string, err error) {
	md, _ := metadata.FromIncomingContext(ctx)

	sessionHeader := firstOrEmpty(md.Get("x-yak-authorization"))
	token, err := auth.CheckSessionToken(sessionHeader)
	if err != nil {
		return "", status.Errorf(codes.Unauthenticated, "missing or malformed session token: %v", err)
	}
	if !s.tokens.Valid(token) {
		return "", status.Error(codes.Unauthenticated, "session token is not valid")
	}

	authHeader := firstOrEmpty(md.Get("authorization"))
	subject, err = auth.ResolveSubject(authHeader, s.keys)
	if err != nil {
		return "", status.Errorf(codes.Unauthenticated, "invalid identity token: %v", err)
	}

	if s.AuthorizedSubject != "" && subject != s.AuthorizedSubject {
		return "", status.Error(codes.Unauthenticated, "subject is not in the authorized_subject allow-list")
	}

	return subject, nil
}

func firstOrEmpty(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// DoGet serves the ticketed column, prefixing the response stream's first
// message with the governing policy document as app_metadata.
func (s *Server) DoGet(tkt *flight.Ticket, stream flight.FlightService_DoGetServer) (err error) {
	start := time.Now()
	defer func() { s.recordSLO("do_get", start, err) }()

	ctx := stream.Context()
	subject, err := s.resolveCaller(ctx)
	if err != nil {
		return err
	}

	ticket, err := TicketFromJSON(tkt.GetTicket())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	if ticket.Target == SystemTarget {
		return s.doGetFromProvider(ctx, stream, ticket)
	}
	return s.doGetFromStorage(ctx, stream, subject, ticket)
}

func (s *Server) doGetFromProvider(ctx context.Context, stream flight.FlightService_DoGetServer, ticket Ticket) error {
	batches, err := s.provider.GetData(ctx, ticket.Target, ticket.ColumnName)
	if err != nil {
		return status.Errorf(codes.NotFound, "get data: %v", err)
	}
	policyDoc, err := s.provider.GetPolicy(ctx, ticket.Target, ticket.ColumnName)
	if err != nil {
		return status.Errorf(codes.NotFound, "get policy: %v", err)
	}
	return writeBatchesWithPolicy(stream, batches, policyDoc)
}

func (s *Server) doGetFromStorage(ctx context.Context, stream flight.FlightService_DoGetServer, subject string, ticket Ticket) error {
	col, err := s.store.GetColumn(ctx, subject, ticket.Target, ticket.ColumnName)
	if err != nil {
		return status.Errorf(codes.NotFound, "get data: %v", err)
	}
	defer col.Release()

	policyDoc, err := s.store.GetPolicy(ctx, subject, ticket.Target, ticket.ColumnName)
	if err != nil {
		return status.Errorf(codes.NotFound, "get policy: %v", err)
	}
	return writeBatchesWithPolicy(stream, []arrow.Record{col}, policyDoc)
}

// writeBatchesWithPolicy streams batches to the client, attaching policyDoc
// as app_metadata on the first message (the schema message) only.
func writeBatchesWithPolicy(stream flight.FlightService_DoGetServer, batches []arrow.Record, policyDoc string) error {
	if len(batches) == 0 {
		return status.Error(codes.NotFound, "no data available")
	}
	schema := batches[0].Schema()
	w := flight.NewRecordWriter(stream, ipc.WithSchema(schema), ipc.WithAllocator(memory.NewGoAllocator()))
	defer w.Close()

	first := true
	for _, rec := range batches {
		var err error
		if first {
			err = w.WriteWithAppMetadata(rec, []byte(policyDoc))
			first = false
		} else {
			err = w.Write(rec)
		}
		if err != nil {
			return status.Errorf(codes.Internal, "write batch: %v", err)
		}
	}
	return nil
}

// DoPut ingests a schema message followed by record batches, and reports
// the created table's target name as the PutResult's app_metadata. The
// policy document is taken from the schema message's app_metadata; a
// non-empty app_metadata on the first record batch replaces it. The stored
// table is created when the first record batch arrives, so a stream with no
// record batches creates no table and reports an empty target name.
func (s *Server) DoPut(stream flight.FlightService_DoPutServer) (err error) {
	start := time.Now()
	defer func() { s.recordSLO("do_put", start, err) }()

	ctx := stream.Context()
	subject, err := s.resolveCaller(ctx)
	if err != nil {
		return err
	}

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "do_put: open reader: %v", err)
	}
	defer reader.Release()

	var (
		target     string
		policyDoc  = string(reader.LatestAppMetadata())
		firstBatch = true
	)

	for reader.Next() {
		if meta := reader.LatestAppMetadata(); len(meta) > 0 {
			policyDoc = string(meta)
		}
		rec := reader.Record()
		if firstBatch {
			firstBatch = false
			target, err = s.store.CreateTable(ctx, subject, rec.Schema(), policyDoc)
			if err != nil {
				return status.Errorf(codes.Internal, "do_put: create table: %v", err)
			}
		}
		if err := s.store.InsertBatch(ctx, subject, target, rec); err != nil {
			return status.Errorf(codes.Internal, "do_put: insert: %v", err)
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return status.Errorf(codes.Internal, "do_put: stream: %v", err)
	}

	return stream.Send(&flight.PutResult{AppMetadata: []byte(target)})
}
