package sandbox

import (
	"context"
	"io"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"

	"github.com/seera-networks/yakserv/pkg/flightclient"
)

// fakeDoGetStream replays a fixed sequence of FlightData messages, each
// carrying both a data_body and an app_metadata value, so a test can assert
// the two are read back from the *same* message.
type fakeDoGetStream struct {
	grpc.ClientStream
	frames []*flight.FlightData
	idx    int
}

func (f *fakeDoGetStream) Recv() (*flight.FlightData, error) {
	if f.idx >= len(f.frames) {
		return nil, io.EOF
	}
	fd := f.frames[f.idx]
	f.idx++
	return fd, nil
}

func TestDoGetRecvNext_PairsDataBodyWithItsOwnAppMetadata(t *testing.T) {
	h := NewHostModule(func([]byte) ([]byte, error) { return nil, nil })

	stream := &fakeDoGetStream{frames: []*flight.FlightData{
		{DataBody: []byte("row-1"), AppMetadata: []byte("policy-1")},
		{DataBody: []byte("row-2"), AppMetadata: []byte("policy-2")},
	}}
	streamHandle := h.doGets.insert(&doGetEntry{handle: &flightclient.DoGetHandle{Stream: stream}})

	ctx := context.Background()

	if status := h.doGetRecvNext(ctx, nil, streamHandle); status != statusReady {
		t.Fatalf("expected statusReady, got %d", status)
	}
	entry, _ := h.doGets.get(streamHandle)
	if string(entry.current.GetDataBody()) != "row-1" || string(entry.current.GetAppMetadata()) != "policy-1" {
		t.Fatalf("first message mismatched: body=%q meta=%q", entry.current.GetDataBody(), entry.current.GetAppMetadata())
	}

	if status := h.doGetRecvNext(ctx, nil, streamHandle); status != statusReady {
		t.Fatalf("expected statusReady, got %d", status)
	}
	entry, _ = h.doGets.get(streamHandle)
	if string(entry.current.GetDataBody()) != "row-2" || string(entry.current.GetAppMetadata()) != "policy-2" {
		t.Fatalf("second message mismatched: body=%q meta=%q", entry.current.GetDataBody(), entry.current.GetAppMetadata())
	}

	if status := h.doGetRecvNext(ctx, nil, streamHandle); status != -1 {
		t.Fatalf("expected -1 at stream EOF, got %d", status)
	}
}

func TestDoGetRecvDataBody_RequiresRecvNextFirst(t *testing.T) {
	h := NewHostModule(func([]byte) ([]byte, error) { return nil, nil })
	streamHandle := h.doGets.insert(&doGetEntry{handle: &flightclient.DoGetHandle{Stream: &fakeDoGetStream{}}})

	if status := h.doGetRecvDataBody(context.Background(), nil, streamHandle, 0, 0); status != -2 {
		t.Fatalf("expected -2 before any doGetRecvNext call, got %d", status)
	}
}
