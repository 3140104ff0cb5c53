// Package sandbox hosts the WASM guest side of the data-access boundary:
// it exposes the flightclient Start*/Finish* discipline as a set of wazero
// host functions operating on integer resource handles, so a guest can
// drive a Flight session without the host ever blocking a guest poll.
package sandbox

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/seera-networks/yakserv/pkg/flightclient"
)

// Status codes returned by the non-blocking host functions. They mirror the
// three-way outcome flightclient's Finish* calls already produce.
const (
	statusReady      int32 = 0
	statusWouldBlock int32 = 1
	statusError      int32 = 2
)

type clientEntry struct {
	client  *flightclient.Client
	lastErr error
}

type doGetEntry struct {
	handle  *flightclient.DoGetHandle
	current *flight.FlightData // the frame doGetRecvNext last fetched
	lastErr error
}

type doPutEntry struct {
	handle    *flightclient.DoPutHandle
	tableName string
	lastErr   error
}

// HostModule owns every resource table reachable from a guest instance.
// One HostModule is created per guest instantiation; handles are not
// meaningful across instances.
type HostModule struct {
	reportProvider func(nonce []byte) ([]byte, error)

	clients *resourceTable[*clientEntry]
	doGets  *resourceTable[*doGetEntry]
	doPuts  *resourceTable[*doPutEntry]
}

// NewHostModule constructs a HostModule. reportProvider supplies the
// attestation report bytes for a handshake nonce whenever the guest passes
// an empty report to handshake_start; a non-empty guest report is sent
// as is.
func NewHostModule(reportProvider func(nonce []byte) ([]byte, error)) *HostModule {
	return &HostModule{
		reportProvider: reportProvider,
		clients:        newResourceTable[*clientEntry](),
		doGets:         newResourceTable[*doGetEntry](),
		doPuts:         newResourceTable[*doPutEntry](),
	}
}

func readMem(mod api.Module, ptr, size uint32) ([]byte, bool) {
	return mod.Memory().Read(ptr, size)
}

func writeOut(mod api.Module, ptr, capacity uint32, data []byte) int32 {
	if uint32(len(data)) > capacity {
		return -3
	}
	if len(data) > 0 {
		if !mod.Memory().Write(ptr, data) {
			return -2
		}
	}
	return int32(len(data))
}

// connectStart dials the Flight server URL read from guest memory and returns a handle to
// the in-flight connection attempt. The guest polls connectFinish until it
// stops seeing statusWouldBlock.
func (h *HostModule) connectStart(ctx context.Context, mod api.Module, urlPtr, urlLen uint32) uint32 {
	urlBytes, ok := readMem(mod, urlPtr, urlLen)
	entry := &clientEntry{client: flightclient.New()}
	handle := h.clients.insert(entry)
	if !ok {
		entry.lastErr = fmt.Errorf("sandbox: invalid server url pointer")
		return handle
	}
	entry.lastErr = entry.client.StartConnect(flightclient.ConnectOptions{ServerURL: string(urlBytes)})
	return handle
}

func (h *HostModule) connectFinish(ctx context.Context, mod api.Module, handle uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok {
		return statusError
	}
	if entry.lastErr != nil {
		return statusError
	}
	err := entry.client.FinishConnect()
	return classify(entry, err)
}

func classify(entry interface{ setErr(error) }, err error) int32 {
	if err == flightclient.ErrWouldBlock {
		return statusWouldBlock
	}
	if err != nil {
		entry.setErr(err)
		return statusError
	}
	return statusReady
}

func (e *clientEntry) setErr(err error) { e.lastErr = err }
func (e *doGetEntry) setErr(err error)  { e.lastErr = err }
func (e *doPutEntry) setErr(err error)  { e.lastErr = err }

func (h *HostModule) handshakeStart(ctx context.Context, mod api.Module, handle, reportPtr, reportLen uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok {
		return statusError
	}
	reportBytes, memOK := readMem(mod, reportPtr, reportLen)
	if !memOK {
		entry.lastErr = fmt.Errorf("sandbox: invalid report pointer")
		return statusError
	}
	provider := func(nonce []byte) ([]byte, error) {
		if len(reportBytes) > 0 {
			return reportBytes, nil
		}
		return h.reportProvider(nonce)
	}
	if err := entry.client.StartHandshake(provider); err != nil {
		entry.lastErr = err
		return statusError
	}
	return statusReady
}

func (h *HostModule) handshakeFinish(ctx context.Context, mod api.Module, handle uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok {
		return statusError
	}
	return classify(entry, entry.client.FinishHandshake())
}

func (h *HostModule) doGetStart(ctx context.Context, mod api.Module, handle, ticketPtr, ticketLen uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok {
		return statusError
	}
	ticket, memOK := readMem(mod, ticketPtr, ticketLen)
	if !memOK {
		entry.lastErr = fmt.Errorf("sandbox: invalid ticket pointer")
		return statusError
	}
	if err := entry.client.StartDoGet(ticket); err != nil {
		entry.lastErr = err
		return statusError
	}
	return statusReady
}

func (h *HostModule) doGetFinish(ctx context.Context, mod api.Module, handle uint32) (uint32, int32) {
	entry, ok := h.clients.get(handle)
	if !ok {
		return 0, statusError
	}
	dgh, err := entry.client.FinishDoGet()
	if err == flightclient.ErrWouldBlock {
		return 0, statusWouldBlock
	}
	if err != nil {
		entry.lastErr = err
		return 0, statusError
	}
	streamHandle := h.doGets.insert(&doGetEntry{handle: dgh})
	return streamHandle, statusReady
}

// doGetRecvNext advances the stream to its next FlightData message, caching
// it so doGetRecvDataBody and doGetRecvAppMetadata both read fields off the
// same message instead of each consuming their own Recv. Returns statusReady
// on success, statusError on a real failure, or -1 on clean stream EOF.
func (h *HostModule) doGetRecvNext(ctx context.Context, mod api.Module, streamHandle uint32) int32 {
	entry, ok := h.doGets.get(streamHandle)
	if !ok {
		return statusError
	}
	fd, err := entry.handle.Stream.Recv()
	if err != nil {
		entry.lastErr = err
		entry.current = nil
		if err != io.EOF {
			return statusError
		}
		return -1
	}
	entry.current = fd
	return statusReady
}

// doGetRecvDataBody copies the current cached message's data_body into guest
// memory. Call doGetRecvNext first; this does not advance the stream.
func (h *HostModule) doGetRecvDataBody(ctx context.Context, mod api.Module, streamHandle, outPtr, outCap uint32) int32 {
	entry, ok := h.doGets.get(streamHandle)
	if !ok || entry.current == nil {
		return -2
	}
	return writeOut(mod, outPtr, outCap, entry.current.GetDataBody())
}

// doGetRecvAppMetadata copies the current cached message's app_metadata into
// guest memory. Call doGetRecvNext first; this does not advance the stream.
func (h *HostModule) doGetRecvAppMetadata(ctx context.Context, mod api.Module, streamHandle, outPtr, outCap uint32) int32 {
	entry, ok := h.doGets.get(streamHandle)
	if !ok || entry.current == nil {
		return -2
	}
	return writeOut(mod, outPtr, outCap, entry.current.GetAppMetadata())
}

func (h *HostModule) doPutStart(ctx context.Context, mod api.Module, handle uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok {
		return statusError
	}
	if err := entry.client.StartDoPut(); err != nil {
		entry.lastErr = err
		return statusError
	}
	return statusReady
}

func (h *HostModule) doPutFinish(ctx context.Context, mod api.Module, handle uint32) (uint32, int32) {
	entry, ok := h.clients.get(handle)
	if !ok {
		return 0, statusError
	}
	dph, err := entry.client.FinishDoPut()
	if err == flightclient.ErrWouldBlock {
		return 0, statusWouldBlock
	}
	if err != nil {
		entry.lastErr = err
		return 0, statusError
	}
	putHandle := h.doPuts.insert(&doPutEntry{handle: dph})
	return putHandle, statusReady
}

// doPutSend forwards len bytes of a raw data_body payload, optionally
// marking the stream finished. A non-empty policyPtr/policyLen is attached
// as app_metadata to this call's frame on every call that passes one; a
// zero-length policy attaches nothing.
func (h *HostModule) doPutSend(ctx context.Context, mod api.Module, putHandle, dataPtr, dataLen, policyPtr, policyLen, fin uint32) int32 {
	entry, ok := h.doPuts.get(putHandle)
	if !ok {
		return statusError
	}
	var frame *flight.FlightData
	if dataLen > 0 {
		b, memOK := readMem(mod, dataPtr, dataLen)
		if !memOK {
			entry.lastErr = fmt.Errorf("sandbox: invalid data pointer")
			return statusError
		}
		frame = &flight.FlightData{DataBody: b}
	}
	if policyLen > 0 {
		b, memOK := readMem(mod, policyPtr, policyLen)
		if !memOK {
			entry.lastErr = fmt.Errorf("sandbox: invalid policy pointer")
			return statusError
		}
		if frame == nil {
			frame = &flight.FlightData{}
		}
		frame.AppMetadata = b
	}
	if err := entry.handle.Send(frame, fin != 0); err != nil {
		entry.lastErr = err
		return statusError
	}
	return statusReady
}

func (h *HostModule) doPutFinishRecv(ctx context.Context, mod api.Module, putHandle uint32) int32 {
	entry, ok := h.doPuts.get(putHandle)
	if !ok {
		return statusError
	}
	tableName, err := entry.handle.Client().FinishDoPutRecv()
	if err == flightclient.ErrWouldBlock {
		return statusWouldBlock
	}
	if err != nil {
		entry.lastErr = err
		return statusError
	}
	entry.tableName = tableName
	return statusReady
}

func (h *HostModule) doPutTableName(ctx context.Context, mod api.Module, putHandle, outPtr, outCap uint32) int32 {
	entry, ok := h.doPuts.get(putHandle)
	if !ok {
		return -2
	}
	return writeOut(mod, outPtr, outCap, []byte(entry.tableName))
}

func (h *HostModule) closeClient(ctx context.Context, mod api.Module, handle uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok {
		return statusError
	}
	h.clients.remove(handle)
	if err := entry.client.Close(); err != nil {
		return statusError
	}
	return statusReady
}

// lastError copies the most recent error message recorded against a client
// handle into guest memory, returning its length (0 if there is none).
func (h *HostModule) lastError(ctx context.Context, mod api.Module, handle, outPtr, outCap uint32) int32 {
	entry, ok := h.clients.get(handle)
	if !ok || entry.lastErr == nil {
		return 0
	}
	return writeOut(mod, outPtr, outCap, []byte(entry.lastErr.Error()))
}

// Instantiate registers every host function under the "yak" module
// namespace on r, the way wasi_snapshot_preview1 registers its own
// namespace before a guest module is instantiated.
func (h *HostModule) Instantiate(ctx context.Context, r wazero.Runtime) error {
	_, err := r.NewHostModuleBuilder("yak").
		NewFunctionBuilder().WithFunc(h.connectStart).Export("connect_start").
		NewFunctionBuilder().WithFunc(h.connectFinish).Export("connect_finish").
		NewFunctionBuilder().WithFunc(h.handshakeStart).Export("handshake_start").
		NewFunctionBuilder().WithFunc(h.handshakeFinish).Export("handshake_finish").
		NewFunctionBuilder().WithFunc(h.doGetStart).Export("doget_start").
		NewFunctionBuilder().WithFunc(h.doGetFinish).Export("doget_finish").
		NewFunctionBuilder().WithFunc(h.doGetRecvNext).Export("doget_recv_next").
		NewFunctionBuilder().WithFunc(h.doGetRecvDataBody).Export("doget_recv_data_body").
		NewFunctionBuilder().WithFunc(h.doGetRecvAppMetadata).Export("doget_recv_app_metadata").
		NewFunctionBuilder().WithFunc(h.doPutStart).Export("doput_start").
		NewFunctionBuilder().WithFunc(h.doPutFinish).Export("doput_finish").
		NewFunctionBuilder().WithFunc(h.doPutSend).Export("doput_send").
		NewFunctionBuilder().WithFunc(h.doPutFinishRecv).Export("doput_finish_recv").
		NewFunctionBuilder().WithFunc(h.doPutTableName).Export("doput_table_name").
		NewFunctionBuilder().WithFunc(h.closeClient).Export("close_client").
		NewFunctionBuilder().WithFunc(h.lastError).Export("last_error").
		Instantiate(ctx)
	return err
}
