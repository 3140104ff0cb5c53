// Package attest models the AMD SEV-SNP attestation artifacts exchanged
// during the handshake protocol, and the binary codec used to carry them
// over the wire.
package attest

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ProcType names the AMD processor family a report was produced on.
type ProcType uint8

const (
	ProcTypeMilan ProcType = iota
	ProcTypeGenoa
)

// Endorsement names which endorsement key signed a report.
type Endorsement uint8

const (
	EndorsementVCEK Endorsement = iota
	EndorsementVLEK
)

// Config selects which processor family and endorsement key a verifier
// should expect.
type Config struct {
	ProcType    ProcType
	Endorsement Endorsement
}

// ReportSize is the fixed length of the raw SEV-SNP attestation report
// structure this codec carries opaquely (it is not interpreted field by
// field — only measurement and report_data are extracted for the
// handshake's verification step).
const ReportSize = 1184

// MeasurementSize is the length of the report's launch-measurement field.
const MeasurementSize = 48

// ReportDataSize is the length of the report's report_data field, the
// 64-byte nonce the caller committed to at report-generation time.
const ReportDataSize = 64

const (
	measurementOffset = 0x90
	reportDataOffset  = 0x50
)

// Report wraps the fixed-size raw attestation report bytes with accessors
// for the two fields the handshake protocol inspects.
type Report struct {
	Raw [ReportSize]byte
}

// Measurement returns the launch measurement embedded in the report.
func (r Report) Measurement() [MeasurementSize]byte {
	var m [MeasurementSize]byte
	copy(m[:], r.Raw[measurementOffset:measurementOffset+MeasurementSize])
	return m
}

// ReportData returns the report_data field embedded in the report.
func (r Report) ReportData() [ReportDataSize]byte {
	var d [ReportDataSize]byte
	copy(d[:], r.Raw[reportDataOffset:reportDataOffset+ReportDataSize])
	return d
}

// ExtendedReport is the report plus its optional VLEK certificate chain,
// exactly the payload the handshake's round-2 request carries.
type ExtendedReport struct {
	ProcType    ProcType
	Endorsement Endorsement
	VLEKPEM     []byte // nil when Endorsement == EndorsementVCEK
	Report      Report
}

// Encode serializes an ExtendedReport to a flat binary record: one byte for
// ProcType, one for Endorsement, a uint32 length prefix followed by that
// many bytes of VLEKPEM (zero length when absent), then the raw report
// bytes. This is the Go analogue of the bincode encoding the protocol this
// was ported from used for the same struct.
func (e ExtendedReport) Encode() []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(byte(e.ProcType))
	buf.WriteByte(byte(e.Endorsement))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.VLEKPEM)))
	buf.Write(lenBuf[:])
	buf.Write(e.VLEKPEM)
	buf.Write(e.Report.Raw[:])
	return buf.Bytes()
}

// NewTestReport builds an ExtendedReport whose report_data field is set to
// nonce, for answering a handshake without real SEV-SNP hardware. It fails
// if nonce is not exactly ReportDataSize bytes, since a short commitment
// would silently verify against a zero-padded value.
func NewTestReport(procType ProcType, endorsement Endorsement, nonce []byte) (ExtendedReport, error) {
	if len(nonce) != ReportDataSize {
		return ExtendedReport{}, fmt.Errorf("attest: nonce must be %d bytes, got %d", ReportDataSize, len(nonce))
	}
	var report Report
	copy(report.Raw[reportDataOffset:reportDataOffset+ReportDataSize], nonce)
	return ExtendedReport{ProcType: procType, Endorsement: endorsement, Report: report}, nil
}

// DecodeExtendedReport parses the format Encode produces.
func DecodeExtendedReport(data []byte) (ExtendedReport, error) {
	if len(data) < 2+4 {
		return ExtendedReport{}, fmt.Errorf("attest: truncated header")
	}
	e := ExtendedReport{
		ProcType:    ProcType(data[0]),
		Endorsement: Endorsement(data[1]),
	}
	vlekLen := binary.LittleEndian.Uint32(data[2:6])
	offset := 6
	if len(data) < offset+int(vlekLen)+ReportSize {
		return ExtendedReport{}, fmt.Errorf("attest: truncated body")
	}
	if vlekLen > 0 {
		e.VLEKPEM = append([]byte(nil), data[offset:offset+int(vlekLen)]...)
	}
	offset += int(vlekLen)
	copy(e.Report.Raw[:], data[offset:offset+ReportSize])
	return e, nil
}
