package ecgsync

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/types"
)

// maxFrameBytes bounds a single CBOR frame so a malicious or corrupt peer
// cannot force unbounded allocation from a forged length prefix.
const maxFrameBytes = 8 << 20

// Request is the client's opening message of a session, sent once: its
// tip count and its first have proposal.
type Request struct {
	TipCount uint16
	Have     []types.HeaderId
}

// SyncData is the payload of a Response and, on its own, of every later
// Sync message of a session: the have counter-proposal, the
// known bitmap answering the peer's previous have, and any headers being
// delivered this round.
type SyncData struct {
	Have    []types.HeaderId
	Known   KnownBitmap
	Headers []ecg.Header
}

// Response is the server's reply to the Request, sent once per session.
type Response struct {
	TipCount uint16
	Sync     SyncData
}

func validateRequest(r *Request) error {
	if len(r.Have) > MaxHaveHeaders {
		return fmt.Errorf("ecgsync: have list too large (%d > %d)", len(r.Have), MaxHaveHeaders)
	}
	return nil
}

func validateResponse(r *Response) error {
	if len(r.Sync.Have) > MaxHaveHeaders {
		return fmt.Errorf("ecgsync: have list too large (%d > %d)", len(r.Sync.Have), MaxHaveHeaders)
	}
	if len(r.Sync.Headers) > MaxDeliverHeaders {
		return fmt.Errorf("ecgsync: header list too large (%d > %d)", len(r.Sync.Headers), MaxDeliverHeaders)
	}
	return nil
}

// WriteRequest CBOR-encodes req and writes it to w as one length-delimited
// frame: a 4-byte big-endian length prefix followed by the CBOR body.
func WriteRequest(w io.Writer, req *Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	return writeFrame(w, req)
}

// ReadRequest reads and decodes one length-delimited Request frame from r.
func ReadRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := readFrame(r, &req); err != nil {
		return nil, err
	}
	if err := validateRequest(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteResponse CBOR-encodes resp and writes it to w as one length-delimited frame.
func WriteResponse(w io.Writer, resp *Response) error {
	if err := validateResponse(resp); err != nil {
		return err
	}
	return writeFrame(w, resp)
}

// ReadResponse reads and decodes one length-delimited Response frame from r.
func ReadResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := readFrame(r, &resp); err != nil {
		return nil, err
	}
	if err := validateResponse(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func writeFrame(w io.Writer, v interface{}) error {
	body, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("ecgsync: encode frame: %w", err)
	}
	if len(body) > maxFrameBytes {
		return fmt.Errorf("ecgsync: frame too large (%d bytes)", len(body))
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("ecgsync: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("ecgsync: write frame body: %w", err)
	}
	return nil
}

func readFrame(r io.Reader, v interface{}) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return fmt.Errorf("ecgsync: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameBytes {
		return fmt.Errorf("ecgsync: frame too large (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("ecgsync: read frame body: %w", err)
	}
	if err := cbor.Unmarshal(body, v); err != nil {
		return fmt.Errorf("ecgsync: decode frame: %w", err)
	}
	return nil
}
