package ecgsync

import (
	"fmt"
	"io"

	"github.com/odyssey-sync/odyssey/ecg"
	"github.com/odyssey-sync/odyssey/log"
)

// Protocol drives one sync session against a single remote peer for a
// single store. Roles are symmetric except for who speaks first: the
// client sends the opening Request, the server replies with a Response,
// and both sides then alternate Sync messages until each has quiesced.
type Protocol struct {
	dag   *ecg.DAG
	state *State
	log   *log.Logger

	weQuiesced   bool
	theyQuiesced bool
	lastKnown    KnownBitmap
}

// NewProtocol creates a session driver over dag, seeding the probe
// frontier from its current tips.
func NewProtocol(dag *ecg.DAG, logger *log.Logger) *Protocol {
	if logger == nil {
		logger = log.Root()
	}
	return &Protocol{dag: dag, state: NewState(dag), log: logger.With("component", "ecgsync")}
}

// RunClient drives the client side of a session to completion: send the
// opening Request (prepare_haves, with nothing yet to receive), then
// alternate full rounds with the server over rw.
func (p *Protocol) RunClient(rw io.ReadWriter) error {
	tipCount := p.dag.TipCount()
	if tipCount > 0xFFFF {
		return ErrTooManyTips
	}
	req := &Request{TipCount: uint16(tipCount), Have: p.state.PrepareHaves(p.dag)}
	p.weQuiesced = len(req.Have) == 0
	p.log.Debug("sending opening request", "tips", req.TipCount, "haves", len(req.Have))
	if err := WriteRequest(rw, req); err != nil {
		return fmt.Errorf("ecgsync: send request: %w", err)
	}

	resp, err := ReadResponse(rw)
	if err != nil {
		return fmt.Errorf("ecgsync: read response: %w", err)
	}
	if resp.TipCount > 0xFFFF {
		return ErrTooManyTips
	}
	p.state.SetTheirTipsRemaining(resp.TipCount)
	p.theyQuiesced = len(resp.Sync.Have) == 0 && len(resp.Sync.Headers) == 0
	if err := p.receive(resp.Sync); err != nil {
		return err
	}

	for !p.done() {
		if err := p.round(rw); err != nil {
			return err
		}
	}
	return nil
}

// RunServer drives the server side of a session to completion: receive
// the opening Request and reply in one shot (there is no prior sent_haves
// to interpret a known-bitmap against yet), then alternate rounds.
func (p *Protocol) RunServer(rw io.ReadWriter) error {
	req, err := ReadRequest(rw)
	if err != nil {
		return fmt.Errorf("ecgsync: read request: %w", err)
	}
	if req.TipCount > 0xFFFF {
		return ErrTooManyTips
	}
	p.state.SetTheirTipsRemaining(req.TipCount)

	known := p.state.HandleReceivedHave(p.dag, req.Have)
	p.theyQuiesced = len(req.Have) == 0

	sync := SyncData{
		Known:   known,
		Headers: p.state.PrepareHeaders(p.dag),
		Have:    p.state.PrepareHaves(p.dag),
	}
	p.weQuiesced = len(sync.Have) == 0 && len(sync.Headers) == 0

	tipCount := p.dag.TipCount()
	if tipCount > 0xFFFF {
		return ErrTooManyTips
	}
	resp := &Response{TipCount: uint16(tipCount), Sync: sync}
	p.log.Debug("sending opening response", "tips", resp.TipCount, "haves", len(sync.Have), "headers", len(sync.Headers))
	if err := WriteResponse(rw, resp); err != nil {
		return fmt.Errorf("ecgsync: send response: %w", err)
	}

	for !p.done() {
		if err := p.round(rw); err != nil {
			return err
		}
	}
	return nil
}

func (p *Protocol) done() bool {
	return p.weQuiesced && p.theyQuiesced
}

// round performs one iteration of the symmetric per-round sequence
//: receive the peer's Sync, process it
// (steps 2-5), prepare our outgoing Sync from the result (steps 6-7),
// and send it (step 8).
func (p *Protocol) round(rw io.ReadWriter) error {
	var received SyncData
	if err := readFrame(rw, &received); err != nil {
		return fmt.Errorf("ecgsync: read sync: %w", err)
	}
	if err := validateSyncData(&received); err != nil {
		return err
	}
	p.theyQuiesced = len(received.Have) == 0 && len(received.Headers) == 0

	if err := p.receive(received); err != nil {
		return err
	}

	outgoing := SyncData{
		Headers: p.state.PrepareHeaders(p.dag),
		Have:    p.state.PrepareHaves(p.dag),
	}
	// The known bitmap answering this round's received have was computed
	// by receive() and stored in p.lastKnown; it rides along with this
	// round's outgoing message.
	outgoing.Known = p.lastKnown

	p.weQuiesced = len(outgoing.Have) == 0 && len(outgoing.Headers) == 0
	if err := writeFrame(rw, &outgoing); err != nil {
		return fmt.Errorf("ecgsync: send sync: %w", err)
	}
	return nil
}

// receive applies steps 2-5 of the per-round sequence to a received
// SyncData: interpret the known bitmap against our last sent_haves,
// validate and insert delivered headers, then absorb the peer's have
// list, recording the resulting known bitmap for the caller's next
// outgoing message.
func (p *Protocol) receive(sync SyncData) error {
	p.state.HandleReceivedKnown(p.dag, sync.Known)

	accepted, invalid := p.state.HandleReceivedHeaders(p.dag, sync.Headers)
	if len(invalid) > 0 {
		p.log.Warn("received invalid headers", "count", len(invalid), "accepted", accepted)
	}

	p.lastKnown = p.state.HandleReceivedHave(p.dag, sync.Have)
	return nil
}

func validateSyncData(s *SyncData) error {
	if len(s.Have) > MaxHaveHeaders {
		return fmt.Errorf("%w: have list too large (%d)", ErrProtocolViolation, len(s.Have))
	}
	if len(s.Headers) > MaxDeliverHeaders {
		return fmt.Errorf("%w: header list too large (%d)", ErrProtocolViolation, len(s.Headers))
	}
	return nil
}
