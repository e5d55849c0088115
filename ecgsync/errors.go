package ecgsync

import "errors"

// ErrTooManyTips aborts a session when the local DAG has more tips than
// the protocol's uint16 tip count can announce.
var ErrTooManyTips = errors.New("ecgsync: more than 65535 tips to announce")

// ErrProtocolViolation signals that a received message violated the
// round sequence or size bounds of the mini-protocol.
var ErrProtocolViolation = errors.New("ecgsync: protocol violation")

// ErrSessionClosed names a session that has already quiesced or been
// aborted. No function in this package returns it.
var ErrSessionClosed = errors.New("ecgsync: session already closed")
