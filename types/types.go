// Package types defines the fixed-width content-addressed identifiers
// shared across the ECG and its replication machinery: HeaderId,
// StoreId, and DeviceId.
package types

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// IdLength is the width, in bytes, of every identifier in this package.
const IdLength = 32

// HeaderId is the content-addressed identifier of an ECG header. It is a
// deterministic function of the header's contents; verifying a header
// means recomputing this value and comparing.
type HeaderId [IdLength]byte

// StoreId globally identifies a store, derived from a nonce and a hash
// of the store's initial CRDT state.
type StoreId [IdLength]byte

// DeviceId identifies a peer device, derived from the hash of its
// long-lived signing public key.
type DeviceId [IdLength]byte

func (h HeaderId) String() string { return hex.EncodeToString(h[:]) }
func (s StoreId) String() string  { return hex.EncodeToString(s[:]) }
func (d DeviceId) String() string { return hex.EncodeToString(d[:]) }

func (h HeaderId) IsZero() bool { return h == HeaderId{} }

// Less gives HeaderId a total order, used to break ties when ordering
// same-depth candidates deterministically (e.g. in the sync heaps).
func (h HeaderId) Less(other HeaderId) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// HashBytes derives a 32-byte digest of arbitrary content using blake2b-256,
// the hash function backing every identifier derivation in this package.
func HashBytes(parts ...[]byte) [IdLength]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors for keyed hashing with an oversized key,
		// which never applies here.
		panic(fmt.Sprintf("odyssey: blake2b init: %v", err))
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out [IdLength]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashHeaderId derives a HeaderId from a header's canonical encoding.
func HashHeaderId(encoded []byte) HeaderId {
	return HeaderId(HashBytes(encoded))
}

// NewStoreId derives a StoreId from a random nonce and a digest of the
// store's initial state, so that colliding ids can be retried with a
// fresh nonce without otherwise changing the store's identity inputs.
func NewStoreId(nonce [IdLength]byte, initialStateDigest []byte) StoreId {
	return StoreId(HashBytes(nonce[:], initialStateDigest))
}

// DeviceIdFromPublicKey derives a DeviceId from a peer's signing public key.
func DeviceIdFromPublicKey(pub []byte) DeviceId {
	return DeviceId(HashBytes(pub))
}
