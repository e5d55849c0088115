// Package identity implements device keypair generation and a minimal
// handshake that proves a connecting peer controls the private key
// behind its claimed DeviceId before any store traffic is exchanged,
// grounded on odyssey-core/src/core.rs's generate_identity/DeviceId::new
// and the run_handshake_client/run_handshake_server call sites (their
// bodies are not present in the retrieval pack, so the "prove identity
// before store traffic, then refuse self-connections" shape is
// reconstructed directly). Uses the same secp256k1 curve already
// depended on for chain-account keys elsewhere in this lineage
// (github.com/btcsuite/btcd/btcec/v2 and
// github.com/decred/dcrd/dcrec/secp256k1/v4).
package identity

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/odyssey-sync/odyssey/types"
)

// Keypair is a device's long-lived signing identity.
type Keypair struct {
	private *btcec.PrivateKey
}

// Generate creates a fresh device keypair.
func Generate() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &Keypair{private: priv}, nil
}

// DeviceId derives this keypair's public DeviceId, hashing the
// compressed public key the same way types.DeviceIdFromPublicKey hashes
// any public key bytes.
func (k *Keypair) DeviceId() types.DeviceId {
	pub := k.private.PubKey().SerializeCompressed()
	return types.DeviceIdFromPublicKey(pub)
}

// Sign produces a detached signature over msg.
func (k *Keypair) Sign(msg []byte) []byte {
	sig := ecdsa.Sign(k.private, hash32(msg))
	return sig.Serialize()
}

// Verify checks that sig is a valid signature over msg by the holder of
// pubKeyCompressed.
func Verify(pubKeyCompressed, msg, sig []byte) bool {
	pub, err := secp256k1.ParsePubKey(pubKeyCompressed)
	if err != nil {
		return false
	}
	parsedSig, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	return parsedSig.Verify(hash32(msg), (*btcec.PublicKey)(pub))
}

func hash32(msg []byte) []byte {
	h := types.HashBytes(msg)
	return h[:]
}

// nonceSize is the length of the random challenge each side of a
// handshake sends the other to sign, preventing replay of a captured
// signature against a future connection.
const nonceSize = 32

// ErrConnectingToSelf is returned by the handshake functions when the
// remote's proven DeviceId equals our own.
var ErrConnectingToSelf = fmt.Errorf("identity: refusing to connect to ourselves")

// PeerIdentity is the result of a successful handshake: the remote's
// proven DeviceId.
type PeerIdentity struct {
	PeerID types.DeviceId
}

// HandshakeClient runs the connecting side of the identity handshake
// over rw: it sends our public key and a challenge nonce, signs the
// remote's nonce, verifies the remote's signature over our nonce, and
// refuses the connection if the remote turns out to be us.
func HandshakeClient(rw io.ReadWriter, self *Keypair) (*PeerIdentity, error) {
	return runHandshake(rw, self, true)
}

// HandshakeServer runs the accepting side of the identity handshake.
func HandshakeServer(rw io.ReadWriter, self *Keypair) (*PeerIdentity, error) {
	return runHandshake(rw, self, false)
}

// runHandshake is symmetric except for message order: the client sends
// its public key and a nonce; the server replies with its own public key
// and nonce; the client then sends its signature over the server's
// nonce, and the server replies with its signature over the client's
// nonce. Both sides then independently verify the signature they
// received and check the DeviceId derived from the peer's public key
// against their own.
func runHandshake(rw io.ReadWriter, self *Keypair, isClient bool) (*PeerIdentity, error) {
	selfPub := self.private.PubKey().SerializeCompressed()
	selfNonce := make([]byte, nonceSize)
	if _, err := rand.Read(selfNonce); err != nil {
		return nil, fmt.Errorf("identity: generate nonce: %w", err)
	}

	var peerPub, peerNonce []byte
	var err error

	if isClient {
		if err = sendHello(rw, selfPub, selfNonce); err != nil {
			return nil, err
		}
		peerPub, peerNonce, err = recvHello(rw)
		if err != nil {
			return nil, err
		}
		if err = sendSig(rw, self.Sign(peerNonce)); err != nil {
			return nil, err
		}
		peerSig, err := recvSig(rw)
		if err != nil {
			return nil, err
		}
		if !Verify(peerPub, selfNonce, peerSig) {
			return nil, fmt.Errorf("identity: peer signature verification failed")
		}
	} else {
		peerPub, peerNonce, err = recvHello(rw)
		if err != nil {
			return nil, err
		}
		if err = sendHello(rw, selfPub, selfNonce); err != nil {
			return nil, err
		}
		// The client writes its signature first (it already holds both
		// nonces after recvHello); read that before writing our own, or
		// both sides would block writing at once with neither reading.
		peerSig, err := recvSig(rw)
		if err != nil {
			return nil, err
		}
		if err = sendSig(rw, self.Sign(peerNonce)); err != nil {
			return nil, err
		}
		if !Verify(peerPub, selfNonce, peerSig) {
			return nil, fmt.Errorf("identity: peer signature verification failed")
		}
	}

	peerID := types.DeviceIdFromPublicKey(peerPub)
	if peerID == self.DeviceId() {
		return nil, ErrConnectingToSelf
	}
	return &PeerIdentity{PeerID: peerID}, nil
}

func sendHello(w io.Writer, pub, nonce []byte) error {
	if err := writeFrame(w, pub); err != nil {
		return err
	}
	return writeFrame(w, nonce)
}

func recvHello(r io.Reader) (pub, nonce []byte, err error) {
	if pub, err = readFrame(r); err != nil {
		return nil, nil, err
	}
	if nonce, err = readFrame(r); err != nil {
		return nil, nil, err
	}
	return pub, nonce, nil
}

func sendSig(w io.Writer, sig []byte) error { return writeFrame(w, sig) }
func recvSig(r io.Reader) ([]byte, error)   { return readFrame(r) }

func writeFrame(w io.Writer, body []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("identity: write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("identity: write frame body: %w", err)
	}
	return nil
}

const maxHandshakeFrame = 4096

func readFrame(r io.Reader) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("identity: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxHandshakeFrame {
		return nil, fmt.Errorf("identity: handshake frame too large (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("identity: read frame body: %w", err)
	}
	return body, nil
}
