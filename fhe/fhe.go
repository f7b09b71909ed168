// Package fhe defines the contract between CipherPantry and the external
// fully homomorphic encryption capability. It holds the opaque value types
// that cross that boundary (ciphertext handles, input proofs, ephemeral
// keypairs, decryption assertions) and the four-operation Capability
// interface both backend variants expose. The encryption primitive itself is
// never implemented here.
package fhe

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// HandleSize is the exact length of a ciphertext handle in bytes.
const HandleSize = 32

// Handle is an opaque 32-byte reference to one encrypted value held by the
// external encryption capability. Immutable once created.
type Handle [HandleSize]byte

// NormalizeHandle fits raw handle bytes from the underlying capability into
// exactly 32 bytes: short input is left-padded with zeros, long input keeps
// its low-order 32 bytes. Defensive normalization, not a cryptographic
// operation.
func NormalizeHandle(raw []byte) Handle {
	var h Handle
	if len(raw) >= HandleSize {
		copy(h[:], raw[len(raw)-HandleSize:])
		return h
	}
	copy(h[HandleSize-len(raw):], raw)
	return h
}

// ParseHandle parses a 32-byte hex handle identifier, with or without the 0x
// prefix. Any other length is rejected.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	hs := strings.TrimPrefix(s, "0x")
	if len(hs) != HandleSize*2 {
		return h, fmt.Errorf("%w: expected %d hex characters, got %d", ErrInvalidHandle, HandleSize*2, len(hs))
	}
	raw, err := hex.DecodeString(hs)
	if err != nil {
		return h, fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	copy(h[:], raw)
	return h, nil
}

// Hex returns the 0x-prefixed lowercase hex form of the handle.
func (h Handle) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return h.Hex()
}

// InputProof attests that a ciphertext was honestly constructed for the
// declared (contract, submitter) pair. Required exactly once, when the
// handle is registered with its container; never needed again.
type InputProof []byte

// CID returns a content identifier for the proof, used as a stable audit
// reference by the record store.
func (p InputProof) CID() (cid.Cid, error) {
	sum, err := mh.Sum(p, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hash input proof: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// Keypair is an ephemeral keypair minted for a single decryption exchange.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// IsZero reports whether the keypair is the synthetic all-zero stand-in used
// by backends without native keypair generation.
func (k Keypair) IsZero() bool {
	for _, b := range k.PublicKey {
		if b != 0 {
			return false
		}
	}
	for _, b := range k.PrivateKey {
		if b != 0 {
			return false
		}
	}
	return true
}

// HandlePair binds a ciphertext handle to the contract that owns it for a
// user-decrypt exchange.
type HandlePair struct {
	Handle   Handle
	Contract common.Address
}

// RawEncryptedInput is the unnormalized result of finalizing an encrypted
// input: one raw handle per staged value plus a single proof. Handle bytes
// come straight from the underlying capability and may need normalization.
type RawEncryptedInput struct {
	Handles [][]byte
	Proof   []byte
}

// EncryptedInput is the normalized form consumed by the record write path.
type EncryptedInput struct {
	Handles []Handle
	Proof   InputProof
}
