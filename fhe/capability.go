package fhe

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Variant identifies which backend a capability handle was built with. It is
// resolved once at construction; callers never probe methods at call sites.
type Variant string

const (
	// VariantSimulated is the trust-local simulation used for development.
	VariantSimulated Variant = "simulated"
	// VariantRelayer is the production relayer-mediated backend.
	VariantRelayer Variant = "relayer"
)

// InputBuilder stages plaintext values for encryption bound to one
// (contract, submitter) pair. Finalizing yields one raw handle per staged
// value and a single input proof.
type InputBuilder interface {
	// Add32 stages a 32-bit value.
	Add32(value uint32)
	// Encrypt finalizes the input. May construct a correctness proof and is
	// therefore a suspension point.
	Encrypt(ctx context.Context) (*RawEncryptedInput, error)
}

// UserDecryptRequest carries everything a backend needs to recover plaintext
// for an authorized requester.
type UserDecryptRequest struct {
	Pairs        []HandlePair
	Keypair      Keypair
	Signature    []byte // 65-byte assertion signature, v in {27, 28}
	Contracts    []common.Address
	User         common.Address
	Start        time.Time
	DurationDays uint64
}

// Capability is the operational surface both backend variants expose to the
// codec and session layers. The implementations differ completely
// (simulated math vs. network relay) but the surface is identical.
type Capability interface {
	// Variant reports which backend this handle was built with.
	Variant() Variant

	// CreateEncryptedInput returns a builder bound to (contract, submitter).
	CreateEncryptedInput(contract, submitter common.Address) InputBuilder

	// GenerateKeypair mints an ephemeral keypair for one decryption
	// exchange.
	GenerateKeypair() (Keypair, error)

	// CreateDecryptionAssertion builds the typed, time-bounded statement the
	// requester must sign before a user-decrypt exchange.
	CreateDecryptionAssertion(publicKey []byte, contracts []common.Address, start time.Time, durationDays uint64) (*DecryptionAssertion, error)

	// UserDecrypt exchanges a signed assertion for plaintext values, keyed
	// by handle.
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[Handle]*big.Int, error)
}

// CoreCapability is a backend that exposes everything except ephemeral
// keypair generation. The simulation backend is one: its underlying object
// has no keypair operation, so the session manager wraps it with
// WithSyntheticKeypair at construction time.
type CoreCapability interface {
	Variant() Variant
	CreateEncryptedInput(contract, submitter common.Address) InputBuilder
	CreateDecryptionAssertion(publicKey []byte, contracts []common.Address, start time.Time, durationDays uint64) (*DecryptionAssertion, error)
	UserDecrypt(ctx context.Context, req *UserDecryptRequest) (map[Handle]*big.Int, error)
}

// syntheticKeypair completes a CoreCapability with a deterministic all-zero
// keypair so upstream logic stays backend-agnostic.
type syntheticKeypair struct {
	CoreCapability
}

// WithSyntheticKeypair adapts a backend without native keypair generation to
// the full Capability surface. Applied once at construction, never probed at
// call sites.
func WithSyntheticKeypair(core CoreCapability) Capability {
	return &syntheticKeypair{CoreCapability: core}
}

// GenerateKeypair returns the deterministic all-zero stand-in.
func (s *syntheticKeypair) GenerateKeypair() (Keypair, error) {
	return Keypair{
		PublicKey:  make([]byte, 32),
		PrivateKey: make([]byte, 32),
	}, nil
}

// RequireVariant guards a call path that only works against one backend
// variant. A nil capability means no session exists for the active chain;
// the wrong variant names both sides so the caller can fix its wiring
// instead of silently falling back to the other backend.
func RequireVariant(c Capability, want Variant) error {
	if c == nil {
		return ErrNoSession
	}
	if got := c.Variant(); got != want {
		return fmt.Errorf("%w: want %s, have %s", ErrBackendMismatch, want, got)
	}
	return nil
}
