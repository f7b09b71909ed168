// Package simnet implements the trust-local simulation backend of the
// encryption capability. Values are sealed with AES-GCM under a per-process
// key and authorization is checked against a grant ledger, so a round trip
// exercises real encryption and real access control without any network.
//
// The backend deliberately mirrors the relayer's external contract: same
// assertion format, same signature check, same result shape. It does not
// expose ephemeral keypair generation; the session manager completes it
// with fhe.WithSyntheticKeypair at construction time.
package simnet

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"

	"github.com/hearthprotocol/cipherpantry/fhe"
	"github.com/hearthprotocol/cipherpantry/grants"
	"github.com/hearthprotocol/cipherpantry/relayer"
)

// Config carries everything a simulated backend needs at construction.
type Config struct {
	ChainID uint64

	// Metadata is the gateway metadata fetched from the local node. Session
	// construction fails if it is incomplete.
	Metadata relayer.Metadata

	// DecryptionVerifier and InputVerifier are the fixed verifying-contract
	// addresses the simulation signs assertions against. The simulation has
	// no on-chain deployment of its own.
	DecryptionVerifier common.Address
	InputVerifier      common.Address

	// Ledger is the grant registry consulted on every user-decrypt.
	Ledger grants.Ledger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Backend is the simulated encryption capability.
type Backend struct {
	cfg  Config
	aead cipher.AEAD
	now  func() time.Time

	mu      sync.Mutex
	store   map[fhe.Handle][]byte
	counter uint64
}

// New constructs a simulated backend. Construction fails without caching
// anything if the gateway metadata is incomplete or the config is unusable.
func New(cfg Config) (*Backend, error) {
	if !cfg.Metadata.Complete() {
		return nil, fmt.Errorf("%w: simulation requires full gateway metadata", relayer.ErrIncompleteMetadata)
	}
	var zero common.Address
	if cfg.DecryptionVerifier == zero || cfg.InputVerifier == zero {
		return nil, fmt.Errorf("%w: missing simulation verifying contracts", fhe.ErrInvalidAddress)
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("simnet: grant ledger is required")
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("simnet: seal key: %w", err)
	}
	key := sha3.Sum256(seed)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("simnet: seal cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("simnet: seal cipher: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Backend{
		cfg:   cfg,
		aead:  aead,
		now:   now,
		store: make(map[fhe.Handle][]byte),
	}, nil
}

// Variant implements fhe.CoreCapability.
func (b *Backend) Variant() fhe.Variant {
	return fhe.VariantSimulated
}

// CreateEncryptedInput implements fhe.CoreCapability.
func (b *Backend) CreateEncryptedInput(contract, submitter common.Address) fhe.InputBuilder {
	return &inputBuilder{backend: b, contract: contract, submitter: submitter}
}

// CreateDecryptionAssertion implements fhe.CoreCapability.
func (b *Backend) CreateDecryptionAssertion(publicKey []byte, contracts []common.Address, start time.Time, durationDays uint64) (*fhe.DecryptionAssertion, error) {
	return fhe.NewDecryptionAssertion(publicKey, contracts, start, durationDays, b.cfg.ChainID, b.cfg.DecryptionVerifier)
}

// UserDecrypt implements fhe.CoreCapability. The requester's signature over
// the freshly rebuilt assertion must recover to the requester address, the
// assertion must be inside its validity window, and both the requester and
// the owning contract must hold grants for every handle.
func (b *Backend) UserDecrypt(ctx context.Context, req *fhe.UserDecryptRequest) (map[fhe.Handle]*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assertion, err := b.CreateDecryptionAssertion(req.Keypair.PublicKey, req.Contracts, req.Start, req.DurationDays)
	if err != nil {
		return nil, err
	}
	if !assertion.ValidAt(b.now()) {
		return nil, fmt.Errorf("%w: assertion outside validity window", fhe.ErrNotAuthorized)
	}

	digest, err := assertion.Digest()
	if err != nil {
		return nil, err
	}
	signer, err := fhe.RecoverSigner(digest, req.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fhe.ErrNotAuthorized, err)
	}
	if signer != req.User {
		return nil, fmt.Errorf("%w: assertion signed by %s, requester is %s",
			fhe.ErrNotAuthorized, signer.Hex(), req.User.Hex())
	}

	out := make(map[fhe.Handle]*big.Int, len(req.Pairs))
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, pair := range req.Pairs {
		if !assertion.Covers(pair.Contract) {
			return nil, fmt.Errorf("%w: assertion does not cover contract %s",
				fhe.ErrNotAuthorized, pair.Contract.Hex())
		}
		if err := b.checkGrants(ctx, pair, req.User); err != nil {
			return nil, err
		}

		sealed, ok := b.store[pair.Handle]
		if !ok {
			return nil, fmt.Errorf("simnet: unknown handle %s", pair.Handle)
		}
		buf, err := b.aead.Open(nil, pair.Handle[:12], sealed, pair.Handle[:])
		if err != nil {
			return nil, fmt.Errorf("simnet: unseal %s: %w", pair.Handle, err)
		}
		out[pair.Handle] = new(big.Int).SetUint64(uint64(binary.BigEndian.Uint32(buf)))
	}
	return out, nil
}

func (b *Backend) checkGrants(ctx context.Context, pair fhe.HandlePair, user common.Address) error {
	userOK, err := b.cfg.Ledger.IsAllowed(ctx, pair.Handle, user)
	if err != nil {
		return fmt.Errorf("simnet: grant lookup: %w", err)
	}
	contractOK, err := b.cfg.Ledger.IsAllowed(ctx, pair.Handle, pair.Contract)
	if err != nil {
		return fmt.Errorf("simnet: grant lookup: %w", err)
	}
	if !userOK || !contractOK {
		return fmt.Errorf("%w: handle %s", fhe.ErrNotAuthorized, pair.Handle)
	}
	return nil
}

// inputBuilder stages values for one (contract, submitter) pair.
type inputBuilder struct {
	backend   *Backend
	contract  common.Address
	submitter common.Address
	values    []uint32
}

// Add32 implements fhe.InputBuilder.
func (ib *inputBuilder) Add32(value uint32) {
	ib.values = append(ib.values, value)
}

// Encrypt implements fhe.InputBuilder. Handles are derived from the
// (contract, submitter, counter) binding so they never collide across
// submissions; the proof commits to the binding and every handle.
func (ib *inputBuilder) Encrypt(ctx context.Context) (*fhe.RawEncryptedInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ib.values) == 0 {
		return nil, fmt.Errorf("%w: no values staged", fhe.ErrEmptyResult)
	}

	b := ib.backend
	b.mu.Lock()
	defer b.mu.Unlock()

	handles := make([][]byte, 0, len(ib.values))
	for _, v := range ib.values {
		b.counter++

		var seed [48]byte
		copy(seed[0:20], ib.contract[:])
		copy(seed[20:40], ib.submitter[:])
		binary.BigEndian.PutUint64(seed[40:48], b.counter)
		sum := blake3.Sum256(seed[:])
		handle := fhe.Handle(sum)

		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], v)
		b.store[handle] = b.aead.Seal(nil, handle[:12], buf[:], handle[:])
		handles = append(handles, sum[:])
	}

	proofInput := make([]byte, 0, 40+len(handles)*fhe.HandleSize)
	proofInput = append(proofInput, ib.contract[:]...)
	proofInput = append(proofInput, ib.submitter[:]...)
	for _, h := range handles {
		proofInput = append(proofInput, h...)
	}
	proof := crypto.Keccak256(proofInput)

	return &fhe.RawEncryptedInput{Handles: handles, Proof: proof}, nil
}
