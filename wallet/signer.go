// Package wallet abstracts the external signing capability: a wallet that
// signs EIP-712 typed structured messages for the identity it controls. A
// wallet may decline a request or never answer; both are surfaced
// distinctly so callers can tell a user decision from a technical failure.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrRejected is returned when the user declines the signature request. It
// is a cancellation, not a crash: callers may offer a retry without
// treating it as a technical failure.
var ErrRejected = errors.New("wallet: signature request rejected")

// Signer signs EIP-712 typed data on behalf of one identity. Signing may
// suspend indefinitely while waiting on user interaction; implementations
// must honor context cancellation.
type Signer interface {
	// Address returns the identity this signer controls.
	Address() common.Address

	// SignTypedData returns a 65-byte signature over the typed data, with
	// the recovery byte in {27, 28}.
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// LocalSigner signs with an in-process secp256k1 key. Used by the local
// simulation flow and by tests; production flows wrap a browser or hardware
// wallet instead.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner wraps an existing private key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// GenerateLocalSigner creates a signer with a fresh random key.
func GenerateLocalSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate signer key: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address implements Signer.
func (s *LocalSigner) Address() common.Address {
	return s.addr
}

// SignTypedData implements Signer. The recovery byte is offset by 27 to
// match what browser wallets produce.
func (s *LocalSigner) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hash typed data: %w", err)
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
