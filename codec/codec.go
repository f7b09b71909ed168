// Package codec converts between the plaintext domain (ingredient amounts
// as decimal numbers) and the encrypted domain (ciphertext handles plus
// input proofs). It drives the full encrypt and decrypt flows against a
// capability handle but never touches key material or grant state itself.
package codec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hearthprotocol/cipherpantry/config"
	"github.com/hearthprotocol/cipherpantry/fhe"
	"github.com/hearthprotocol/cipherpantry/wallet"
)

// ScaleAmount converts a decimal ingredient amount to its fixed-point
// on-wire form, retaining one decimal digit. Amounts that are negative,
// not finite, or too large for 32 bits are rejected.
func ScaleAmount(amount float64) (uint32, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, fmt.Errorf("%w: %v", fhe.ErrAmountOutOfRange, amount)
	}
	scaled := math.Round(amount * float64(config.AmountScale))
	if scaled > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %v exceeds 32-bit range after scaling", fhe.ErrAmountOutOfRange, amount)
	}
	return uint32(scaled), nil
}

// UnscaleAmount reverses ScaleAmount.
func UnscaleAmount(scaled uint32) float64 {
	return float64(scaled) / float64(config.AmountScale)
}

// EncryptAmount encrypts one ingredient amount bound to the given
// (container, submitter) pair. The returned input carries exactly one
// normalized handle and the proof that attests its honest construction.
func EncryptAmount(ctx context.Context, capability fhe.Capability, amount float64, contract, submitter common.Address) (*fhe.EncryptedInput, error) {
	if capability == nil {
		return nil, fhe.ErrNoSession
	}
	var zero common.Address
	if contract == zero || submitter == zero {
		return nil, fmt.Errorf("%w: encryption requires both container and submitter", fhe.ErrInvalidAddress)
	}
	scaled, err := ScaleAmount(amount)
	if err != nil {
		return nil, err
	}

	builder := capability.CreateEncryptedInput(contract, submitter)
	builder.Add32(scaled)

	raw, err := builder.Encrypt(ctx)
	if err != nil {
		return nil, fmt.Errorf("encrypt amount: %w", err)
	}
	if len(raw.Handles) == 0 || len(raw.Proof) == 0 {
		return nil, fmt.Errorf("%w: encryption produced no handle or proof", fhe.ErrEmptyResult)
	}

	handles := make([]fhe.Handle, len(raw.Handles))
	for i, h := range raw.Handles {
		handles[i] = fhe.NormalizeHandle(h)
	}
	return &fhe.EncryptedInput{
		Handles: handles,
		Proof:   fhe.InputProof(raw.Proof),
	}, nil
}

// DecryptAmount recovers one ingredient amount from its ciphertext handle.
// Every call mints a fresh ephemeral keypair and a freshly signed
// assertion; nothing from a previous call is reused. A wallet rejection
// surfaces unchanged as wallet.ErrRejected.
func DecryptAmount(ctx context.Context, capability fhe.Capability, handleHex string, contract common.Address, signer wallet.Signer) (float64, error) {
	// Parse before any capability work so a malformed identifier never
	// costs a signature prompt.
	handle, err := fhe.ParseHandle(handleHex)
	if err != nil {
		return 0, err
	}
	if capability == nil {
		return 0, fhe.ErrNoSession
	}
	var zero common.Address
	if contract == zero {
		return 0, fmt.Errorf("%w: decryption requires the owning container", fhe.ErrInvalidAddress)
	}

	keypair, err := capability.GenerateKeypair()
	if err != nil {
		return 0, fmt.Errorf("decrypt amount: %w", err)
	}

	start := time.Now()
	contracts := []common.Address{contract}
	assertion, err := capability.CreateDecryptionAssertion(keypair.PublicKey, contracts, start, config.DecryptionValidityDays)
	if err != nil {
		return 0, fmt.Errorf("decrypt amount: %w", err)
	}

	signature, err := signer.SignTypedData(ctx, assertion.TypedData())
	if err != nil {
		if errors.Is(err, wallet.ErrRejected) {
			return 0, err
		}
		return 0, fmt.Errorf("sign decryption assertion: %w", err)
	}

	values, err := capability.UserDecrypt(ctx, &fhe.UserDecryptRequest{
		Pairs:        []fhe.HandlePair{{Handle: handle, Contract: contract}},
		Keypair:      keypair,
		Signature:    signature,
		Contracts:    contracts,
		User:         signer.Address(),
		Start:        start,
		DurationDays: config.DecryptionValidityDays,
	})
	if err != nil {
		return 0, fmt.Errorf("decrypt amount: %w", err)
	}

	value, ok := values[handle]
	if !ok || value == nil {
		return 0, fmt.Errorf("%w: handle %s", fhe.ErrNoValue, handle)
	}
	return UnscaleAmount(uint32(value.Uint64())), nil
}
