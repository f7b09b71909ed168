package fhe

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// AssertionPrimaryType is the EIP-712 primary type of a decryption
// assertion.
const AssertionPrimaryType = "UserDecryptRequestVerification"

// assertionDomainName and assertionDomainVersion identify the EIP-712
// domain the decryption verifier contract checks signatures against.
const (
	assertionDomainName    = "Decryption"
	assertionDomainVersion = "1"
)

// DecryptionAssertion is a short-lived, typed, signed statement authorizing
// plaintext recovery for specific containers. It is freshly minted and
// freshly signed for every decryption call; stale assertions must not be
// replayable past their validity window.
type DecryptionAssertion struct {
	PublicKey      []byte
	Contracts      []common.Address
	StartTimestamp uint64
	DurationDays   uint64

	typed apitypes.TypedData
}

// NewDecryptionAssertion builds the typed assertion for the given ephemeral
// public key and target containers, bound to the chain and verifying
// contract of the backend constructing it.
func NewDecryptionAssertion(publicKey []byte, contracts []common.Address, start time.Time, durationDays uint64, chainID uint64, verifyingContract common.Address) (*DecryptionAssertion, error) {
	if len(publicKey) == 0 {
		return nil, fmt.Errorf("%w: empty assertion public key", ErrEmptyResult)
	}
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: assertion needs at least one contract", ErrInvalidAddress)
	}

	contractHexes := make([]interface{}, len(contracts))
	for i, c := range contracts {
		contractHexes[i] = c.Hex()
	}

	a := &DecryptionAssertion{
		PublicKey:      publicKey,
		Contracts:      contracts,
		StartTimestamp: uint64(start.Unix()),
		DurationDays:   durationDays,
	}

	a.typed = apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			AssertionPrimaryType: {
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationDays", Type: "uint256"},
			},
		},
		PrimaryType: AssertionPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              assertionDomainName,
			Version:           assertionDomainVersion,
			ChainId:           ethmath.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(publicKey),
			"contractAddresses": contractHexes,
			"startTimestamp":    (*ethmath.HexOrDecimal256)(new(big.Int).SetUint64(uint64(start.Unix()))),
			"durationDays":      (*ethmath.HexOrDecimal256)(new(big.Int).SetUint64(durationDays)),
		},
	}
	return a, nil
}

// TypedData returns the EIP-712 structure to hand to the wallet signer.
func (a *DecryptionAssertion) TypedData() apitypes.TypedData {
	return a.typed
}

// Digest returns the EIP-712 signing hash of the assertion.
func (a *DecryptionAssertion) Digest() ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(a.typed)
	if err != nil {
		return nil, fmt.Errorf("hash decryption assertion: %w", err)
	}
	return digest, nil
}

// ValidAt reports whether t falls inside the assertion's validity window.
func (a *DecryptionAssertion) ValidAt(t time.Time) bool {
	start := time.Unix(int64(a.StartTimestamp), 0)
	end := start.Add(time.Duration(a.DurationDays) * 24 * time.Hour)
	return !t.Before(start) && !t.After(end)
}

// Covers reports whether the assertion targets the given container.
func (a *DecryptionAssertion) Covers(contract common.Address) bool {
	for _, c := range a.Contracts {
		if c == contract {
			return true
		}
	}
	return false
}

// RecoverSigner recovers the address that signed the assertion digest.
// Wallets produce signatures with the recovery byte offset by 27.
func RecoverSigner(digest, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover assertion signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
