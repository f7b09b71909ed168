package relaynet

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	ecies "github.com/ecies/go/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/hearthprotocol/cipherpantry/fhe"
)

// Config carries everything a relayer-mediated backend needs at
// construction.
type Config struct {
	ChainID uint64

	// DecryptionVerifier is the on-chain contract assertions are signed
	// against.
	DecryptionVerifier common.Address

	// Client is the authenticated relayer API client, built over the
	// caller's wallet-provided transport.
	Client *Client

	// Params is the bootstrap key material.
	Params *PublicParams
}

// Backend is the relayer-mediated encryption capability. Unlike the
// simulation it exposes the full surface natively, including ephemeral
// keypair generation.
type Backend struct {
	cfg Config
}

// New constructs a relayer backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("relaynet: client is required")
	}
	if cfg.Params == nil || cfg.Params.NetworkKey == nil {
		return nil, fmt.Errorf("relaynet: bootstrap parameters are required")
	}
	var zero common.Address
	if cfg.DecryptionVerifier == zero {
		return nil, fmt.Errorf("%w: missing decryption verifier", fhe.ErrInvalidAddress)
	}
	return &Backend{cfg: cfg}, nil
}

// Variant implements fhe.Capability.
func (b *Backend) Variant() fhe.Variant {
	return fhe.VariantRelayer
}

// GenerateKeypair implements fhe.Capability with a fresh ECIES keypair. The
// relayer seals user-decrypt responses to the public half.
func (b *Backend) GenerateKeypair() (fhe.Keypair, error) {
	key, err := ecies.GenerateKey()
	if err != nil {
		return fhe.Keypair{}, fmt.Errorf("relaynet: generate keypair: %w", err)
	}
	return fhe.Keypair{
		PublicKey:  key.PublicKey.Bytes(true),
		PrivateKey: key.Bytes(),
	}, nil
}

// CreateEncryptedInput implements fhe.Capability.
func (b *Backend) CreateEncryptedInput(contract, submitter common.Address) fhe.InputBuilder {
	return &inputBuilder{backend: b, contract: contract, submitter: submitter}
}

// CreateDecryptionAssertion implements fhe.Capability.
func (b *Backend) CreateDecryptionAssertion(publicKey []byte, contracts []common.Address, start time.Time, durationDays uint64) (*fhe.DecryptionAssertion, error) {
	return fhe.NewDecryptionAssertion(publicKey, contracts, start, durationDays, b.cfg.ChainID, b.cfg.DecryptionVerifier)
}

type handleContractPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

type userDecryptRequest struct {
	HandleContractPairs []handleContractPair `json:"handleContractPairs"`
	PublicKey           string               `json:"publicKey"`
	Signature           string               `json:"signature"`
	ContractAddresses   []string             `json:"contractAddresses"`
	UserAddress         string               `json:"userAddress"`
	StartTimestamp      uint64               `json:"startTimestamp"`
	DurationDays        uint64               `json:"durationDays"`
}

type userDecryptResponse struct {
	Values map[string]string `json:"values"`
}

// UserDecrypt implements fhe.Capability. The signature travels without its
// 0x prefix; response values arrive sealed to the ephemeral public key and
// are opened locally with the private half, so the relayer never returns
// raw plaintext over the wire.
func (b *Backend) UserDecrypt(ctx context.Context, req *fhe.UserDecryptRequest) (map[fhe.Handle]*big.Int, error) {
	priv := ecies.NewPrivateKeyFromBytes(req.Keypair.PrivateKey)

	pairs := make([]handleContractPair, len(req.Pairs))
	for i, p := range req.Pairs {
		pairs[i] = handleContractPair{
			Handle:          p.Handle.Hex(),
			ContractAddress: p.Contract.Hex(),
		}
	}
	contracts := make([]string, len(req.Contracts))
	for i, c := range req.Contracts {
		contracts[i] = c.Hex()
	}

	wire := userDecryptRequest{
		HandleContractPairs: pairs,
		PublicKey:           hexutil.Encode(req.Keypair.PublicKey),
		Signature:           hex.EncodeToString(req.Signature),
		ContractAddresses:   contracts,
		UserAddress:         req.User.Hex(),
		StartTimestamp:      uint64(req.Start.Unix()),
		DurationDays:        req.DurationDays,
	}

	var resp userDecryptResponse
	if err := b.cfg.Client.post(ctx, "/v1/user-decrypt", wire, &resp); err != nil {
		return nil, err
	}

	out := make(map[fhe.Handle]*big.Int, len(resp.Values))
	for handleHex, sealedB64 := range resp.Values {
		handle, err := fhe.ParseHandle(handleHex)
		if err != nil {
			return nil, fmt.Errorf("relaynet: malformed handle in response: %w", err)
		}
		sealed, err := base64.StdEncoding.DecodeString(sealedB64)
		if err != nil {
			return nil, fmt.Errorf("relaynet: decode sealed value: %w", err)
		}
		plain, err := ecies.Decrypt(priv, sealed)
		if err != nil {
			return nil, fmt.Errorf("relaynet: open sealed value: %w", err)
		}
		out[handle] = new(big.Int).SetBytes(plain)
	}
	return out, nil
}

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

type inputProofRequest struct {
	ContractAddress string   `json:"contractAddress"`
	UserAddress     string   `json:"userAddress"`
	Ciphertexts     []string `json:"ciphertexts"`
}

type inputProofResponse struct {
	Handles    []string `json:"handles"`
	InputProof string   `json:"inputProof"`
}

// Encrypt implements fhe.InputBuilder. Each staged value is sealed to the
// network key locally before leaving the process; the relayer verifies the
// ciphertexts and answers with handles plus one input proof.
func (ib *inputBuilder) Encrypt(ctx context.Context) (*fhe.RawEncryptedInput, error) {
	if len(ib.values) == 0 {
		return nil, fmt.Errorf("%w: no values staged", fhe.ErrEmptyResult)
	}

	ciphertexts := make([]string, len(ib.values))
	for i, v := range ib.values {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], v)
		sealed, err := ecies.Encrypt(ib.backend.cfg.Params.NetworkKey, buf[:])
		if err != nil {
			return nil, fmt.Errorf("relaynet: seal input: %w", err)
		}
		ciphertexts[i] = base64.StdEncoding.EncodeToString(sealed)
	}

	wire := inputProofRequest{
		ContractAddress: ib.contract.Hex(),
		UserAddress:     ib.submitter.Hex(),
		Ciphertexts:     ciphertexts,
	}
	var resp inputProofResponse
	if err := ib.backend.cfg.Client.post(ctx, "/v1/input-proof", wire, &resp); err != nil {
		return nil, err
	}
	if len(resp.Handles) == 0 || resp.InputProof == "" {
		return nil, fmt.Errorf("%w: relayer returned no handles or proof", fhe.ErrEmptyResult)
	}

	handles := make([][]byte, len(resp.Handles))
	for i, h := range resp.Handles {
		raw, err := hexutil.Decode(h)
		if err != nil {
			return nil, fmt.Errorf("relaynet: decode handle: %w", err)
		}
		handles[i] = raw
	}
	proof, err := hexutil.Decode(resp.InputProof)
	if err != nil {
		return nil, fmt.Errorf("relaynet: decode input proof: %w", err)
	}
	return &fhe.RawEncryptedInput{Handles: handles, Proof: proof}, nil
}
