// Package config provides network configuration and protocol constants for
// the CipherPantry client.
package config

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain IDs the encrypted-field protocol supports. Anything else is rejected
// by the session manager.
const (
	// ChainIDLocal is the local development node (trust-local simulation).
	ChainIDLocal uint64 = 31337
	// ChainIDSepolia is the public testnet (relayer-mediated).
	ChainIDSepolia uint64 = 11155111
)

// Protocol constants shared by both backends.
const (
	// DecryptionValidityDays is the validity window of a decryption
	// assertion. Chosen generously since no renewal mechanism exists.
	DecryptionValidityDays uint64 = 10

	// AmountScale is the fixed-point factor applied to ingredient amounts
	// before encryption, retaining one decimal digit.
	AmountScale uint64 = 10
)

// Verifying-contract addresses used only by the simulation backend. The
// simulation network has no on-chain deployment of its own, so these are
// fixed well-known values baked into the local node.
var (
	SimDecryptionVerifier = common.HexToAddress("0x5ffdaAB0373E62E2ea2944776209aEf29E631A64")
	SimInputVerifier      = common.HexToAddress("0x812b06e1CDCE800494b79fFE4f925A504a9A9810")
)

// Network defines the endpoints and contract addresses for one chain.
type Network struct {
	ChainID uint64 `json:"chain_id"`
	Name    string `json:"name"`

	// RPC is the JSON-RPC endpoint of the chain node. On the local chain it
	// also serves the gateway metadata request.
	RPC string `json:"rpc_endpoint"`

	// RelayerURL is the decryption relayer endpoint. Empty on the local
	// chain, which needs no relayer.
	RelayerURL string `json:"relayer_url,omitempty"`

	// RecipeContract is the address the recipe records live at.
	RecipeContract common.Address `json:"recipe_contract"`

	RequestTimeout time.Duration `json:"request_timeout"`
}

// LocalNetwork returns the network configuration for local development.
func LocalNetwork() Network {
	return Network{
		ChainID:        ChainIDLocal,
		Name:           "Local Devnet",
		RPC:            "http://localhost:8545",
		RecipeContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		RequestTimeout: 30 * time.Second,
	}
}

// SepoliaNetwork returns the network configuration for the Sepolia testnet.
func SepoliaNetwork() Network {
	return Network{
		ChainID:        ChainIDSepolia,
		Name:           "Sepolia",
		RPC:            "https://rpc.sepolia.org",
		RelayerURL:     "https://relayer.testnet.fhenet.io",
		RecipeContract: common.HexToAddress("0x69056aFAF46645689B4525cBEe2bd31C7C0A6E50"),
		RequestTimeout: 30 * time.Second,
	}
}

// NetworkForChain returns the configuration for a supported chain ID.
func NetworkForChain(chainID uint64) (Network, bool) {
	switch chainID {
	case ChainIDLocal:
		return LocalNetwork(), true
	case ChainIDSepolia:
		return SepoliaNetwork(), true
	default:
		return Network{}, false
	}
}
