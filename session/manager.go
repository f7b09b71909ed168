// Package session owns the process-wide handle to the external encryption
// capability. The handle is created lazily, keyed by the active chain ID,
// and torn down whenever the chain changes: external service metadata
// (verifying contracts, gateway identifiers) may differ even if the same
// numeric chain ID recurs later, so stale handles are never reused.
//
// The manager is an explicit two-state machine, UNINITIALIZED and READY. A
// new handle is published only after construction fully succeeds;
// construction failure leaves the manager UNINITIALIZED so the next call
// retries from scratch. Failures are never cached.
package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hearthprotocol/cipherpantry/config"
	"github.com/hearthprotocol/cipherpantry/fhe"
	"github.com/hearthprotocol/cipherpantry/fhe/relaynet"
	"github.com/hearthprotocol/cipherpantry/fhe/simnet"
	"github.com/hearthprotocol/cipherpantry/grants"
	"github.com/hearthprotocol/cipherpantry/relayer"
)

// Config wires the manager to its collaborators at the composition root.
type Config struct {
	// Ledger is the grant registry the simulation backend authorizes
	// against. Required for the local chain.
	Ledger grants.Ledger

	// Transport is the wallet-provided HTTP client used for relayer calls.
	// Nil falls back to the default client.
	Transport *http.Client

	// RelayerAPIKey authenticates relayer requests. Optional.
	RelayerAPIKey string

	// Networks overrides the built-in network table. Test hook; nil uses
	// config.NetworkForChain.
	Networks func(chainID uint64) (config.Network, bool)
}

// Manager holds at most one live capability handle per process.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	current fhe.Capability
	chainID uint64
}

// NewManager returns a manager in the UNINITIALIZED state.
func NewManager(cfg Config) *Manager {
	if cfg.Networks == nil {
		cfg.Networks = config.NetworkForChain
	}
	return &Manager{cfg: cfg}
}

// Acquire returns the capability handle for the given chain ID, building it
// on first use. Calling with the chain the current handle was built for
// returns the cached handle; calling with a different chain discards the
// stale handle unconditionally and constructs a fresh one. An unsupported
// chain ID fails without caching anything.
func (m *Manager) Acquire(ctx context.Context, chainID uint64) (fhe.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.chainID == chainID {
		return m.current, nil
	}

	// Chain switch or first use: drop any stale handle before building, so
	// a construction failure leaves the manager UNINITIALIZED rather than
	// holding a handle for the wrong chain.
	m.current = nil

	network, ok := m.cfg.Networks(chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %d (supported: %d local, %d sepolia)",
			fhe.ErrUnsupportedChain, chainID, config.ChainIDLocal, config.ChainIDSepolia)
	}

	var (
		capability fhe.Capability
		err        error
	)
	switch chainID {
	case config.ChainIDLocal:
		capability, err = m.buildSimulated(ctx, network)
	case config.ChainIDSepolia:
		capability, err = m.buildRelayer(ctx, network)
	default:
		return nil, fmt.Errorf("%w: %d", fhe.ErrUnsupportedChain, chainID)
	}
	if err != nil {
		return nil, err
	}

	m.current = capability
	m.chainID = chainID
	return capability, nil
}

// Chain reports the chain ID of the current handle, or false when
// UNINITIALIZED.
func (m *Manager) Chain() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return 0, false
	}
	return m.chainID, true
}

// buildSimulated resolves gateway metadata from the local node and
// constructs the trust-local backend. The simulation has no keypair
// operation of its own, so the synthetic-keypair adapter is applied here,
// once, at construction.
func (m *Manager) buildSimulated(ctx context.Context, network config.Network) (fhe.Capability, error) {
	if m.cfg.Ledger == nil {
		return nil, fmt.Errorf("session: local chain requires a grant ledger")
	}

	md, err := relayer.NewClient(network.RPC, m.cfg.Transport).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: resolve gateway metadata: %w", err)
	}

	backend, err := simnet.New(simnet.Config{
		ChainID:            network.ChainID,
		Metadata:           *md,
		DecryptionVerifier: config.SimDecryptionVerifier,
		InputVerifier:      config.SimInputVerifier,
		Ledger:             m.cfg.Ledger,
	})
	if err != nil {
		return nil, fmt.Errorf("session: construct simulation backend: %w", err)
	}
	return fhe.WithSyntheticKeypair(backend), nil
}

// buildRelayer bootstraps the relayer SDK (idempotent, process-wide) and
// constructs the network-mediated backend over the wallet transport.
func (m *Manager) buildRelayer(ctx context.Context, network config.Network) (fhe.Capability, error) {
	client := relaynet.NewClient(network.RelayerURL, m.cfg.Transport, m.cfg.RelayerAPIKey)

	params, err := relaynet.Bootstrap(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	backend, err := relaynet.New(relaynet.Config{
		ChainID:            network.ChainID,
		DecryptionVerifier: network.RecipeContract,
		Client:             client,
		Params:             params,
	})
	if err != nil {
		return nil, fmt.Errorf("session: construct relayer backend: %w", err)
	}
	return backend, nil
}
