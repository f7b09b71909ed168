// Package grants records which identities may later decrypt which
// ciphertext handles. Grants are append-only: no revocation operation
// exists, not even on record deletion.
//
// Every encrypted field carries exactly two grants, registered in order
// inside the same atomic commit as the record write: first the container,
// then the submitting identity. Skipping either permanently locks the owner
// out of their own data, so the write path must treat both registrations as
// required parts of one transaction.
package grants

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hearthprotocol/cipherpantry/fhe"
)

// Grant confers on one grantee the right to later decrypt one handle.
type Grant struct {
	Handle  fhe.Handle
	Grantee common.Address
}

// Ledger is an append-only registry of grants. Implementations must make
// writes durable together with the record write they belong to.
type Ledger interface {
	// Allow registers grantee as an allowed reader of handle. Idempotent.
	Allow(ctx context.Context, handle fhe.Handle, grantee common.Address) error

	// IsAllowed reports whether grantee holds a grant for handle.
	IsAllowed(ctx context.Context, handle fhe.Handle, grantee common.Address) (bool, error)
}

// PairComplete reports whether both mandatory grants for a freshly written
// encrypted field exist: the container's and the submitter's. Test harnesses
// use it to assert no record is observable in a partial-grant state.
func PairComplete(ctx context.Context, l Ledger, handle fhe.Handle, container, submitter common.Address) (bool, error) {
	containerOK, err := l.IsAllowed(ctx, handle, container)
	if err != nil {
		return false, err
	}
	submitterOK, err := l.IsAllowed(ctx, handle, submitter)
	if err != nil {
		return false, err
	}
	return containerOK && submitterOK, nil
}

type grantKey struct {
	handle  fhe.Handle
	grantee common.Address
}

// MemoryLedger is an in-process Ledger for the simulation backend and
// tests.
type MemoryLedger struct {
	mu  sync.RWMutex
	set map[grantKey]struct{}
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{set: make(map[grantKey]struct{})}
}

// Allow implements Ledger.
func (m *MemoryLedger) Allow(_ context.Context, handle fhe.Handle, grantee common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[grantKey{handle: handle, grantee: grantee}] = struct{}{}
	return nil
}

// IsAllowed implements Ledger.
func (m *MemoryLedger) IsAllowed(_ context.Context, handle fhe.Handle, grantee common.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[grantKey{handle: handle, grantee: grantee}]
	return ok, nil
}
