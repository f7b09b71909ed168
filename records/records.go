// Package records persists recipe records and their authorization grants.
// The store is append-only in spirit: records are soft-deleted, grants are
// never revoked, and every encrypted field's two grants are committed in
// the same transaction as the record itself.
package records

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/hearthprotocol/cipherpantry/fhe"
)

var (
	// ErrRecordNotFound is returned when no active record matches the ID.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNotOwner is returned when a caller other than the record owner
	// requests an owner-only operation.
	ErrNotOwner = errors.New("caller is not the record owner")

	// ErrFieldNotEncrypted is returned when a handle is requested for a
	// field stored in plaintext.
	ErrFieldNotEncrypted = errors.New("field is not encrypted")
)

// Ingredient is one recipe line item. A plaintext ingredient carries its
// amount directly; an encrypted one carries the ciphertext handle and the
// content identifier of its input proof instead.
type Ingredient struct {
	Name string
	Unit string

	// Amount is the plaintext quantity. Zero and meaningless when the
	// ingredient is encrypted.
	Amount float64

	Encrypted bool
	Handle    fhe.Handle
	ProofCID  string
}

// Recipe is one stored record.
type Recipe struct {
	ID    string
	Owner common.Address

	// Container is the contract address the record is anchored to. It is
	// the first grantee of every encrypted field in the record.
	Container common.Address

	Title       string
	Ingredients []Ingredient
	CreatedAt   time.Time
}

// FieldStatus reports whether one ingredient field is stored encrypted.
type FieldStatus struct {
	Name      string
	Encrypted bool
}
