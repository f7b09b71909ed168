package records

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/hearthprotocol/cipherpantry/fhe"
)

const schema = `
CREATE TABLE IF NOT EXISTS recipes (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	container  TEXT NOT NULL,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ingredients (
	recipe_id TEXT NOT NULL REFERENCES recipes(id),
	idx       INTEGER NOT NULL,
	name      TEXT NOT NULL,
	unit      TEXT NOT NULL,
	amount    REAL NOT NULL DEFAULT 0,
	encrypted INTEGER NOT NULL DEFAULT 0,
	handle    TEXT NOT NULL DEFAULT '',
	proof_cid TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (recipe_id, idx)
);

CREATE TABLE IF NOT EXISTS grants (
	handle  TEXT NOT NULL,
	grantee TEXT NOT NULL,
	PRIMARY KEY (handle, grantee)
);
`

// Store is a sqlite-backed recipe store. It doubles as the grant ledger so
// that grant registration and the record write share one transaction.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) a store at the given sqlite path.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open record store")
	}
	// sqlite serializes writers; a single connection avoids table-lock
	// errors under concurrent access.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize record store schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func addrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

// CreateRecipe writes one record and registers both grants for every
// encrypted field, all inside a single transaction: for each handle the
// container grant first, then the submitter grant. If anything fails the
// whole record rolls back; no partial-grant state is ever observable.
func (s *Store) CreateRecipe(ctx context.Context, r *Recipe) (string, error) {
	if r.Owner == (common.Address{}) || r.Container == (common.Address{}) {
		return "", errors.Wrap(fhe.ErrInvalidAddress, "create recipe")
	}

	id := uuid.NewString()
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", errors.Wrap(err, "begin record transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recipes (id, owner, container, title, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, addrKey(r.Owner), addrKey(r.Container), r.Title, createdAt.Unix(),
	); err != nil {
		return "", errors.Wrap(err, "insert recipe")
	}

	for i, ing := range r.Ingredients {
		handleHex := ""
		if ing.Encrypted {
			handleHex = ing.Handle.Hex()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ingredients (recipe_id, idx, name, unit, amount, encrypted, handle, proof_cid)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, i, ing.Name, ing.Unit, ing.Amount, ing.Encrypted, handleHex, ing.ProofCID,
		); err != nil {
			return "", errors.Wrapf(err, "insert ingredient %d", i)
		}
		if !ing.Encrypted {
			continue
		}
		// Grant order matters for auditability: container before
		// submitter, both or neither.
		if err := allowTx(ctx, tx, ing.Handle, r.Container); err != nil {
			return "", err
		}
		if err := allowTx(ctx, tx, ing.Handle, r.Owner); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit record transaction")
	}
	return id, nil
}

// Recipe returns one active record by ID.
func (s *Store) Recipe(ctx context.Context, id string) (*Recipe, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, container, title, created_at FROM recipes WHERE id = ? AND deleted = 0`, id)

	var r Recipe
	var owner, container string
	var createdAt int64
	if err := row.Scan(&r.ID, &owner, &container, &r.Title, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrap(ErrRecordNotFound, id)
		}
		return nil, errors.Wrap(err, "load recipe")
	}
	r.Owner = common.HexToAddress(owner)
	r.Container = common.HexToAddress(container)
	r.CreatedAt = time.Unix(createdAt, 0)

	ingredients, err := s.ingredients(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Ingredients = ingredients
	return &r, nil
}

// Recipes lists the active records belonging to an owner, newest first.
func (s *Store) Recipes(ctx context.Context, owner common.Address) ([]*Recipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM recipes WHERE owner = ? AND deleted = 0 ORDER BY created_at DESC, id`, addrKey(owner))
	if err != nil {
		return nil, errors.Wrap(err, "list recipes")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan recipe id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "list recipes")
	}

	out := make([]*Recipe, 0, len(ids))
	for _, id := range ids {
		r, err := s.Recipe(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) ingredients(ctx context.Context, recipeID string) ([]Ingredient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, unit, amount, encrypted, handle, proof_cid
		 FROM ingredients WHERE recipe_id = ? ORDER BY idx`, recipeID)
	if err != nil {
		return nil, errors.Wrap(err, "load ingredients")
	}
	defer rows.Close()

	var out []Ingredient
	for rows.Next() {
		var ing Ingredient
		var handleHex string
		if err := rows.Scan(&ing.Name, &ing.Unit, &ing.Amount, &ing.Encrypted, &handleHex, &ing.ProofCID); err != nil {
			return nil, errors.Wrap(err, "scan ingredient")
		}
		if ing.Encrypted {
			handle, err := fhe.ParseHandle(handleHex)
			if err != nil {
				return nil, errors.Wrapf(err, "stored handle for %q", ing.Name)
			}
			ing.Handle = handle
		}
		out = append(out, ing)
	}
	return out, rows.Err()
}

// FieldEncryptionStatus reports, per ingredient field, whether it is stored
// encrypted. Any caller may inspect the shape of a record; only handles and
// plaintext are protected.
func (s *Store) FieldEncryptionStatus(ctx context.Context, recipeID string) ([]FieldStatus, error) {
	if _, err := s.requireActive(ctx, recipeID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, encrypted FROM ingredients WHERE recipe_id = ? ORDER BY idx`, recipeID)
	if err != nil {
		return nil, errors.Wrap(err, "load field status")
	}
	defer rows.Close()

	var out []FieldStatus
	for rows.Next() {
		var fs FieldStatus
		if err := rows.Scan(&fs.Name, &fs.Encrypted); err != nil {
			return nil, errors.Wrap(err, "scan field status")
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// EncryptedFieldHandle returns the ciphertext handle of one field. The
// caller must be the record owner and the field must be encrypted; both
// checks happen here, before any decryption protocol is invoked.
func (s *Store) EncryptedFieldHandle(ctx context.Context, recipeID string, fieldIndex int, caller common.Address) (fhe.Handle, error) {
	owner, err := s.requireActive(ctx, recipeID)
	if err != nil {
		return fhe.Handle{}, err
	}
	if caller != owner {
		return fhe.Handle{}, errors.Wrapf(ErrNotOwner, "record %s", recipeID)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT encrypted, handle FROM ingredients WHERE recipe_id = ? AND idx = ?`, recipeID, fieldIndex)
	var encrypted bool
	var handleHex string
	if err := row.Scan(&encrypted, &handleHex); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fhe.Handle{}, errors.Wrapf(ErrRecordNotFound, "field %d of %s", fieldIndex, recipeID)
		}
		return fhe.Handle{}, errors.Wrap(err, "load field")
	}
	if !encrypted {
		return fhe.Handle{}, errors.Wrapf(ErrFieldNotEncrypted, "field %d of %s", fieldIndex, recipeID)
	}
	handle, err := fhe.ParseHandle(handleHex)
	if err != nil {
		return fhe.Handle{}, errors.Wrap(err, "stored handle")
	}
	return handle, nil
}

// DeleteRecipe soft-deletes a record: it disappears from reads but its
// storage stays and its grants stay valid. Owner-only.
func (s *Store) DeleteRecipe(ctx context.Context, recipeID string, caller common.Address) error {
	owner, err := s.requireActive(ctx, recipeID)
	if err != nil {
		return err
	}
	if caller != owner {
		return errors.Wrapf(ErrNotOwner, "record %s", recipeID)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET deleted = 1 WHERE id = ?`, recipeID); err != nil {
		return errors.Wrap(err, "delete recipe")
	}
	return nil
}

func (s *Store) requireActive(ctx context.Context, recipeID string) (common.Address, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT owner FROM recipes WHERE id = ? AND deleted = 0`, recipeID)
	var owner string
	if err := row.Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Address{}, errors.Wrap(ErrRecordNotFound, recipeID)
		}
		return common.Address{}, errors.Wrap(err, "load recipe owner")
	}
	return common.HexToAddress(owner), nil
}

func allowTx(ctx context.Context, tx *sql.Tx, handle fhe.Handle, grantee common.Address) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO grants (handle, grantee) VALUES (?, ?)`,
		handle.Hex(), addrKey(grantee),
	); err != nil {
		return errors.Wrapf(err, "register grant for %s", handle)
	}
	return nil
}

// Allow implements grants.Ledger outside a record write. The write path
// does not use it; grants there ride the record transaction.
func (s *Store) Allow(ctx context.Context, handle fhe.Handle, grantee common.Address) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO grants (handle, grantee) VALUES (?, ?)`,
		handle.Hex(), addrKey(grantee),
	); err != nil {
		return errors.Wrapf(err, "register grant for %s", handle)
	}
	return nil
}

// IsAllowed implements grants.Ledger.
func (s *Store) IsAllowed(ctx context.Context, handle fhe.Handle, grantee common.Address) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM grants WHERE handle = ? AND grantee = ?`,
		handle.Hex(), addrKey(grantee))
	var n int
	if err := row.Scan(&n); err != nil {
		return false, errors.Wrap(err, "grant lookup")
	}
	return n > 0, nil
}
