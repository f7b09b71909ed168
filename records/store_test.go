package records_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthprotocol/cipherpantry/fhe"
	"github.com/hearthprotocol/cipherpantry/grants"
	"github.com/hearthprotocol/cipherpantry/records"
)

var (
	owner     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	container = common.HexToAddress("0x1111111111111111111111111111111111111111")
	stranger  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func newStore(t *testing.T) *records.Store {
	t.Helper()
	store, err := records.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecipe(handle fhe.Handle) *records.Recipe {
	return &records.Recipe{
		Owner:     owner,
		Container: container,
		Title:     "Sourdough",
		Ingredients: []records.Ingredient{
			{Name: "flour", Unit: "g", Amount: 500},
			{Name: "water", Unit: "ml", Amount: 350},
			{Name: "salt", Unit: "g", Amount: 10},
			{Name: "starter", Unit: "g", Encrypted: true, Handle: handle, ProofCID: "bafyproof"},
		},
	}
}

func TestCreateRecipeRegistersBothGrants(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	handle := fhe.NormalizeHandle([]byte{0xAB})

	id, err := store.CreateRecipe(ctx, sampleRecipe(handle))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	complete, err := grants.PairComplete(ctx, store, handle, container, owner)
	require.NoError(t, err)
	assert.True(t, complete, "container and submitter grants must exist together")

	ok, err := store.IsAllowed(ctx, handle, stranger)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreateRecipeValidation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.CreateRecipe(ctx, &records.Recipe{Container: container, Title: "no owner"})
	require.ErrorIs(t, err, fhe.ErrInvalidAddress)

	_, err = store.CreateRecipe(ctx, &records.Recipe{Owner: owner, Title: "no container"})
	require.ErrorIs(t, err, fhe.ErrInvalidAddress)
}

func TestRecipeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	handle := fhe.NormalizeHandle([]byte{0xCD})

	id, err := store.CreateRecipe(ctx, sampleRecipe(handle))
	require.NoError(t, err)

	got, err := store.Recipe(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, container, got.Container)
	assert.Equal(t, "Sourdough", got.Title)
	require.Len(t, got.Ingredients, 4)

	assert.Equal(t, "flour", got.Ingredients[0].Name)
	assert.Equal(t, 500.0, got.Ingredients[0].Amount)
	assert.False(t, got.Ingredients[0].Encrypted)

	last := got.Ingredients[3]
	assert.True(t, last.Encrypted)
	assert.Equal(t, handle, last.Handle)
	assert.Equal(t, "bafyproof", last.ProofCID)
	assert.Zero(t, last.Amount, "encrypted ingredients store no plaintext amount")
}

func TestRecipeNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.Recipe(context.Background(), "no-such-id")
	require.ErrorIs(t, err, records.ErrRecordNotFound)
}

func TestRecipesListsOwnerOnly(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.CreateRecipe(ctx, sampleRecipe(fhe.NormalizeHandle([]byte{1})))
	require.NoError(t, err)

	other := sampleRecipe(fhe.NormalizeHandle([]byte{2}))
	other.Owner = stranger
	_, err = store.CreateRecipe(ctx, other)
	require.NoError(t, err)

	mine, err := store.Recipes(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, owner, mine[0].Owner)

	theirs, err := store.Recipes(ctx, stranger)
	require.NoError(t, err)
	require.Len(t, theirs, 1)
}

func TestFieldEncryptionStatus(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	id, err := store.CreateRecipe(ctx, sampleRecipe(fhe.NormalizeHandle([]byte{0xEE})))
	require.NoError(t, err)

	status, err := store.FieldEncryptionStatus(ctx, id)
	require.NoError(t, err)
	require.Len(t, status, 4)
	assert.Equal(t, records.FieldStatus{Name: "flour"}, status[0])
	assert.Equal(t, records.FieldStatus{Name: "starter", Encrypted: true}, status[3])
}

func TestEncryptedFieldHandleAccessControl(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	handle := fhe.NormalizeHandle([]byte{0x42})

	id, err := store.CreateRecipe(ctx, sampleRecipe(handle))
	require.NoError(t, err)

	t.Run("owner reads the handle", func(t *testing.T) {
		got, err := store.EncryptedFieldHandle(ctx, id, 3, owner)
		require.NoError(t, err)
		assert.Equal(t, handle, got)
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		_, err := store.EncryptedFieldHandle(ctx, id, 3, stranger)
		require.ErrorIs(t, err, records.ErrNotOwner)
	})

	t.Run("plaintext field rejected", func(t *testing.T) {
		_, err := store.EncryptedFieldHandle(ctx, id, 0, owner)
		require.ErrorIs(t, err, records.ErrFieldNotEncrypted)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := store.EncryptedFieldHandle(ctx, id, 12, owner)
		require.ErrorIs(t, err, records.ErrRecordNotFound)
	})
}

func TestDeleteRecipeIsSoftAndKeepsGrants(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	handle := fhe.NormalizeHandle([]byte{0x99})

	id, err := store.CreateRecipe(ctx, sampleRecipe(handle))
	require.NoError(t, err)

	t.Run("non-owner cannot delete", func(t *testing.T) {
		require.ErrorIs(t, store.DeleteRecipe(ctx, id, stranger), records.ErrNotOwner)
	})

	require.NoError(t, store.DeleteRecipe(ctx, id, owner))

	_, err = store.Recipe(ctx, id)
	require.ErrorIs(t, err, records.ErrRecordNotFound)

	listed, err := store.Recipes(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Grants survive deletion; no revocation path exists.
	complete, err := grants.PairComplete(ctx, store, handle, container, owner)
	require.NoError(t, err)
	assert.True(t, complete)
}
