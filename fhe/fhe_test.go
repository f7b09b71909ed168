package fhe

import (
	"bytes"
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHandle(t *testing.T) {
	testCases := []struct {
		name string
		raw  []byte
		want func(t *testing.T, h Handle)
	}{
		{
			name: "exact 32 bytes pass through",
			raw:  bytes.Repeat([]byte{0xAB}, 32),
			want: func(t *testing.T, h Handle) {
				assert.Equal(t, bytes.Repeat([]byte{0xAB}, 32), h[:])
			},
		},
		{
			name: "short input is left-padded with zeros",
			raw:  []byte{0x01, 0x02, 0x03},
			want: func(t *testing.T, h Handle) {
				assert.Equal(t, make([]byte, 29), h[:29])
				assert.Equal(t, []byte{0x01, 0x02, 0x03}, h[29:])
			},
		},
		{
			name: "long input keeps low-order 32 bytes",
			raw:  append(bytes.Repeat([]byte{0xFF}, 8), bytes.Repeat([]byte{0x77}, 32)...),
			want: func(t *testing.T, h Handle) {
				assert.Equal(t, bytes.Repeat([]byte{0x77}, 32), h[:])
			},
		},
		{
			name: "empty input yields the zero handle",
			raw:  nil,
			want: func(t *testing.T, h Handle) {
				assert.Equal(t, Handle{}, h)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.want(t, NormalizeHandle(tc.raw))
		})
	}
}

func TestParseHandle(t *testing.T) {
	valid := strings.Repeat("ab", 32)

	testCases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "64 hex chars without prefix", input: valid},
		{name: "64 hex chars with 0x prefix", input: "0x" + valid},
		{name: "too short", input: valid[:62], wantErr: true},
		{name: "too long", input: valid + "ab", wantErr: true},
		{name: "non-hex characters", input: strings.Repeat("zz", 32), wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := ParseHandle(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidHandle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "0x"+valid, h.Hex())
		})
	}
}

func TestHandleHexRoundTrip(t *testing.T) {
	h := NormalizeHandle([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	parsed, err := ParseHandle(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestInputProofCID(t *testing.T) {
	proof := InputProof([]byte("attestation-bytes"))

	first, err := proof.CID()
	require.NoError(t, err)
	second, err := proof.CID()
	require.NoError(t, err)
	assert.Equal(t, first, second, "proof CID must be deterministic")

	other, err := InputProof([]byte("different-bytes")).CID()
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestKeypairIsZero(t *testing.T) {
	assert.True(t, Keypair{}.IsZero())
	assert.True(t, Keypair{PublicKey: make([]byte, 32), PrivateKey: make([]byte, 32)}.IsZero())
	assert.False(t, Keypair{PublicKey: []byte{1}, PrivateKey: make([]byte, 32)}.IsZero())
	assert.False(t, Keypair{PublicKey: make([]byte, 32), PrivateKey: []byte{0, 0, 9}}.IsZero())
}

func TestWithSyntheticKeypair(t *testing.T) {
	capability := WithSyntheticKeypair(nil)

	kp, err := capability.GenerateKeypair()
	require.NoError(t, err)
	assert.Len(t, kp.PublicKey, 32)
	assert.Len(t, kp.PrivateKey, 32)
	assert.True(t, kp.IsZero())
}

func TestRequireVariant(t *testing.T) {
	require.ErrorIs(t, RequireVariant(nil, VariantSimulated), ErrNoSession)

	capability := WithSyntheticKeypair(variantOnly(VariantSimulated))
	require.NoError(t, RequireVariant(capability, VariantSimulated))

	err := RequireVariant(capability, VariantRelayer)
	require.ErrorIs(t, err, ErrBackendMismatch)
	assert.Contains(t, err.Error(), string(VariantRelayer))
	assert.Contains(t, err.Error(), string(VariantSimulated))
}

// variantOnly is a CoreCapability stub that only answers Variant.
type variantOnly Variant

func (v variantOnly) Variant() Variant { return Variant(v) }
func (v variantOnly) CreateEncryptedInput(_, _ common.Address) InputBuilder {
	return nil
}
func (v variantOnly) CreateDecryptionAssertion(_ []byte, _ []common.Address, _ time.Time, _ uint64) (*DecryptionAssertion, error) {
	return nil, nil
}
func (v variantOnly) UserDecrypt(_ context.Context, _ *UserDecryptRequest) (map[Handle]*big.Int, error) {
	return nil, nil
}
