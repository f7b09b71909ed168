package codec

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthprotocol/cipherpantry/fhe"
	"github.com/hearthprotocol/cipherpantry/fhe/simnet"
	"github.com/hearthprotocol/cipherpantry/grants"
	"github.com/hearthprotocol/cipherpantry/relayer"
	"github.com/hearthprotocol/cipherpantry/wallet"
)

var (
	testContract  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSubmitter = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestScaleAmount(t *testing.T) {
	testCases := []struct {
		name    string
		amount  float64
		want    uint32
		wantErr bool
	}{
		{name: "one decimal digit survives", amount: 2.5, want: 25},
		{name: "whole number", amount: 120, want: 1200},
		{name: "zero", amount: 0, want: 0},
		{name: "rounds to nearest", amount: 0.25, want: 3},
		{name: "negative rejected", amount: -1, wantErr: true},
		{name: "NaN rejected", amount: math.NaN(), wantErr: true},
		{name: "infinity rejected", amount: math.Inf(1), wantErr: true},
		{name: "overflow rejected", amount: math.MaxUint32, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScaleAmount(tc.amount)
			if tc.wantErr {
				require.ErrorIs(t, err, fhe.ErrAmountOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestScaleUnscaleRoundTrip(t *testing.T) {
	for _, amount := range []float64{0, 0.1, 2.5, 42, 1000.9} {
		scaled, err := ScaleAmount(amount)
		require.NoError(t, err)
		assert.InDelta(t, amount, UnscaleAmount(scaled), 1e-9)
	}
}

// fakeCapability returns canned encryption results so the handle
// normalization path can be exercised without a real backend.
type fakeCapability struct {
	raw *fhe.RawEncryptedInput
	err error
}

func (f *fakeCapability) Variant() fhe.Variant { return fhe.VariantSimulated }
func (f *fakeCapability) CreateEncryptedInput(_, _ common.Address) fhe.InputBuilder {
	return &fakeBuilder{cap: f}
}
func (f *fakeCapability) GenerateKeypair() (fhe.Keypair, error) { return fhe.Keypair{}, nil }
func (f *fakeCapability) CreateDecryptionAssertion(publicKey []byte, contracts []common.Address, start time.Time, durationDays uint64) (*fhe.DecryptionAssertion, error) {
	return fhe.NewDecryptionAssertion(publicKey, contracts, start, durationDays, 31337, testContract)
}
func (f *fakeCapability) UserDecrypt(_ context.Context, _ *fhe.UserDecryptRequest) (map[fhe.Handle]*big.Int, error) {
	return nil, nil
}

type fakeBuilder struct {
	cap *fakeCapability
}

func (b *fakeBuilder) Add32(uint32) {}
func (b *fakeBuilder) Encrypt(context.Context) (*fhe.RawEncryptedInput, error) {
	return b.cap.raw, b.cap.err
}

func TestEncryptAmountNormalizesHandles(t *testing.T) {
	short := []byte{0x01, 0x02}
	long := append(make([]byte, 8), bytes32(0x77)...)

	capability := &fakeCapability{raw: &fhe.RawEncryptedInput{
		Handles: [][]byte{short, long},
		Proof:   []byte{0xFF},
	}}

	out, err := EncryptAmount(context.Background(), capability, 2.5, testContract, testSubmitter)
	require.NoError(t, err)
	require.Len(t, out.Handles, 2)

	assert.Equal(t, fhe.NormalizeHandle(short), out.Handles[0])
	assert.Equal(t, fhe.NormalizeHandle(long), out.Handles[1])
	assert.Equal(t, fhe.InputProof([]byte{0xFF}), out.Proof)
}

func bytes32(fill byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = fill
	}
	return out
}

func TestEncryptAmountPreconditions(t *testing.T) {
	ctx := context.Background()
	capability := &fakeCapability{raw: &fhe.RawEncryptedInput{Handles: [][]byte{{1}}, Proof: []byte{1}}}

	_, err := EncryptAmount(ctx, nil, 2.5, testContract, testSubmitter)
	assert.ErrorIs(t, err, fhe.ErrNoSession)

	_, err = EncryptAmount(ctx, capability, 2.5, common.Address{}, testSubmitter)
	assert.ErrorIs(t, err, fhe.ErrInvalidAddress)

	_, err = EncryptAmount(ctx, capability, 2.5, testContract, common.Address{})
	assert.ErrorIs(t, err, fhe.ErrInvalidAddress)

	_, err = EncryptAmount(ctx, capability, -3, testContract, testSubmitter)
	assert.ErrorIs(t, err, fhe.ErrAmountOutOfRange)
}

func TestEncryptAmountEmptyResult(t *testing.T) {
	capability := &fakeCapability{raw: &fhe.RawEncryptedInput{}}
	_, err := EncryptAmount(context.Background(), capability, 2.5, testContract, testSubmitter)
	require.ErrorIs(t, err, fhe.ErrEmptyResult)
}

// newSimulatedCapability builds a working trust-local capability plus the
// ledger it authorizes against.
func newSimulatedCapability(t *testing.T) (fhe.Capability, *grants.MemoryLedger) {
	t.Helper()
	ledger := grants.NewMemoryLedger()
	backend, err := simnet.New(simnet.Config{
		ChainID: 31337,
		Metadata: relayer.Metadata{
			ACLAddress:           common.HexToAddress("0x4444444444444444444444444444444444444444"),
			InputVerifierAddress: common.HexToAddress("0x5555555555555555555555555555555555555555"),
			KMSVerifierAddress:   common.HexToAddress("0x6666666666666666666666666666666666666666"),
		},
		DecryptionVerifier: common.HexToAddress("0x7777777777777777777777777777777777777777"),
		InputVerifier:      common.HexToAddress("0x8888888888888888888888888888888888888888"),
		Ledger:             ledger,
	})
	require.NoError(t, err)
	return fhe.WithSyntheticKeypair(backend), ledger
}

func TestDecryptAmountRoundTrip(t *testing.T) {
	ctx := context.Background()
	capability, ledger := newSimulatedCapability(t)
	signer, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	out, err := EncryptAmount(ctx, capability, 2.5, testContract, signer.Address())
	require.NoError(t, err)
	handle := out.Handles[0]

	require.NoError(t, ledger.Allow(ctx, handle, testContract))
	require.NoError(t, ledger.Allow(ctx, handle, signer.Address()))

	amount, err := DecryptAmount(ctx, capability, handle.Hex(), testContract, signer)
	require.NoError(t, err)
	assert.Equal(t, 2.5, amount)
}

func TestDecryptAmountRejectsMalformedHandleBeforeSigning(t *testing.T) {
	capability, _ := newSimulatedCapability(t)
	signer := &countingSigner{}

	_, err := DecryptAmount(context.Background(), capability, "0x1234", testContract, signer)
	require.ErrorIs(t, err, fhe.ErrInvalidHandle)
	assert.Zero(t, signer.calls, "no signature prompt for a malformed identifier")
}

func TestDecryptAmountPropagatesWalletRejection(t *testing.T) {
	ctx := context.Background()
	capability, ledger := newSimulatedCapability(t)
	real, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	out, err := EncryptAmount(ctx, capability, 2.5, testContract, real.Address())
	require.NoError(t, err)
	require.NoError(t, ledger.Allow(ctx, out.Handles[0], testContract))
	require.NoError(t, ledger.Allow(ctx, out.Handles[0], real.Address()))

	rejecting := &countingSigner{err: wallet.ErrRejected, addr: real.Address()}
	_, err = DecryptAmount(ctx, capability, out.Handles[0].Hex(), testContract, rejecting)
	require.ErrorIs(t, err, wallet.ErrRejected)
	assert.Equal(t, 1, rejecting.calls)
}

func TestDecryptAmountWithoutGrantsFails(t *testing.T) {
	ctx := context.Background()
	capability, _ := newSimulatedCapability(t)
	signer, err := wallet.GenerateLocalSigner()
	require.NoError(t, err)

	out, err := EncryptAmount(ctx, capability, 2.5, testContract, signer.Address())
	require.NoError(t, err)

	// No grants registered: the backend must refuse.
	_, err = DecryptAmount(ctx, capability, out.Handles[0].Hex(), testContract, signer)
	require.ErrorIs(t, err, fhe.ErrNotAuthorized)
}

type countingSigner struct {
	addr  common.Address
	err   error
	calls int
}

func (s *countingSigner) Address() common.Address { return s.addr }
func (s *countingSigner) SignTypedData(_ context.Context, _ apitypes.TypedData) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return nil, errors.New("countingSigner cannot sign")
}
