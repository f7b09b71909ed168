package relaynet

import (
	"context"
	"fmt"
	"sync"

	ecies "github.com/ecies/go/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PublicParams is the key material fetched once per process at bootstrap:
// the network encryption key every input ciphertext is sealed to.
type PublicParams struct {
	NetworkKey *ecies.PublicKey
}

// bootstrapState guards the process-wide bootstrap. A plain sync.Once would
// cache failures; a failed bootstrap must leave nothing behind so the next
// call retries from scratch.
var bootstrapState struct {
	mu     sync.Mutex
	params *PublicParams
}

type keyURLResponse struct {
	PublicKey string `json:"publicKey"`
}

// Bootstrap performs the one-time, process-wide SDK bootstrap: fetching the
// network public key from the relayer. A second call after success is a
// no-op returning the cached parameters.
func Bootstrap(ctx context.Context, client *Client) (*PublicParams, error) {
	bootstrapState.mu.Lock()
	defer bootstrapState.mu.Unlock()

	if bootstrapState.params != nil {
		return bootstrapState.params, nil
	}

	var resp keyURLResponse
	if err := client.get(ctx, "/v1/keyurl", &resp); err != nil {
		return nil, fmt.Errorf("relayer bootstrap: %w", err)
	}
	raw, err := hexutil.Decode(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("relayer bootstrap: decode network key: %w", err)
	}
	key, err := ecies.NewPublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("relayer bootstrap: parse network key: %w", err)
	}

	bootstrapState.params = &PublicParams{NetworkKey: key}
	return bootstrapState.params, nil
}

// resetBootstrap clears the cached parameters. Test hook only.
func resetBootstrap() {
	bootstrapState.mu.Lock()
	bootstrapState.params = nil
	bootstrapState.mu.Unlock()
}
