// Package relayer talks to the encryption gateway's metadata surface: the
// local node request that reports where the access-control, input-verifier,
// and key-management contracts live. Incomplete metadata is fatal for
// session construction, so the payload is schema-validated before use.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	z "github.com/Oudwins/zog"
	"github.com/ethereum/go-ethereum/common"
)

// ErrIncompleteMetadata is returned when the gateway reports metadata with
// any required contract address missing or malformed.
var ErrIncompleteMetadata = errors.New("relayer: gateway metadata incomplete")

// metadataMethod is the JSON-RPC method the local node answers with relayer
// metadata.
const metadataMethod = "fhevm_relayer_metadata"

// Metadata names the gateway contracts a session needs.
type Metadata struct {
	ACLAddress           common.Address
	InputVerifierAddress common.Address
	KMSVerifierAddress   common.Address
}

// Complete reports whether every required address is present.
func (m Metadata) Complete() bool {
	var zero common.Address
	return m.ACLAddress != zero && m.InputVerifierAddress != zero && m.KMSVerifierAddress != zero
}

// metadataPayload is the validated form of the metadata result. Field names
// follow the schema shape keys.
type metadataPayload struct {
	ACLAddress           string `json:"ACLAddress"`
	InputVerifierAddress string `json:"InputVerifierAddress"`
	KMSVerifierAddress   string `json:"KMSVerifierAddress"`
}

// metadataSchema validates the wire payload before any address is trusted.
var metadataSchema = z.Struct(z.Shape{
	"ACLAddress": z.String().Required().TestFunc(validHexAddress,
		z.Message("ACL address must be a 20-byte hex address")),
	"InputVerifierAddress": z.String().Required().TestFunc(validHexAddress,
		z.Message("input verifier address must be a 20-byte hex address")),
	"KMSVerifierAddress": z.String().Required().TestFunc(validHexAddress,
		z.Message("KMS verifier address must be a 20-byte hex address")),
})

func validHexAddress(value *string, _ z.Ctx) bool {
	return common.IsHexAddress(*value)
}

// Client queries one node endpoint for gateway metadata.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a metadata client for the given JSON-RPC endpoint. A nil
// httpClient falls back to http.DefaultClient.
func NewClient(endpoint string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: httpClient}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Metadata fetches and validates the gateway metadata. Any missing or
// malformed address is reported as ErrIncompleteMetadata; callers must not
// construct a session from a partial result.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  metadataMethod,
		Params:  []any{},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build metadata request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query gateway metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway metadata: unexpected status %d", resp.StatusCode)
	}

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return nil, fmt.Errorf("decode metadata response: %w", err)
	}
	if rpc.Error != nil {
		return nil, fmt.Errorf("gateway metadata: rpc error %d: %s", rpc.Error.Code, rpc.Error.Message)
	}
	if len(rpc.Result) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrIncompleteMetadata)
	}

	var raw map[string]any
	if err := json.Unmarshal(rpc.Result, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteMetadata, err)
	}
	var payload metadataPayload
	if issues := metadataSchema.Parse(raw, &payload); issues != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompleteMetadata, issues)
	}

	md := &Metadata{
		ACLAddress:           common.HexToAddress(payload.ACLAddress),
		InputVerifierAddress: common.HexToAddress(payload.InputVerifierAddress),
		KMSVerifierAddress:   common.HexToAddress(payload.KMSVerifierAddress),
	}
	if !md.Complete() {
		return nil, fmt.Errorf("%w: zero address in result", ErrIncompleteMetadata)
	}
	return md, nil
}
