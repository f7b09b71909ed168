// Package relaynet implements the production, relayer-mediated backend of
// the encryption capability. Ciphertext construction and user-decrypt
// exchanges go through the relayer's HTTP API over the caller's
// wallet-provided transport, which avoids the cross-origin restrictions a
// direct endpoint would trigger.
package relaynet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authTokenTTL bounds how long a single relayer API token stays valid.
const authTokenTTL = 5 * time.Minute

// Client is a thin authenticated HTTP client for the relayer API.
type Client struct {
	baseURL string
	http    *http.Client
	apiKey  string
}

// NewClient builds a relayer client. httpClient should be the caller's
// wallet-provided transport; nil falls back to http.DefaultClient. An empty
// apiKey disables request authentication.
func NewClient(baseURL string, httpClient *http.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, apiKey: apiKey}
}

// authToken mints a short-lived bearer token for one request.
func (c *Client) authToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "cipherpantry-client",
		"iat": now.Unix(),
		"exp": now.Add(authTokenTTL).Unix(),
	})
	signed, err := token.SignedString([]byte(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("sign relayer auth token: %w", err)
	}
	return signed, nil
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal relayer request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build relayer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		token, err := c.authToken()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relayer %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("relayer %s: status %d: %s", path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("relayer %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode relayer response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}
