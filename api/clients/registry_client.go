package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/contract-registry/api"
	"github.com/ruteri/contract-registry/interfaces"
)

// ErrNoSigningKey is returned when a mutating call is made by a read-only client.
var ErrNoSigningKey = errors.New("client has no signing key")

// RegistryClient talks to a registry server over HTTP. Mutating calls are signed
// with the client's secp256k1 key; a client built without a key can only read.
type RegistryClient struct {
	baseURL    string
	privateKey *ecdsa.PrivateKey
	httpClient *http.Client
}

var _ interfaces.IdentityOracle = (*RegistryClient)(nil)

// NewRegistryClient creates a client for the server at baseURL (e.g. "http://localhost:8080").
// privateKey may be nil for read-only use. Timeout defaults to 30 seconds.
func NewRegistryClient(baseURL string, privateKey *ecdsa.PrivateKey, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		privateKey: privateKey,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Caller returns the identity requests are signed as.
func (c *RegistryClient) Caller() (interfaces.Principal, error) {
	if c.privateKey == nil {
		return interfaces.Principal{}, ErrNoSigningKey
	}
	return api.PrincipalFromKey(c.privateKey), nil
}

// Submit records hash as Pending with the client as submitter.
func (c *RegistryClient) Submit(ctx context.Context, hash interfaces.ContractHash) (bool, error) {
	return c.entryOperation(ctx, http.MethodPost, entryPath(hash, "/submit"))
}

// Approve activates hash. Owner only.
func (c *RegistryClient) Approve(ctx context.Context, hash interfaces.ContractHash) (bool, error) {
	return c.entryOperation(ctx, http.MethodPost, entryPath(hash, "/approve"))
}

// Reject marks hash Rejected. Owner only.
func (c *RegistryClient) Reject(ctx context.Context, hash interfaces.ContractHash) (bool, error) {
	return c.entryOperation(ctx, http.MethodPost, entryPath(hash, "/reject"))
}

// Delete removes an entry the owner submitted itself.
func (c *RegistryClient) Delete(ctx context.Context, hash interfaces.ContractHash) (bool, error) {
	return c.entryOperation(ctx, http.MethodDelete, entryPath(hash, ""))
}

// IsValid reports whether hash is Active. A rejected hash returns an error
// matching interfaces.ErrRejected.
func (c *RegistryClient) IsValid(ctx context.Context, hash interfaces.ContractHash) (bool, error) {
	var resp api.ValidityResponse
	if err := c.do(ctx, http.MethodGet, entryPath(hash, "/valid"), nil, false, &resp); err != nil {
		if errors.Is(err, interfaces.ErrRejected) {
			return false, &interfaces.RejectedError{Hash: hash}
		}
		return false, err
	}
	return resp.Valid, nil
}

// Lookup returns the stored entry. found is false when the registry has no entry for hash.
func (c *RegistryClient) Lookup(ctx context.Context, hash interfaces.ContractHash) (interfaces.Entry, bool, error) {
	var entry interfaces.Entry
	err := c.do(ctx, http.MethodGet, entryPath(hash, ""), nil, false, &entry)
	if errors.Is(err, interfaces.ErrEntryNotFound) {
		return interfaces.Entry{}, false, nil
	}
	if err != nil {
		return interfaces.Entry{}, false, err
	}
	return entry, true, nil
}

// Kill permanently disables the registry. Owner only.
func (c *RegistryClient) Kill(ctx context.Context) error {
	var resp api.KillResponse
	return c.do(ctx, http.MethodPost, "/api/v1/kill", nil, true, &resp)
}

// Owner returns the registry owner, policy and killed flag.
func (c *RegistryClient) Owner(ctx context.Context) (*api.OwnerResponse, error) {
	var resp api.OwnerResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/owner", nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadArtifact stores data on the server and submits its hash.
func (c *RegistryClient) UploadArtifact(ctx context.Context, data []byte) (*api.ArtifactResponse, error) {
	var resp api.ArtifactResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/artifacts", data, true, &resp); err != nil {
		return nil, err
	}
	if expected := interfaces.ComputeContractHash(data); resp.Hash != expected {
		return nil, fmt.Errorf("%w: server stored %s, expected %s", interfaces.ErrContentMismatch, resp.Hash, expected)
	}
	return &resp, nil
}

// FetchArtifact downloads an artifact and checks it against hash.
func (c *RegistryClient) FetchArtifact(ctx context.Context, hash interfaces.ContractHash) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/artifacts/"+hash.String(), nil, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifact request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if interfaces.ComputeContractHash(data) != hash {
		return nil, interfaces.ErrContentMismatch
	}
	return data, nil
}

// Events returns up to limit recent registry events.
func (c *RegistryClient) Events(ctx context.Context, limit int) (*api.EventsResponse, error) {
	path := "/api/v1/events"
	if limit > 0 {
		path += "?" + url.Values{"limit": {fmt.Sprint(limit)}}.Encode()
	}

	var resp api.EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, false, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IdentityValid checks the identity hash of p against the remote registry, so a
// remote registry can serve as another registry's identity oracle.
func (c *RegistryClient) IdentityValid(ctx context.Context, p interfaces.Principal) (bool, error) {
	return c.IsValid(ctx, interfaces.IdentityHash(p))
}

func (c *RegistryClient) entryOperation(ctx context.Context, method, path string) (bool, error) {
	var resp api.OperationResponse
	if err := c.do(ctx, method, path, nil, true, &resp); err != nil {
		return false, err
	}
	return resp.Result, nil
}

func (c *RegistryClient) newRequest(ctx context.Context, method, path string, body []byte, signed bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	if signed {
		if c.privateKey == nil {
			return nil, ErrNoSigningKey
		}
		if err := api.SignRequest(req, body, c.privateKey, time.Now()); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func (c *RegistryClient) do(ctx context.Context, method, path string, body []byte, signed bool, out any) error {
	req, err := c.newRequest(ctx, method, path, body, signed)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Code == "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return api.ErrorFromResponse(resp.StatusCode, errResp)
}

func entryPath(hash interfaces.ContractHash, suffix string) string {
	return "/api/v1/entries/" + hash.String() + suffix
}
