package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quillbooks/quillbooks/internal/models"
	"github.com/quillbooks/quillbooks/internal/qerrors"
)

// TenantIDHeader carries the explicit tenant identifier on every tenant-scoped
// call. The server derives isolation from the token/header pair, never from
// payload fields.
const TenantIDHeader = "X-Tenant-ID"

// APIClient talks to the cloud data service over HTTP.
type APIClient struct {
	serverURL  string
	tenantID   uuid.UUID
	token      string
	httpClient *http.Client
}

// NewAPIClient creates a client for one tenant session.
func NewAPIClient(serverURL string, tenantID uuid.UUID) *APIClient {
	return &APIClient{
		serverURL: serverURL,
		tenantID:  tenantID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken installs the bearer token used for subsequent calls.
func (c *APIClient) SetToken(token string) {
	c.token = token
}

// LoginRequest is the credentials payload for token issuance.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

// Login exchanges credentials for a tenant-scoped bearer token and installs it.
func (c *APIClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

// CheckHealth checks whether the server is reachable.
func (c *APIClient) CheckHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// PullFull fetches the complete current state for the tenant.
func (c *APIClient) PullFull(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/snapshot", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// StateResponse is the server's sequence cursor for the tenant, plus the
// gate's current verdict when the server could evaluate it.
type StateResponse struct {
	NextSeq          int64  `json:"next_seq"`
	ServerSeq        int64  `json:"server_seq"`
	LicenseState     string `json:"license_state,omitempty"`
	MutationsAllowed bool   `json:"mutations_allowed,omitempty"`
}

// SyncState fetches the server's sequence cursor without snapshot data.
func (c *APIClient) SyncState(ctx context.Context) (*StateResponse, error) {
	var resp StateResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/state", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PushResponse is the server's acknowledgement of one pushed mutation.
type PushResponse struct {
	ServerSeq int64 `json:"server_seq"`
}

// pushEnvelope is the request body for POST /sync/mutations. The server binds
// a batch even when the client sends one mutation at a time.
type pushEnvelope struct {
	Mutations []*models.Mutation `json:"mutations"`
}

// Push sends one mutation. A sequence mismatch comes back as a conflict.
func (c *APIClient) Push(ctx context.Context, mut *models.Mutation) (*PushResponse, error) {
	var resp PushResponse
	body := pushEnvelope{Mutations: []*models.Mutation{mut}}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync/mutations", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PurgeResponse is the destructive-operation response body.
type PurgeResponse struct {
	Success bool                `json:"success"`
	Details models.PurgeResult  `json:"details"`
}

// PurgeTransactionalData invokes the destructive bulk clear. Admin only.
func (c *APIClient) PurgeTransactionalData(ctx context.Context) (*PurgeResponse, error) {
	var resp PurgeResponse
	path := fmt.Sprintf("/api/v1/tenants/%s/transactional-data", c.tenantID)
	if err := c.do(ctx, http.MethodDelete, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do performs one HTTP round trip, mapping transport failures to the network
// error kind and non-2xx statuses through the shared taxonomy.
func (c *APIClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(TenantIDHeader, c.tenantID.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return qerrors.Wrap(qerrors.KindNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("server returned status %d", resp.StatusCode)
		}
		return qerrors.FromHTTPStatus(resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// readErrorMessage pulls the {"error": "..."} body the server uses for failures.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Error
}
