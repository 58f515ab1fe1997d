package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"testing"

	"promptdeck.org/internal/access"
	"promptdeck.org/internal/accounts"
	"promptdeck.org/internal/auth"
	"promptdeck.org/internal/prompts"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	dir := t.TempDir()
	acctStore := accounts.NewSnapshotStore(filepath.Join(dir, "accounts.json"), nil)
	promptStore := prompts.NewSnapshotStore(filepath.Join(dir, "prompts.json"), nil)

	acctSvc, err := accounts.NewService(acctStore, accounts.WithOwnedCounter(promptStore))
	if err != nil {
		t.Fatalf("accounts.NewService: %v", err)
	}
	promptSvc, err := prompts.NewService(promptStore, acctSvc)
	if err != nil {
		t.Fatalf("prompts.NewService: %v", err)
	}

	ctx := context.Background()
	if _, err := acctSvc.Register(ctx, "Root", "root@example.com", "root-pw", access.RoleAdmin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if _, err := acctSvc.Register(ctx, "Ada", "ada@example.com", "ada-pw", access.RoleUser); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	tokens, err := auth.NewTokens("test-secret", "promptdeck-test")
	if err != nil {
		t.Fatalf("auth.NewTokens: %v", err)
	}
	resolver, err := auth.NewResolver(tokens, acctSvc)
	if err != nil {
		t.Fatalf("auth.NewResolver: %v", err)
	}

	api := New(ReadyProbe{}, "test", acctSvc, promptSvc, tokens, resolver,
		WithRateLimit(100, 100))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(email, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSubmitReviewFeatureFlow(t *testing.T) {
	api := newTestAPI(t)
	adminToken := api.obtainToken("root@example.com", "root-pw")
	userToken := api.obtainToken("ada@example.com", "ada-pw")

	// Submit as plain user.
	resp := api.post("/v1/prompts", map[string]any{
		"title": "Code reviewer",
		"body":  "Review the following diff and list the issues: {{diff}}",
	}, bearerHeader(userToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected submit status: %d", resp.StatusCode)
	}
	created := decode[prompts.Prompt](t, resp)
	if created.Status != prompts.StatusPending {
		t.Fatalf("expected pending, got %s", created.Status)
	}

	// Anonymous catalog hides pending items.
	resp = api.get("/v1/prompts", nil, nil)
	listing := decode[struct {
		Items []prompts.Prompt `json:"items"`
	}](t, resp)
	if len(listing.Items) != 0 {
		t.Fatalf("pending prompt leaked to anonymous listing: %+v", listing.Items)
	}

	// Plain user cannot review.
	resp = api.post("/v1/prompts/1/review", map[string]any{"status": "approved"}, bearerHeader(userToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin approves.
	resp = api.post("/v1/prompts/1/review", map[string]any{"status": "approved"}, bearerHeader(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected review status: %d", resp.StatusCode)
	}
	approved := decode[prompts.Prompt](t, resp)
	if approved.Status != prompts.StatusApproved || approved.ReviewedBy == "" {
		t.Fatalf("review stamp missing: %+v", approved)
	}

	// Approving again is an invalid transition, not a repeat success.
	resp = api.post("/v1/prompts/1/review", map[string]any{"status": "approved"}, bearerHeader(adminToken))
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Feature the approved prompt.
	resp = api.post("/v1/prompts/1/feature", map[string]any{"featured": true}, bearerHeader(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected feature status: %d", resp.StatusCode)
	}
	featured := decode[prompts.Prompt](t, resp)
	if !featured.Featured {
		t.Fatalf("expected is_featured true")
	}

	// Now visible anonymously.
	resp = api.get("/v1/prompts/1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected public read of approved prompt, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUploadBatch(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("ada@example.com", "ada-pw")

	resp := api.post("/v1/prompts/upload", map[string]any{
		"items": []map[string]any{
			{"title": "One", "body": "alpha"},
			{"title": "Two", "body": "beta"},
			{"title": "Broken"},
			{"text": "legacy gamma"},
			{"title": "Five", "body": "delta"},
		},
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected upload status: %d", resp.StatusCode)
	}
	result := decode[uploadResponse](t, resp)
	if len(result.Accepted) != 4 || len(result.Rejected) != 1 {
		t.Fatalf("expected 4 accepted / 1 rejected, got %d/%d", len(result.Accepted), len(result.Rejected))
	}
	for i, p := range result.Accepted {
		if want := int64(i + 1); p.ID != want {
			t.Fatalf("item %d: expected id %d, got %d", i, want, p.ID)
		}
	}
	if result.Rejected[0].Reason != "missing content" {
		t.Fatalf("unexpected rejection reason: %q", result.Rejected[0].Reason)
	}
}

func TestUploadBatchAllInvalid(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("ada@example.com", "ada-pw")

	resp := api.post("/v1/prompts/upload", map[string]any{
		"items": []map[string]any{
			{"title": "One"},
			{"title": "Two"},
		},
	}, bearerHeader(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Error    string                   `json:"error"`
		Rejected []prompts.RejectedPrompt `json:"rejected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Rejected) != 2 {
		t.Fatalf("expected per-item reasons, got %+v", body)
	}
}

func TestRegisterAndDeleteAccount(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/register", map[string]any{
		"name":     "Bob",
		"email":    "bob@example.com",
		"password": "bob-pw",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	acct := decode[accounts.Account](t, resp)
	if acct.PasswordHash != "" {
		t.Fatalf("password hash leaked in response")
	}

	token := api.obtainToken("bob@example.com", "bob-pw")

	// Duplicate email conflicts.
	resp = api.post("/v1/auth/register", map[string]any{
		"name":     "Bob Again",
		"email":    "bob@example.com",
		"password": "other",
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Delete is refused while the account owns content.
	resp = api.post("/v1/prompts", map[string]any{
		"title": "Mine", "body": "content",
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected submit status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/accounts/"+acct.ID, nil, bearerHeader(token))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 while owning content, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/prompts/1", nil, bearerHeader(token))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected prompt delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/accounts/"+acct.ID, nil, bearerHeader(token))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected account delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAccountAccessRules(t *testing.T) {
	api := newTestAPI(t)
	adminToken := api.obtainToken("root@example.com", "root-pw")
	userToken := api.obtainToken("ada@example.com", "ada-pw")

	// Plain users cannot list accounts.
	resp := api.get("/v1/accounts", nil, bearerHeader(userToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/accounts", nil, bearerHeader(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	listing := decode[struct {
		Items []accounts.Account `json:"items"`
	}](t, resp)
	if len(listing.Items) != 2 {
		t.Fatalf("expected 2 seeded accounts, got %d", len(listing.Items))
	}
	var adaID string
	for _, item := range listing.Items {
		if item.Email == "ada@example.com" {
			adaID = item.ID
		}
		if item.PasswordHash != "" {
			t.Fatalf("password hash leaked in listing")
		}
	}

	// Role changes are admin-only.
	resp = api.do(http.MethodPatch, "/v1/accounts/"+adaID, map[string]any{"role": "moderator"}, bearerHeader(userToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodPatch, "/v1/accounts/"+adaID, map[string]any{"role": "moderator"}, bearerHeader(adminToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	updated := decode[accounts.Account](t, resp)
	if updated.Role != access.RoleModerator {
		t.Fatalf("role change lost: %+v", updated)
	}
}

func TestDraftPublishFlow(t *testing.T) {
	api := newTestAPI(t)
	userToken := api.obtainToken("ada@example.com", "ada-pw")

	resp := api.post("/v1/prompts", map[string]any{
		"title": "Draft idea",
		"body":  "Rewrite the following text in plain language: {{text}}",
		"draft": true,
	}, bearerHeader(userToken))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[prompts.Prompt](t, resp)
	if created.Status != prompts.StatusDraft {
		t.Fatalf("expected draft, got %s", created.Status)
	}
	id := strconv.FormatInt(created.ID, 10)

	// Drafts stay private.
	resp = api.get("/v1/prompts/"+id, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("anonymous read of a draft: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/prompts/"+id+"/publish", nil, bearerHeader(userToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: expected 200, got %d", resp.StatusCode)
	}
	published := decode[prompts.Prompt](t, resp)
	if published.Status != prompts.StatusPending {
		t.Fatalf("expected pending after publish, got %s", published.Status)
	}
}

func TestOptionsOverrideLimits(t *testing.T) {
	api := New(ReadyProbe{}, "test", nil, nil, nil, nil,
		WithRateLimit(3, 7), WithMaxBodyBytes(2048))
	if api.rateBurst != 3 || api.ratePerSec != 7 {
		t.Fatalf("rate limit not applied: burst=%d perSec=%d", api.rateBurst, api.ratePerSec)
	}
	if api.maxBodyBytes != 2048 {
		t.Fatalf("body cap not applied: %d", api.maxBodyBytes)
	}

	// Zero and negative values keep the defaults.
	api = New(ReadyProbe{}, "test", nil, nil, nil, nil,
		WithRateLimit(0, -1), WithMaxBodyBytes(0))
	if api.rateBurst != 20 || api.ratePerSec != 10 || api.maxBodyBytes != 1<<20 {
		t.Fatalf("defaults lost: burst=%d perSec=%d body=%d", api.rateBurst, api.ratePerSec, api.maxBodyBytes)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
