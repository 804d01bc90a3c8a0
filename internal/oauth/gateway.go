// Package oauth obtains and caches OAuth2 client-credentials tokens for the
// fulfillment backends and provides the authenticated-request primitive the
// adapters build on.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"instoreorder/backend/internal/credentials"
)

// expiryBuffer keeps a token from being served within five minutes of its
// reported expiry.
const expiryBuffer = 5 * time.Minute

// defaultExpiresIn is assumed when a token endpoint omits expires_in.
const defaultExpiresIn = 3600

// AuthenticationError covers token-endpoint failures and repeated 401s.
type AuthenticationError struct {
	System string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.System, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TransientError covers timeouts, network failures and 5xx responses. Read
// paths recover from these with fallback data; they are never retried here.
type TransientError struct {
	System string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s request failed with status %d", e.System, e.Status)
	}
	return fmt.Sprintf("%s request failed: %v", e.System, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response outside the 401/5xx classifications.
type HTTPError struct {
	System string
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.System, e.Status)
}

// CredentialSource yields per-system credentials; the credentials.Resolver
// satisfies it.
type CredentialSource interface {
	Resolve(system string) (credentials.SystemCredentials, error)
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Response is the decoded outcome of an authenticated request.
type Response struct {
	Status int
	Body   []byte
}

// Gateway owns one token cache entry per system. Token acquisition for the
// same system is serialized so concurrent callers cannot trigger duplicate
// refreshes.
type Gateway struct {
	creds  CredentialSource
	client *http.Client

	mu     sync.Mutex
	tokens map[string]cachedToken
	now    func() time.Time
}

func NewGateway(creds CredentialSource, client *http.Client) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		creds:  creds,
		client: client,
		tokens: make(map[string]cachedToken),
		now:    time.Now,
	}
}

// GetAccessToken returns a cached token while it is more than five minutes
// from expiry, fetching a fresh one otherwise.
func (g *Gateway) GetAccessToken(ctx context.Context, system string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if tok, ok := g.tokens[system]; ok && g.now().Before(tok.expiresAt.Add(-expiryBuffer)) {
		return tok.accessToken, nil
	}
	return g.fetchTokenLocked(ctx, system)
}

// ClearToken drops the cached token for a system, forcing re-acquisition.
func (g *Gateway) ClearToken(system string) {
	g.mu.Lock()
	delete(g.tokens, system)
	g.mu.Unlock()
}

// HasToken reports whether a token is currently cached for the system.
func (g *Gateway) HasToken(system string) bool {
	g.mu.Lock()
	_, ok := g.tokens[system]
	g.mu.Unlock()
	return ok
}

// BaseURL exposes the resolved base URL for a system so adapters can detect
// an unconfigured backend without issuing requests.
func (g *Gateway) BaseURL(system string) (string, error) {
	creds, err := g.creds.Resolve(system)
	if err != nil {
		return "", err
	}
	return creds.BaseURL, nil
}

func (g *Gateway) fetchTokenLocked(ctx context.Context, system string) (string, error) {
	creds, err := g.creds.Resolve(system)
	if err != nil {
		return "", err
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthenticationError{System: system, Err: err}
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &AuthenticationError{System: system, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &AuthenticationError{System: system, Err: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &AuthenticationError{System: system, Err: err}
	}
	if payload.AccessToken == "" {
		return "", &AuthenticationError{System: system, Err: fmt.Errorf("token endpoint returned no access token")}
	}
	if payload.ExpiresIn <= 0 {
		payload.ExpiresIn = defaultExpiresIn
	}

	g.tokens[system] = cachedToken{
		accessToken: payload.AccessToken,
		expiresAt:   g.now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}
	return payload.AccessToken, nil
}

// Do issues an authenticated request against the system. endpoint may be a
// path below the system's base URL or an absolute URL (real-time price
// metadata URIs are absolute). A 401 clears the cached token and is retried
// exactly once with a fresh token; a second 401 clears the cache again and
// fails. This is the only automatic retry in the integration layer.
func (g *Gateway) Do(ctx context.Context, system, method, endpoint string, body any, timeout time.Duration) (*Response, error) {
	resp, err := g.doOnce(ctx, system, method, endpoint, body, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized {
		return g.classify(system, resp)
	}

	g.ClearToken(system)
	resp, err = g.doOnce(ctx, system, method, endpoint, body, timeout)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusUnauthorized {
		g.ClearToken(system)
		return nil, &AuthenticationError{System: system, Err: fmt.Errorf("request rejected twice with status 401")}
	}
	return g.classify(system, resp)
}

func (g *Gateway) doOnce(ctx context.Context, system, method, endpoint string, body any, timeout time.Duration) (*Response, error) {
	token, err := g.GetAccessToken(ctx, system)
	if err != nil {
		return nil, err
	}

	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		creds, err := g.creds.Resolve(system)
		if err != nil {
			return nil, err
		}
		target = creds.BaseURL + "/" + strings.TrimLeft(endpoint, "/")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &TransientError{System: system, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{System: system, Err: err}
	}
	return &Response{Status: resp.StatusCode, Body: payload}, nil
}

func (g *Gateway) classify(system string, resp *Response) (*Response, error) {
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return resp, nil
	case resp.Status >= 500:
		return nil, &TransientError{System: system, Status: resp.Status}
	default:
		return nil, &HTTPError{System: system, Status: resp.Status, Body: resp.Body}
	}
}
