package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"instoreorder/backend/internal/cache"
	"instoreorder/backend/internal/oauth"
	"instoreorder/backend/internal/omf"
	"instoreorder/backend/internal/omsa"
	"instoreorder/backend/internal/opps"
	"instoreorder/backend/internal/orchestrator"
	"instoreorder/backend/internal/store/memory"
)

// fakeBackends stands in for the oauth gateway across all three systems.
type fakeBackends struct {
	mu        sync.Mutex
	responses map[string]string
	errors    map[string]error
}

func (f *fakeBackends) Do(_ context.Context, _, _, endpoint string, _ any, _ time.Duration) (*oauth.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errors[endpoint]; ok {
		return nil, err
	}
	body, ok := f.responses[endpoint]
	if !ok {
		return nil, &oauth.TransientError{Status: 503}
	}
	return &oauth.Response{Status: 200, Body: []byte(body)}, nil
}

func (f *fakeBackends) BaseURL(string) (string, error) {
	return "https://backend.example.com", nil
}

// newTestAPI wires a full API over an in-memory journal and scripted
// backends so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, backends *fakeBackends) *API {
	t.Helper()

	if backends == nil {
		backends = &fakeBackends{responses: map[string]string{}}
	}
	repo := memory.NewSeeded()
	pricing := opps.NewService(backends, opps.Config{Currency: "EUR"})
	sourcing := omsa.NewService(backends, cache.NewMemoryAvailabilityCache(), omsa.Config{
		StoreSites: []string{"1710"},
		OnlineSite: "ONLINE",
	})
	orders := omf.NewService(backends, omf.Config{Currency: "EUR"})
	facade := orchestrator.New(nil, pricing, sourcing, orders, repo, orchestrator.Config{Currency: "EUR"})
	auth := NewAuthManager("test-secret-key-at-least-32-chars!!", time.Hour, repo)

	return New(facade, auth, "*")
}

func loginToken(t *testing.T, handler http.Handler) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", rec.Code, rec.Body.String())
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func authedRequest(t *testing.T, handler http.Handler, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProductsRequireBearerToken(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?q=notebook", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestProductSearchReturnsTaggedPage(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()
	token := loginToken(t, handler)

	rec := authedRequest(t, handler, token, http.MethodGet, "/api/v1/products?q=notebook", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []map[string]any `json:"products"`
		Source   string           `json:"source"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Source == "" {
		t.Fatal("search result must carry a source tag")
	}
	if len(body.Products) == 0 {
		t.Fatal("search must always return products, live or fallback")
	}
}

func TestUnknownProductIs404(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()
	token := loginToken(t, handler)

	rec := authedRequest(t, handler, token, http.MethodGet, "/api/v1/products/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCartSourcingRoundTrip(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{
		"/v1/sourcing": `{"sourcingId":"src-1","shipments":[{"site":{"id":"1710"},"items":[{"product":{"id":"29"},"quantity":{"value":1}}]}]}`,
	}}
	handler := newTestAPI(t, backends).Handler()
	token := loginToken(t, handler)

	cart := map[string]any{"items": []map[string]any{
		{"productId": "29", "quantity": 1},
	}}
	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/cart/sourcing", cart)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, token, http.MethodGet, "/api/v1/cart/sourcing", nil)
	var body struct {
		Valid bool `json:"valid"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Valid {
		t.Fatal("expected a valid cached sourcing result")
	}
}

func orderBody() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"productId": "29", "quantity": 2, "unitPrice": "4.99"},
		},
		"customer": map[string]any{
			"firstName":  "Erika",
			"lastName":   "Mustermann",
			"address":    "Hauptstraße 78a",
			"city":       "Berlin",
			"postalCode": "10115",
		},
		"payment": map[string]any{"method": "cash"},
	}
}

func TestPlaceOrderCreated(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{
		"/api/v2/orders": `{"id":"ord-1","orderNumber":"100001","status":"CREATED"}`,
	}}
	handler := newTestAPI(t, backends).Handler()
	token := loginToken(t, handler)

	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/orders", orderBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = authedRequest(t, handler, token, http.MethodGet, "/api/v1/orders/recent", nil)
	var body struct {
		Orders []map[string]any `json:"orders"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Orders) != 1 {
		t.Fatalf("expected the order journaled, got %d entries", len(body.Orders))
	}
}

func TestPlaceOrderMapsBackendRejectionTo502(t *testing.T) {
	backends := &fakeBackends{
		responses: map[string]string{},
		errors: map[string]error{
			"/api/v2/orders": &oauth.HTTPError{
				Status: 422,
				Body:   []byte(`{"error":{"code":"ORD_LIMIT","message":"credit limit exceeded"}}`),
			},
		},
	}
	handler := newTestAPI(t, backends).Handler()
	token := loginToken(t, handler)

	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/orders", orderBody())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d (%s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "ORD_LIMIT" || body.Message != "credit limit exceeded" {
		t.Fatalf("expected the backend code and message surfaced, got %+v", body)
	}
}

func TestPlaceOrderRejectsInvalidInput(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()
	token := loginToken(t, handler)

	invalid := orderBody()
	invalid["items"] = []map[string]any{}

	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/orders", invalid)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestAssociateManagementRequiresAdmin(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()
	token := loginToken(t, handler)

	create := map[string]string{"username": "clerk1", "password": "secret123"}
	rec := authedRequest(t, handler, token, http.MethodPost, "/api/v1/users/associates", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin should create associates, got %d (%s)", rec.Code, rec.Body.String())
	}

	// The new associate must not reach the admin-only endpoint.
	payload, _ := json.Marshal(map[string]string{"username": "clerk1", "password": "secret123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	loginRec := httptest.NewRecorder()
	handler.ServeHTTP(loginRec, req)
	var login struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(loginRec.Body).Decode(&login); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = authedRequest(t, handler, login.AccessToken, http.MethodGet, "/api/v1/users/associates", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for an associate, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatal("expected CORS headers on preflight")
	}
}
