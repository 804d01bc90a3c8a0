package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecurityHeadersOnEveryResponse(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Fatalf("%s: expected %q, got %q", header, want, got)
		}
	}
}

func TestLoginRateLimited(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.RemoteAddr = "192.0.2.10:50000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated attempts, got %d", last)
	}

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.RemoteAddr = "192.0.2.20:50000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusTooManyRequests {
		t.Fatalf("expected fresh client not rate limited, got %d", rec.Code)
	}
}

func TestOversizedJSONBodyRejected(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()
	token := loginToken(t, handler)

	big := bytes.Repeat([]byte("x"), 2<<20)
	body, _ := json.Marshal(map[string]string{"blob": string(big)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/sourcing", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an oversized body, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	handler := newTestAPI(t, nil).Handler()
	token := loginToken(t, handler)

	body := []byte(`{"items":[],"surprise":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/sourcing", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}
}
