package erp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/Products", func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user != "erp-user" || pass != "erp-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("search") == "notebook" {
			w.Write([]byte(`{"value":[{"id":"29","description":"Notebook A5 dotted","standardId":"4006381333931","baseUnit":"PCE","netPriceAmount":"3.49"}]}`))
			return
		}
		w.Write([]byte(`{"value":[]}`))
	})
	mux.HandleFunc("/Products('29')", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"d":{"id":"29","description":"Notebook A5 dotted","standardId":"4006381333931","baseUnit":"PCE","netPriceAmount":"3.49"}}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{BaseURL: baseURL, User: "erp-user", Password: "erp-pass"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSearchProductsDecodesODataCollection(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)

	products, err := client.SearchProducts(context.Background(), "notebook")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	got := products[0]
	if got.ID != "29" || got.EAN != "4006381333931" || got.Unit != "PCE" {
		t.Fatalf("unexpected product mapping: %+v", got)
	}
	if got.ListPrice.String() != "3.49" || got.SalePrice.String() != "3.49" {
		t.Fatalf("expected net price on both price fields, got %s / %s", got.ListPrice, got.SalePrice)
	}
}

func TestGetProductDecodesV2Envelope(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)

	product, err := client.GetProduct(context.Background(), "29")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Description != "Notebook A5 dotted" {
		t.Fatalf("unexpected product: %+v", product)
	}
}

func TestGetProductNotFound(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL)

	_, err := client.GetProduct(context.Background(), "404")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestUnconfiguredClientRefusesRequests(t *testing.T) {
	client := newTestClient(t, "")

	if client.Configured() {
		t.Fatal("client without base URL must report unconfigured")
	}
	if _, err := client.SearchProducts(context.Background(), "x"); err == nil {
		t.Fatal("expected an error from an unconfigured client")
	}
}

func TestInvalidProxyURLRejected(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "https://erp.example.com", ProxyURL: "://bad"})
	if err == nil {
		t.Fatal("expected an error for a malformed proxy url")
	}
}
