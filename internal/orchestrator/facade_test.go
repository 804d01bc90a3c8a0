package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"instoreorder/backend/internal/cache"
	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/oauth"
	"instoreorder/backend/internal/omf"
	"instoreorder/backend/internal/omsa"
	"instoreorder/backend/internal/opps"
	"instoreorder/backend/internal/store/memory"
)

// fakeBackends answers for all three systems behind one gateway, keyed by
// endpoint.
type fakeBackends struct {
	mu        sync.Mutex
	responses map[string]string
	calls     []string
}

func (f *fakeBackends) Do(_ context.Context, _, _, endpoint string, _ any, _ time.Duration) (*oauth.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpoint)
	body, ok := f.responses[endpoint]
	if !ok {
		return nil, &oauth.TransientError{Status: 503}
	}
	return &oauth.Response{Status: 200, Body: []byte(body)}, nil
}

func (f *fakeBackends) BaseURL(string) (string, error) {
	return "https://backend.example.com", nil
}

func newTestFacade(backends *fakeBackends) (*Facade, *memory.Store) {
	pricing := opps.NewService(backends, opps.Config{Currency: "EUR"})
	sourcing := omsa.NewService(backends, cache.NewMemoryAvailabilityCache(), omsa.Config{
		StoreSites: []string{"1710"},
		OnlineSite: "ONLINE",
	})
	orders := omf.NewService(backends, omf.Config{Currency: "EUR"})
	journal := memory.New()
	facade := New(nil, pricing, sourcing, orders, journal, Config{Currency: "EUR"})
	return facade, journal
}

func pricesFor(id, amount string) string {
	padded := opps.TransformProductIDToItemID(id)
	return fmt.Sprintf(`{"d":{"results":[{"itemID":%q,"priceAmt":%q,"currencyCode":"EUR","businessUnitID":"1710"}]}}`, padded, amount)
}

func TestSearchFallsBackWhenERPUnavailable(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{
		"/BasePrices": pricesFor("29", "12.50"),
	}}
	facade, _ := newTestFacade(backends)

	result := facade.SearchProducts(context.Background(), "notebook", 1, 10)

	if result.Source != domain.SourceFallback {
		t.Fatalf("expected fallback catalog, got %q", result.Source)
	}
	if len(result.Products) == 0 {
		t.Fatal("expected the fallback catalog to match 'notebook'")
	}
	for _, product := range result.Products {
		if product.PriceSource == "" {
			t.Fatalf("every product must carry a price source, got %+v", product)
		}
	}
}

func TestSearchEnrichesFromPriceCache(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{
		"/BasePrices": pricesFor("29", "12.50"),
	}}
	facade, _ := newTestFacade(backends)

	result := facade.SearchProducts(context.Background(), "29", 1, 10)

	var found *domain.Product
	for i := range result.Products {
		if result.Products[i].ID == "29" {
			found = &result.Products[i]
		}
	}
	if found == nil {
		t.Fatal("expected product 29 in the result")
	}
	if found.SalePrice.StringFixed(2) != "12.50" {
		t.Fatalf("expected cached price 12.50, got %s", found.SalePrice)
	}
	if found.PriceSource != domain.SourcePricingCache {
		t.Fatalf("expected cache price source, got %q", found.PriceSource)
	}
}

func TestSearchPagination(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{}}
	facade, _ := newTestFacade(backends)

	page1 := facade.SearchProducts(context.Background(), "", 1, 2)
	page2 := facade.SearchProducts(context.Background(), "", 2, 2)

	if len(page1.Products) != 2 || len(page2.Products) != 2 {
		t.Fatalf("expected 2 products per page, got %d and %d", len(page1.Products), len(page2.Products))
	}
	if page1.Products[0].ID == page2.Products[0].ID {
		t.Fatal("pages must not overlap")
	}
	if page1.TotalPages != (page1.Total+1)/2 {
		t.Fatalf("inconsistent page math: %+v", page1)
	}
}

func TestGetProductByIDNotFound(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{}}
	facade, _ := newTestFacade(backends)

	_, err := facade.GetProductByID(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func sourcingResponse() string {
	return `{
		"sourcingId": "src-1",
		"shipments": [
			{"site": {"id": "1710"}, "items": [
				{"product": {"id": "29"}, "quantity": {"value": 2}},
				{"product": {"id": "35"}, "quantity": {"value": 1}}
			]}
		]
	}`
}

func checkoutOrder() domain.OrderData {
	return domain.OrderData{
		Items: []domain.CartItem{
			{ProductID: "29", Quantity: 2, UnitPrice: decimal.NewFromFloat(4.99)},
			{ProductID: "35", Quantity: 1, UnitPrice: decimal.NewFromFloat(1.49)},
		},
		Customer: domain.CustomerDetails{
			FirstName:  "Erika",
			LastName:   "Mustermann",
			Address:    "Hauptstraße 78a",
			City:       "Berlin",
			PostalCode: "10115",
		},
		Payment: domain.PaymentOption{Method: "cash"},
	}
}

func TestPlaceOrderUsesCachedSourcingAndJournals(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{
		"/v1/sourcing":   sourcingResponse(),
		"/api/v2/orders": `{"id":"ord-1","orderNumber":"100001","status":"CREATED"}`,
	}}
	facade, journal := newTestFacade(backends)

	cart := domain.Cart{Items: checkoutOrder().Items}
	sourcing := facade.TriggerSourcing(context.Background(), cart)
	if !sourcing.Success {
		t.Fatalf("sourcing failed: %+v", sourcing)
	}

	canonical, err := facade.PlaceOrder(context.Background(), checkoutOrder())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if canonical.OrderID != "ord-1" {
		t.Fatalf("unexpected order: %+v", canonical)
	}

	record, err := journal.GetOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("expected the order journaled, got %v", err)
	}
	if record.CustomerName != "Erika Mustermann" || record.ItemCount != 2 {
		t.Fatalf("unexpected journal record: %+v", record)
	}
	if record.Total.StringFixed(2) != "11.47" {
		t.Fatalf("expected journaled total 11.47, got %s", record.Total)
	}
}

func TestPlaceOrderSurfacesSubmissionErrors(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{}}
	facade, journal := newTestFacade(backends)

	_, err := facade.PlaceOrder(context.Background(), checkoutOrder())

	var submitErr *omf.OrderSubmissionError
	if !errors.As(err, &submitErr) {
		t.Fatalf("expected OrderSubmissionError, got %v", err)
	}

	records, _ := journal.ListRecent(context.Background(), 10)
	if len(records) != 0 {
		t.Fatal("failed submissions must not be journaled")
	}
}

func TestPlaceOrderDropsMismatchedSourcing(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{
		"/v1/sourcing":   sourcingResponse(),
		"/api/v2/orders": `{"id":"ord-1","status":"CREATED"}`,
	}}
	facade, _ := newTestFacade(backends)

	// Source a different cart, then submit the fixture cart.
	facade.TriggerSourcing(context.Background(), domain.Cart{Items: []domain.CartItem{
		{ProductID: "999", Quantity: 1},
	}})

	canonical, err := facade.PlaceOrder(context.Background(), checkoutOrder())
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if canonical.OrderID != "ord-1" {
		t.Fatalf("unexpected order: %+v", canonical)
	}
}

func TestSearchOrdersMergesJournalOnBackendFailure(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{}}
	facade, journal := newTestFacade(backends)

	_, _ = journal.SaveOrder(context.Background(), domain.OrderRecord{
		ID:             "loc-1",
		OrderID:        "ord-local",
		ExternalNumber: "ISLOCAL001",
		Status:         "CREATED",
		CustomerName:   "Erika Mustermann",
		Total:          decimal.NewFromFloat(11.47),
		Currency:       "EUR",
		CreatedAt:      time.Now().UTC(),
	})

	orders, source := facade.SearchOrders(context.Background(), "erika")

	if source != domain.SourceFallback {
		t.Fatalf("expected fallback source when the backend is down, got %q", source)
	}
	if len(orders) != 1 || orders[0].OrderID != "ord-local" {
		t.Fatalf("expected the journal entry, got %+v", orders)
	}
}

func TestRecentOrdersFromJournal(t *testing.T) {
	backends := &fakeBackends{responses: map[string]string{}}
	facade, journal := newTestFacade(backends)

	for i := 0; i < 3; i++ {
		_, _ = journal.SaveOrder(context.Background(), domain.OrderRecord{
			ID:        fmt.Sprintf("loc-%d", i),
			OrderID:   fmt.Sprintf("ord-%d", i),
			Status:    "CREATED",
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
		})
	}

	orders, err := facade.RecentOrders(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected the limit respected, got %d", len(orders))
	}
	if orders[0].OrderID != "ord-2" {
		t.Fatalf("expected newest first, got %+v", orders)
	}
}
