// Package orchestrator composes the ERP catalog, pricing cache, sourcing
// adapter and order adapter into the operations the UI calls. It owns the
// read-path fallback policy: search and detail always answer, order
// placement never substitutes.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/erp"
	"instoreorder/backend/internal/omf"
	"instoreorder/backend/internal/omsa"
	"instoreorder/backend/internal/opps"
	"instoreorder/backend/internal/store"
	"instoreorder/backend/internal/xid"
)

// ErrProductNotFound means the product exists in neither the live catalog
// nor the fallback catalog.
var ErrProductNotFound = errors.New("product not found")

type Config struct {
	Currency string
	PageSize int
}

// Facade wires the adapters together. All fields are set once at startup.
type Facade struct {
	erp      *erp.Client
	pricing  *opps.Service
	sourcing *omsa.Service
	orders   *omf.Service
	journal  store.Repository
	cfg      Config
	now      func() time.Time
}

func New(erpClient *erp.Client, pricing *opps.Service, sourcing *omsa.Service, orders *omf.Service, journal store.Repository, cfg Config) *Facade {
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Facade{
		erp:      erpClient,
		pricing:  pricing,
		sourcing: sourcing,
		orders:   orders,
		journal:  journal,
		cfg:      cfg,
		now:      time.Now,
	}
}

// fallbackCatalog is served when the ERP is unreachable so the associate can
// keep scanning and selling. Prices in it are placeholders and get replaced
// by cached pricing when that is available.
var fallbackCatalog = []domain.Product{
	{ID: "29", EAN: "4006381333931", Description: "Notebook A5 dotted", Unit: "PCE"},
	{ID: "35", EAN: "4006381333948", Description: "Ballpoint pen black", Unit: "PCE"},
	{ID: "102", EAN: "4006381334006", Description: "Desk lamp LED", Unit: "PCE"},
	{ID: "118", EAN: "4006381334013", Description: "USB-C cable 2m", Unit: "PCE"},
	{ID: "240", EAN: "4006381334105", Description: "Coffee mug 300ml", Unit: "PCE"},
	{ID: "305", EAN: "4006381334203", Description: "Sticky notes 76x76", Unit: "PCE"},
}

// SearchProducts merges ERP master data with cached pricing and paginates
// the result. ERP failure switches to the fallback catalog filtered by the
// same query; search never hard-fails.
func (f *Facade) SearchProducts(ctx context.Context, query string, page, pageSize int) domain.ProductSearchResult {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = f.cfg.PageSize
	}

	products, source := f.catalogSearch(ctx, query)
	f.enrichPrices(ctx, products)

	total := len(products)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return domain.ProductSearchResult{
		Products:   products[start:end],
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Source:     source,
	}
}

func (f *Facade) catalogSearch(ctx context.Context, query string) ([]domain.Product, string) {
	if f.erp != nil && f.erp.Configured() {
		products, err := f.erp.SearchProducts(ctx, query)
		if err == nil {
			return products, domain.SourceCatalog
		}
		log.Printf("[orchestrator] ERP search failed, serving fallback catalog: %v", err)
	}
	return filterFallback(query), domain.SourceFallback
}

func filterFallback(query string) []domain.Product {
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Product, 0, len(fallbackCatalog))
	for _, product := range fallbackCatalog {
		if needle == "" ||
			strings.Contains(strings.ToLower(product.Description), needle) ||
			strings.Contains(product.EAN, needle) ||
			strings.Contains(product.ID, needle) {
			out = append(out, product)
		}
	}
	return out
}

// enrichPrices overlays cached pricing onto products in place. Products the
// cache does not know keep their ERP prices with a fallback tag.
func (f *Facade) enrichPrices(ctx context.Context, products []domain.Product) {
	if len(products) == 0 {
		return
	}

	ids := make([]string, 0, len(products))
	for _, product := range products {
		ids = append(ids, product.ID)
	}

	records := f.pricing.GetProductPricing(ctx, ids, opps.Options{Batch: len(ids) > 1})
	for i := range products {
		entries := records[products[i].ID]
		if len(entries) == 0 {
			if products[i].PriceSource == "" {
				products[i].PriceSource = domain.SourceFallback
			}
			continue
		}
		record := entries[0]
		products[i].ListPrice = record.ListPrice
		products[i].SalePrice = record.SalePrice
		products[i].Currency = record.Currency
		if products[i].Unit == "" {
			products[i].Unit = record.UnitOfMeasure
		}
		products[i].PriceSource = record.Source
	}
}

// GetProductByID returns one product with pricing and availability attached.
// ErrProductNotFound is returned only when both the live catalog and the
// fallback catalog miss.
func (f *Facade) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	product, err := f.lookupProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	single := []domain.Product{*product}
	f.enrichPrices(ctx, single)
	*product = single[0]

	availability := f.sourcing.GetProductAvailability(ctx, product.ID, product.Unit)
	product.InStoreStock = availability.InStoreStock
	product.OnlineStock = availability.OnlineStock
	product.IsAvailable = availability.IsAvailable

	return product, nil
}

func (f *Facade) lookupProduct(ctx context.Context, id string) (*domain.Product, error) {
	if f.erp != nil && f.erp.Configured() {
		product, err := f.erp.GetProduct(ctx, id)
		if err == nil {
			return product, nil
		}
		log.Printf("[orchestrator] ERP product lookup failed for %s: %v", id, err)
	}
	for _, product := range fallbackCatalog {
		if product.ID == id {
			copied := product
			copied.PriceSource = domain.SourceFallback
			return &copied, nil
		}
	}
	return nil, ErrProductNotFound
}

// GetProductAvailability exposes the availability lookup directly for the
// product-detail refresh endpoint.
func (f *Facade) GetProductAvailability(ctx context.Context, productID, unit string) domain.AvailabilityResult {
	return f.sourcing.GetProductAvailability(ctx, productID, unit)
}

// TriggerSourcing runs sourcing for the current cart. It is called on every
// cart mutation; the adapter retains the latest result for checkout.
func (f *Facade) TriggerSourcing(ctx context.Context, cart domain.Cart) domain.SourcingResult {
	return f.sourcing.PerformCartSourcing(ctx, cart.Items)
}

// CachedSourcing returns the latest sourcing result for cart display; nil
// when none is current.
func (f *Facade) CachedSourcing() *domain.SourcingResult {
	return f.sourcing.CachedSourcing()
}

// PlaceOrder feeds the latest cached sourcing into order creation. Adapter
// errors pass through unchanged; a stale or missing sourcing result simply
// means the order goes out without a sourcing block. On success the order is
// journaled best-effort.
func (f *Facade) PlaceOrder(ctx context.Context, order domain.OrderData) (*domain.CanonicalOrder, error) {
	sourcing := f.sourcing.CachedSourcing()
	if sourcing != nil && !cartMatches(sourcing.CartItems, order.Items) {
		log.Printf("[orchestrator] cached sourcing is for a different cart, submitting without it")
		sourcing = nil
	}

	canonical, err := f.orders.CreateOrder(ctx, order, sourcing)
	if err != nil {
		return nil, err
	}

	f.journalOrder(ctx, order, canonical)
	return canonical, nil
}

// cartMatches reports whether the sourcing snapshot covers the same lines as
// the submitted order.
func cartMatches(snapshot, items []domain.CartItem) bool {
	if len(snapshot) != len(items) {
		return false
	}
	counts := make(map[string]int, len(snapshot))
	for _, item := range snapshot {
		counts[item.ProductID] += item.Quantity
	}
	for _, item := range items {
		counts[item.ProductID] -= item.Quantity
	}
	for _, diff := range counts {
		if diff != 0 {
			return false
		}
	}
	return true
}

func (f *Facade) journalOrder(ctx context.Context, order domain.OrderData, canonical *domain.CanonicalOrder) {
	if f.journal == nil {
		return
	}

	total := decimal.Zero
	for _, item := range order.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	total = total.Add(order.Shipping.Price)

	currency := order.Currency
	if currency == "" {
		currency = f.cfg.Currency
	}

	record := domain.OrderRecord{
		ID:             xid.New("ord"),
		OrderID:        canonical.OrderID,
		ExternalNumber: canonical.ExternalNumber,
		Status:         canonical.Status,
		CustomerName:   strings.TrimSpace(order.Customer.FirstName + " " + order.Customer.LastName),
		ItemCount:      len(order.Items),
		Total:          total,
		Currency:       currency,
		CreatedAt:      f.now(),
	}
	if _, err := f.journal.SaveOrder(ctx, record); err != nil {
		log.Printf("[orchestrator] WARN: order journal write failed for %s: %v", canonical.OrderID, err)
	}
}

// GetOrder prefers the backend's view and falls back to the local journal.
func (f *Facade) GetOrder(ctx context.Context, orderID string) domain.CanonicalOrder {
	canonical := f.orders.GetOrder(ctx, orderID)
	if canonical.Source != domain.SourceFallback {
		return canonical
	}

	if f.journal != nil {
		if record, err := f.journal.GetOrder(ctx, orderID); err == nil {
			return canonicalFromRecord(*record)
		}
	}
	return canonical
}

// UpdateOrderStatus updates the backend order and mirrors the transition
// into the journal.
func (f *Facade) UpdateOrderStatus(ctx context.Context, orderID, status string) domain.CanonicalOrder {
	canonical := f.orders.UpdateOrderStatus(ctx, orderID, status)
	f.mirrorStatus(ctx, orderID, canonical.Status)
	return canonical
}

// CancelOrder cancels the backend order and mirrors the transition into the
// journal.
func (f *Facade) CancelOrder(ctx context.Context, orderID string) domain.CanonicalOrder {
	canonical := f.orders.CancelOrder(ctx, orderID)
	f.mirrorStatus(ctx, orderID, canonical.Status)
	return canonical
}

func (f *Facade) mirrorStatus(ctx context.Context, orderID, status string) {
	if f.journal == nil || status == "" {
		return
	}
	if _, err := f.journal.UpdateStatus(ctx, orderID, status); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[orchestrator] WARN: journal status update failed for %s: %v", orderID, err)
	}
}

// GetOrderFulfillment passes the fulfillment view through.
func (f *Facade) GetOrderFulfillment(ctx context.Context, orderID string) (domain.FulfillmentInfo, string) {
	return f.orders.GetOrderFulfillment(ctx, orderID)
}

// ProcessPayment passes payment processing through.
func (f *Facade) ProcessPayment(ctx context.Context, orderID string, payment domain.PaymentOption) (domain.PaymentInfo, string) {
	return f.orders.ProcessPayment(ctx, orderID, payment)
}

// SearchOrders merges backend search results with journal matches so local
// orders appear even while OMF is down. Backend hits win on duplicate ids.
func (f *Facade) SearchOrders(ctx context.Context, query string) ([]domain.CanonicalOrder, string) {
	orders, source := f.orders.SearchOrders(ctx, query)

	if f.journal != nil {
		seen := make(map[string]bool, len(orders))
		for _, order := range orders {
			seen[order.OrderID] = true
		}
		records, err := f.journal.SearchOrders(ctx, query, 50)
		if err != nil {
			log.Printf("[orchestrator] WARN: journal search failed for %q: %v", query, err)
		}
		for _, record := range records {
			if !seen[record.OrderID] {
				orders = append(orders, canonicalFromRecord(record))
			}
		}
	}
	return orders, source
}

// RecentOrders lists the journal's newest entries for the recent-orders view.
func (f *Facade) RecentOrders(ctx context.Context, limit int) ([]domain.CanonicalOrder, error) {
	if f.journal == nil {
		return nil, nil
	}
	records, err := f.journal.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.CanonicalOrder, 0, len(records))
	for _, record := range records {
		orders = append(orders, canonicalFromRecord(record))
	}
	return orders, nil
}

func canonicalFromRecord(record domain.OrderRecord) domain.CanonicalOrder {
	return domain.CanonicalOrder{
		OrderID:        record.OrderID,
		Status:         record.Status,
		ExternalNumber: record.ExternalNumber,
		Totals:         domain.OrderTotals{Total: record.Total},
		Source:         domain.SourceFallback,
		CreatedAt:      record.CreatedAt,
	}
}
