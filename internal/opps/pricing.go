// Package opps maintains the in-memory price table fed from the pricing and
// promotion service's bulk BasePrices endpoint, with a session-aware expiry
// policy and an optional real-time per-product override.
package opps

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/oauth"
	"instoreorder/backend/internal/odata"
)

// sessionRequestInterval forces a bulk refresh on the 1st, 11th, 21st, ...
// pricing request regardless of elapsed time.
const sessionRequestInterval = 10

// authClient is the slice of the oauth gateway this adapter needs.
type authClient interface {
	Do(ctx context.Context, system, method, endpoint string, body any, timeout time.Duration) (*oauth.Response, error)
}

// Options controls a pricing lookup.
type Options struct {
	// ForceRefresh refetches the bulk table before answering.
	ForceRefresh bool
	// Batch marks multi-product flows; batch requests never use the
	// real-time path.
	Batch bool
	// BusinessUnitID selects among a product's price records when set.
	BusinessUnitID string
}

type Config struct {
	CacheTTL       time.Duration // full-fetch window
	SessionTTL     time.Duration // session-refresh window
	RequestTimeout time.Duration
	Currency       string
}

// Service owns the bulk price cache. All mutable state lives behind one
// mutex, which also serializes concurrent bulk refreshes.
type Service struct {
	gateway authClient
	cfg     Config

	// fetchMu serializes bulk refreshes so concurrent requests cannot
	// trigger duplicate BasePrices pulls.
	fetchMu sync.Mutex

	mu                 sync.Mutex
	prices             map[string][]domain.PriceRecord
	metadata           map[string][]domain.PriceMetadataEntry
	requestCount       int
	lastFetch          time.Time
	lastSessionRefresh time.Time
	now                func() time.Time
}

func NewService(gateway authClient, cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 5 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	return &Service{
		gateway:  gateway,
		cfg:      cfg,
		prices:   make(map[string][]domain.PriceRecord),
		metadata: make(map[string][]domain.PriceMetadataEntry),
		now:      time.Now,
	}
}

// priceRow is the OPPS BasePrices row shape.
type priceRow struct {
	ItemID              string          `json:"itemID"`
	PriceAmt            decimal.Decimal `json:"priceAmt"`
	CurrencyCode        string          `json:"currencyCode"`
	UnitOfMeasureCode   string          `json:"unitOfMeasureCode"`
	PriceClassification string          `json:"priceClassification"`
	BusinessUnitID      string          `json:"businessUnitID"`
	BusinessUnitType    string          `json:"businessUnitType"`
	EffectiveDate       string          `json:"effectiveDate"`
	ExpiryDate          string          `json:"expiryDate"`
	Metadata            struct {
		URI  string `json:"uri"`
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"__metadata"`
}

// TransformItemIDToProductID strips the leading zeros from a zero-padded
// 18-character backend item id: "000000000000000029" -> "29".
func TransformItemIDToProductID(itemID string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(itemID), "0")
	if trimmed == "" && itemID != "" {
		return "0"
	}
	return trimmed
}

// TransformProductIDToItemID left-pads a product id to the backend's
// 18-character item id format.
func TransformProductIDToItemID(productID string) string {
	if len(productID) >= 18 {
		return productID
	}
	return strings.Repeat("0", 18-len(productID)) + productID
}

// FetchAllPrices pulls the full BasePrices table and replaces the cache
// contents and the per-item metadata map as one generation.
func (s *Service) FetchAllPrices(ctx context.Context) error {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	resp, err := s.gateway.Do(ctx, domain.SystemOPPS, "GET", "/BasePrices", nil, s.cfg.RequestTimeout)
	if err != nil {
		return err
	}

	var rows []priceRow
	if err := odata.DecodeCollection(resp.Body, &rows); err != nil {
		return err
	}

	prices := make(map[string][]domain.PriceRecord, len(rows))
	metadata := make(map[string][]domain.PriceMetadataEntry)
	fetchedAt := s.now()
	for _, row := range rows {
		record := s.toPriceRecord(row, domain.SourcePricingCache, fetchedAt)
		prices[record.ProductID] = append(prices[record.ProductID], record)
		if row.Metadata.URI != "" {
			metadata[record.ProductID] = append(metadata[record.ProductID], domain.PriceMetadataEntry{
				URI:              row.Metadata.URI,
				ID:               row.Metadata.ID,
				Type:             row.Metadata.Type,
				ProductID:        record.ProductID,
				BusinessUnitID:   row.BusinessUnitID,
				BusinessUnitType: row.BusinessUnitType,
			})
		}
	}

	s.mu.Lock()
	s.prices = prices
	s.metadata = metadata
	s.lastFetch = fetchedAt
	s.lastSessionRefresh = fetchedAt
	s.mu.Unlock()

	log.Printf("[opps] price cache refreshed: %d rows, %d products", len(rows), len(prices))
	return nil
}

// Warmup populates the cache at startup. Failure is logged, never fatal:
// requests fall back to per-request fallback pricing until a refresh
// succeeds.
func (s *Service) Warmup(ctx context.Context) {
	if err := s.FetchAllPrices(ctx); err != nil {
		log.Printf("[opps] WARN: initial price fetch failed: %v", err)
	}
}

// cacheExpiredLocked implements the combined time/session expiry policy.
// Callers hold s.mu.
func (s *Service) cacheExpiredLocked(force bool) bool {
	switch {
	case force:
		return true
	case s.lastFetch.IsZero():
		return true
	case s.requestCount%sessionRequestInterval == 1:
		return true
	case s.now().Sub(s.lastSessionRefresh) > s.cfg.SessionTTL:
		return true
	case s.now().Sub(s.lastFetch) > s.cfg.CacheTTL:
		return true
	}
	return false
}

// CacheExpired reports whether the next request would trigger a refresh,
// counting the call as a request.
func (s *Service) CacheExpired(force bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestCount++
	return s.cacheExpiredLocked(force)
}

// GetProductPricing returns the price records for the given products. Every
// requested product gets an answer: cache entries where present, the static
// fallback record otherwise. Single-product non-batch requests additionally
// try a real-time lookup first.
func (s *Service) GetProductPricing(ctx context.Context, productIDs []string, opts Options) map[string][]domain.PriceRecord {
	s.mu.Lock()
	s.requestCount++
	if s.cacheExpiredLocked(opts.ForceRefresh) {
		s.mu.Unlock()
		if err := s.FetchAllPrices(ctx); err != nil {
			log.Printf("[opps] WARN: bulk price refresh failed, serving stale cache: %v", err)
		}
		s.mu.Lock()
	}

	cached := make(map[string][]domain.PriceRecord, len(productIDs))
	var singleMeta []domain.PriceMetadataEntry
	for _, id := range productIDs {
		if records, ok := s.prices[id]; ok {
			cached[id] = append([]domain.PriceRecord(nil), records...)
		}
	}
	if len(productIDs) == 1 && !opts.Batch {
		singleMeta = append(singleMeta, s.metadata[productIDs[0]]...)
	}
	s.mu.Unlock()

	if len(productIDs) == 1 && !opts.Batch {
		if record := s.getRealTimePricing(ctx, productIDs[0], opts.BusinessUnitID, singleMeta); record != nil {
			return map[string][]domain.PriceRecord{productIDs[0]: {*record}}
		}
	}

	result := make(map[string][]domain.PriceRecord, len(productIDs))
	for _, id := range productIDs {
		if records, ok := cached[id]; ok {
			result[id] = records
			continue
		}
		result[id] = []domain.PriceRecord{s.fallbackRecord(id)}
	}
	return result
}

// getRealTimePricing issues a point lookup against the stored absolute
// metadata URI. It returns nil on any failure so callers fall back to the
// bulk cache silently; a missing real-time price and a failed request are
// deliberately indistinguishable here.
func (s *Service) getRealTimePricing(ctx context.Context, productID, businessUnitID string, entries []domain.PriceMetadataEntry) *domain.PriceRecord {
	if len(entries) == 0 {
		return nil
	}

	entry := entries[0]
	if businessUnitID != "" {
		for _, candidate := range entries {
			if candidate.BusinessUnitID == businessUnitID {
				entry = candidate
				break
			}
		}
	}

	resp, err := s.gateway.Do(ctx, domain.SystemOPPS, "GET", entry.URI, nil, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[opps] real-time price lookup failed for %s, using bulk cache: %v", productID, err)
		return nil
	}

	var row priceRow
	if err := odata.DecodeEntity(resp.Body, &row); err != nil || row.ItemID == "" {
		return nil
	}
	record := s.toPriceRecord(row, domain.SourcePricingRealTime, s.now())
	return &record
}

func (s *Service) toPriceRecord(row priceRow, source string, at time.Time) domain.PriceRecord {
	currency := row.CurrencyCode
	if currency == "" {
		currency = s.cfg.Currency
	}
	uom := row.UnitOfMeasureCode
	if uom == "" {
		uom = "PCE"
	}
	return domain.PriceRecord{
		ProductID:           TransformItemIDToProductID(row.ItemID),
		OriginalItemID:      row.ItemID,
		ListPrice:           row.PriceAmt,
		SalePrice:           row.PriceAmt,
		Currency:            currency,
		UnitOfMeasure:       uom,
		PriceClassification: row.PriceClassification,
		BusinessUnitID:      row.BusinessUnitID,
		BusinessUnitType:    row.BusinessUnitType,
		EffectiveDate:       row.EffectiveDate,
		ExpiryDate:          row.ExpiryDate,
		LastUpdated:         at,
		Source:              source,
	}
}

// fallbackPrice is the static default served when a product has no cache
// entry at all.
var fallbackPrice = decimal.NewFromFloat(9.99)

func (s *Service) fallbackRecord(productID string) domain.PriceRecord {
	return domain.PriceRecord{
		ProductID:      productID,
		OriginalItemID: TransformProductIDToItemID(productID),
		ListPrice:      fallbackPrice,
		SalePrice:      fallbackPrice,
		Currency:       s.cfg.Currency,
		UnitOfMeasure:  "PCE",
		LastUpdated:    s.now(),
		Source:         domain.SourceFallback,
	}
}
