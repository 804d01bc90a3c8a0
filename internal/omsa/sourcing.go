// Package omsa translates cart contents into fulfillment-plan sourcing
// requests and product availability queries against the sourcing and
// availability service, with a fixed site-to-type mapping for aggregating
// stock counts.
package omsa

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"instoreorder/backend/internal/cache"
	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/oauth"
)

type authClient interface {
	Do(ctx context.Context, system, method, endpoint string, body any, timeout time.Duration) (*oauth.Response, error)
	BaseURL(system string) (string, error)
}

type Config struct {
	StrategyID      string
	StoreSites      []string
	OnlineSite      string
	Country         string
	SourcingTTL     time.Duration
	AvailabilityTTL time.Duration
	RequestTimeout  time.Duration // availability
	SubmitTimeout   time.Duration // sourcing
}

// Service caches the latest cart's sourcing result (exactly one at a time)
// and short-lived per-product availability.
type Service struct {
	gateway    authClient
	cfg        Config
	availCache cache.AvailabilityCache

	mu       sync.Mutex
	sourcing *domain.SourcingResult
	now      func() time.Time
}

func NewService(gateway authClient, availCache cache.AvailabilityCache, cfg Config) *Service {
	if cfg.StrategyID == "" {
		cfg.StrategyID = "STANDARD"
	}
	if cfg.Country == "" {
		cfg.Country = "DE"
	}
	if cfg.SourcingTTL <= 0 {
		cfg.SourcingTTL = 10 * time.Minute
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 5 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	if availCache == nil {
		availCache = cache.NewMemoryAvailabilityCache()
	}
	return &Service{
		gateway:    gateway,
		cfg:        cfg,
		availCache: availCache,
		now:        time.Now,
	}
}

type sourcingItem struct {
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	Quantity struct {
		Value         int    `json:"value"`
		UnitOfMeasure string `json:"unitOfMeasure"`
	} `json:"quantity"`
}

type sourcingRequest struct {
	Strategy struct {
		ID string `json:"id"`
	} `json:"strategy"`
	Items       []sourcingItem `json:"items"`
	Destination struct {
		ISOCode string `json:"isoCode3166-1"`
	} `json:"destination"`
	Reservation struct {
		Status string `json:"status"`
	} `json:"reservation"`
	Trace struct {
		IncludeSourcingResult bool `json:"includeSourcingResult"`
		IncludeSiteDetail     bool `json:"includeSiteDetail"`
	} `json:"trace"`
}

type sourcingResponse struct {
	SourcingID string `json:"sourcingId"`
	Shipments  []struct {
		Site struct {
			ID string `json:"id"`
		} `json:"site"`
		ServiceCode string `json:"serviceCode"`
		Items       []struct {
			Product struct {
				ID string `json:"id"`
			} `json:"product"`
			Quantity struct {
				Value int `json:"value"`
			} `json:"quantity"`
		} `json:"items"`
	} `json:"shipments"`
}

// PerformCartSourcing runs a sourcing request for the given cart contents and
// caches the outcome together with the cart snapshot that produced it. An
// empty cart clears the cache. Failures never propagate as errors: cart
// rendering must survive a sourcing outage.
func (s *Service) PerformCartSourcing(ctx context.Context, items []domain.CartItem) domain.SourcingResult {
	if len(items) == 0 {
		s.ClearSourcingCache()
		return domain.SourcingResult{Success: true, CartEmpty: true}
	}

	// The previous result describes a different cart; drop it up front so a
	// failed request cannot leave a stale plan looking current.
	s.ClearSourcingCache()

	req := sourcingRequest{}
	req.Strategy.ID = s.cfg.StrategyID
	req.Destination.ISOCode = s.cfg.Country
	req.Reservation.Status = "PENDING"
	req.Trace.IncludeSourcingResult = true
	req.Trace.IncludeSiteDetail = true
	for _, item := range items {
		line := sourcingItem{}
		line.Product.ID = item.ProductID
		line.Quantity.Value = item.Quantity
		line.Quantity.UnitOfMeasure = unitOrDefault(item.Unit)
		req.Items = append(req.Items, line)
	}

	resp, err := s.gateway.Do(ctx, domain.SystemOMSA, "POST", "/v1/sourcing", req, s.cfg.SubmitTimeout)
	if err != nil {
		log.Printf("[omsa] cart sourcing failed: %v", err)
		return domain.SourcingResult{
			Success:     false,
			Error:       err.Error(),
			Source:      domain.SourceSourcingError,
			LastUpdated: s.now(),
		}
	}

	data, err := decodeSourcing(resp.Body)
	if err != nil {
		log.Printf("[omsa] cart sourcing returned undecodable payload: %v", err)
		return domain.SourcingResult{
			Success:     false,
			Error:       err.Error(),
			Source:      domain.SourceSourcingError,
			LastUpdated: s.now(),
		}
	}

	result := domain.SourcingResult{
		Success:     true,
		Data:        data,
		CartItems:   append([]domain.CartItem(nil), items...),
		Source:      domain.SourceSourcing,
		LastUpdated: s.now(),
	}

	s.mu.Lock()
	s.sourcing = &result
	s.mu.Unlock()

	return result
}

func decodeSourcing(body []byte) (*domain.SourcingData, error) {
	var resp sourcingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	data := &domain.SourcingData{SourcingID: resp.SourcingID}
	for _, shipment := range resp.Shipments {
		mapped := domain.SourcingShipment{
			SiteID:      shipment.Site.ID,
			ServiceCode: shipment.ServiceCode,
		}
		for _, item := range shipment.Items {
			mapped.Items = append(mapped.Items, domain.SourcingShipmentItem{
				ProductID: item.Product.ID,
				Quantity:  item.Quantity.Value,
			})
		}
		data.Shipments = append(data.Shipments, mapped)
	}
	return data, nil
}

// CachedSourcing returns the current sourcing result, or nil when none is
// cached or the cached one has aged out. Staleness is reported, never
// auto-refreshed; re-triggering is the caller's decision.
func (s *Service) CachedSourcing() *domain.SourcingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sourcing == nil {
		return nil
	}
	if s.now().Sub(s.sourcing.LastUpdated) > s.cfg.SourcingTTL {
		return nil
	}
	result := *s.sourcing
	return &result
}

// SourcingCacheValid reports whether a current sourcing result exists.
func (s *Service) SourcingCacheValid() bool {
	return s.CachedSourcing() != nil
}

// ClearSourcingCache drops the cached sourcing result.
func (s *Service) ClearSourcingCache() {
	s.mu.Lock()
	s.sourcing = nil
	s.mu.Unlock()
}

type availabilityItem struct {
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	UnitOfMeasure struct {
		SalesUnitCode string `json:"salesUnitCode"`
	} `json:"unitOfMeasure"`
}

type siteRef struct {
	ID string `json:"id"`
}

type availabilityRequest struct {
	Items []availabilityItem `json:"items"`
	Sites []siteRef          `json:"sites"`
}

type availabilityResponse struct {
	Items []struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
		Sites []struct {
			Site struct {
				ID string `json:"id"`
			} `json:"site"`
			Quantity int `json:"quantity"`
		} `json:"sites"`
	} `json:"items"`
}

// GetProductAvailability aggregates per-site stock for one product into
// in-store and online totals, consulting the short-lived availability cache
// first. Any failure degrades to a zero-stock placeholder: availability must
// never block product display.
func (s *Service) GetProductAvailability(ctx context.Context, productID string, unit string) domain.AvailabilityResult {
	baseURL, err := s.gateway.BaseURL(domain.SystemOMSA)
	if err != nil || baseURL == "" {
		return domain.AvailabilityResult{
			ProductID:   productID,
			IsAvailable: false,
			HasData:     false,
			Source:      domain.SourceNotConfigured,
			LastUpdated: s.now(),
		}
	}

	if cached, ok, err := s.availCache.Get(ctx, productID); err == nil && ok {
		cached.Source = domain.SourceAvailabilityCache
		return *cached
	} else if err != nil {
		log.Printf("[omsa] WARN: availability cache read failed for %s: %v", productID, err)
	}

	req := availabilityRequest{}
	item := availabilityItem{}
	item.Product.ID = productID
	item.UnitOfMeasure.SalesUnitCode = unitOrDefault(unit)
	req.Items = append(req.Items, item)
	for _, siteID := range s.sites() {
		req.Sites = append(req.Sites, siteRef{ID: siteID})
	}

	resp, err := s.gateway.Do(ctx, domain.SystemOMSA, "POST", "/v1/inventory/availableToSellBySite", req, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omsa] availability lookup failed for %s: %v", productID, err)
		return s.zeroAvailability(productID)
	}

	var decoded availabilityResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		log.Printf("[omsa] availability payload undecodable for %s: %v", productID, err)
		return s.zeroAvailability(productID)
	}

	result := domain.AvailabilityResult{
		ProductID:   productID,
		Source:      domain.SourceAvailability,
		LastUpdated: s.now(),
		HasData:     true,
	}
	for _, entry := range decoded.Items {
		if entry.Product.ID != "" && entry.Product.ID != productID {
			continue
		}
		for _, siteStock := range entry.Sites {
			siteType := "store"
			if siteStock.Site.ID == s.cfg.OnlineSite {
				siteType = "online"
				result.OnlineStock += siteStock.Quantity
			} else {
				result.InStoreStock += siteStock.Quantity
			}
			result.Sites = append(result.Sites, domain.SiteStock{
				SiteID:   siteStock.Site.ID,
				SiteType: siteType,
				Quantity: siteStock.Quantity,
			})
		}
	}
	result.TotalStock = result.InStoreStock + result.OnlineStock
	result.IsAvailable = result.TotalStock > 0

	if err := s.availCache.Set(ctx, productID, &result, s.cfg.AvailabilityTTL); err != nil {
		log.Printf("[omsa] WARN: availability cache write failed for %s: %v", productID, err)
	}
	return result
}

func (s *Service) zeroAvailability(productID string) domain.AvailabilityResult {
	return domain.AvailabilityResult{
		ProductID:   productID,
		IsAvailable: false,
		HasData:     false,
		Source:      domain.SourceAvailabilityError,
		LastUpdated: s.now(),
	}
}

func (s *Service) sites() []string {
	sites := make([]string, 0, len(s.cfg.StoreSites)+1)
	sites = append(sites, s.cfg.StoreSites...)
	if s.cfg.OnlineSite != "" {
		sites = append(sites, s.cfg.OnlineSite)
	}
	return sites
}

func unitOrDefault(unit string) string {
	if unit == "" {
		return "PCE"
	}
	return unit
}
