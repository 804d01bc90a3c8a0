package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// System names for the three fulfillment backends.
const (
	SystemOPPS = "OPPS"
	SystemOMSA = "OMSA"
	SystemOMF  = "OMF"
)

// Source tags carried by every externally returned price, availability and
// order object. Cached, real-time and fallback data are never mixed without
// one of these.
const (
	SourceCatalog           = "S4-ERP"
	SourcePricingCache      = "OPPS-Cache"
	SourcePricingRealTime   = "OPPS-RealTime"
	SourceFallback          = "fallback"
	SourceSourcing          = "OMSA-Sourcing"
	SourceSourcingError     = "OMSA-SourcingError"
	SourceAvailability      = "OMSA-Availability"
	SourceAvailabilityCache = "OMSA-Cache"
	SourceAvailabilityError = "OMSA-AvailabilityError"
	SourceNotConfigured     = "OMSA-NotConfigured"
	SourceOrderBackend      = "OMF"
)

// Product is the canonical catalog view handed to the UI: ERP master data
// enriched with cached pricing and aggregated availability.
type Product struct {
	ID           string          `json:"id"`
	EAN          string          `json:"ean"`
	Description  string          `json:"description"`
	ListPrice    decimal.Decimal `json:"listPrice"`
	SalePrice    decimal.Decimal `json:"salePrice"`
	Currency     string          `json:"currency"`
	Unit         string          `json:"unit"`
	Image        string          `json:"image,omitempty"`
	InStoreStock int             `json:"inStoreStock"`
	OnlineStock  int             `json:"onlineStock"`
	IsAvailable  bool            `json:"isAvailable"`
	PriceSource  string          `json:"priceSource"`
}

// PriceRecord is one price row for a product. A product may carry several
// records, one per business unit, in the order the pricing backend returned
// them.
type PriceRecord struct {
	ProductID           string          `json:"productId"`
	OriginalItemID      string          `json:"originalItemId"`
	ListPrice           decimal.Decimal `json:"listPrice"`
	SalePrice           decimal.Decimal `json:"salePrice"`
	Currency            string          `json:"currency"`
	UnitOfMeasure       string          `json:"unitOfMeasure"`
	PriceClassification string          `json:"priceClassification"`
	BusinessUnitID      string          `json:"businessUnitId"`
	BusinessUnitType    string          `json:"businessUnitType"`
	EffectiveDate       string          `json:"effectiveDate,omitempty"`
	ExpiryDate          string          `json:"expiryDate,omitempty"`
	LastUpdated         time.Time       `json:"lastUpdated"`
	Source              string          `json:"source"`
}

// PriceMetadataEntry points at the per-item URI used for real-time price
// lookups. Its lifetime is tied to the bulk cache generation it was built
// with.
type PriceMetadataEntry struct {
	URI              string
	ID               string
	Type             string
	ProductID        string
	BusinessUnitID   string
	BusinessUnitType string
}

// SiteStock is per-site availability before aggregation.
type SiteStock struct {
	SiteID   string `json:"siteId"`
	SiteType string `json:"siteType"` // "store" or "online"
	Quantity int    `json:"quantity"`
}

// AvailabilityResult aggregates per-site stock into in-store and online
// totals. HasData is false when the numbers are placeholders produced by a
// failed or skipped lookup.
type AvailabilityResult struct {
	ProductID    string      `json:"productId"`
	InStoreStock int         `json:"inStoreStock"`
	OnlineStock  int         `json:"onlineStock"`
	TotalStock   int         `json:"totalStock"`
	IsAvailable  bool        `json:"isAvailable"`
	Sites        []SiteStock `json:"sites,omitempty"`
	Source       string      `json:"source"`
	LastUpdated  time.Time   `json:"lastUpdated"`
	HasData      bool        `json:"hasData"`
}

// CartItem is one line of the UI-owned cart.
type CartItem struct {
	ProductID   string          `json:"productId" validate:"required"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity" validate:"min=1"`
	Unit        string          `json:"unit,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Cart is mutable and owned by the UI layer; the orchestration layer only
// observes it at sourcing-trigger and submission time.
type Cart struct {
	Items []CartItem `json:"items"`
}

// SourcingShipmentItem is one product line within a planned shipment.
type SourcingShipmentItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// SourcingShipment is one fulfillment-plan shipment returned by the sourcing
// backend.
type SourcingShipment struct {
	SiteID      string                 `json:"siteId"`
	ServiceCode string                 `json:"serviceCode,omitempty"`
	Items       []SourcingShipmentItem `json:"items"`
}

// SourcingData is the decoded sourcing response payload.
type SourcingData struct {
	SourcingID string             `json:"sourcingId"`
	Shipments  []SourcingShipment `json:"shipments"`
}

// SourcingResult holds the latest cart's sourcing outcome. Exactly one is
// current at a time; it is replaced whenever cart contents change and cleared
// when the cart empties. CartItems is the snapshot the result was computed
// for, so callers can detect staleness against the live cart.
type SourcingResult struct {
	Success     bool          `json:"success"`
	CartEmpty   bool          `json:"cartEmpty,omitempty"`
	Data        *SourcingData `json:"data,omitempty"`
	CartItems   []CartItem    `json:"cartItems,omitempty"`
	Source      string        `json:"source,omitempty"`
	LastUpdated time.Time     `json:"lastUpdated,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// CustomerDetails captures the customer form. Address is the free-text street
// line; house numbers are derived from it at order assembly time.
type CustomerDetails struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country,omitempty"`
}

// ShippingOption is the delivery choice captured by the UI.
type ShippingOption struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Carrier     string          `json:"carrier,omitempty"`
	ServiceCode string          `json:"serviceCode,omitempty"`
	Price       decimal.Decimal `json:"price"`
}

// PaymentOption is the payment choice captured by the UI.
type PaymentOption struct {
	Method    string `json:"method" validate:"required"`
	Reference string `json:"reference,omitempty"`
}

// OrderData is the immutable snapshot the UI submits for order creation.
type OrderData struct {
	Items    []CartItem      `json:"items" validate:"required,min=1,dive"`
	Customer CustomerDetails `json:"customer" validate:"required"`
	Shipping ShippingOption  `json:"shipping"`
	Payment  PaymentOption   `json:"payment" validate:"required"`
	Currency string          `json:"currency,omitempty"`
	Notes    string          `json:"notes,omitempty"`
}

// OrderTotals is the normalized money block of a canonical order.
type OrderTotals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// CanonicalOrderItem is one normalized order line.
type CanonicalOrderItem struct {
	ProductID   string          `json:"productId"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Unit        string          `json:"unit,omitempty"`
}

// PaymentInfo is the normalized payment state of an order.
type PaymentInfo struct {
	Method        string `json:"method,omitempty"`
	Status        string `json:"status,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
}

// DeliveryInfo is the normalized delivery state of an order.
type DeliveryInfo struct {
	Method         string `json:"method,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Status         string `json:"status,omitempty"`
}

// FulfillmentShipment is one shipment within an order's fulfillment view.
type FulfillmentShipment struct {
	ShipmentID string     `json:"shipmentId,omitempty"`
	SiteID     string     `json:"siteId,omitempty"`
	Status     string     `json:"status,omitempty"`
	ShippedAt  *time.Time `json:"shippedAt,omitempty"`
}

// FulfillmentInfo is the normalized fulfillment state of an order.
type FulfillmentInfo struct {
	Status    string                `json:"status,omitempty"`
	Shipments []FulfillmentShipment `json:"shipments,omitempty"`
}

// CanonicalOrder is the one shape returned for an order regardless of which
// backend produced it or whether a fallback was substituted.
type CanonicalOrder struct {
	OrderID        string               `json:"orderId"`
	OrderNumber    string               `json:"orderNumber,omitempty"`
	Status         string               `json:"status"`
	Items          []CanonicalOrderItem `json:"items"`
	Totals         OrderTotals          `json:"totals"`
	Payment        PaymentInfo          `json:"payment"`
	Delivery       DeliveryInfo         `json:"delivery"`
	Fulfillment    FulfillmentInfo      `json:"fulfillment"`
	ExternalNumber string               `json:"externalNumber,omitempty"`
	Source         string               `json:"source"`
	CreatedAt      time.Time            `json:"createdAt,omitempty"`
}

// OrderRecord is the local journal entry written after a successful
// submission. It survives process restarts and OMF outages.
type OrderRecord struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"orderId"`
	ExternalNumber string          `json:"externalNumber"`
	Status         string          `json:"status"`
	CustomerName   string          `json:"customerName"`
	ItemCount      int             `json:"itemCount"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ProductSearchResult is a paginated catalog page.
type ProductSearchResult struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
	Source     string    `json:"source"`
}

// Actor is the authenticated store associate attached to a request context.
type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserAccount is a persisted associate login.
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}
