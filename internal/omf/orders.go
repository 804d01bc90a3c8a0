// Package omf assembles order submission payloads from UI-captured order
// data plus cached sourcing results, submits them to the order-management
// backend and normalizes responses into the canonical order shape. Order
// creation surfaces every failure; the read and status operations substitute
// tagged fallback answers instead.
package omf

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/oauth"
)

// externalNumberPrefix identifies in-store orders in the fulfillment backend.
const externalNumberPrefix = "IS"

// ConfigurationError means the order backend has no usable base URL; order
// operations cannot proceed until credentials are corrected.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("order backend not configured: %s", e.Reason)
}

// OrderSubmissionError is a failed order POST. Code and Message carry the
// backend's own error detail when the response contained one.
type OrderSubmissionError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *OrderSubmissionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("order submission rejected: %s (%s)", e.Message, e.Code)
	}
	if e.Message != "" {
		return fmt.Sprintf("order submission rejected: %s", e.Message)
	}
	return fmt.Sprintf("order submission failed: %v", e.Err)
}

func (e *OrderSubmissionError) Unwrap() error { return e.Err }

type authClient interface {
	Do(ctx context.Context, system, method, endpoint string, body any, timeout time.Duration) (*oauth.Response, error)
	BaseURL(system string) (string, error)
}

type Config struct {
	Currency       string
	Country        string
	RequestTimeout time.Duration // read and status calls
	SubmitTimeout  time.Duration // order creation
}

// Service is the OMF adapter. It is stateless apart from its configuration;
// all order state lives in the backend and in the local journal.
type Service struct {
	gateway  authClient
	cfg      Config
	validate *validator.Validate
	now      func() time.Time
}

func NewService(gateway authClient, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if cfg.Country == "" {
		cfg.Country = "DE"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 15 * time.Second
	}
	return &Service{
		gateway:  gateway,
		cfg:      cfg,
		validate: validator.New(),
		now:      time.Now,
	}
}

// paymentMethodCodes maps UI payment-method names onto backend codes.
// Unknown methods fall back to bank transfer.
var paymentMethodCodes = map[string]string{
	"cash":        "Cash",
	"card":        "Card",
	"credit_card": "Card",
	"creditcard":  "Card",
	"debit_card":  "Card",
	"invoice":     "Invoice",
	"bank":        "Bank",
	"banktransfer": "Bank",
	"paypal":      "PayPal",
}

// unitOfMeasureCodes maps UI unit labels onto ISO sales-unit codes. Unknown
// units fall back to piece.
var unitOfMeasureCodes = map[string]string{
	"piece":  "PCE",
	"pieces": "PCE",
	"pc":     "PCE",
	"pce":    "PCE",
	"ea":     "EA",
	"each":   "EA",
	"kg":     "KGM",
	"kilogram": "KGM",
	"g":      "GRM",
	"gram":   "GRM",
	"l":      "LTR",
	"liter":  "LTR",
	"litre":  "LTR",
	"m":      "MTR",
	"meter":  "MTR",
	"box":    "BX",
	"pack":   "PK",
}

// countryCodes maps country names onto ISO 3166-1 alpha-2 codes. Unknown
// names fall back to the configured default.
var countryCodes = map[string]string{
	"germany":        "DE",
	"deutschland":    "DE",
	"austria":        "AT",
	"österreich":     "AT",
	"switzerland":    "CH",
	"schweiz":        "CH",
	"france":         "FR",
	"netherlands":    "NL",
	"belgium":        "BE",
	"italy":          "IT",
	"spain":          "ES",
	"poland":         "PL",
	"united kingdom": "GB",
	"great britain":  "GB",
	"united states":  "US",
	"usa":            "US",
}

func paymentMethodCode(method string) string {
	if code, ok := paymentMethodCodes[strings.ToLower(strings.TrimSpace(method))]; ok {
		return code
	}
	return "Bank"
}

func unitOfMeasureCode(unit string) string {
	if code, ok := unitOfMeasureCodes[strings.ToLower(strings.TrimSpace(unit))]; ok {
		return code
	}
	return "PCE"
}

func (s *Service) countryCode(name string) string {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) == 2 {
		return strings.ToUpper(trimmed)
	}
	if code, ok := countryCodes[strings.ToLower(trimmed)]; ok {
		return code
	}
	return s.cfg.Country
}

// streetPattern captures a trailing house number with an optional letter
// suffix ("Hauptstraße 78a") off a free-text street line.
var streetPattern = regexp.MustCompile(`^(.*?)[\s,]+(\d+\s*[a-zA-Z]?)$`)

// SplitStreet separates a free-text address line into street name and house
// number. Lines without a trailing number keep the full text as the street
// and get house number "1".
func SplitStreet(address string) (street, houseNumber string) {
	trimmed := strings.TrimSpace(address)
	if match := streetPattern.FindStringSubmatch(trimmed); match != nil {
		return strings.TrimSpace(match[1]), strings.ReplaceAll(match[2], " ", "")
	}
	return trimmed, "1"
}

// NewExternalNumber generates the external tracking number: the in-store
// prefix followed by eight random alphanumerics.
func NewExternalNumber() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffix := make([]byte, 8)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// fall back to a time-derived index rather than aborting checkout.
			suffix[i] = charset[int(time.Now().UnixNano()>>uint(i))%len(charset)]
			continue
		}
		suffix[i] = charset[n.Int64()]
	}
	return externalNumberPrefix + string(suffix)
}

type orderAddress struct {
	Role        string `json:"role"` // SHIP_TO, BILL_TO, SOLD_TO
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Street      string `json:"street"`
	HouseNumber string `json:"houseNumber"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type orderItemPayload struct {
	LineNumber int    `json:"lineNumber"`
	Product    struct {
		ID string `json:"id"`
	} `json:"product"`
	Quantity struct {
		Value         int    `json:"value"`
		UnitOfMeasure string `json:"unitOfMeasure"`
	} `json:"quantity"`
	Price struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"price"`
	Description string `json:"description,omitempty"`
}

type orderFee struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type sourcingItemPayload struct {
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
	Quantity struct {
		Value int `json:"value"`
	} `json:"quantity"`
}

type sourcingShipmentPayload struct {
	Site struct {
		ID string `json:"id"`
	} `json:"site"`
	ServiceCode string                `json:"serviceCode,omitempty"`
	Items       []sourcingItemPayload `json:"items"`
}

type sourcingBlock struct {
	SourcingID string                    `json:"sourcingId,omitempty"`
	Shipments  []sourcingShipmentPayload `json:"shipments"`
}

type orderPayload struct {
	ExternalNumber    string `json:"externalNumber"`
	PrecedingDocument struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"precedingDocument"`
	Customer struct {
		FirstName string         `json:"firstName"`
		LastName  string         `json:"lastName"`
		Email     string         `json:"email,omitempty"`
		Phone     string         `json:"phone,omitempty"`
		Addresses []orderAddress `json:"addresses"`
	} `json:"customer"`
	OrderItems []orderItemPayload `json:"orderItems"`
	Fees       []orderFee         `json:"fees,omitempty"`
	Payment    struct {
		Method string `json:"method"`
	} `json:"payment"`
	Sourcing *sourcingBlock `json:"sourcing,omitempty"`
	Currency string `json:"currency"`
	Notes    string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	Error       struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateOrder validates and assembles the submission payload, posts it and
// returns the resulting canonical order. Failures come back as
// ConfigurationError or OrderSubmissionError; there is no fallback on this
// path because a silently swallowed submission failure would lose the sale.
func (s *Service) CreateOrder(ctx context.Context, order domain.OrderData, sourcing *domain.SourcingResult) (*domain.CanonicalOrder, error) {
	if err := s.validate.Struct(order); err != nil {
		return nil, &OrderSubmissionError{Code: "INVALID_ORDER", Message: err.Error(), Err: err}
	}

	baseURL, err := s.gateway.BaseURL(domain.SystemOMF)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if _, parseErr := url.ParseRequestURI(baseURL); baseURL == "" || parseErr != nil {
		return nil, &ConfigurationError{Reason: "missing or invalid base URL"}
	}

	payload := s.buildPayload(order, sourcing)

	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "POST", "/api/v2/orders", payload, s.cfg.SubmitTimeout)
	if err != nil {
		return nil, submissionError(err)
	}

	var decoded orderResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, &OrderSubmissionError{Message: "undecodable order response", Status: resp.Status, Err: err}
	}
	if decoded.Error.Code != "" || decoded.Error.Message != "" {
		return nil, &OrderSubmissionError{Code: decoded.Error.Code, Message: decoded.Error.Message, Status: resp.Status}
	}

	canonical := s.canonicalFromSubmission(order, payload, decoded)
	return &canonical, nil
}

func (s *Service) buildPayload(order domain.OrderData, sourcing *domain.SourcingResult) orderPayload {
	currency := order.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	payload := orderPayload{
		ExternalNumber: NewExternalNumber(),
		Currency:       currency,
		Notes:          order.Notes,
	}
	payload.PrecedingDocument.ID = uuid.NewString()
	payload.PrecedingDocument.Type = "IN_STORE_CART"
	payload.Payment.Method = paymentMethodCode(order.Payment.Method)

	payload.Customer.FirstName = order.Customer.FirstName
	payload.Customer.LastName = order.Customer.LastName
	payload.Customer.Email = order.Customer.Email
	payload.Customer.Phone = order.Customer.Phone
	// Ship-to, bill-to and sold-to each derive independently from the one
	// address the associate captured.
	for _, role := range []string{"SHIP_TO", "BILL_TO", "SOLD_TO"} {
		payload.Customer.Addresses = append(payload.Customer.Addresses, s.addressFor(role, order.Customer))
	}

	for i, item := range order.Items {
		line := orderItemPayload{LineNumber: (i + 1) * 10, Description: item.Description}
		line.Product.ID = item.ProductID
		line.Quantity.Value = item.Quantity
		line.Quantity.UnitOfMeasure = unitOfMeasureCode(item.Unit)
		line.Price.Amount = item.UnitPrice
		line.Price.Currency = currency
		payload.OrderItems = append(payload.OrderItems, line)
	}

	if order.Shipping.Price.IsPositive() {
		payload.Fees = append(payload.Fees, orderFee{
			Category: "SHIPPING",
			Amount:   order.Shipping.Price,
			Currency: currency,
		})
	}

	if sourcing != nil && sourcing.Success && sourcing.Data != nil {
		block := &sourcingBlock{SourcingID: sourcing.Data.SourcingID}
		for _, shipment := range sourcing.Data.Shipments {
			mapped := sourcingShipmentPayload{ServiceCode: shipment.ServiceCode}
			mapped.Site.ID = shipment.SiteID
			for _, item := range shipment.Items {
				entry := sourcingItemPayload{}
				entry.Product.ID = item.ProductID
				entry.Quantity.Value = item.Quantity
				mapped.Items = append(mapped.Items, entry)
			}
			block.Shipments = append(block.Shipments, mapped)
		}
		payload.Sourcing = block
	}

	return payload
}

func (s *Service) addressFor(role string, customer domain.CustomerDetails) orderAddress {
	street, houseNumber := SplitStreet(customer.Address)
	return orderAddress{
		Role:        role,
		FirstName:   customer.FirstName,
		LastName:    customer.LastName,
		Street:      street,
		HouseNumber: houseNumber,
		City:        customer.City,
		PostalCode:  customer.PostalCode,
		Country:     s.countryCode(customer.Country),
		Email:       customer.Email,
		Phone:       customer.Phone,
	}
}

func (s *Service) canonicalFromSubmission(order domain.OrderData, payload orderPayload, resp orderResponse) domain.CanonicalOrder {
	status := resp.Status
	if status == "" {
		status = "CREATED"
	}

	canonical := domain.CanonicalOrder{
		OrderID:        resp.ID,
		OrderNumber:    resp.OrderNumber,
		Status:         status,
		ExternalNumber: payload.ExternalNumber,
		Source:         domain.SourceOrderBackend,
		CreatedAt:      s.now(),
	}
	canonical.Payment = domain.PaymentInfo{Method: payload.Payment.Method, Status: "PENDING"}
	canonical.Delivery = domain.DeliveryInfo{
		Method:  order.Shipping.Name,
		Carrier: order.Shipping.Carrier,
		Status:  "PENDING",
	}

	subtotal := decimal.Zero
	for _, item := range order.Items {
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		canonical.Items = append(canonical.Items, domain.CanonicalOrderItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Unit:        item.Unit,
		})
	}
	canonical.Totals = domain.OrderTotals{
		Subtotal: subtotal,
		Total:    subtotal.Add(order.Shipping.Price),
	}
	return canonical
}

func submissionError(err error) error {
	var httpErr *oauth.HTTPError
	if errors.As(err, &httpErr) {
		code, message := decodeBackendError(httpErr.Body)
		return &OrderSubmissionError{Code: code, Message: message, Status: httpErr.Status, Err: err}
	}
	return &OrderSubmissionError{Err: err}
}

// decodeBackendError digs a code/message pair out of the error body; the
// backend nests them under "error" but bare top-level fields occur too.
func decodeBackendError(body []byte) (code, message string) {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}
	if envelope.Error.Code != "" || envelope.Error.Message != "" {
		return envelope.Error.Code, envelope.Error.Message
	}
	return envelope.Code, envelope.Message
}

type orderDetailResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	Items       []struct {
		Product struct {
			ID string `json:"id"`
		} `json:"product"`
		Description string `json:"description"`
		Quantity    struct {
			Value         int    `json:"value"`
			UnitOfMeasure string `json:"unitOfMeasure"`
		} `json:"quantity"`
		Price struct {
			Amount decimal.Decimal `json:"amount"`
		} `json:"price"`
	} `json:"items"`
	Totals struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		Tax      decimal.Decimal `json:"tax"`
		Discount decimal.Decimal `json:"discount"`
		Total    decimal.Decimal `json:"total"`
	} `json:"totals"`
	Payment struct {
		Method        string `json:"method"`
		Status        string `json:"status"`
		TransactionID string `json:"transactionId"`
	} `json:"payment"`
	ExternalNumber string    `json:"externalNumber"`
	CreatedAt      time.Time `json:"createdAt"`
}

// GetOrder fetches one order and maps it to the canonical shape. On failure
// it returns a tagged fallback stand-in; some answer beats an error page on
// this read path.
func (s *Service) GetOrder(ctx context.Context, orderID string) domain.CanonicalOrder {
	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "GET", "/api/v1/orders/"+url.PathEscape(orderID), nil, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omf] order lookup failed for %s: %v", orderID, err)
		return s.fallbackOrder(orderID)
	}

	var decoded orderDetailResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		log.Printf("[omf] order payload undecodable for %s: %v", orderID, err)
		return s.fallbackOrder(orderID)
	}
	return s.canonicalFromDetail(decoded)
}

func (s *Service) canonicalFromDetail(decoded orderDetailResponse) domain.CanonicalOrder {
	canonical := domain.CanonicalOrder{
		OrderID:        decoded.ID,
		OrderNumber:    decoded.OrderNumber,
		Status:         decoded.Status,
		ExternalNumber: decoded.ExternalNumber,
		Source:         domain.SourceOrderBackend,
		CreatedAt:      decoded.CreatedAt,
	}
	for _, item := range decoded.Items {
		canonical.Items = append(canonical.Items, domain.CanonicalOrderItem{
			ProductID:   item.Product.ID,
			Description: item.Description,
			Quantity:    item.Quantity.Value,
			Unit:        item.Quantity.UnitOfMeasure,
			UnitPrice:   item.Price.Amount,
		})
	}
	canonical.Totals = domain.OrderTotals{
		Subtotal: decoded.Totals.Subtotal,
		Tax:      decoded.Totals.Tax,
		Discount: decoded.Totals.Discount,
		Total:    decoded.Totals.Total,
	}
	canonical.Payment = domain.PaymentInfo{
		Method:        decoded.Payment.Method,
		Status:        decoded.Payment.Status,
		TransactionID: decoded.Payment.TransactionID,
	}
	return canonical
}

func (s *Service) fallbackOrder(orderID string) domain.CanonicalOrder {
	return domain.CanonicalOrder{
		OrderID:   orderID,
		Status:    "UNKNOWN",
		Source:    domain.SourceFallback,
		CreatedAt: s.now(),
	}
}

// UpdateOrderStatus transitions an order and returns the backend's view of
// the new state, or a fallback echo of the requested status on failure.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, status string) domain.CanonicalOrder {
	body := map[string]string{"status": status}
	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "PUT", "/api/v1/orders/"+url.PathEscape(orderID)+"/status", body, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omf] status update failed for %s: %v", orderID, err)
		fallback := s.fallbackOrder(orderID)
		fallback.Status = status
		return fallback
	}

	var decoded orderDetailResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || decoded.ID == "" {
		fallback := s.fallbackOrder(orderID)
		fallback.Status = status
		return fallback
	}
	return s.canonicalFromDetail(decoded)
}

// CancelOrder requests cancellation; on failure the fallback reports the
// intent without confirming it.
func (s *Service) CancelOrder(ctx context.Context, orderID string) domain.CanonicalOrder {
	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "POST", "/api/v1/orders/"+url.PathEscape(orderID)+"/cancel", nil, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omf] cancel failed for %s: %v", orderID, err)
		fallback := s.fallbackOrder(orderID)
		fallback.Status = "CANCEL_REQUESTED"
		return fallback
	}

	var decoded orderDetailResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || decoded.ID == "" {
		fallback := s.fallbackOrder(orderID)
		fallback.Status = "CANCELLED"
		return fallback
	}
	return s.canonicalFromDetail(decoded)
}

type fulfillmentResponse struct {
	Status    string `json:"status"`
	Shipments []struct {
		ID   string `json:"id"`
		Site struct {
			ID string `json:"id"`
		} `json:"site"`
		Status    string     `json:"status"`
		ShippedAt *time.Time `json:"shippedAt"`
	} `json:"shipments"`
}

// GetOrderFulfillment returns the fulfillment view of an order, or an empty
// fallback view on failure.
func (s *Service) GetOrderFulfillment(ctx context.Context, orderID string) (domain.FulfillmentInfo, string) {
	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "GET", "/api/v1/orders/"+url.PathEscape(orderID)+"/fulfillment", nil, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omf] fulfillment lookup failed for %s: %v", orderID, err)
		return domain.FulfillmentInfo{Status: "UNKNOWN"}, domain.SourceFallback
	}

	var decoded fulfillmentResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return domain.FulfillmentInfo{Status: "UNKNOWN"}, domain.SourceFallback
	}

	info := domain.FulfillmentInfo{Status: decoded.Status}
	for _, shipment := range decoded.Shipments {
		info.Shipments = append(info.Shipments, domain.FulfillmentShipment{
			ShipmentID: shipment.ID,
			SiteID:     shipment.Site.ID,
			Status:     shipment.Status,
			ShippedAt:  shipment.ShippedAt,
		})
	}
	return info, domain.SourceOrderBackend
}

// ProcessPayment records a payment against an order. The fallback marks the
// payment pending so the operator retries rather than assuming success.
func (s *Service) ProcessPayment(ctx context.Context, orderID string, payment domain.PaymentOption) (domain.PaymentInfo, string) {
	body := map[string]string{
		"method":    paymentMethodCode(payment.Method),
		"reference": payment.Reference,
	}
	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "POST", "/api/v1/orders/"+url.PathEscape(orderID)+"/payment", body, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omf] payment processing failed for %s: %v", orderID, err)
		return domain.PaymentInfo{Method: paymentMethodCode(payment.Method), Status: "PENDING"}, domain.SourceFallback
	}

	var decoded struct {
		Method        string `json:"method"`
		Status        string `json:"status"`
		TransactionID string `json:"transactionId"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || decoded.Status == "" {
		return domain.PaymentInfo{Method: paymentMethodCode(payment.Method), Status: "PENDING"}, domain.SourceFallback
	}
	return domain.PaymentInfo{
		Method:        decoded.Method,
		Status:        decoded.Status,
		TransactionID: decoded.TransactionID,
	}, domain.SourceOrderBackend
}

type orderSearchResponse struct {
	Orders []orderDetailResponse `json:"orders"`
}

// SearchOrders queries the backend by free text. On failure it returns an
// empty fallback-tagged list; the HTTP layer merges the local journal in so
// the associate still sees recent local orders.
func (s *Service) SearchOrders(ctx context.Context, query string) ([]domain.CanonicalOrder, string) {
	endpoint := "/api/v1/orders/search?q=" + url.QueryEscape(query)
	resp, err := s.gateway.Do(ctx, domain.SystemOMF, "GET", endpoint, nil, s.cfg.RequestTimeout)
	if err != nil {
		log.Printf("[omf] order search failed for %q: %v", query, err)
		return nil, domain.SourceFallback
	}

	var decoded orderSearchResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, domain.SourceFallback
	}

	orders := make([]domain.CanonicalOrder, 0, len(decoded.Orders))
	for _, entry := range decoded.Orders {
		orders = append(orders, s.canonicalFromDetail(entry))
	}
	return orders, domain.SourceOrderBackend
}
