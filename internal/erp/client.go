// Package erp fetches product master data from S/4HANA through the corporate
// connectivity proxy. The ERP is an external collaborator: it knows nothing
// about pricing or availability, which are merged in by the orchestrator.
package erp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"instoreorder/backend/internal/domain"
	"instoreorder/backend/internal/odata"
)

type Config struct {
	BaseURL  string
	User     string
	Password string
	ProxyURL string
	Timeout  time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	transport := http.DefaultTransport
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ERP proxy url: %w", err)
		}
		transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// Configured reports whether a base URL is present. Callers fall back to the
// static catalog when it is not.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != ""
}

// productRow is the ERP's product shape:
// {id, description, standardId (EAN), baseUnit, netPriceAmount}.
type productRow struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	StandardID     string          `json:"standardId"`
	BaseUnit       string          `json:"baseUnit"`
	NetPriceAmount decimal.Decimal `json:"netPriceAmount"`
}

func (row productRow) toProduct() domain.Product {
	return domain.Product{
		ID:          row.ID,
		EAN:         row.StandardID,
		Description: row.Description,
		Unit:        row.BaseUnit,
		ListPrice:   row.NetPriceAmount,
		SalePrice:   row.NetPriceAmount,
	}
}

// SearchProducts lists products matching the query. An empty query lists the
// catalog page unfiltered.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]domain.Product, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("ERP base URL not configured")
	}

	endpoint := c.cfg.BaseURL + "/Products"
	if trimmed := strings.TrimSpace(query); trimmed != "" {
		endpoint += "?search=" + url.QueryEscape(trimmed)
	}

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var rows []productRow
	if err := odata.DecodeCollection(body, &rows); err != nil {
		return nil, fmt.Errorf("decode ERP product list: %w", err)
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.toProduct())
	}
	return products, nil
}

// GetProduct fetches a single product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("ERP base URL not configured")
	}

	endpoint := fmt.Sprintf("%s/Products('%s')", c.cfg.BaseURL, url.PathEscape(id))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var row productRow
	if err := odata.DecodeEntity(body, &row); err != nil {
		return nil, fmt.Errorf("decode ERP product: %w", err)
	}
	if row.ID == "" {
		return nil, fmt.Errorf("ERP returned empty product for id %s", id)
	}
	product := row.toProduct()
	return &product, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.User != "" {
		req.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ERP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("ERP resource not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ERP returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
