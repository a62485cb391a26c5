package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Order is the subset of an order the bot can talk about.
type Order struct {
	Name              string      `json:"name"`
	FinancialStatus   string      `json:"financial_status"`
	FulfillmentStatus string      `json:"fulfillment_status"`
	TotalPrice        string      `json:"total_price"`
	Currency          string      `json:"currency"`
	LineItems         []LineItem  `json:"line_items"`
	ShippingAddress   *Address    `json:"shipping_address"`
	Fulfillments      []Fulfilled `json:"fulfillments"`
}

type LineItem struct {
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

type Address struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

type Fulfilled struct {
	TrackingURL string `json:"tracking_url"`
}

// Product is the subset of a product listing used for answers.
type Product struct {
	Title    string `json:"title"`
	Price    string
	InStock  bool
	Variants []Variant `json:"variants"`
}

type Variant struct {
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// Client calls the store's admin REST API with the integration credential.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a commerce API client.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

const apiVersion = "2024-01"

// LookupOrder fetches the most recent order matching an order number ("#1042")
// or, when no number is known, the visitor's email.
func (c *Client) LookupOrder(ctx context.Context, integration Integration, orderNumber, email string) (*Order, error) {
	params := url.Values{"status": {"any"}, "limit": {"1"}}
	switch {
	case strings.TrimSpace(orderNumber) != "":
		params.Set("name", strings.TrimSpace(orderNumber))
	case strings.TrimSpace(email) != "":
		params.Set("email", strings.TrimSpace(email))
	default:
		return nil, fmt.Errorf("order lookup requires a number or email")
	}

	var payload struct {
		Orders []Order `json:"orders"`
	}
	if err := c.get(ctx, integration, "/orders.json", params, &payload); err != nil {
		return nil, err
	}
	if len(payload.Orders) == 0 {
		return nil, fmt.Errorf("no matching order")
	}
	return &payload.Orders[0], nil
}

// SearchProducts returns up to five products matching the query.
func (c *Client) SearchProducts(ctx context.Context, integration Integration, query string) ([]Product, error) {
	params := url.Values{"title": {query}, "limit": {"5"}}
	var payload struct {
		Products []Product `json:"products"`
	}
	if err := c.get(ctx, integration, "/products.json", params, &payload); err != nil {
		return nil, err
	}
	products := payload.Products
	for i := range products {
		products[i].Price, products[i].InStock = summarizeVariants(products[i].Variants)
	}
	return products, nil
}

func summarizeVariants(variants []Variant) (price string, inStock bool) {
	for _, v := range variants {
		if price == "" {
			price = v.Price
		}
		if v.InventoryQuantity > 0 {
			inStock = true
		}
	}
	return price, inStock
}

func (c *Client) get(ctx context.Context, integration Integration, path string, params url.Values, out any) error {
	endpoint := fmt.Sprintf("https://%s/admin/api/%s%s?%s",
		integration.StoreDomain, apiVersion, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", integration.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("commerce api error: status=%d body=%s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
