// Package woo implements CatalogPublisher against the WooCommerce REST API.
package woo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/catalog"
)

// Config controls the store API client.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Timeout        time.Duration
}

// Client publishes products to a WooCommerce store. Category and tag name→id
// lookups are cached for the client's lifetime; get-or-create is serialized
// per client so concurrent publish fan-out cannot create duplicates.
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu         sync.Mutex
	categories map[string]int64
	tags       map[string]int64
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("publish.base_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		categories: make(map[string]int64),
		tags:       make(map[string]int64),
	}, nil
}

// TestConnection verifies credentials with a cheap read.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "products", url.Values{"per_page": {"1"}}, nil)
	if err != nil {
		return fmt.Errorf("catalog connection test: %w", err)
	}
	return nil
}

// GetOrCreateCategory resolves a category name to its remote id, creating the
// category if the store does not have it yet.
func (c *Client) GetOrCreateCategory(ctx context.Context, name string) (int64, error) {
	return c.getOrCreateTerm(ctx, "products/categories", c.categories, name)
}

// GetOrCreateTag resolves a tag name to its remote id, creating it if needed.
func (c *Client) GetOrCreateTag(ctx context.Context, name string) (int64, error) {
	return c.getOrCreateTerm(ctx, "products/tags", c.tags, name)
}

type term struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (c *Client) getOrCreateTerm(ctx context.Context, endpoint string, cache map[string]int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("term name is required")
	}
	key := strings.ToLower(name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := cache[key]; ok {
		return id, nil
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, url.Values{"search": {name}, "per_page": {"20"}}, nil)
	if err != nil {
		return 0, err
	}
	var matches []term
	if err := json.Unmarshal(body, &matches); err != nil {
		return 0, fmt.Errorf("decode %s search: %w", endpoint, err)
	}
	for _, t := range matches {
		if strings.EqualFold(t.Name, name) {
			cache[key] = t.ID
			return t.ID, nil
		}
	}

	body, err = c.do(ctx, http.MethodPost, endpoint, nil, map[string]any{"name": name})
	if err != nil {
		return 0, err
	}
	var created term
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, fmt.Errorf("decode created term: %w", err)
	}
	c.logger.Info("term created",
		zap.String("endpoint", endpoint),
		zap.String("name", name),
		zap.Int64("id", created.ID),
	)
	cache[key] = created.ID
	return created.ID, nil
}

// Upload publishes one product and returns the remote id. A SKU the store
// already carries is a fatal per-item error, not a retry case.
func (c *Client) Upload(ctx context.Context, product catalog.ProductRecord) (int64, error) {
	payload, err := c.buildPayload(ctx, product)
	if err != nil {
		return 0, err
	}
	body, err := c.do(ctx, http.MethodPost, "products", nil, payload)
	if err != nil {
		return 0, err
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return 0, fmt.Errorf("decode created product: %w", err)
	}
	c.logger.Info("product uploaded",
		zap.String("sku", product.SKU),
		zap.Int64("id", created.ID),
	)
	return created.ID, nil
}

func (c *Client) buildPayload(ctx context.Context, product catalog.ProductRecord) (map[string]any, error) {
	payload := map[string]any{
		"name":          product.Name,
		"sku":           product.SKU,
		"regular_price": product.Price,
		"description":   product.Description,
	}

	var categories []map[string]int64
	for _, name := range product.Categories {
		id, err := c.GetOrCreateCategory(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve category %q: %w", name, err)
		}
		categories = append(categories, map[string]int64{"id": id})
	}
	if len(categories) > 0 {
		payload["categories"] = categories
	}

	var tags []map[string]int64
	for _, name := range product.Tags {
		id, err := c.GetOrCreateTag(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		tags = append(tags, map[string]int64{"id": id})
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}

	if len(product.Specs) > 0 {
		var attrs []map[string]any
		for name, value := range product.Specs {
			attrs = append(attrs, map[string]any{
				"name":    name,
				"options": []string{value},
				"visible": true,
			})
		}
		payload["attributes"] = attrs
	}
	return payload, nil
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do executes one API call and maps error responses onto the retry
// classification the pipeline understands.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload any) ([]byte, error) {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/wp-json/wc/v3/" + endpoint
	if query == nil {
		query = url.Values{}
	}
	query.Set("consumer_key", c.cfg.ConsumerKey)
	query.Set("consumer_secret", c.cfg.ConsumerSecret)
	u += "?" + query.Encode()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	return nil, c.classifyError(resp.StatusCode, data)
}

func (c *Client) classifyError(status int, data []byte) error {
	var ae apiError
	_ = json.Unmarshal(data, &ae)
	msg := ae.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return &catalog.RateLimitError{Message: msg, Code: status}
	case ae.Code == "product_invalid_sku":
		// The SKU is already live in the store; retrying cannot help.
		return catalog.Fatal(fmt.Errorf("duplicate sku: %s", msg))
	case strings.Contains(strings.ToLower(msg), "already processing"):
		return &catalog.ConflictError{Message: msg}
	case status >= 500:
		return fmt.Errorf("catalog API status %d: %s", status, msg)
	default:
		return fmt.Errorf("catalog API status %d (%s): %s", status, ae.Code, msg)
	}
}
