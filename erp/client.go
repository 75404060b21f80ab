package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"erpcache.eve.dev/apierrors"
)

// Config configures the HTTP Client.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	Retries   int // additional attempts after the first, on TRANSIENT failures
}

// Client is the net/http implementation of Fetcher.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a Client. A zero Timeout defaults to 10s per spec.md §5.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

var _ Fetcher = (*Client)(nil)

func (c *Client) FetchProduct(ctx context.Context, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.getJSON(ctx, fmt.Sprintf("/api/resource/Item/%s", id), &out)
	return out, err
}

func (c *Client) FetchAllProductIndex(ctx context.Context) ([]ProductIndexEntry, error) {
	var out []ProductIndexEntry
	err := c.getJSON(ctx, "/api/method/erpcache.product_index", &out)
	return out, err
}

func (c *Client) FetchItemPrice(ctx context.Context, itemCode string) (ItemPrice, error) {
	var out ItemPrice
	err := c.getJSON(ctx, fmt.Sprintf("/api/method/erpcache.item_price?item_code=%s", itemCode), &out)
	return out, err
}

func (c *Client) FetchItemStockWarehouses(ctx context.Context, itemCode string) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, fmt.Sprintf("/api/method/erpcache.item_stock?item_code=%s", itemCode), &out)
	return out, err
}

func (c *Client) FetchHeroImageURLs(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/method/erpcache.hero_images", &out)
	return out, err
}

func (c *Client) FetchBundleImageURLs(ctx context.Context) ([]string, error) {
	var out []string
	err := c.getJSON(ctx, "/api/method/erpcache.bundle_images", &out)
	return out, err
}

func (c *Client) FetchAppHomeRaw(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.getJSON(ctx, "/api/method/erpcache.app_home", &out)
	return out, err
}

func (c *Client) FetchBlob(ctx context.Context, url string) ([]byte, string, error) {
	body, contentType, err := c.doRequest(ctx, http.MethodGet, url, nil)
	return body, contentType, err
}

// getJSON issues a GET against BaseURL+path (path is always taken as
// relative to BaseURL) and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, _, err := c.doRequest(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierrors.Internalf("erp: decode response from %s: %v", path, err)
	}
	return nil
}

// doRequest performs a single request with retry-on-TRANSIENT, classifying
// the final failure per spec.md §4.6/§7: reachable-but-5xx-or-timeout is
// TRANSIENT, a 4xx on an otherwise-valid request is PERMANENT, a 404 is
// NotFound.
func (c *Client) doRequest(ctx context.Context, method, url string, payload []byte) ([]byte, string, error) {
	attempts := c.cfg.Retries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		body, contentType, err := c.doOnce(ctx, method, url, payload)
		if err == nil {
			return body, contentType, nil
		}

		lastErr = err
		if apierrors.KindOf(err) != apierrors.Transient {
			return nil, "", err
		}
		if attempt < attempts-1 {
			time.Sleep(backoff(attempt))
		}
	}

	return nil, "", lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte) ([]byte, string, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, "", apierrors.Internalf("erp: build request: %v", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.cfg.APIKey, c.cfg.APISecret))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apierrors.Transientf("erp: request to %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apierrors.Transientf("erp: read response from %s: %v", url, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", apierrors.NotFoundf("erp: %s not found", url)
	case resp.StatusCode >= 500:
		return nil, "", apierrors.Transientf("erp: %s returned %d", url, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, "", apierrors.Permanentf("erp: %s returned %d", url, resp.StatusCode)
	}

	return respBody, resp.Header.Get("Content-Type"), nil
}

// backoff mirrors the teacher's exponential retry strategy: initial delay
// doubles with each attempt.
func backoff(attempt int) time.Duration {
	const initial = 200 * time.Millisecond
	return initial * time.Duration(1<<uint(attempt))
}
