package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

const (
	DefaultAPIVersion = "2023-10"
	listPageLimit     = 250
	canceledPageLimit = 50
)

type ClientOptions struct {
	Shop        string
	AccessToken string
	// BaseURL overrides https://{shop}.myshopify.com; used by tests.
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RequestsPerSecond defaults to the REST leaky-bucket refill rate.
	RequestsPerSecond float64
	Burst             int
	Logger            *slog.Logger
}

// APIError is a non-2xx response that was not retried or ran out of retries.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify request failed: status=%d message=%s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return e.Status == http.StatusNotFound && target == dupes.ErrOrderNotFound
}

// Client talks to the Shopify Admin REST API. It implements
// dupes.OrderDirectory and dupes.OrderMutator.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	userAgent   string
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

func NewClient(opts ClientOptions) (*Client, error) {
	token := strings.TrimSpace(opts.AccessToken)
	if token == "" {
		return nil, fmt.Errorf("shopify access token is required")
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	root := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if root == "" {
		shop := strings.TrimSuffix(strings.TrimSpace(opts.Shop), ".myshopify.com")
		if shop == "" {
			return nil, fmt.Errorf("shopify shop is required")
		}
		root = "https://" + shop + ".myshopify.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:     root + "/admin/api/" + apiVersion,
		accessToken: token,
		httpClient:  httpClient,
		userAgent:   strings.TrimSpace(opts.UserAgent),
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		logger:      logger.With("component", "shopify"),
	}, nil
}

func (c *Client) Shop(ctx context.Context) (ShopInfo, error) {
	var out shopEnvelope
	if _, err := c.do(ctx, http.MethodGet, c.baseURL+"/shop.json", nil, &out); err != nil {
		return ShopInfo{}, err
	}
	return out.Shop, nil
}

func (c *Client) FetchOrdersCreatedSince(ctx context.Context, since time.Time) ([]dupes.Order, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(listPageLimit))
	query.Set("status", "any")
	query.Set("fields", orderFields)
	query.Set("created_at_min", since.UTC().Format(time.RFC3339))
	c.logger.Debug("fetching orders", "created_at_min", since.UTC().Format(time.RFC3339))
	return c.listOrders(ctx, query)
}

func (c *Client) FetchCanceledOrders(ctx context.Context) ([]dupes.Order, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(canceledPageLimit))
	query.Set("status", "cancelled")
	query.Set("fields", orderFields)
	var out ordersEnvelope
	if _, err := c.do(ctx, http.MethodGet, c.baseURL+"/orders.json?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return convertOrders(out.Orders), nil
}

func (c *Client) FetchOrder(ctx context.Context, orderID string) (dupes.Order, error) {
	var out orderEnvelope
	if _, err := c.do(ctx, http.MethodGet, c.orderURL(orderID, ".json"), nil, &out); err != nil {
		return dupes.Order{}, err
	}
	return out.Order.toOrder(), nil
}

func (c *Client) SetTags(ctx context.Context, orderID string, tags dupes.Tags) error {
	return c.updateOrder(ctx, orderID, map[string]any{"tags": tags.String()})
}

func (c *Client) SetNote(ctx context.Context, orderID string, note string) error {
	return c.updateOrder(ctx, orderID, map[string]any{"note": note})
}

// Cancel has no note field on the wire; the note is logged only.
func (c *Client) Cancel(ctx context.Context, orderID string, opts dupes.CancelOptions) error {
	reason := strings.TrimSpace(opts.Reason)
	if reason == "" {
		reason = dupes.CancelReasonOther
	}
	c.logger.Info("canceling order", "order_id", orderID, "reason", reason, "note", opts.Note)
	payload := map[string]any{
		"reason": reason,
		"email":  opts.NotifyCustomer,
		"refund": opts.Refund,
	}
	_, err := c.do(ctx, http.MethodPost, c.orderURL(orderID, "/cancel.json"), payload, nil)
	return err
}

func (c *Client) Reopen(ctx context.Context, orderID string) error {
	c.logger.Info("reopening order", "order_id", orderID)
	_, err := c.do(ctx, http.MethodPost, c.orderURL(orderID, "/open.json"), nil, nil)
	return err
}

func (c *Client) updateOrder(ctx context.Context, orderID string, fields map[string]any) error {
	order := map[string]any{"id": orderID}
	for key, value := range fields {
		order[key] = value
	}
	_, err := c.do(ctx, http.MethodPut, c.orderURL(orderID, ".json"), map[string]any{"order": order}, nil)
	return err
}

func (c *Client) listOrders(ctx context.Context, query url.Values) ([]dupes.Order, error) {
	next := c.baseURL + "/orders.json?" + query.Encode()
	out := []dupes.Order{}
	for next != "" {
		var page ordersEnvelope
		header, err := c.do(ctx, http.MethodGet, next, nil, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, convertOrders(page.Orders)...)
		next = nextPageURL(header.Get("Link"))
	}
	return out, nil
}

func (c *Client) orderURL(orderID, suffix string) string {
	return c.baseURL + "/orders/" + url.PathEscape(strings.TrimSpace(orderID)) + suffix
}

func (c *Client) do(ctx context.Context, method, target string, payload any, out any) (http.Header, error) {
	if c == nil {
		return nil, fmt.Errorf("shopify client is nil")
	}
	var bodyBytes []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyBytes = encoded
	}
	idempotent := method == http.MethodGet

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if idempotent && attempt < c.maxRetries && ctx.Err() == nil {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return nil, fmt.Errorf("decode shopify response: %w", err)
				}
			}
			return resp.Header, nil
		}

		if retryableStatus(resp.StatusCode, idempotent) && attempt < c.maxRetries {
			delay := c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))
			c.logger.Warn("shopify request throttled, retrying", "status", resp.StatusCode, "attempt", attempt+1, "delay", delay)
			if waitErr := sleepContext(ctx, delay); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
		c.logger.Error("shopify request failed", "method", method, "status", resp.StatusCode, "message", apiErr.Message)
		return nil, apiErr
	}
}

// retryableStatus allows a retry of writes only on 429, where Shopify has
// rejected the call before applying it. A write that failed with 5xx may
// already have taken effect.
func retryableStatus(status int, idempotent bool) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return idempotent && status >= 500 && status <= 599
}

// errorMessage flattens Shopify's {"errors": ...} which can be a string, a
// list or a field map.
func errorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	var parsed struct {
		Errors json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &parsed) != nil || len(parsed.Errors) == 0 {
		return trimmed
	}
	var text string
	if json.Unmarshal(parsed.Errors, &text) == nil {
		return text
	}
	var list []string
	if json.Unmarshal(parsed.Errors, &list) == nil {
		return strings.Join(list, "; ")
	}
	var fields map[string][]string
	if json.Unmarshal(parsed.Errors, &fields) == nil {
		parts := make([]string, 0, len(fields))
		for field, messages := range fields {
			parts = append(parts, field+" "+strings.Join(messages, ", "))
		}
		return strings.Join(parts, "; ")
	}
	return trimmed
}

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

func nextPageURL(link string) string {
	match := linkNextPattern.FindStringSubmatch(link)
	if len(match) != 2 {
		return ""
	}
	return match[1]
}

func convertOrders(wire []wireOrder) []dupes.Order {
	out := make([]dupes.Order, 0, len(wire))
	for _, order := range wire {
		out = append(out, order.toOrder())
	}
	return out
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	return delay
}

// Shopify sends fractional seconds ("2.0").
func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ interface {
	dupes.OrderDirectory
	dupes.OrderMutator
} = (*Client)(nil)

