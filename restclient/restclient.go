// Package restclient is an independent, stateless GET/POST helper for the
// exchange's REST-side endpoints. It shares the signing package's HMAC
// primitive with the Connection Supervisor's auth envelope but is otherwise
// unrelated to it: no session, no reconnect, no correlation — the spec's
// "narrow contracts the core needs" carved out from the core itself (§1).
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/heliotrope-markets/xstream/signing"
)

// BookLevel is one side of a typed order-book snapshot: price and size
// carried as decimal.Decimal rather than float64, matching the precision
// the teacher's REST entities use for every money-shaped field.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBookSnapshot is the typed shape of a GET .../orderbook response.
type OrderBookSnapshot struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// GetOrderBookSnapshot fetches and decodes a symbol's order-book snapshot.
func (c *Client) GetOrderBookSnapshot(ctx context.Context, symbol string) (OrderBookSnapshot, error) {
	var out OrderBookSnapshot
	err := c.Get(ctx, "/v1/orderbook/"+symbol, nil, &out)
	return out, err
}

// InvalidResponseError is raised when a response has a non-200 status or a
// content-type the client doesn't recognize as JSON.
type InvalidResponseError struct {
	StatusCode  int
	ContentType string
	Body        string
}

func (e *InvalidResponseError) Error() string {
	if e.ContentType != "" && e.StatusCode == http.StatusOK {
		return fmt.Sprintf("restclient: unexpected content-type %q", e.ContentType)
	}
	return fmt.Sprintf("restclient: unexpected status %d: %s", e.StatusCode, e.Body)
}

// jsonContentTypes are the content-types accepted as JSON. The spec's Open
// Questions resolve the original implementation's over-strict rejection of
// "text/json" by accepting both it and the standard "application/json".
var jsonContentTypes = map[string]bool{
	"application/json": true,
	"text/json":        true,
}

// Client is a stateless REST helper: every call carries its own signed
// request, there is no persistent connection or session state to hold.
type Client struct {
	BaseURL    string
	UserID     string
	HTTPClient *http.Client
	Signer     *signing.Signer
	UserAgent  string
}

// New builds a Client. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(baseURL, userID string, signer *signing.Signer, httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		UserID:     userID,
		HTTPClient: httpClient,
		Signer:     signer,
		UserAgent:  userAgent,
	}
}

// Query holds REST query parameters, including the date-only fields some
// endpoints (settlement date filters, trading-calendar ranges) expect as a
// bare date rather than a full timestamp.
type Query struct {
	values url.Values
}

// NewQuery returns an empty Query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Set adds a plain string query parameter.
func (q *Query) Set(key, value string) *Query {
	q.values.Set(key, value)
	return q
}

// SetDate adds a date-only query parameter, e.g. "settlement_date=2024-03-18".
func (q *Query) SetDate(key string, d civil.Date) *Query {
	q.values.Set(key, d.String())
	return q
}

func (q *Query) encode() string {
	if q == nil {
		return ""
	}
	return q.values.Encode()
}

// Get issues a signed GET request to path (joined with BaseURL) and decodes
// a JSON response body into out (which may be nil to discard the body).
func (c *Client) Get(ctx context.Context, path string, q *Query, out any) error {
	u := c.BaseURL + path
	if enc := q.encode(); enc != "" {
		u += "?" + enc
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("restclient: building request: %w", err)
	}
	return c.do(req, out)
}

// Post issues a signed POST request with a JSON-encoded body and decodes a
// JSON response into out. An idempotency key minted with ulid is attached
// so retried POSTs (e.g. after a network timeout) are recognized as
// duplicates by the exchange rather than double-executed.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("restclient: encoding body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("restclient: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", ulid.Make().String())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.sign(req)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("restclient: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("restclient: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &InvalidResponseError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	ct := resp.Header.Get("Content-Type")
	if base, _, _ := mimeSplit(ct); ct != "" && !jsonContentTypes[base] {
		return &InvalidResponseError{StatusCode: resp.StatusCode, ContentType: ct}
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("restclient: decoding response: %w", err)
	}
	return nil
}

// sign attaches the REST signature contract from §6: nonce = timestamp in
// milliseconds, signature over str(ts_ms)+user_id+key — distinct from the
// WS envelope's integer-seconds payload, per the spec's explicit warning
// not to swap units between the two wire contracts.
func (c *Client) sign(req *http.Request) {
	if c.Signer == nil {
		return
	}
	tsMillis := time.Now().UnixMilli()
	sig := c.Signer.RESTSignature(tsMillis, c.UserID)
	req.Header.Set("X-Key", c.Signer.Key())
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Nonce", strconv.FormatInt(tsMillis, 10))
}

func mimeSplit(contentType string) (base, params string, ok bool) {
	parts := strings.SplitN(contentType, ";", 2)
	base = strings.TrimSpace(strings.ToLower(parts[0]))
	if len(parts) > 1 {
		params = strings.TrimSpace(parts[1])
	}
	return base, params, base != ""
}
