package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliotrope-markets/xstream/signing"
)

func testSigner(t *testing.T) *signing.Signer {
	t.Helper()
	s, err := signing.New("key", "secret")
	require.NoError(t, err)
	return s
}

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "2024-03-18", r.URL.Query().Get("settlement_date"))
		assert.NotEmpty(t, r.Header.Get("X-Signature"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "user-1", testSigner(t), srv.Client(), "xstream/test")

	q := NewQuery().SetDate("settlement_date", civil.Date{Year: 2024, Month: 3, Day: 18})
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Get(context.Background(), "/v1/orders", q, &out))
	assert.Equal(t, "abc", out.ID)
}

func TestGetAcceptsTextJSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/json")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "user-1", testSigner(t), srv.Client(), "")
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, c.Get(context.Background(), "/v1/orders", nil, &out))
	assert.Equal(t, "abc", out.ID)
}

func TestGetRejectsUnknownContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	c := New(srv.URL, "user-1", testSigner(t), srv.Client(), "")
	err := c.Get(context.Background(), "/v1/orders", nil, &struct{}{})
	var invalidErr *InvalidResponseError
	require.ErrorAs(t, err, &invalidErr)
}

func TestGetNon200IsInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	}))
	defer srv.Close()

	c := New(srv.URL, "user-1", testSigner(t), srv.Client(), "")
	err := c.Get(context.Background(), "/v1/orders", nil, &struct{}{})
	var invalidErr *InvalidResponseError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, http.StatusInternalServerError, invalidErr.StatusCode)
}

func TestPostAttachesIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "user-1", testSigner(t), srv.Client(), "")
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.Post(context.Background(), "/v1/orders", map[string]string{"symbol": "AAPL"}, &out))
	assert.True(t, out.OK)
}

func TestGetOrderBookSnapshotDecodesDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orderbook/AAPL", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"AAPL","bids":[{"price":"189.50","size":"12.25"}],"asks":[{"price":"189.55","size":"8"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "user-1", testSigner(t), srv.Client(), "")
	snap, err := c.GetOrderBookSnapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", snap.Symbol)
	require.Len(t, snap.Bids, 1)
	assert.True(t, decimal.NewFromFloat(189.50).Equal(snap.Bids[0].Price))
	assert.True(t, decimal.NewFromFloat(12.25).Equal(snap.Bids[0].Size))
}
