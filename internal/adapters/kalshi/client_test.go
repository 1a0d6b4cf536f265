package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

var testRef = time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, nil, testLogger())
	c.now = func() time.Time { return testRef }
	return c
}

func writeTestKey(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path, key
}

func TestSigner_SignsRequest(t *testing.T) {
	path, key := writeTestKey(t)
	signer, err := NewSigner("key-123", path)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://example.com/trade-api/v2/portfolio/balance", nil)
	require.NoError(t, err)
	require.NoError(t, signer.Sign(req, testRef))

	assert.Equal(t, "key-123", req.Header.Get("KALSHI-ACCESS-KEY"))
	ts := req.Header.Get("KALSHI-ACCESS-TIMESTAMP")
	assert.Equal(t, "1770465600000", ts)

	sig, err := base64.StdEncoding.DecodeString(req.Header.Get("KALSHI-ACCESS-SIGNATURE"))
	require.NoError(t, err)
	digest := sha256.Sum256([]byte(ts + "GET" + "/trade-api/v2/portfolio/balance"))
	err = rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	assert.NoError(t, err)
}

func TestSigner_PKCS8Key(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = NewSigner("key-123", path)
	assert.NoError(t, err)
}

func TestSigner_BadFile(t *testing.T) {
	_, err := NewSigner("k", filepath.Join(t.TempDir(), "missing.pem"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "junk.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a pem"), 0o600))
	_, err = NewSigner("k", path)
	assert.Error(t, err)
}

func TestListMarkets_PaginationParams(t *testing.T) {
	var gotQuery map[string][]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(marketsResponse{
			Markets: []marketPayload{{
				Ticker:      "KXNBA-26FEB07HOUOKC-OKC",
				EventTicker: "KXNBA-26FEB07HOUOKC",
				Title:       "Thunder to win",
				Category:    "Sports",
				Status:      "active",
				CloseTime:   "2026-02-07T23:00:00Z",
				Volume24h:   1200,
				Result:      "",
			}},
			Cursor: "next-page",
		})
	}))

	contracts, cursor, err := c.ListMarkets(context.Background(), "abc", "KXNBA", "open", 100)
	require.NoError(t, err)
	assert.Equal(t, "next-page", cursor)
	assert.Equal(t, []string{"abc"}, gotQuery["cursor"])
	assert.Equal(t, []string{"KXNBA"}, gotQuery["series_ticker"])
	assert.Equal(t, []string{"open"}, gotQuery["status"])
	assert.Equal(t, []string{"100"}, gotQuery["limit"])

	require.Len(t, contracts, 1)
	got := contracts[0]
	assert.Equal(t, "KXNBA-26FEB07HOUOKC-OKC", got.Ticker)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, -1, got.Settlement)
	assert.Equal(t, testRef, got.FetchedAt)
	assert.True(t, got.CloseTime.Equal(time.Date(2026, 2, 7, 23, 0, 0, 0, time.UTC)))
}

func TestGetContract_SettledResult(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/KXT-1", r.URL.Path)
		json.NewEncoder(w).Encode(marketResponse{Market: marketPayload{
			Ticker: "KXT-1", Status: "settled", Result: "yes",
		}})
	}))

	got, err := c.GetContract(context.Background(), "KXT-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSettled, got.Status)
	assert.Equal(t, 1, got.Settlement)
}

func TestGetTopOfBook_ComplementPricing(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/KXT-1/orderbook", r.URL.Path)
		var resp orderbookResponse
		// Best level last: YES bids up to 48c, NO bids up to 50c.
		resp.Orderbook.Yes = [][]int{{40, 200}, {48, 120}}
		resp.Orderbook.No = [][]int{{45, 300}, {50, 80}}
		json.NewEncoder(w).Encode(resp)
	}))

	book, err := c.GetTopOfBook(context.Background(), "KXT-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.48, book.YesBid, 1e-9)
	assert.Equal(t, 120, book.YesBidSize)
	// YES ask is the complement of the best NO bid.
	assert.InDelta(t, 0.50, book.YesAsk, 1e-9)
	assert.Equal(t, 80, book.YesAskSize)
	assert.InDelta(t, 0.50, book.NoBid, 1e-9)
	assert.InDelta(t, 0.52, book.NoAsk, 1e-9)
	assert.Equal(t, testRef, book.CapturedAt)
	assert.True(t, book.Valid())
}

func TestGetTopOfBook_EmptySide(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp orderbookResponse
		resp.Orderbook.Yes = [][]int{{48, 120}}
		json.NewEncoder(w).Encode(resp)
	}))

	book, err := c.GetTopOfBook(context.Background(), "KXT-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.48, book.YesBid, 1e-9)
	assert.Zero(t, book.YesAsk)
	assert.False(t, book.Valid())
}

func TestPlaceOrder_LimitBody(t *testing.T) {
	var gotBody map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/portfolio/orders", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		json.NewEncoder(w).Encode(orderResponse{Order: orderPayload{
			OrderID: "ex-123", Ticker: "KXT-1", Status: "resting",
		}})
	}))

	ack, err := c.PlaceOrder(context.Background(), ports.OrderRequest{
		Ticker:         "KXT-1",
		Side:           domain.OrderYes,
		Action:         "buy",
		Count:          10,
		Type:           domain.OrderLimit,
		PriceCents:     49,
		IdempotencyKey: "2026-02-07|KXT-1|mispricing_v1|yes",
	})
	require.NoError(t, err)
	assert.Equal(t, "ex-123", ack.ExchangeOrderID)
	assert.Equal(t, domain.OrderOpen, ack.Status)

	assert.Equal(t, "KXT-1", gotBody["ticker"])
	assert.Equal(t, "2026-02-07|KXT-1|mispricing_v1|yes", gotBody["client_order_id"])
	assert.Equal(t, "yes", gotBody["side"])
	assert.Equal(t, "buy", gotBody["action"])
	assert.Equal(t, float64(10), gotBody["count"])
	assert.Equal(t, float64(49), gotBody["yes_price"])
	assert.NotContains(t, gotBody, "no_price")
}

func TestPlaceOrder_NoSideUsesNoPrice(t *testing.T) {
	var gotBody map[string]any
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		json.NewEncoder(w).Encode(orderResponse{Order: orderPayload{OrderID: "ex-9", Status: "resting"}})
	}))

	_, err := c.PlaceOrder(context.Background(), ports.OrderRequest{
		Ticker: "KXT-1", Side: domain.OrderNo, Action: "buy",
		Count: 5, Type: domain.OrderLimit, PriceCents: 44,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(44), gotBody["no_price"])
	assert.NotContains(t, gotBody, "yes_price")
}

func TestPlaceOrder_RejectsOutOfRangePrice(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should go out")
	}))

	for _, price := range []int{0, 100} {
		_, err := c.PlaceOrder(context.Background(), ports.OrderRequest{
			Ticker: "KXT-1", Side: domain.OrderYes, Action: "buy",
			Count: 1, Type: domain.OrderLimit, PriceCents: price,
		})
		assert.Error(t, err)
	}
}

func TestGetOrder_ExecutedAveragesFillCost(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(orderResponse{Order: orderPayload{
			OrderID: "ex-123", Status: "executed",
			FilledQuantity: 10, FillAvgPrice: 490,
		}})
	}))

	ack, err := c.GetOrder(context.Background(), "ex-123")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, ack.Status)
	assert.Equal(t, 10, ack.FilledQuantity)
	assert.InDelta(t, 49.0, ack.AvgFillPrice, 1e-9)
}

func TestGetFills_Parses(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "KXT-1", r.URL.Query().Get("ticker"))
		w.Write([]byte(`{"fills":[{"trade_id":"tr-1","order_id":"ex-1","ticker":"KXT-1","side":"yes","yes_price":49,"count":10,"created_time":"2026-02-07T12:00:00Z"}]}`))
	}))

	fills, err := c.GetFills(context.Background(), "KXT-1", 50)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "tr-1", fills[0].ExchangeTradeID)
	assert.Equal(t, 49, fills[0].Price)
	assert.Equal(t, 10, fills[0].Quantity)
	assert.InDelta(t, 4.9, fills[0].Notional, 1e-9)
}

func TestGetBalanceAndPositions(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/portfolio/balance":
			w.Write([]byte(`{"balance":123456}`))
		case "/portfolio/positions":
			w.Write([]byte(`{"market_positions":[
				{"ticker":"KXT-1","position":10,"market_exposure":490},
				{"ticker":"KXT-2","position":-5,"market_exposure":220},
				{"ticker":"KXT-3","position":0,"market_exposure":0}]}`))
		default:
			http.NotFound(w, r)
		}
	}))

	balance, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1234.56, balance, 1e-9)

	positions, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, domain.OrderYes, positions[0].Side)
	assert.Equal(t, 10, positions[0].Quantity)
	assert.InDelta(t, 49.0, positions[0].EntryPrice, 1e-9)
	assert.Equal(t, domain.OrderNo, positions[1].Side)
	assert.Equal(t, 5, positions[1].Quantity)
}

func TestDoWithRetry_RetriesServerErrors(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"balance":100}`))
	}))

	balance, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, balance, 1e-9)
	assert.Equal(t, 3, calls)
}

func TestDoWithRetry_FailsFastOnClientError(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))

	_, err := c.GetBalance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, 1, calls)
}

func TestDoWithRetry_HonorsRetryAfter(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"balance":100}`))
	}))

	_, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
