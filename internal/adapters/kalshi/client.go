package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

const (
	defaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

	// Exchange documented limit is higher; stay well under it.
	requestsPerSec = 5

	maxRetries    = 3
	baseRetryWait = 1 * time.Second
	maxRetryWait  = 10 * time.Second
)

// Client is the signed exchange REST client. It implements
// ports.ExchangeClient. A nil signer leaves requests unauthenticated,
// enough for the public market-data endpoints.
type Client struct {
	http    *http.Client
	base    string
	signer  *Signer
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.ExchangeClient = (*Client)(nil)

// NewClient builds an exchange client. An empty baseURL selects
// production.
func NewClient(baseURL string, signer *Signer, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		base:    baseURL,
		signer:  signer,
		limiter: rate.NewLimiter(requestsPerSec, 5),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// --- wire types ---

type marketPayload struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	SeriesTicker string `json:"series_ticker"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Status       string `json:"status"`
	CloseTime    string `json:"close_time"`
	LastPrice    int    `json:"last_price"`
	Volume24h    int    `json:"volume_24h"`
	Result       string `json:"result"`
}

type marketsResponse struct {
	Markets []marketPayload `json:"markets"`
	Cursor  string          `json:"cursor"`
}

type marketResponse struct {
	Market marketPayload `json:"market"`
}

type orderbookResponse struct {
	Orderbook struct {
		// Price levels as [cents, contracts] pairs, best level last.
		Yes [][]int `json:"yes"`
		No  [][]int `json:"no"`
	} `json:"orderbook"`
}

type orderPayload struct {
	OrderID        string  `json:"order_id"`
	Ticker         string  `json:"ticker"`
	Status         string  `json:"status"`
	FilledQuantity int     `json:"taker_fill_count"`
	FillAvgPrice   float64 `json:"taker_fill_cost"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type fillsResponse struct {
	Fills []struct {
		TradeID  string `json:"trade_id"`
		OrderID  string `json:"order_id"`
		Ticker   string `json:"ticker"`
		Side     string `json:"side"`
		YesPrice int    `json:"yes_price"`
		Count    int    `json:"count"`
		Ts       string `json:"created_time"`
	} `json:"fills"`
}

type balanceResponse struct {
	BalanceCents int64 `json:"balance"`
}

type positionsResponse struct {
	MarketPositions []struct {
		Ticker         string `json:"ticker"`
		Position       int    `json:"position"` // signed: positive yes, negative no
		MarketExposure int    `json:"market_exposure"`
	} `json:"market_positions"`
}

// --- ports.ExchangeClient ---

// ListMarkets fetches one page of markets.
func (c *Client) ListMarkets(ctx context.Context, cursor, series, status string, limit int) ([]domain.Contract, string, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if series != "" {
		q.Set("series_ticker", series)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp marketsResponse
	if err := c.get(ctx, "/markets?"+q.Encode(), &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi.ListMarkets: %w", err)
	}

	contracts := make([]domain.Contract, 0, len(resp.Markets))
	for _, m := range resp.Markets {
		contracts = append(contracts, c.toContract(m))
	}
	return contracts, resp.Cursor, nil
}

// GetContract fetches one market by ticker.
func (c *Client) GetContract(ctx context.Context, ticker string) (domain.Contract, error) {
	var resp marketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), &resp); err != nil {
		return domain.Contract{}, fmt.Errorf("kalshi.GetContract: %s: %w", ticker, err)
	}
	return c.toContract(resp.Market), nil
}

// GetTopOfBook fetches the orderbook and reduces it to the best levels.
func (c *Client) GetTopOfBook(ctx context.Context, ticker string) (domain.TopOfBook, error) {
	var resp orderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", &resp); err != nil {
		return domain.TopOfBook{}, fmt.Errorf("kalshi.GetTopOfBook: %s: %w", ticker, err)
	}

	book := domain.TopOfBook{Ticker: ticker, CapturedAt: c.now()}
	// The book lists resting YES buys and NO buys; the best YES ask is
	// the complement of the best NO bid.
	if yesBid, size, ok := bestLevel(resp.Orderbook.Yes); ok {
		book.YesBid = float64(yesBid) / 100
		book.YesBidSize = size
		book.NoAsk = 1 - book.YesBid
		book.NoAskSize = size
	}
	if noBid, size, ok := bestLevel(resp.Orderbook.No); ok {
		book.NoBid = float64(noBid) / 100
		book.NoBidSize = size
		book.YesAsk = 1 - book.NoBid
		book.YesAskSize = size
	}
	return book, nil
}

func bestLevel(levels [][]int) (int, int, bool) {
	if len(levels) == 0 {
		return 0, 0, false
	}
	best := levels[len(levels)-1]
	if len(best) < 2 {
		return 0, 0, false
	}
	return best[0], best[1], true
}

// PlaceOrder submits an order. Prices outside 1..99 are rejected before
// any request goes out.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (ports.OrderAck, error) {
	if req.Type == domain.OrderLimit && (req.PriceCents < 1 || req.PriceCents > 99) {
		return ports.OrderAck{}, fmt.Errorf("kalshi.PlaceOrder: price %dc outside 1..99", req.PriceCents)
	}

	body := map[string]any{
		"ticker":          req.Ticker,
		"client_order_id": req.IdempotencyKey,
		"side":            string(req.Side),
		"action":          req.Action,
		"count":           req.Count,
		"type":            string(req.Type),
	}
	if req.Type == domain.OrderLimit {
		if req.Side == domain.OrderYes {
			body["yes_price"] = req.PriceCents
		} else {
			body["no_price"] = req.PriceCents
		}
	}

	var resp orderResponse
	if err := c.post(ctx, "/portfolio/orders", body, &resp); err != nil {
		return ports.OrderAck{}, fmt.Errorf("kalshi.PlaceOrder: %s: %w", req.Ticker, err)
	}
	return toAck(resp.Order), nil
}

// CancelOrder cancels an open exchange order.
func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if err := c.del(ctx, "/portfolio/orders/"+url.PathEscape(exchangeOrderID)); err != nil {
		return fmt.Errorf("kalshi.CancelOrder: %s: %w", exchangeOrderID, err)
	}
	return nil
}

// GetOrder fetches an order's exchange-side state.
func (c *Client) GetOrder(ctx context.Context, exchangeOrderID string) (ports.OrderAck, error) {
	var resp orderResponse
	if err := c.get(ctx, "/portfolio/orders/"+url.PathEscape(exchangeOrderID), &resp); err != nil {
		return ports.OrderAck{}, fmt.Errorf("kalshi.GetOrder: %s: %w", exchangeOrderID, err)
	}
	return toAck(resp.Order), nil
}

// GetFills lists recent fills, optionally per ticker.
func (c *Client) GetFills(ctx context.Context, ticker string, limit int) ([]domain.Fill, error) {
	q := url.Values{}
	if ticker != "" {
		q.Set("ticker", ticker)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp fillsResponse
	if err := c.get(ctx, "/portfolio/fills?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("kalshi.GetFills: %w", err)
	}

	fills := make([]domain.Fill, 0, len(resp.Fills))
	for _, f := range resp.Fills {
		ts, _ := time.Parse(time.RFC3339, f.Ts)
		fills = append(fills, domain.Fill{
			ID:              f.TradeID,
			OrderID:         f.OrderID,
			ExchangeTradeID: f.TradeID,
			Ticker:          f.Ticker,
			Side:            domain.OrderSide(f.Side),
			Price:           f.YesPrice,
			Quantity:        f.Count,
			Notional:        float64(f.YesPrice) * float64(f.Count) / 100,
			Timestamp:       ts,
		})
	}
	return fills, nil
}

// GetBalance returns the account balance in dollars.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", &resp); err != nil {
		return 0, fmt.Errorf("kalshi.GetBalance: %w", err)
	}
	return float64(resp.BalanceCents) / 100, nil
}

// GetPositions returns the open positions.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var resp positionsResponse
	if err := c.get(ctx, "/portfolio/positions", &resp); err != nil {
		return nil, fmt.Errorf("kalshi.GetPositions: %w", err)
	}

	var out []domain.Position
	for _, p := range resp.MarketPositions {
		if p.Position == 0 {
			continue
		}
		pos := domain.Position{Ticker: p.Ticker, Side: domain.OrderYes, Quantity: p.Position}
		if p.Position < 0 {
			pos.Side = domain.OrderNo
			pos.Quantity = -p.Position
		}
		if pos.Quantity > 0 {
			pos.EntryPrice = float64(p.MarketExposure) / float64(pos.Quantity)
		}
		out = append(out, pos)
	}
	return out, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) toContract(m marketPayload) domain.Contract {
	closeTime, _ := time.Parse(time.RFC3339, m.CloseTime)
	settlement := -1
	switch m.Result {
	case "yes":
		settlement = 1
	case "no":
		settlement = 0
	}
	return domain.Contract{
		Ticker:       m.Ticker,
		EventTicker:  m.EventTicker,
		SeriesTicker: m.SeriesTicker,
		Title:        m.Title,
		Category:     m.Category,
		Status:       domain.ContractStatus(m.Status),
		CloseTime:    closeTime,
		LastPrice:    m.LastPrice,
		Volume24h:    m.Volume24h,
		Settlement:   settlement,
		FetchedAt:    c.now(),
	}
}

func toAck(o orderPayload) ports.OrderAck {
	status := domain.OrderOpen
	switch o.Status {
	case "resting":
		status = domain.OrderOpen
	case "executed":
		status = domain.OrderFilled
	case "canceled":
		status = domain.OrderCancelled
	case "pending":
		status = domain.OrderSubmitted
	}
	avg := 0.0
	if o.FilledQuantity > 0 {
		avg = o.FillAvgPrice / float64(o.FilledQuantity)
	}
	return ports.OrderAck{
		ExchangeOrderID: o.OrderID,
		Status:          status,
		FilledQuantity:  o.FilledQuantity,
		AvgFillPrice:    avg,
	}
}

// --- transport ---

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	}, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (c *Client) del(ctx context.Context, path string) error {
	return c.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.base+path, nil)
	}, nil)
}

// doWithRetry sends the request with rate limiting, signing and
// exponential backoff. A 429 sleeps the server's hinted interval and
// retries without consuming a backoff attempt.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error), out any) error {
	rateLimited := false
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := build()
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.signer != nil {
			if err := c.signer.Sign(req, c.now()); err != nil {
				// Signing failures are not retried.
				return err
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			hint := retryAfter(resp)
			resp.Body.Close()
			if rateLimited {
				return fmt.Errorf("rate limited twice, giving up")
			}
			rateLimited = true
			c.logger.Warn("rate limited by exchange", "retry_after", hint)
			select {
			case <-time.After(hint):
			case <-ctx.Done():
				return ctx.Err()
			}
			attempt--
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		if out == nil {
			resp.Body.Close()
			return nil
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return baseRetryWait
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
