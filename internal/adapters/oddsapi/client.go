// Package oddsapi implements the sportsbook aggregator client.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"kalshi-edge/config"
	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

const (
	sourceName = "the-odds-api"

	// The free tier meters by request; one per second is plenty.
	requestsPerSec = 1

	maxRetries    = 3
	baseRetryWait = 1 * time.Second
)

// Client pulls bookmaker odds from the aggregator REST API. It
// implements ports.OddsProvider.
type Client struct {
	http    *http.Client
	cfg     config.OddsAPIConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.OddsProvider = (*Client)(nil)

// NewClient builds an aggregator client from the config section.
func NewClient(cfg config.OddsAPIConfig, logger *slog.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		cfg:     cfg,
		limiter: rate.NewLimiter(requestsPerSec, 1),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// --- wire types ---

type sportPayload struct {
	Key    string `json:"key"`
	Active bool   `json:"active"`
}

type eventPayload struct {
	ID           string `json:"id"`
	SportKey     string `json:"sport_key"`
	CommenceTime string `json:"commence_time"`
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`

	Bookmakers []struct {
		Key        string `json:"key"`
		Title      string `json:"title"`
		LastUpdate string `json:"last_update"`
		Markets    []struct {
			Key      string `json:"key"`
			Outcomes []struct {
				Name  string  `json:"name"`
				Price float64 `json:"price"`
				Point float64 `json:"point"`
			} `json:"outcomes"`
		} `json:"markets"`
	} `json:"bookmakers"`
}

// --- ports.OddsProvider ---

// ListSports returns the aggregator's active sport keys.
func (c *Client) ListSports(ctx context.Context) ([]string, error) {
	var sports []sportPayload
	if err := c.get(ctx, "/sports", nil, &sports); err != nil {
		return nil, fmt.Errorf("oddsapi.ListSports: %w", err)
	}

	keys := make([]string, 0, len(sports))
	for _, s := range sports {
		if s.Active {
			keys = append(keys, s.Key)
		}
	}
	return keys, nil
}

// ListEvents returns the scheduled games for a sport.
func (c *Client) ListEvents(ctx context.Context, sport string) ([]domain.SportEvent, error) {
	var events []eventPayload
	path := "/sports/" + url.PathEscape(sport) + "/events"
	if err := c.get(ctx, path, nil, &events); err != nil {
		return nil, fmt.Errorf("oddsapi.ListEvents: %s: %w", sport, err)
	}

	out := make([]domain.SportEvent, 0, len(events))
	for _, e := range events {
		commence, _ := time.Parse(time.RFC3339, e.CommenceTime)
		out = append(out, domain.SportEvent{
			ID:           e.ID,
			Sport:        e.SportKey,
			HomeTeam:     e.HomeTeam,
			AwayTeam:     e.AwayTeam,
			CommenceTime: commence,
		})
	}
	return out, nil
}

// GetQuotes fetches current odds for a sport. Each bookmaker outcome
// becomes one append-only quote; market types the scanner does not
// understand are skipped.
func (c *Client) GetQuotes(ctx context.Context, sport string) ([]domain.Quote, error) {
	q := url.Values{}
	q.Set("regions", c.cfg.Regions)
	q.Set("markets", "h2h,spreads,totals")
	q.Set("oddsFormat", "decimal")
	if len(c.cfg.Bookmakers) > 0 {
		q.Set("bookmakers", strings.Join(c.cfg.Bookmakers, ","))
	}

	var events []eventPayload
	path := "/sports/" + url.PathEscape(sport) + "/odds"
	if err := c.get(ctx, path, q, &events); err != nil {
		return nil, fmt.Errorf("oddsapi.GetQuotes: %s: %w", sport, err)
	}

	captured := c.now()
	var quotes []domain.Quote
	skipped := map[string]int{}
	for _, e := range events {
		commence, _ := time.Parse(time.RFC3339, e.CommenceTime)
		title := fmt.Sprintf("%s vs %s", e.AwayTeam, e.HomeTeam)

		for _, bk := range e.Bookmakers {
			for _, m := range bk.Markets {
				mt, ok := parseMarketType(m.Key)
				if !ok {
					skipped[m.Key]++
					continue
				}
				for _, o := range m.Outcomes {
					if o.Price == 0 {
						continue
					}
					quotes = append(quotes, domain.Quote{
						Source:     sourceName,
						Bookmaker:  bk.Title,
						EventID:    e.ID,
						EventTitle: title,
						Sport:      e.SportKey,
						MarketType: mt,
						Selection:  o.Name,
						Format:     inferFormat(o.Price),
						Odds:       o.Price,
						Point:      o.Point,
						StartTime:  commence,
						CapturedAt: captured,
					})
				}
			}
		}
	}

	for key, n := range skipped {
		c.logger.Debug("skipped unsupported market type", "market", key, "count", n)
	}
	c.logger.Info("odds fetched", "sport", sport, "events", len(events), "quotes", len(quotes))
	return quotes, nil
}

func parseMarketType(key string) (domain.MarketType, bool) {
	switch domain.MarketType(key) {
	case domain.MarketMoneyline, domain.MarketSpread, domain.MarketTotal:
		return domain.MarketType(key), true
	}
	return "", false
}

// inferFormat guards against a misconfigured oddsFormat: decimal odds
// never stray far from 1 while American prices start at ±100.
func inferFormat(price float64) domain.OddsFormat {
	if math.Abs(price) > 10 {
		return domain.OddsAmerican
	}
	return domain.OddsDecimal
}

// --- transport ---

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("apiKey", c.cfg.APIKey)
	full := c.cfg.BaseURL + path + "?" + q.Encode()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		if remaining := resp.Header.Get("X-Requests-Remaining"); remaining != "" {
			c.logger.Debug("aggregator quota", "remaining", remaining)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
