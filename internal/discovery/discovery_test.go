package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-edge/config"
	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

var ref = time.Date(2026, 2, 7, 15, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		MaxPages:             10,
		MinVolume24h:         100,
		MaxSpreadCents:       5,
		MinDepth:             50,
		TradingCutoffMinutes: 30,
	}
}

type stubExchange struct {
	ports.ExchangeClient
	pages [][]domain.Contract
	books map[string]domain.TopOfBook
	calls int
}

func (s *stubExchange) ListMarkets(_ context.Context, cursor, _, _ string, _ int) ([]domain.Contract, string, error) {
	page := s.calls
	s.calls++
	if page >= len(s.pages) {
		return nil, "", nil
	}
	next := ""
	if page < len(s.pages)-1 {
		next = fmt.Sprintf("cursor-%d", page+1)
	}
	return s.pages[page], next, nil
}

func (s *stubExchange) GetTopOfBook(_ context.Context, ticker string) (domain.TopOfBook, error) {
	book, ok := s.books[ticker]
	if !ok {
		return domain.TopOfBook{}, fmt.Errorf("no book for %s", ticker)
	}
	return book, nil
}

func activeContract(ticker string, minutesToClose float64) domain.Contract {
	return domain.Contract{
		Ticker:     ticker,
		Title:      ticker,
		Category:   "Sports",
		Status:     domain.StatusActive,
		CloseTime:  ref.Add(time.Duration(minutesToClose * float64(time.Minute))),
		Volume24h:  500,
		Settlement: -1,
	}
}

func goodBook(ticker string) domain.TopOfBook {
	return domain.TopOfBook{
		Ticker: ticker,
		YesBid: 0.48, YesAsk: 0.52,
		YesBidSize: 60, YesAskSize: 60,
		CapturedAt: ref,
	}
}

func TestDiscoverer_HappyPath(t *testing.T) {
	c := activeContract("T-1", 120)
	exchange := &stubExchange{
		pages: [][]domain.Contract{{c}},
		books: map[string]domain.TopOfBook{"T-1": goodBook("T-1")},
	}

	d := New(testConfig(), testLogger(), exchange, nil)
	got, err := d.Discover(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T-1", got[0].Contract.Ticker)
	assert.Empty(t, d.Rejections)
}

func TestDiscoverer_SameUTCDateOnly(t *testing.T) {
	today := activeContract("TODAY", 120)
	tomorrow := activeContract("TOMORROW", 24*60+120)
	exchange := &stubExchange{
		pages: [][]domain.Contract{{today, tomorrow}},
		books: map[string]domain.TopOfBook{
			"TODAY":    goodBook("TODAY"),
			"TOMORROW": goodBook("TOMORROW"),
		},
	}

	d := New(testConfig(), testLogger(), exchange, nil)
	got, err := d.Discover(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TODAY", got[0].Contract.Ticker)
}

func TestDiscoverer_TradingCutoffStrict(t *testing.T) {
	tooClose := activeContract("CLOSE-20", 20)
	exactly := activeContract("CLOSE-30", 30)
	fine := activeContract("CLOSE-40", 40)
	exchange := &stubExchange{
		pages: [][]domain.Contract{{tooClose, exactly, fine}},
		books: map[string]domain.TopOfBook{
			"CLOSE-20": goodBook("CLOSE-20"),
			"CLOSE-30": goodBook("CLOSE-30"),
			"CLOSE-40": goodBook("CLOSE-40"),
		},
	}

	d := New(testConfig(), testLogger(), exchange, nil)
	got, err := d.Discover(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "CLOSE-40", got[0].Contract.Ticker)
	assert.Equal(t, 2, d.Rejections[ReasonTooCloseToExpiry])
}

func TestDiscoverer_FilterReasons(t *testing.T) {
	lowVol := activeContract("LOWVOL", 120)
	lowVol.Volume24h = 10
	noBook := activeContract("NOBOOK", 120)
	wide := activeContract("WIDE", 120)
	thin := activeContract("THIN", 120)
	blacklisted := activeContract("BANNED", 120)
	settled := activeContract("SETTLED", 120)
	settled.Status = domain.StatusSettled
	settled.Settlement = 1

	wideBook := goodBook("WIDE")
	wideBook.YesBid, wideBook.YesAsk = 0.40, 0.52
	thinBook := goodBook("THIN")
	thinBook.YesBidSize, thinBook.YesAskSize = 10, 10

	cfg := testConfig()
	cfg.TickerBlacklist = []string{"BANNED"}

	exchange := &stubExchange{
		pages: [][]domain.Contract{{lowVol, noBook, wide, thin, blacklisted, settled}},
		books: map[string]domain.TopOfBook{
			"WIDE":    wideBook,
			"THIN":    thinBook,
			"SETTLED": goodBook("SETTLED"),
		},
	}

	d := New(cfg, testLogger(), exchange, nil)
	got, err := d.Discover(context.Background(), ref)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, d.Rejections[ReasonLowVolume])
	assert.Equal(t, 1, d.Rejections[ReasonNoOrderbook])
	assert.Equal(t, 1, d.Rejections[ReasonWideSpread])
	assert.Equal(t, 1, d.Rejections[ReasonThinDepth])
	assert.Equal(t, 1, d.Rejections[ReasonTickerBlacklisted])
	assert.Equal(t, 1, d.Rejections[ReasonNotActive])
}

func TestDiscoverer_CategoryWhitelist(t *testing.T) {
	sports := activeContract("SPORTS", 120)
	politics := activeContract("POLITICS", 120)
	politics.Category = "Politics"

	cfg := testConfig()
	cfg.CategoryWhitelist = []string{"sports"}

	exchange := &stubExchange{
		pages: [][]domain.Contract{{sports, politics}},
		books: map[string]domain.TopOfBook{
			"SPORTS":   goodBook("SPORTS"),
			"POLITICS": goodBook("POLITICS"),
		},
	}

	d := New(cfg, testLogger(), exchange, nil)
	got, err := d.Discover(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "SPORTS", got[0].Contract.Ticker)
	assert.Equal(t, 1, d.Rejections[ReasonCategoryNotWhitelisted])
}

func TestDiscoverer_PageCap(t *testing.T) {
	// 15 pages available, cap at 3: only three list calls go out.
	pages := make([][]domain.Contract, 15)
	for i := range pages {
		pages[i] = []domain.Contract{activeContract(fmt.Sprintf("P%d", i), 24*60+120)}
	}
	exchange := &stubExchange{pages: pages}

	cfg := testConfig()
	cfg.MaxPages = 3
	d := New(cfg, testLogger(), exchange, nil)
	_, err := d.Discover(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, 3, exchange.calls)
}
