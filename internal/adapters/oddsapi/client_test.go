package oddsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-edge/config"
	"kalshi-edge/internal/domain"
)

var testRef = time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.OddsAPIConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Regions:    "us",
		Bookmakers: []string{"pinnacle", "draftkings"},
	}, testLogger())
	c.now = func() time.Time { return testRef }
	return c
}

const oddsFixture = `[{
	"id": "evt-1",
	"sport_key": "basketball_nba",
	"commence_time": "2026-02-07T19:00:00Z",
	"home_team": "Houston Rockets",
	"away_team": "Oklahoma City Thunder",
	"bookmakers": [{
		"key": "pinnacle",
		"title": "Pinnacle",
		"markets": [
			{"key": "h2h", "outcomes": [
				{"name": "Oklahoma City Thunder", "price": 1.67},
				{"name": "Houston Rockets", "price": 2.30}
			]},
			{"key": "spreads", "outcomes": [
				{"name": "Oklahoma City Thunder", "price": 1.91, "point": -4.5},
				{"name": "Houston Rockets", "price": 1.91, "point": 4.5}
			]},
			{"key": "player_points", "outcomes": [
				{"name": "Somebody Over", "price": 1.85, "point": 24.5}
			]}
		]
	}]
}]`

func TestGetQuotes_ParsesAndSkipsUnknownMarkets(t *testing.T) {
	var gotQuery map[string][]string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/basketball_nba/odds", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(oddsFixture))
	}))

	quotes, err := c.GetQuotes(context.Background(), "basketball_nba")
	require.NoError(t, err)

	assert.Equal(t, []string{"test-key"}, gotQuery["apiKey"])
	assert.Equal(t, []string{"us"}, gotQuery["regions"])
	assert.Equal(t, []string{"h2h,spreads,totals"}, gotQuery["markets"])
	assert.Equal(t, []string{"pinnacle,draftkings"}, gotQuery["bookmakers"])

	// 2 moneyline + 2 spread outcomes; player_points skipped.
	require.Len(t, quotes, 4)

	ml := quotes[0]
	assert.Equal(t, "the-odds-api", ml.Source)
	assert.Equal(t, "Pinnacle", ml.Bookmaker)
	assert.Equal(t, "evt-1", ml.EventID)
	assert.Equal(t, "Oklahoma City Thunder vs Houston Rockets", ml.EventTitle)
	assert.Equal(t, domain.MarketMoneyline, ml.MarketType)
	assert.Equal(t, "Oklahoma City Thunder", ml.Selection)
	assert.Equal(t, domain.OddsDecimal, ml.Format)
	assert.InDelta(t, 1.67, ml.Odds, 1e-9)
	assert.Equal(t, testRef, ml.CapturedAt)
	assert.True(t, ml.StartTime.Equal(time.Date(2026, 2, 7, 19, 0, 0, 0, time.UTC)))

	spread := quotes[2]
	assert.Equal(t, domain.MarketSpread, spread.MarketType)
	assert.InDelta(t, -4.5, spread.Point, 1e-9)
}

func TestGetQuotes_DropsZeroPrices(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"evt-1","sport_key":"basketball_nba","commence_time":"2026-02-07T19:00:00Z",
			"home_team":"H","away_team":"A","bookmakers":[{"key":"b","title":"B","markets":[
			{"key":"h2h","outcomes":[{"name":"A","price":0},{"name":"H","price":2.1}]}]}]}]`))
	}))

	quotes, err := c.GetQuotes(context.Background(), "basketball_nba")
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "H", quotes[0].Selection)
}

func TestListSports_ActiveOnly(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		json.NewEncoder(w).Encode([]sportPayload{
			{Key: "basketball_nba", Active: true},
			{Key: "cricket_ipl", Active: false},
			{Key: "icehockey_nhl", Active: true},
		})
	}))

	sports, err := c.ListSports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"basketball_nba", "icehockey_nhl"}, sports)
}

func TestListEvents(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/basketball_nba/events", r.URL.Path)
		w.Write([]byte(`[{"id":"evt-1","sport_key":"basketball_nba",
			"commence_time":"2026-02-07T19:00:00Z","home_team":"Houston Rockets",
			"away_team":"Oklahoma City Thunder"}]`))
	}))

	events, err := c.ListEvents(context.Background(), "basketball_nba")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "Houston Rockets", events[0].HomeTeam)
	assert.Equal(t, "Oklahoma City Thunder", events[0].AwayTeam)
}

func TestGet_FailsFastOnAuthError(t *testing.T) {
	var calls int
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	}))

	_, err := c.ListSports(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
	assert.Equal(t, 1, calls)
}

func TestInferFormat(t *testing.T) {
	assert.Equal(t, domain.OddsDecimal, inferFormat(1.91))
	assert.Equal(t, domain.OddsDecimal, inferFormat(9.5))
	assert.Equal(t, domain.OddsAmerican, inferFormat(-110))
	assert.Equal(t, domain.OddsAmerican, inferFormat(150))
}
