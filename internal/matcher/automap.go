package matcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"kalshi-edge/internal/domain"
	"kalshi-edge/internal/ports"
)

// SportToSeries maps aggregator sport keys to the exchange's
// game-winner series.
var SportToSeries = map[string]string{
	"basketball_nba":       "KXNBAGAME",
	"americanfootball_nfl": "KXNFLGAME",
	"basketball_ncaab":     "KXNCAABGAME",
}

// teamCodeKeywords maps exchange team codes to substrings seen in
// aggregator team names. Codes shared across leagues (HOU, MIA, ...)
// carry the keywords of both.
var teamCodeKeywords = map[string][]string{
	"ATL": {"Atlanta", "Hawks", "Falcons"},
	"BAL": {"Baltimore", "Ravens"},
	"BKN": {"Brooklyn", "Nets"},
	"BOS": {"Boston", "Celtics"},
	"BUF": {"Buffalo", "Bills"},
	"CAR": {"Carolina", "Panthers"},
	"CHA": {"Charlotte", "Hornets"},
	"CHI": {"Chicago", "Bulls", "Bears"},
	"CIN": {"Cincinnati", "Bengals"},
	"CLE": {"Cleveland", "Cavaliers", "Browns"},
	"DAL": {"Dallas", "Mavericks", "Cowboys"},
	"DEN": {"Denver", "Nuggets", "Broncos"},
	"DET": {"Detroit", "Pistons", "Lions"},
	"GB":  {"Green Bay", "Packers"},
	"GSW": {"Golden State", "Warriors", "GS "},
	"HOU": {"Houston", "Rockets", "Texans"},
	"IND": {"Indiana", "Pacers", "Indianapolis", "Colts"},
	"JAX": {"Jacksonville", "Jaguars"},
	"KC":  {"Kansas City", "Chiefs"},
	"LAC": {"LA Clippers", "Clippers", "Los Angeles Chargers", "Chargers"},
	"LAL": {"Lakers", "Los Angeles Lakers"},
	"LAR": {"Los Angeles Rams", "Rams"},
	"LV":  {"Las Vegas", "Raiders"},
	"MEM": {"Memphis", "Grizzlies"},
	"MIA": {"Miami", "Heat", "Dolphins"},
	"MIL": {"Milwaukee", "Bucks"},
	"MIN": {"Minnesota", "Timberwolves", "Vikings"},
	"NE":  {"New England", "Patriots"},
	"NO":  {"New Orleans", "Saints"},
	"NOP": {"New Orleans", "Pelicans"},
	"NYG": {"New York Giants", "Giants"},
	"NYJ": {"New York Jets", "Jets"},
	"NYK": {"New York", "Knicks"},
	"OKC": {"Oklahoma City", "Thunder"},
	"ORL": {"Orlando", "Magic"},
	"PHI": {"Philadelphia", "76ers", "Sixers", "Eagles"},
	"PHX": {"Phoenix", "Suns"},
	"PIT": {"Pittsburgh", "Steelers"},
	"POR": {"Portland", "Trail Blazers", "Blazers"},
	"SAC": {"Sacramento", "Kings"},
	"SAS": {"San Antonio", "Spurs"},
	"SEA": {"Seattle", "Seahawks"},
	"SF":  {"San Francisco", "49ers"},
	"TB":  {"Tampa Bay", "Buccaneers"},
	"TEN": {"Tennessee", "Titans"},
	"TOR": {"Toronto", "Raptors"},
	"UTA": {"Utah", "Jazz"},
	"WAS": {"Washington", "Wizards", "Commanders"},
}

// ParsedTicker is the decomposition of a game-winner ticker like
// KXNBAGAME-26FEB07HOUOKC-OKC.
type ParsedTicker struct {
	DatePart string // 26FEB07
	GameCode string // HOUOKC
	SideCode string // OKC
}

// ParseTicker splits a game-winner ticker into its date, game and side
// parts. Unrecognized formats return false.
func ParseTicker(ticker string) (ParsedTicker, bool) {
	parts := strings.Split(ticker, "-")
	if len(parts) < 3 {
		return ParsedTicker{}, false
	}
	dateGame, side := parts[1], parts[2]
	if len(dateGame) < 8 {
		return ParsedTicker{}, false
	}
	p := ParsedTicker{
		DatePart: dateGame[:7],
		GameCode: dateGame[7:],
		SideCode: side,
	}
	if len(p.GameCode) < 4 {
		return ParsedTicker{}, false
	}
	return p, true
}

// TeamCodes splits the game code into its two team codes. A 6-char
// code is two 3-letter codes, a 4-char code two 2-letter codes.
func (p ParsedTicker) TeamCodes() (string, string, bool) {
	switch len(p.GameCode) {
	case 6:
		return p.GameCode[:3], p.GameCode[3:], true
	case 4:
		return p.GameCode[:2], p.GameCode[2:], true
	}
	return "", "", false
}

func teamMatches(code, teamName string) bool {
	if teamName == "" {
		return false
	}
	keywords, ok := teamCodeKeywords[code]
	if !ok {
		keywords = []string{code}
	}
	lower := strings.ToLower(teamName)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// matchEventToCodes returns (name for code A, name for code B) when the
// event's two teams match the two codes, in either order.
func matchEventToCodes(home, away, codeA, codeB string) (string, string, bool) {
	if teamMatches(codeA, home) && teamMatches(codeB, away) {
		return home, away, true
	}
	if teamMatches(codeA, away) && teamMatches(codeB, home) {
		return away, home, true
	}
	return "", "", false
}

var datePartRe = regexp.MustCompile(`^(\d{2})([A-Z]{3})(\d{2})$`)

var monthNum = map[string]string{
	"JAN": "01", "FEB": "02", "MAR": "03", "APR": "04", "MAY": "05",
	"JUN": "06", "JUL": "07", "AUG": "08", "SEP": "09", "OCT": "10",
	"NOV": "11", "DEC": "12",
}

// MarketKey builds the canonical registry key, e.g.
// nba_20260207_houokc_okc.
func MarketKey(ticker string, p ParsedTicker) string {
	year, month, day := "2026", "01", "01"
	if m := datePartRe.FindStringSubmatch(p.DatePart); m != nil {
		year = "20" + m[1]
		if num, ok := monthNum[m[2]]; ok {
			month = num
		}
		day = m[3]
	}
	prefix := "game"
	switch {
	case strings.Contains(ticker, "KXNCAABGAME"):
		prefix = "ncaab"
	case strings.Contains(ticker, "KXNBAGAME") || strings.Contains(ticker, "NBA"):
		prefix = "nba"
	case strings.Contains(ticker, "KXNFLGAME") || strings.Contains(ticker, "NFL"):
		prefix = "nfl"
	}
	return fmt.Sprintf("%s_%s%s%s_%s_%s",
		prefix, year, month, day,
		strings.ToLower(p.GameCode), strings.ToLower(p.SideCode))
}

// AutoMap fetches the game-winner contracts for a sport, matches them
// against the aggregator's scheduled events by team name, merges with
// the existing registry and atomically rewrites the registry file.
// Existing rows whose contract was not re-matched are preserved.
func (m *Matcher) AutoMap(ctx context.Context, exchange ports.ExchangeClient, odds ports.OddsProvider, sport, path string) ([]domain.Mapping, error) {
	series, ok := SportToSeries[sport]
	if !ok {
		return nil, fmt.Errorf("matcher.AutoMap: no exchange series for sport %q", sport)
	}

	contracts, _, err := exchange.ListMarkets(ctx, "", series, "open", 200)
	if err != nil {
		return nil, fmt.Errorf("matcher.AutoMap: list markets: %w", err)
	}
	events, err := odds.ListEvents(ctx, sport)
	if err != nil {
		return nil, fmt.Errorf("matcher.AutoMap: list events: %w", err)
	}

	existing, err := readRegistry(path)
	if err != nil {
		return nil, err
	}
	matched := make(map[string]bool)

	var fresh []domain.Mapping
	for _, c := range contracts {
		parsed, ok := ParseTicker(c.Ticker)
		if !ok {
			// Not a game-winner ticker; skipped silently, visible as a
			// gap between contract count and registry size.
			continue
		}
		codeA, codeB, ok := parsed.TeamCodes()
		if !ok {
			continue
		}

		for _, ev := range events {
			nameA, nameB, ok := matchEventToCodes(ev.HomeTeam, ev.AwayTeam, codeA, codeB)
			if !ok {
				continue
			}
			selection := nameB
			if strings.EqualFold(parsed.SideCode, codeA) {
				selection = nameA
			}
			fresh = append(fresh, domain.Mapping{
				Key:        MarketKey(c.Ticker, parsed),
				ContractID: c.Ticker,
				Side:       "YES",
				EventID:    ev.ID,
				MarketType: domain.MarketMoneyline,
				Selection:  selection,
			})
			matched[c.Ticker] = true
			break
		}
	}

	// Preserve rows the run did not re-match.
	var merged []domain.Mapping
	for _, e := range existing {
		if !matched[e.ContractID] {
			merged = append(merged, e)
		}
	}
	merged = append(merged, fresh...)

	if err := WriteMappings(path, merged); err != nil {
		return nil, err
	}
	m.logger.Info("auto-map complete",
		"contracts", len(contracts), "events", len(events),
		"matched", len(fresh), "total", len(merged))
	return merged, nil
}

func readRegistry(path string) ([]domain.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("matcher.readRegistry: read %q: %w", path, err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("matcher.readRegistry: parse %q: %w", path, err)
	}
	var out []domain.Mapping
	for _, e := range file.Markets {
		out = append(out, domain.Mapping{
			Key:        e.MarketKey,
			ContractID: e.Kalshi.ContractID,
			Side:       e.Kalshi.Side,
			EventID:    e.Odds.EventID,
			MarketType: domain.MarketType(e.Odds.MarketType),
			Selection:  e.Odds.Selection,
		})
	}
	return out, nil
}

// WriteMappings rewrites the registry file atomically
// (write-temp-then-rename).
func WriteMappings(path string, mappings []domain.Mapping) error {
	file := registryFile{Markets: make([]registryEntry, 0, len(mappings))}
	for _, m := range mappings {
		file.Markets = append(file.Markets, registryEntry{
			MarketKey: m.Key,
			Kalshi:    exchangeSide{ContractID: m.ContractID, Side: m.Side},
			Odds: aggregatorSide{
				EventID:    m.EventID,
				MarketType: string(m.MarketType),
				Selection:  m.Selection,
			},
		})
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("matcher.WriteMappings: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("matcher.WriteMappings: mkdir %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".mappings-*.yaml")
	if err != nil {
		return fmt.Errorf("matcher.WriteMappings: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("matcher.WriteMappings: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("matcher.WriteMappings: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("matcher.WriteMappings: rename: %w", err)
	}
	return nil
}
