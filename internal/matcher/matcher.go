// Package matcher pairs exchange contracts with aggregator selections.
// The source of truth is a human-edited YAML registry; the auto-mapper
// regenerates game-winner entries and the fuzzy scorer suggests
// candidates for manual review.
package matcher

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"kalshi-edge/internal/domain"
)

// registryFile is the on-disk YAML shape of the mapping registry.
type registryFile struct {
	Markets []registryEntry `yaml:"markets"`
}

type registryEntry struct {
	MarketKey string        `yaml:"market_key"`
	Kalshi    exchangeSide  `yaml:"kalshi"`
	Odds      aggregatorSide `yaml:"odds"`
}

type exchangeSide struct {
	ContractID string `yaml:"contract_id"`
	Side       string `yaml:"side"`
}

type aggregatorSide struct {
	EventID    string `yaml:"event_id"`
	MarketType string `yaml:"market_type"`
	Selection  string `yaml:"selection"`
}

// Matcher resolves contracts to aggregator selections through the
// loaded registry.
type Matcher struct {
	logger *slog.Logger

	fuzzyEnabled   bool
	fuzzyThreshold float64

	mappings  map[string]domain.Mapping
	byTicker  map[string]string
	byOddsKey map[oddsKey]string
	skipped   int
}

type oddsKey struct {
	eventID    string
	marketType string
	selection  string
}

// New builds an empty matcher. Call LoadMappings before resolving.
func New(logger *slog.Logger, fuzzyEnabled bool, fuzzyThreshold float64) *Matcher {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = 0.75
	}
	return &Matcher{
		logger:         logger,
		fuzzyEnabled:   fuzzyEnabled,
		fuzzyThreshold: fuzzyThreshold,
		mappings:       make(map[string]domain.Mapping),
		byTicker:       make(map[string]string),
		byOddsKey:      make(map[oddsKey]string),
	}
}

// LoadMappings reads the registry file and rebuilds the indexes.
// Malformed rows are skipped and counted; the count of loaded rows is
// returned. A missing file loads zero mappings without error.
func (m *Matcher) LoadMappings(path string) (int, error) {
	m.mappings = make(map[string]domain.Mapping)
	m.byTicker = make(map[string]string)
	m.byOddsKey = make(map[oddsKey]string)
	m.skipped = 0

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("matcher.LoadMappings: read %q: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("matcher.LoadMappings: parse %q: %w", path, err)
	}

	count := 0
	for _, entry := range file.Markets {
		mapping := domain.Mapping{
			Key:        entry.MarketKey,
			ContractID: entry.Kalshi.ContractID,
			Side:       entry.Kalshi.Side,
			EventID:    entry.Odds.EventID,
			MarketType: domain.MarketType(entry.Odds.MarketType),
			Selection:  entry.Odds.Selection,
		}
		if !mapping.Complete() {
			m.skipped++
			m.logger.Warn("skipping malformed mapping row",
				"market_key", entry.MarketKey, "contract_id", entry.Kalshi.ContractID)
			continue
		}
		m.mappings[mapping.Key] = mapping
		m.byTicker[mapping.ContractID] = mapping.Key
		m.byOddsKey[oddsKey{mapping.EventID, string(mapping.MarketType), mapping.Selection}] = mapping.Key
		count++
	}
	return count, nil
}

// SkippedRows returns how many malformed rows the last load dropped.
func (m *Matcher) SkippedRows() int {
	return m.skipped
}

// ResolveByExchange returns the mapping for a contract ticker.
func (m *Matcher) ResolveByExchange(ticker string) (domain.Mapping, bool) {
	key, ok := m.byTicker[ticker]
	if !ok {
		return domain.Mapping{}, false
	}
	return m.mappings[key], true
}

// ResolveByAggregator returns the mapping for an aggregator selection.
func (m *Matcher) ResolveByAggregator(eventID string, marketType domain.MarketType, selection string) (domain.Mapping, bool) {
	key, ok := m.byOddsKey[oddsKey{eventID, string(marketType), selection}]
	if !ok {
		return domain.Mapping{}, false
	}
	return m.mappings[key], true
}

// Mapping returns the full entry for a mapping key.
func (m *Matcher) Mapping(key string) (domain.Mapping, bool) {
	mapping, ok := m.mappings[key]
	return mapping, ok
}

// AllMappingKeys returns the loaded keys in sorted order.
func (m *Matcher) AllMappingKeys() []string {
	keys := make([]string, 0, len(m.mappings))
	for k := range m.mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FuzzyCandidate is a suggested pairing for manual review. Never
// auto-applied.
type FuzzyCandidate struct {
	Contract domain.Contract
	Quote    domain.Quote
	Score    float64
}

const maxFuzzyCandidates = 50

// FuzzyCandidates scores unmapped contract/quote pairs by token-sort
// title similarity and returns the top suggestions, best first.
func (m *Matcher) FuzzyCandidates(contracts []domain.Contract, quotes []domain.Quote) []FuzzyCandidate {
	if !m.fuzzyEnabled {
		return nil
	}

	var candidates []FuzzyCandidate
	for _, c := range contracts {
		if _, mapped := m.byTicker[c.Ticker]; mapped {
			continue
		}
		for _, q := range quotes {
			k := oddsKey{q.EventID, string(q.MarketType), q.Selection}
			if _, mapped := m.byOddsKey[k]; mapped {
				continue
			}
			score := TokenSortRatio(c.Title, q.EventTitle)
			if score >= m.fuzzyThreshold {
				candidates = append(candidates, FuzzyCandidate{Contract: c, Quote: q, Score: score})
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxFuzzyCandidates {
		candidates = candidates[:maxFuzzyCandidates]
	}
	return candidates
}
