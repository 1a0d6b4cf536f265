package domain

// Mapping pairs one exchange contract side with one aggregator
// selection. The key is stable and human-readable, e.g.
// nba_20260207_houokc_okc.
type Mapping struct {
	Key string

	// Exchange side.
	ContractID string
	Side       string // always "yes" for binary contracts

	// Aggregator side.
	EventID    string
	MarketType MarketType
	Selection  string
}

// Complete reports whether both sides of the mapping are populated.
func (m Mapping) Complete() bool {
	return m.Key != "" && m.ContractID != "" &&
		m.EventID != "" && m.Selection != "" && m.MarketType != ""
}
