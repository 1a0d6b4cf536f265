package scanner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kalshi-edge/internal/domain"
)

// alertRecord is the JSONL shape of an alert, snake_case for downstream
// tooling.
type alertRecord struct {
	ID              string  `json:"id"`
	MappingKey      string  `json:"mapping_key"`
	ContractID      string  `json:"contract_id"`
	Direction       string  `json:"direction"`
	EdgeBps         float64 `json:"edge_bps"`
	Confidence      string  `json:"confidence"`
	ConfidenceScore float64 `json:"confidence_score"`
	ExchangePrice   float64 `json:"exchange_price"`
	ExchangeSize    int     `json:"exchange_size"`
	Bookmaker       string  `json:"bookmaker"`
	Selection       string  `json:"selection"`
	BookProb        float64 `json:"book_prob"`
	OddsString      string  `json:"odds"`
	Overround       float64 `json:"overround"`
	Notes           string  `json:"notes,omitempty"`
	EmittedAt       string  `json:"emitted_at"`
}

// AppendAlertsJSONL appends one JSON line per alert to the audit log.
func AppendAlertsJSONL(path string, alerts []domain.Alert) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("scanner.AppendAlertsJSONL: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("scanner.AppendAlertsJSONL: open %q: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, a := range alerts {
		rec := alertRecord{
			ID:              a.ID,
			MappingKey:      a.MappingKey,
			ContractID:      a.ContractID,
			Direction:       string(a.Direction),
			EdgeBps:         a.EdgeBps,
			Confidence:      string(a.Confidence),
			ConfidenceScore: a.ConfidenceScore,
			ExchangePrice:   a.ExchangePrice,
			ExchangeSize:    a.ExchangeSize,
			Bookmaker:       a.Bookmaker,
			Selection:       a.Selection,
			BookProb:        a.BookProb,
			OddsString:      a.OddsString,
			Overround:       a.Overround,
			Notes:           a.Notes,
			EmittedAt:       a.EmittedAt.UTC().Format(time.RFC3339),
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("scanner.AppendAlertsJSONL: encode: %w", err)
		}
	}
	return nil
}

// opportunityRecord is the on-disk shape of a ranked opportunity.
type opportunityRecord struct {
	Rank           int     `json:"rank"`
	MappingKey     string  `json:"mapping_key"`
	ContractID     string  `json:"contract_id"`
	GameLabel      string  `json:"game"`
	Direction      string  `json:"direction"`
	BookFairProb   float64 `json:"book_fair_prob"`
	BookCount      int     `json:"book_count"`
	EdgeBps        float64 `json:"edge_bps"`
	EdgeCents      float64 `json:"edge_cents"`
	BestBook       string  `json:"best_book"`
	BestBookOdds   string  `json:"best_book_odds"`
	BestBookBps    float64 `json:"best_book_bps"`
	WorstBook      string  `json:"worst_book"`
	WorstBookBps   float64 `json:"worst_book_bps"`
	ExchangeAction string  `json:"exchange_action"`
	HedgeAction    string  `json:"hedge_action"`
	ExchangePrice  float64 `json:"exchange_price"`
	MaxShares      int     `json:"max_shares"`
	PnlPer100      float64 `json:"pnl_per_100"`
	Confidence     string  `json:"confidence"`
	RankScore      float64 `json:"rank_score"`
	AlertCount     int     `json:"alert_count"`
	URL            string  `json:"url"`
	ScannedAt      string  `json:"scanned_at"`
}

// WriteLastOpportunities rewrites the latest-results file atomically so
// the detail/execute commands always see a complete snapshot.
func WriteLastOpportunities(path string, opps []domain.Opportunity) error {
	records := make([]opportunityRecord, 0, len(opps))
	for i, o := range opps {
		records = append(records, opportunityRecord{
			Rank:           i + 1,
			MappingKey:     o.MappingKey,
			ContractID:     o.ContractID,
			GameLabel:      o.GameLabel,
			Direction:      string(o.Direction),
			BookFairProb:   o.BookFairProb,
			BookCount:      o.BookCount,
			EdgeBps:        o.EdgeBps,
			EdgeCents:      o.EdgeCents,
			BestBook:       o.BestBook,
			BestBookOdds:   o.BestBookOdds,
			BestBookBps:    o.BestBookBps,
			WorstBook:      o.WorstBook,
			WorstBookBps:   o.WorstBookBps,
			ExchangeAction: o.ExchangeAction,
			HedgeAction:    o.HedgeAction,
			ExchangePrice:  o.ExchangePrice,
			MaxShares:      o.MaxShares,
			PnlPer100:      o.PnlPer100,
			Confidence:     string(o.Confidence),
			RankScore:      o.RankScore,
			AlertCount:     o.AlertCount,
			URL:            o.URL,
			ScannedAt:      o.ScannedAt.UTC().Format(time.RFC3339),
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("scanner.WriteLastOpportunities: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scanner.WriteLastOpportunities: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".opps-*.json")
	if err != nil {
		return fmt.Errorf("scanner.WriteLastOpportunities: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("scanner.WriteLastOpportunities: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("scanner.WriteLastOpportunities: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("scanner.WriteLastOpportunities: rename: %w", err)
	}
	return nil
}

// ReadLastOpportunities loads the file written by the previous scan.
// Rank numbers in the file are 1-based.
func ReadLastOpportunities(path string) ([]domain.Opportunity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scanner.ReadLastOpportunities: read %q: %w", path, err)
	}
	var records []opportunityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("scanner.ReadLastOpportunities: parse %q: %w", path, err)
	}
	opps := make([]domain.Opportunity, 0, len(records))
	for _, r := range records {
		scannedAt, _ := time.Parse(time.RFC3339, r.ScannedAt)
		opps = append(opps, domain.Opportunity{
			MappingKey:     r.MappingKey,
			ContractID:     r.ContractID,
			GameLabel:      r.GameLabel,
			Direction:      domain.Direction(r.Direction),
			BookFairProb:   r.BookFairProb,
			BookCount:      r.BookCount,
			EdgeBps:        r.EdgeBps,
			EdgeCents:      r.EdgeCents,
			BestBook:       r.BestBook,
			BestBookOdds:   r.BestBookOdds,
			BestBookBps:    r.BestBookBps,
			WorstBook:      r.WorstBook,
			WorstBookBps:   r.WorstBookBps,
			ExchangeAction: r.ExchangeAction,
			HedgeAction:    r.HedgeAction,
			ExchangePrice:  r.ExchangePrice,
			MaxShares:      r.MaxShares,
			PnlPer100:      r.PnlPer100,
			Confidence:     domain.Confidence(r.Confidence),
			RankScore:      r.RankScore,
			AlertCount:     r.AlertCount,
			URL:            r.URL,
			ScannedAt:      scannedAt,
		})
	}
	return opps, nil
}
