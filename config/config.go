package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration for the scanner and the trading
// runner.
type Config struct {
	Exchange  ExchangeConfig  `yaml:"exchange"`
	OddsAPI   OddsAPIConfig   `yaml:"odds_api"`
	Scan      ScanConfig      `yaml:"scan"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Risk      RiskConfig      `yaml:"risk"`
	Execution ExecutionConfig `yaml:"execution"`
	Runner    RunnerConfig    `yaml:"runner"`
	Storage   StorageConfig   `yaml:"storage"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Log       LogConfig       `yaml:"log"`
}

// ExchangeConfig holds the exchange API endpoint and credentials.
type ExchangeConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyID       string `yaml:"api_key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Configured reports whether the signing credential pair is present.
func (e ExchangeConfig) Configured() bool {
	return e.APIKeyID != "" && e.PrivateKeyPath != ""
}

// OddsAPIConfig holds the sportsbook aggregator endpoint and query
// defaults.
type OddsAPIConfig struct {
	BaseURL      string   `yaml:"base_url"`
	APIKey       string   `yaml:"api_key"`
	Regions      string   `yaml:"regions"`
	Bookmakers   []string `yaml:"bookmakers"`
	DefaultSport string   `yaml:"default_sport"`
}

// ScanConfig controls the exchange-vs-books comparison.
type ScanConfig struct {
	SlippageBuffer      float64 `yaml:"slippage_buffer"`
	SportsbookFriction  float64 `yaml:"sportsbook_friction"`
	MinEdgeBps          float64 `yaml:"min_edge_bps"`
	MinLiquidity        int     `yaml:"min_liquidity"`
	MaxStalenessSeconds int     `yaml:"max_staleness_seconds"`
	IntervalSeconds     int     `yaml:"interval_seconds"`
	AutoMap             bool    `yaml:"auto_map"`
	MappingsPath        string  `yaml:"mappings_path"`
	LastOppsPath        string  `yaml:"last_opportunities_path"`
}

// MaxStaleness returns the staleness window as a duration.
func (s ScanConfig) MaxStaleness() time.Duration {
	return time.Duration(s.MaxStalenessSeconds) * time.Second
}

// ScanInterval returns the loop interval as a duration.
func (s ScanConfig) ScanInterval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// DiscoveryConfig controls same-day market discovery.
type DiscoveryConfig struct {
	MaxPages             int      `yaml:"max_pages"`
	MinVolume24h         int      `yaml:"min_volume_24h"`
	MaxSpreadCents       float64  `yaml:"max_spread_cents"`
	MinDepth             int      `yaml:"min_depth"`
	TradingCutoffMinutes float64  `yaml:"trading_cutoff_minutes"`
	CategoryWhitelist    []string `yaml:"category_whitelist"`
	CategoryBlacklist    []string `yaml:"category_blacklist"`
	TickerBlacklist      []string `yaml:"ticker_blacklist"`
}

// RiskConfig holds the risk gate limits and sizing parameters.
type RiskConfig struct {
	MaxDailyLoss          float64 `yaml:"max_daily_loss"`
	MaxPerMarketExposure  float64 `yaml:"max_per_market_exposure"`
	MaxTotalExposure      float64 `yaml:"max_total_exposure"`
	MaxOpenPositions      int     `yaml:"max_open_positions"`
	MaxTradesPerDay       int     `yaml:"max_trades_per_day"`
	DefaultPositionSize   float64 `yaml:"default_position_size"`
	Bankroll              float64 `yaml:"bankroll"`
	KellyEnabled          bool    `yaml:"kelly_enabled"`
	KellyFraction         float64 `yaml:"kelly_fraction"`
	LimitOrdersOnly       bool    `yaml:"limit_orders_only"`
	MinExpectedValue      float64 `yaml:"min_expected_value"`
	MinWinRate            float64 `yaml:"min_win_rate"`
	MinBacktestSamples    int     `yaml:"min_backtest_samples"`
	MaxDrawdownPct        float64 `yaml:"max_drawdown_pct"`
	ConfidenceThreshold   float64 `yaml:"confidence_threshold"`
}

// ExecutionConfig gates real order placement from the CLI.
type ExecutionConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RunnerConfig controls the scheduled trading cycle.
type RunnerConfig struct {
	Timezone     string `yaml:"timezone"`
	DailyRunTime string `yaml:"daily_run_time"` // HH:MM local
	Mode         string `yaml:"mode"`           // dry_run | paper | live
}

// StorageConfig controls persistence.
type StorageConfig struct {
	DSN                     string `yaml:"dsn"` // SQLite path, or ":memory:"
	SnapshotIntervalSeconds int    `yaml:"snapshot_interval_seconds"`
	RetentionDays           int    `yaml:"retention_days"`
}

// SnapshotInterval returns the snapshot loop interval as a duration.
func (s StorageConfig) SnapshotInterval() time.Duration {
	return time.Duration(s.SnapshotIntervalSeconds) * time.Second
}

// AlertsConfig controls the external alert channel.
type AlertsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	JSONLPath  string `yaml:"jsonl_path"`
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config file plus a .env if present. Environment
// variables override file values for the keys that map to them, then
// defaults fill the gaps and Validate rejects bad options.
func Load(path string) (*Config, error) {
	// Silencing the error: a missing .env is normal.
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		// No file: env + defaults only.
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on out-of-range options.
func (c *Config) Validate() error {
	if c.Risk.MinWinRate < 0.5 || c.Risk.MinWinRate >= 1 {
		return fmt.Errorf("config.Validate: min_win_rate %.2f must be in [0.5, 1)", c.Risk.MinWinRate)
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("config.Validate: max_daily_loss must be positive")
	}
	if c.Risk.KellyFraction <= 0 || c.Risk.KellyFraction > 1 {
		return fmt.Errorf("config.Validate: kelly_fraction %.2f must be in (0, 1]", c.Risk.KellyFraction)
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct > 1 {
		return fmt.Errorf("config.Validate: max_drawdown_pct %.2f must be in (0, 1]", c.Risk.MaxDrawdownPct)
	}
	if c.Scan.SlippageBuffer < 0 || c.Scan.SlippageBuffer > 0.1 {
		return fmt.Errorf("config.Validate: slippage_buffer %.4f must be in [0, 0.1]", c.Scan.SlippageBuffer)
	}
	if c.Scan.SportsbookFriction < 0 || c.Scan.SportsbookFriction > 0.5 {
		return fmt.Errorf("config.Validate: sportsbook_friction %.4f must be in [0, 0.5]", c.Scan.SportsbookFriction)
	}
	switch c.Runner.Mode {
	case "dry_run", "paper", "live":
	default:
		return fmt.Errorf("config.Validate: runner mode %q must be dry_run, paper or live", c.Runner.Mode)
	}
	if _, err := time.LoadLocation(c.Runner.Timezone); err != nil {
		return fmt.Errorf("config.Validate: timezone %q: %w", c.Runner.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone. Validate guarantees it
// parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Runner.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KALSHI_API_KEY_ID"); v != "" {
		cfg.Exchange.APIKeyID = v
	} else if v := os.Getenv("KALSHI_API_KEY"); v != "" {
		// Legacy variable name, honored as an alias of the key id.
		cfg.Exchange.APIKeyID = v
	}
	if v := os.Getenv("KALSHI_PRIVATE_KEY_PATH"); v != "" {
		cfg.Exchange.PrivateKeyPath = v
	}
	if v := os.Getenv("ODDS_API_KEY"); v != "" {
		cfg.OddsAPI.APIKey = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.elections.kalshi.com/trade-api/v2"
	}
	if cfg.OddsAPI.BaseURL == "" {
		cfg.OddsAPI.BaseURL = "https://api.the-odds-api.com/v4"
	}
	if cfg.OddsAPI.Regions == "" {
		cfg.OddsAPI.Regions = "us"
	}
	if cfg.OddsAPI.DefaultSport == "" {
		cfg.OddsAPI.DefaultSport = "basketball_nba"
	}

	if cfg.Scan.SlippageBuffer == 0 {
		cfg.Scan.SlippageBuffer = 0.005
	}
	if cfg.Scan.SportsbookFriction == 0 {
		cfg.Scan.SportsbookFriction = 0.01
	}
	if cfg.Scan.MinEdgeBps <= 0 {
		cfg.Scan.MinEdgeBps = 50
	}
	if cfg.Scan.MinLiquidity <= 0 {
		cfg.Scan.MinLiquidity = 10
	}
	if cfg.Scan.MaxStalenessSeconds <= 0 {
		cfg.Scan.MaxStalenessSeconds = 60
	}
	if cfg.Scan.IntervalSeconds <= 0 {
		cfg.Scan.IntervalSeconds = 60
	}
	if cfg.Scan.MappingsPath == "" {
		cfg.Scan.MappingsPath = "mappings.yaml"
	}
	if cfg.Scan.LastOppsPath == "" {
		cfg.Scan.LastOppsPath = ".last_opportunities"
	}

	if cfg.Discovery.MaxPages <= 0 {
		cfg.Discovery.MaxPages = 10
	}
	if cfg.Discovery.MinVolume24h <= 0 {
		cfg.Discovery.MinVolume24h = 100
	}
	if cfg.Discovery.MaxSpreadCents <= 0 {
		cfg.Discovery.MaxSpreadCents = 5
	}
	if cfg.Discovery.MinDepth <= 0 {
		cfg.Discovery.MinDepth = 50
	}
	if cfg.Discovery.TradingCutoffMinutes <= 0 {
		cfg.Discovery.TradingCutoffMinutes = 30
	}

	if cfg.Risk.MaxDailyLoss == 0 {
		cfg.Risk.MaxDailyLoss = 50
	}
	if cfg.Risk.MaxPerMarketExposure <= 0 {
		cfg.Risk.MaxPerMarketExposure = 25
	}
	if cfg.Risk.MaxTotalExposure <= 0 {
		cfg.Risk.MaxTotalExposure = 100
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 5
	}
	if cfg.Risk.MaxTradesPerDay <= 0 {
		cfg.Risk.MaxTradesPerDay = 10
	}
	if cfg.Risk.DefaultPositionSize <= 0 {
		cfg.Risk.DefaultPositionSize = 10
	}
	if cfg.Risk.Bankroll <= 0 {
		cfg.Risk.Bankroll = 1000
	}
	if cfg.Risk.KellyFraction <= 0 {
		cfg.Risk.KellyFraction = 0.25
	}
	if cfg.Risk.MinExpectedValue == 0 {
		cfg.Risk.MinExpectedValue = 0.02
	}
	if cfg.Risk.MinWinRate == 0 {
		cfg.Risk.MinWinRate = 0.55
	}
	if cfg.Risk.MinBacktestSamples <= 0 {
		cfg.Risk.MinBacktestSamples = 20
	}
	if cfg.Risk.MaxDrawdownPct <= 0 {
		cfg.Risk.MaxDrawdownPct = 0.15
	}
	if cfg.Risk.ConfidenceThreshold <= 0 {
		cfg.Risk.ConfidenceThreshold = 0.6
	}

	if cfg.Runner.Timezone == "" {
		cfg.Runner.Timezone = "America/New_York"
	}
	if cfg.Runner.DailyRunTime == "" {
		cfg.Runner.DailyRunTime = "10:00"
	}
	if cfg.Runner.Mode == "" {
		cfg.Runner.Mode = "dry_run"
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "kalshi-edge.db"
	}
	if cfg.Storage.SnapshotIntervalSeconds <= 0 {
		cfg.Storage.SnapshotIntervalSeconds = 300
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 30
	}

	if cfg.Alerts.JSONLPath == "" {
		cfg.Alerts.JSONLPath = "alerts.jsonl"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
