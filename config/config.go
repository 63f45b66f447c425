// Package config loads and validates run configuration: strategy
// parameters, the per-venue risk table, execution policy, initial balances
// and journal settings. Everything downstream receives typed parameter
// structs built here; no component reads files itself.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mwfarley/yieldsim/execution"
	"github.com/mwfarley/yieldsim/journal"
	"github.com/mwfarley/yieldsim/position"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/strategy"
	"github.com/mwfarley/yieldsim/venue"
)

// Run is the complete configuration for one backtest run.
type Run struct {
	Mode      string          `json:"mode" yaml:"mode"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Positions []PositionRow   `json:"positions" yaml:"positions"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
}

// StrategyConfig carries the policy parameters. Not every field applies to
// every mode; the policy constructor validates what it uses.
type StrategyConfig struct {
	Venue      string `json:"venue" yaml:"venue"`
	HedgeVenue string `json:"hedge_venue,omitempty" yaml:"hedge_venue,omitempty"`

	Asset       string `json:"asset" yaml:"asset"`
	StakedAsset string `json:"staked_asset,omitempty" yaml:"staked_asset,omitempty"`
	DebtAsset   string `json:"debt_asset,omitempty" yaml:"debt_asset,omitempty"`
	HedgeAsset  string `json:"hedge_asset,omitempty" yaml:"hedge_asset,omitempty"`

	Capital Decimal `json:"capital" yaml:"capital"`

	MaxLTV               Decimal `json:"max_ltv,omitempty" yaml:"max_ltv,omitempty"`
	MaxExpectedPriceMove Decimal `json:"max_expected_price_move,omitempty" yaml:"max_expected_price_move,omitempty"`
	SafetyBuffer         Decimal `json:"safety_buffer,omitempty" yaml:"safety_buffer,omitempty"`

	DeltaDriftTolerance Decimal `json:"delta_drift_tolerance,omitempty" yaml:"delta_drift_tolerance,omitempty"`
	LTVDriftTolerance   Decimal `json:"ltv_drift_tolerance,omitempty" yaml:"ltv_drift_tolerance,omitempty"`
	AllocationTolerance Decimal `json:"allocation_tolerance,omitempty" yaml:"allocation_tolerance,omitempty"`

	CriticalDeleverage Decimal `json:"critical_deleverage,omitempty" yaml:"critical_deleverage,omitempty"`
	MinActionSize      Decimal `json:"min_action_size,omitempty" yaml:"min_action_size,omitempty"`
}

// RiskConfig is the assessment threshold block plus the per-venue table.
type RiskConfig struct {
	WarningHealthFactor  Decimal `json:"warning_health_factor" yaml:"warning_health_factor"`
	CriticalHealthFactor Decimal `json:"critical_health_factor" yaml:"critical_health_factor"`

	WarningMarginMultiple  Decimal `json:"warning_margin_multiple" yaml:"warning_margin_multiple"`
	CriticalMarginMultiple Decimal `json:"critical_margin_multiple" yaml:"critical_margin_multiple"`

	Venues map[string]VenueRow `json:"venues" yaml:"venues"`
}

// VenueRow configures one venue: its adapter family, risk parameters and
// simulated execution costs.
type VenueRow struct {
	Family string `json:"family" yaml:"family"`

	MaxLTV               Decimal `json:"max_ltv,omitempty" yaml:"max_ltv,omitempty"`
	LiquidationThreshold Decimal `json:"liquidation_threshold,omitempty" yaml:"liquidation_threshold,omitempty"`
	LiquidationBonus     Decimal `json:"liquidation_bonus,omitempty" yaml:"liquidation_bonus,omitempty"`
	CloseFactor          Decimal `json:"close_factor,omitempty" yaml:"close_factor,omitempty"`
	MaintenanceMargin    Decimal `json:"maintenance_margin,omitempty" yaml:"maintenance_margin,omitempty"`

	SlippageBps Decimal `json:"slippage_bps,omitempty" yaml:"slippage_bps,omitempty"`
	FeeBps      Decimal `json:"fee_bps,omitempty" yaml:"fee_bps,omitempty"`
}

// ExecutionConfig is the dispatch policy. Durations are strings in Go
// duration syntax ("10s", "100ms").
type ExecutionConfig struct {
	Timeout     string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries  int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	BackoffBase string `json:"backoff_base,omitempty" yaml:"backoff_base,omitempty"`
	BackoffMax  string `json:"backoff_max,omitempty" yaml:"backoff_max,omitempty"`

	RateLimits map[string]float64 `json:"rate_limits,omitempty" yaml:"rate_limits,omitempty"`
}

// PositionRow seeds one initial balance.
type PositionRow struct {
	Venue    string  `json:"venue" yaml:"venue"`
	Asset    string  `json:"asset" yaml:"asset"`
	Kind     string  `json:"kind" yaml:"kind"`
	Quantity Decimal `json:"quantity" yaml:"quantity"`
}

// JournalConfig selects the ledger backend.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "memory" or "sqlite"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads and validates a run configuration. YAML is tried
// first, then JSON.
func LoadFromFile(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw configuration bytes.
func Parse(data []byte) (*Run, error) {
	cfg := &Run{}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration back out, format chosen by extension.
func (c *Run) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	if ext := len(path); (ext > 5 && path[ext-5:] == ".yaml") || (ext > 4 && path[ext-4:] == ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate fails fast on the first problem. Runs never start on a config
// that only partially parses.
func (c *Run) Validate() error {
	if _, err := strategy.ForMode(strategy.Mode(c.Mode), c.StrategyParams()); err != nil {
		return err
	}
	if !c.Strategy.Capital.IsPositive() {
		return fmt.Errorf("strategy.capital must be positive")
	}
	if c.Strategy.Venue == "" {
		return fmt.Errorf("strategy.venue is required")
	}
	if len(c.Risk.Venues) == 0 {
		return fmt.Errorf("risk.venues must not be empty")
	}

	for name, row := range c.Risk.Venues {
		if _, ok := venue.ParseFamily(row.Family); !ok {
			return fmt.Errorf("venue %q: unknown family %q", name, row.Family)
		}
	}
	for _, v := range []string{c.Strategy.Venue, c.Strategy.HedgeVenue} {
		if v == "" {
			continue
		}
		if _, ok := c.Risk.Venues[v]; !ok {
			return fmt.Errorf("strategy venue %q missing from risk.venues", v)
		}
	}

	for i, p := range c.Positions {
		if _, ok := c.Risk.Venues[p.Venue]; !ok {
			return fmt.Errorf("positions[%d]: venue %q missing from risk.venues", i, p.Venue)
		}
		if _, ok := venue.ParseKind(p.Kind); !ok {
			return fmt.Errorf("positions[%d]: unknown kind %q", i, p.Kind)
		}
	}

	if _, err := c.ExecutionConfig(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "", "memory":
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite journal")
		}
	default:
		return fmt.Errorf("journal.type must be 'memory' or 'sqlite'")
	}
	return nil
}

// StrategyParams maps the config block onto the policy parameter struct.
func (c *Run) StrategyParams() strategy.Params {
	s := c.Strategy
	return strategy.Params{
		Venue:      s.Venue,
		HedgeVenue: s.HedgeVenue,

		Asset:       s.Asset,
		StakedAsset: s.StakedAsset,
		DebtAsset:   s.DebtAsset,
		HedgeAsset:  s.HedgeAsset,

		Capital: s.Capital.Decimal,

		MaxLTV:               s.MaxLTV.Decimal,
		MaxExpectedPriceMove: s.MaxExpectedPriceMove.Decimal,
		SafetyBuffer:         s.SafetyBuffer.Decimal,

		DeltaDriftTolerance: s.DeltaDriftTolerance.Decimal,
		LTVDriftTolerance:   s.LTVDriftTolerance.Decimal,
		AllocationTolerance: s.AllocationTolerance.Decimal,

		CriticalDeleverage: s.CriticalDeleverage.Decimal,
		MinActionSize:      s.MinActionSize.Decimal,
	}
}

// RiskParams builds the assessment parameter table.
func (c *Run) RiskParams() (risk.Params, error) {
	p := risk.Params{
		Venues:                 make(map[string]risk.VenueParams, len(c.Risk.Venues)),
		WarningHealthFactor:    c.Risk.WarningHealthFactor.Decimal,
		CriticalHealthFactor:   c.Risk.CriticalHealthFactor.Decimal,
		WarningMarginMultiple:  c.Risk.WarningMarginMultiple.Decimal,
		CriticalMarginMultiple: c.Risk.CriticalMarginMultiple.Decimal,
	}
	for name, row := range c.Risk.Venues {
		fam, ok := venue.ParseFamily(row.Family)
		if !ok {
			return risk.Params{}, fmt.Errorf("venue %q: unknown family %q", name, row.Family)
		}
		p.Venues[name] = risk.VenueParams{
			Family:               fam,
			MaxLTV:               row.MaxLTV.Decimal,
			LiquidationThreshold: row.LiquidationThreshold.Decimal,
			LiquidationBonus:     row.LiquidationBonus.Decimal,
			CloseFactor:          row.CloseFactor.Decimal,
			MaintenanceMargin:    row.MaintenanceMargin.Decimal,
		}
	}
	return p, nil
}

// ExecutionConfig parses the dispatch policy.
func (c *Run) ExecutionConfig() (execution.Config, error) {
	out := execution.Config{
		MaxRetries: c.Execution.MaxRetries,
		RateLimits: c.Execution.RateLimits,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"execution.timeout", c.Execution.Timeout, &out.Timeout},
		{"execution.backoff_base", c.Execution.BackoffBase, &out.BackoffBase},
		{"execution.backoff_max", c.Execution.BackoffMax, &out.BackoffMax},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return execution.Config{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return out, nil
}

// Families maps venue names onto adapter families for the dispatcher.
func (c *Run) Families() map[string]venue.Family {
	out := make(map[string]venue.Family, len(c.Risk.Venues))
	for name, row := range c.Risk.Venues {
		fam, _ := venue.ParseFamily(row.Family)
		out[name] = fam
	}
	return out
}

// InitialPositions builds the tracker seed from the position rows.
func (c *Run) InitialPositions() map[position.Key]decimal.Decimal {
	out := make(map[position.Key]decimal.Decimal, len(c.Positions))
	for _, p := range c.Positions {
		kind, _ := venue.ParseKind(p.Kind)
		k := position.Key{Venue: p.Venue, Asset: p.Asset, Kind: kind}
		out[k] = out[k].Add(p.Quantity.Decimal)
	}
	return out
}

// SimAdapters builds one simulated adapter per venue family from the
// venue table. Venues sharing a family must agree on costs; per-venue cost
// curves would need per-venue adapters.
func (c *Run) SimAdapters() (map[venue.Family]venue.Adapter, error) {
	costs := make(map[venue.Family]VenueRow)
	for name, row := range c.Risk.Venues {
		fam, _ := venue.ParseFamily(row.Family)
		prev, seen := costs[fam]
		if !seen {
			costs[fam] = row
			continue
		}
		if !prev.SlippageBps.Equal(row.SlippageBps.Decimal) || !prev.FeeBps.Equal(row.FeeBps.Decimal) {
			return nil, fmt.Errorf("venue %q: execution costs disagree within family %q", name, row.Family)
		}
	}

	out := make(map[venue.Family]venue.Adapter, len(costs))
	for fam, row := range costs {
		out[fam] = execution.NewSimAdapter(fam, row.SlippageBps.Decimal, row.FeeBps.Decimal)
	}
	return out, nil
}

// OpenJournal opens the configured ledger backend.
func (c *Run) OpenJournal() (journal.Journal, error) {
	switch c.Journal.Type {
	case "", "memory":
		return journal.NewMemory(), nil
	case "sqlite":
		return journal.NewSQLite(c.Journal.DBPath)
	default:
		return nil, fmt.Errorf("journal.type must be 'memory' or 'sqlite'")
	}
}

// Default returns a runnable pure-lending configuration.
func Default() *Run {
	return &Run{
		Mode: string(strategy.PureLending),
		Strategy: StrategyConfig{
			Venue:               "aave",
			Asset:               "USDC",
			Capital:             Dec("100000"),
			AllocationTolerance: Dec("0.01"),
			MinActionSize:       Dec("0.0001"),
		},
		Risk: RiskConfig{
			WarningHealthFactor:    Dec("1.30"),
			CriticalHealthFactor:   Dec("1.10"),
			WarningMarginMultiple:  Dec("2.0"),
			CriticalMarginMultiple: Dec("1.25"),
			Venues: map[string]VenueRow{
				"aave": {
					Family:               "onchain",
					MaxLTV:               Dec("0.80"),
					LiquidationThreshold: Dec("0.85"),
					LiquidationBonus:     Dec("0.05"),
					CloseFactor:          Dec("0.50"),
					SlippageBps:          Dec("5"),
					FeeBps:               Dec("2"),
				},
			},
		},
		Execution: ExecutionConfig{
			Timeout:     "10s",
			MaxRetries:  3,
			BackoffBase: "100ms",
			BackoffMax:  "5s",
		},
		Positions: []PositionRow{
			{Venue: "aave", Asset: "USDC", Kind: "collateral", Quantity: Dec("100000")},
		},
		Journal: JournalConfig{Type: "memory"},
	}
}
