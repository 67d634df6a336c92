package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"frizo/prop_engine/internal/feed"
	"frizo/prop_engine/internal/funded"
	"frizo/prop_engine/internal/qualification"
)

// Config holds the application configuration.
type Config struct {
	// Logging configuration
	LogLevel string

	// Application configuration
	Environment string

	// Path to the YAML rule set, empty means built-in defaults
	RulesPath string

	// Price history depth per feed
	FeedHistory int
}

// Load loads the configuration from environment variables.
func Load() *Config {
	config := &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "development"),
		RulesPath:   getEnv("RULES_PATH", ""),
		FeedHistory: getEnvAsInt("FEED_HISTORY", 256),
	}

	return config
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

// getEnvAsInt gets an environment variable as integer with a default value.
func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// RuleSet is the on-disk shape of one versioned rule profile: evaluation
// and funded rules plus the pool ratios and feed bounds they run under.
// Amounts are decimal strings and durations use Go duration syntax, so a
// rule file round-trips without float precision loss. Engines capture
// their rules at start; editing a rule set never changes a running account.
type RuleSet struct {
	Name          string             `yaml:"name"`
	Version       int                `yaml:"version"`
	Qualification QualificationRules `yaml:"qualification"`
	Funded        FundedRules        `yaml:"funded"`
	Pool          PoolRules          `yaml:"pool"`
	Feed          FeedBounds         `yaml:"feed"`
}

type QualificationRules struct {
	VirtualBalance   string `yaml:"virtual_balance"`
	ProfitTargetBps  int64  `yaml:"profit_target_bps"`
	MaxDrawdownBps   int64  `yaml:"max_drawdown_bps"`
	MinTrades        int    `yaml:"min_trades"`
	EvaluationPeriod string `yaml:"evaluation_period"`
	Leverage         uint   `yaml:"leverage"`
	MaxPositionSize  string `yaml:"max_position_size"`
}

type FundedRules struct {
	InitialBalance  string `yaml:"initial_balance"`
	MaxDailyLoss    string `yaml:"max_daily_loss"`
	MaxPositionSize string `yaml:"max_position_size"`
	Leverage        uint   `yaml:"leverage"`
	ProfitSplitBps  int64  `yaml:"profit_split_bps"`
}

type PoolRules struct {
	TotalCollateral       string `yaml:"total_collateral"`
	MaxExposureRatioBps   int64  `yaml:"max_exposure_ratio_bps"`
	MinCollateralRatioBps int64  `yaml:"min_collateral_ratio_bps"`
}

type FeedBounds struct {
	MaxDeviationBps   int64  `yaml:"max_deviation_bps"`
	Heartbeat         string `yaml:"heartbeat"`
	MinUpdateInterval string `yaml:"min_update_interval"`
}

// LoadRuleSet reads and validates one YAML rule set.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet parses a YAML rule set and validates both halves.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	rs := &RuleSet{}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	if rs.Name == "" {
		return nil, fmt.Errorf("rule set: name is required")
	}
	if _, err := rs.QualificationRules(); err != nil {
		return nil, fmt.Errorf("rule set %q: %w", rs.Name, err)
	}
	if _, err := rs.FundedRules(); err != nil {
		return nil, fmt.Errorf("rule set %q: %w", rs.Name, err)
	}
	if _, err := rs.PoolParams(); err != nil {
		return nil, fmt.Errorf("rule set %q: %w", rs.Name, err)
	}
	if _, err := rs.FeedConfig("probe", []string{"probe"}, 0); err != nil {
		return nil, fmt.Errorf("rule set %q: %w", rs.Name, err)
	}
	return rs, nil
}

// PoolSettings carries the parsed collateral pool arguments.
type PoolSettings struct {
	TotalCollateral       decimal.Decimal
	MaxExposureRatioBps   int64
	MinCollateralRatioBps int64
}

func (rs *RuleSet) PoolParams() (PoolSettings, error) {
	total, err := parseAmount("total_collateral", rs.Pool.TotalCollateral)
	if err != nil {
		return PoolSettings{}, err
	}
	if rs.Pool.MaxExposureRatioBps <= 0 || rs.Pool.MinCollateralRatioBps <= 0 {
		return PoolSettings{}, fmt.Errorf("pool ratios must be positive")
	}
	return PoolSettings{
		TotalCollateral:       total,
		MaxExposureRatioBps:   rs.Pool.MaxExposureRatioBps,
		MinCollateralRatioBps: rs.Pool.MinCollateralRatioBps,
	}, nil
}

// FeedConfig builds a feed configuration from the rule set's feed bounds.
func (rs *RuleSet) FeedConfig(symbol string, sources []string, historySize int) (feed.Config, error) {
	heartbeat, err := time.ParseDuration(rs.Feed.Heartbeat)
	if err != nil {
		return feed.Config{}, fmt.Errorf("heartbeat: %w", err)
	}
	minInterval, err := time.ParseDuration(rs.Feed.MinUpdateInterval)
	if err != nil {
		return feed.Config{}, fmt.Errorf("min_update_interval: %w", err)
	}
	if rs.Feed.MaxDeviationBps <= 0 {
		return feed.Config{}, fmt.Errorf("max_deviation_bps must be positive")
	}
	return feed.Config{
		Symbol:            symbol,
		MaxDeviationBps:   rs.Feed.MaxDeviationBps,
		Heartbeat:         heartbeat,
		MinUpdateInterval: minInterval,
		HistorySize:       historySize,
		AuthorizedSources: sources,
	}, nil
}

// QualificationRules converts the on-disk shape into engine rules.
func (rs *RuleSet) QualificationRules() (qualification.Rules, error) {
	balance, err := parseAmount("virtual_balance", rs.Qualification.VirtualBalance)
	if err != nil {
		return qualification.Rules{}, err
	}
	maxSize, err := parseAmount("max_position_size", rs.Qualification.MaxPositionSize)
	if err != nil {
		return qualification.Rules{}, err
	}
	period, err := time.ParseDuration(rs.Qualification.EvaluationPeriod)
	if err != nil {
		return qualification.Rules{}, fmt.Errorf("evaluation_period: %w", err)
	}

	rules := qualification.Rules{
		VirtualBalance:   balance,
		ProfitTargetBps:  rs.Qualification.ProfitTargetBps,
		MaxDrawdownBps:   rs.Qualification.MaxDrawdownBps,
		MinTrades:        rs.Qualification.MinTrades,
		EvaluationPeriod: period,
		Leverage:         rs.Qualification.Leverage,
		MaxPositionSize:  maxSize,
	}
	if err := rules.Validate(); err != nil {
		return qualification.Rules{}, err
	}
	return rules, nil
}

// FundedRules converts the on-disk shape into engine rules.
func (rs *RuleSet) FundedRules() (funded.Rules, error) {
	balance, err := parseAmount("initial_balance", rs.Funded.InitialBalance)
	if err != nil {
		return funded.Rules{}, err
	}
	dailyLoss, err := parseAmount("max_daily_loss", rs.Funded.MaxDailyLoss)
	if err != nil {
		return funded.Rules{}, err
	}
	maxSize, err := parseAmount("max_position_size", rs.Funded.MaxPositionSize)
	if err != nil {
		return funded.Rules{}, err
	}

	rules := funded.Rules{
		InitialBalance:  balance,
		MaxDailyLoss:    dailyLoss,
		MaxPositionSize: maxSize,
		Leverage:        rs.Funded.Leverage,
		ProfitSplitBps:  rs.Funded.ProfitSplitBps,
	}
	if err := rules.Validate(); err != nil {
		return funded.Rules{}, err
	}
	return rules, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, fmt.Errorf("%s is required", field)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// DefaultRuleSet is the built-in profile used when no rule file is given.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Name:    "standard-10k",
		Version: 1,
		Qualification: QualificationRules{
			VirtualBalance:   "10000",
			ProfitTargetBps:  1000,
			MaxDrawdownBps:   1000,
			MinTrades:        5,
			EvaluationPeriod: "720h",
			Leverage:         10,
			MaxPositionSize:  "5000",
		},
		Funded: FundedRules{
			InitialBalance:  "10000",
			MaxDailyLoss:    "500",
			MaxPositionSize: "5000",
			Leverage:        10,
			ProfitSplitBps:  8000,
		},
		Pool: PoolRules{
			TotalCollateral:       "1000000",
			MaxExposureRatioBps:   5000,
			MinCollateralRatioBps: 15000,
		},
		Feed: FeedBounds{
			MaxDeviationBps:   500,
			Heartbeat:         "30s",
			MinUpdateInterval: "1s",
		},
	}
}
