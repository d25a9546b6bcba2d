package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// VenueConfig describes one exchange deployment in the registry file.
type VenueConfig struct {
	Name     string `yaml:"name"`
	Router   string `yaml:"router"`
	Factory  string `yaml:"factory"`
	Quoter   string `yaml:"quoter,omitempty"`
	Protocol string `yaml:"protocol"`
}

// TokenConfig describes one asset in the registry file.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
	Name     string `yaml:"name"`
}

// PairConfig is one pair to scan.
type PairConfig struct {
	TokenA string `yaml:"token_a"`
	TokenB string `yaml:"token_b"`
}

// RateLimitConfig bounds outbound RPC request rate.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// Config is the fully resolved runtime configuration. Registry data
// comes from the YAML file; secrets come from the environment. All of
// it must resolve before the scanner starts.
type Config struct {
	ChainID uint64 `yaml:"chain_id"`

	Venues []VenueConfig `yaml:"venues"`
	Tokens []TokenConfig `yaml:"tokens"`
	Pairs  []PairConfig  `yaml:"pairs"`

	BaseToken            string  `yaml:"base_token"`
	MinProfitPercent     float64 `yaml:"min_profit_percent"`
	SanityCeilingPercent float64 `yaml:"sanity_ceiling_percent"`
	ProfitFlagPercent    float64 `yaml:"profit_flag_percent"`
	GasSafetyMultiplier  float64 `yaml:"gas_safety_multiplier"`

	TradeAmountWei      string `yaml:"trade_amount_wei"`
	MaxGasPriceWei      string `yaml:"max_gas_price_wei"`
	FallbackGasPriceWei string `yaml:"fallback_gas_price_wei"`

	ScanIntervalMs    int `yaml:"scan_interval_ms"`
	QuoteTTLMs        int `yaml:"quote_ttl_ms"`
	SettlementDelayMs int `yaml:"settlement_delay_ms"`

	RPCRateLimit RateLimitConfig `yaml:"rpc_rate_limit"`

	HistoryDBPath string `yaml:"history_db_path"`

	// Resolved from the environment, never from the file.
	RPCEndpoint   string `yaml:"-"`
	PrivateKey    string `yaml:"-"`
	WalletAddress string `yaml:"-"`

	// Parsed amounts.
	TradeAmount      *big.Int `yaml:"-"`
	MaxGasPrice      *big.Int `yaml:"-"`
	FallbackGasPrice *big.Int `yaml:"-"`
}

// ScanInterval returns the polling cadence.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalMs) * time.Millisecond
}

// QuoteTTL returns the quote cache lifetime.
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLMs) * time.Millisecond
}

// SettlementDelay returns the wait between buy confirmation and the
// settlement balance read.
func (c *Config) SettlementDelay() time.Duration {
	return time.Duration(c.SettlementDelayMs) * time.Millisecond
}

// LoadConfig reads the YAML registry, overlays environment secrets,
// parses amounts, and validates. Any missing required parameter is a
// startup-fatal error.
func LoadConfig(path string) (*Config, error) {
	// A missing .env file is fine; the variables may be set directly
	// in the environment.
	_ = LoadEnv()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.RPCEndpoint, err = GetRequiredEnv(EnvRPCEndpoint)
	if err != nil {
		return nil, err
	}
	cfg.PrivateKey, err = GetRequiredEnv(EnvPrivateKey)
	if err != nil {
		return nil, err
	}
	cfg.WalletAddress, err = GetRequiredEnv(EnvWalletAddress)
	if err != nil {
		return nil, err
	}

	if err := cfg.parseAmounts(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) parseAmounts() error {
	var err error
	if c.TradeAmount, err = parseWei("trade_amount_wei", c.TradeAmountWei); err != nil {
		return err
	}
	if c.MaxGasPrice, err = parseWei("max_gas_price_wei", c.MaxGasPriceWei); err != nil {
		return err
	}
	if c.FallbackGasPrice, err = parseWei("fallback_gas_price_wei", c.FallbackGasPriceWei); err != nil {
		return err
	}
	return nil
}

func parseWei(field, value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s must be specified", field)
	}
	out, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s is not a valid integer: %q", field, value)
	}
	return out, nil
}

// Validate collects every configuration problem before failing.
func (c *Config) Validate() error {
	var errors []string

	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc endpoint must be specified")
	}
	if c.PrivateKey == "" {
		errors = append(errors, "private key must be specified")
	}
	if !common.IsHexAddress(c.WalletAddress) {
		errors = append(errors, "wallet address is not a valid address")
	}

	if len(c.Venues) < 2 {
		errors = append(errors, "at least two venues are required")
	}
	for _, v := range c.Venues {
		if v.Name == "" {
			errors = append(errors, "venue name must be specified")
		}
		if !common.IsHexAddress(v.Router) {
			errors = append(errors, fmt.Sprintf("venue %s: router is not a valid address", v.Name))
		}
		if !common.IsHexAddress(v.Factory) {
			errors = append(errors, fmt.Sprintf("venue %s: factory is not a valid address", v.Name))
		}
		switch v.Protocol {
		case "uniswap-v3", "pancake-v3":
		default:
			errors = append(errors, fmt.Sprintf("venue %s: unknown protocol %q", v.Name, v.Protocol))
		}
	}

	tokens := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			errors = append(errors, fmt.Sprintf("token %s: invalid address", t.Symbol))
		}
		tokens[t.Symbol] = true
	}
	if !tokens[c.BaseToken] {
		errors = append(errors, fmt.Sprintf("base_token %q is not in the token registry", c.BaseToken))
	}

	if len(c.Pairs) == 0 {
		errors = append(errors, "at least one pair is required")
	}
	for _, p := range c.Pairs {
		if !tokens[p.TokenA] || !tokens[p.TokenB] {
			errors = append(errors, fmt.Sprintf("pair %s/%s references unknown token", p.TokenA, p.TokenB))
		}
	}

	if c.MinProfitPercent <= 0 {
		errors = append(errors, "min_profit_percent must be positive")
	}
	if c.SanityCeilingPercent <= c.MinProfitPercent {
		errors = append(errors, "sanity_ceiling_percent must exceed min_profit_percent")
	}
	if c.TradeAmount == nil || c.TradeAmount.Sign() <= 0 {
		errors = append(errors, "trade_amount_wei must be positive")
	}
	if c.MaxGasPrice == nil || c.MaxGasPrice.Sign() <= 0 {
		errors = append(errors, "max_gas_price_wei must be positive")
	}
	if c.FallbackGasPrice == nil || c.FallbackGasPrice.Sign() <= 0 {
		errors = append(errors, "fallback_gas_price_wei must be positive")
	}
	if c.GasSafetyMultiplier < 1 {
		errors = append(errors, "gas_safety_multiplier must be at least 1")
	}
	if c.ScanIntervalMs <= 0 {
		errors = append(errors, "scan_interval_ms must be positive")
	}
	if c.QuoteTTLMs <= 0 {
		errors = append(errors, "quote_ttl_ms must be positive")
	}
	if c.SettlementDelayMs < 0 {
		errors = append(errors, "settlement_delay_ms must not be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}
	return nil
}
