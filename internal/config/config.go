package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config holds all keeper configuration.
type Config struct {
	EthRPCURL           string         `yaml:"ethRpcUrl" toml:"ethRpcUrl"`
	SubgraphURL         string         `yaml:"subgraphUrl" toml:"subgraphUrl"`
	KeeperKeystore      string         `yaml:"keeperKeystore" toml:"keeperKeystore"`
	DryRun              bool           `yaml:"dryRun" toml:"dryRun"`
	DelayBetweenRuns    Duration       `yaml:"delayBetweenRuns" toml:"delayBetweenRuns"`
	DelayBetweenActions Duration       `yaml:"delayBetweenActions" toml:"delayBetweenActions"`
	CollectBonds        bool           `yaml:"collectBonds" toml:"collectBonds"`
	Ajna                AjnaConfig     `yaml:"ajna" toml:"ajna"`
	Pricing             PricingConfig  `yaml:"pricing" toml:"pricing"`
	UniswapOverrides    UniswapConfig  `yaml:"uniswapOverrides" toml:"uniswapOverrides"`
	OneInch             OneInchConfig  `yaml:"oneInch" toml:"oneInch"`
	Schedule            ScheduleConfig `yaml:"schedule" toml:"schedule"`
	Rewards             RewardsConfig  `yaml:"rewards" toml:"rewards"`
	TxQueue             TxQueueConfig  `yaml:"txQueue" toml:"txQueue"`
	Logging             struct {
		DebugFile string `yaml:"debugFile" toml:"debugFile"`
	} `yaml:"logging" toml:"logging"`
	Metrics struct {
		ListenAddr string `yaml:"listenAddr" toml:"listenAddr"`
	} `yaml:"metrics" toml:"metrics"`
	Database struct {
		SQLitePath string `yaml:"sqlitePath" toml:"sqlitePath"`
	} `yaml:"database" toml:"database"`
	Telegram struct {
		BotToken string `yaml:"botToken" toml:"botToken"`
		ChatID   string `yaml:"chatId" toml:"chatId"`
		Proxy    string `yaml:"proxy" toml:"proxy"`
	} `yaml:"telegram" toml:"telegram"`
	Pools []PoolConfig `yaml:"pools" toml:"pools"`
}

type AjnaConfig struct {
	PoolInfoUtils string `yaml:"poolInfoUtils" toml:"poolInfoUtils"`
}

type PricingConfig struct {
	CoinGeckoAPIKey   string `yaml:"coinGeckoApiKey" toml:"coinGeckoApiKey"`
	CoinGeckoURL      string `yaml:"coinGeckoUrl" toml:"coinGeckoUrl"`
	RequestsPerMinute int    `yaml:"requestsPerMinute" toml:"requestsPerMinute"`
}

type UniswapConfig struct {
	WethAddress   string `yaml:"wethAddress" toml:"wethAddress"`
	RouterAddress string `yaml:"routerAddress" toml:"routerAddress"`
	QuoterAddress string `yaml:"quoterAddress" toml:"quoterAddress"`
	DefaultFee    uint32 `yaml:"defaultFee" toml:"defaultFee"`
}

type OneInchConfig struct {
	APIURL string `yaml:"apiUrl" toml:"apiUrl"`
	APIKey string `yaml:"apiKey" toml:"apiKey"`
}

type ScheduleConfig struct {
	RewardDrainCron string `yaml:"rewardDrainCron" toml:"rewardDrainCron"`
	CollectCron     string `yaml:"collectCron" toml:"collectCron"`
}

// Drain policies decide what happens when one reward disposal fails.
const (
	DrainAbort    = "abort"
	DrainContinue = "continue"
)

type RewardsConfig struct {
	DrainPolicy string `yaml:"drainPolicy" toml:"drainPolicy"`
}

type TxQueueConfig struct {
	PollInterval Duration `yaml:"pollInterval" toml:"pollInterval"`
	MaxPolls     int      `yaml:"maxPolls" toml:"maxPolls"`
}

// PoolConfig configures one pool. Kick, Take and CollectLPReward are optional.
type PoolConfig struct {
	Name            string                 `yaml:"name" toml:"name"`
	Address         string                 `yaml:"address" toml:"address"`
	Price           PriceConfig            `yaml:"price" toml:"price"`
	Kick            *KickConfig            `yaml:"kick" toml:"kick"`
	Take            *TakeConfig            `yaml:"take" toml:"take"`
	CollectLPReward *CollectLPRewardConfig `yaml:"collectLpReward" toml:"collectLpReward"`
}

// Price sources and pool references.
const (
	SourceFixed     = "fixed"
	SourceCoinGecko = "coingecko"
	SourcePool      = "pool"

	ReferenceHPB = "hpb"
	ReferenceHTP = "htp"
	ReferenceLUP = "lup"
	ReferenceLLB = "llb"
)

type PriceConfig struct {
	Source    string  `yaml:"source" toml:"source"`
	Value     float64 `yaml:"value" toml:"value"`
	Query     string  `yaml:"query" toml:"query"`
	Reference string  `yaml:"reference" toml:"reference"`
	Invert    bool    `yaml:"invert" toml:"invert"`
}

type KickConfig struct {
	MinDebt        float64 `yaml:"minDebt" toml:"minDebt"`
	PriceFactor    float64 `yaml:"priceFactor" toml:"priceFactor"`
	ApprovalMargin float64 `yaml:"approvalMargin" toml:"approvalMargin"`
}

type TakeConfig struct {
	MinCollateral           float64 `yaml:"minCollateral" toml:"minCollateral"`
	PriceFactor             float64 `yaml:"priceFactor" toml:"priceFactor"`
	WithdrawRewardLiquidity bool    `yaml:"withdrawRewardLiquidity" toml:"withdrawRewardLiquidity"`
}

type CollectLPRewardConfig struct {
	RedeemAs     string              `yaml:"redeemAs" toml:"redeemAs"`
	MinAmount    float64             `yaml:"minAmount" toml:"minAmount"`
	RewardAction *RewardActionConfig `yaml:"rewardAction" toml:"rewardAction"`
}

// RewardActionConfig is either {action: transfer, to} or
// {action: exchange, address, targetToken, slippage, fee, useOneInch}.
type RewardActionConfig struct {
	Action      string  `yaml:"action" toml:"action"`
	To          string  `yaml:"to" toml:"to"`
	Address     string  `yaml:"address" toml:"address"`
	TargetToken string  `yaml:"targetToken" toml:"targetToken"`
	Slippage    float64 `yaml:"slippage" toml:"slippage"`
	Fee         uint32  `yaml:"fee" toml:"fee"`
	UseOneInch  bool    `yaml:"useOneInch" toml:"useOneInch"`
}

// Duration wraps time.Duration so it can be written as "15s" in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	// Bare numbers are seconds.
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Load reads config from a YAML (or .toml) file, then applies environment
// variable overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("KEEPER_RPC_URL"); v != "" {
		c.EthRPCURL = v
	}
	if v := os.Getenv("KEEPER_SUBGRAPH_URL"); v != "" {
		c.SubgraphURL = v
	}
	if v := os.Getenv("KEEPER_KEYSTORE"); v != "" {
		c.KeeperKeystore = v
	}
	if v := os.Getenv("KEEPER_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DryRun = b
		}
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.Pricing.CoinGeckoAPIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && c.Telegram.Proxy == "" {
		c.Telegram.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
}

func (c *Config) applyDefaults() {
	if c.DelayBetweenRuns.Duration == 0 {
		c.DelayBetweenRuns.Duration = 15 * time.Second
	}
	if c.DelayBetweenActions.Duration == 0 {
		c.DelayBetweenActions.Duration = time.Second
	}
	if c.Pricing.CoinGeckoURL == "" {
		if c.Pricing.CoinGeckoAPIKey != "" {
			c.Pricing.CoinGeckoURL = "https://pro-api.coingecko.com/api/v3"
		} else {
			c.Pricing.CoinGeckoURL = "https://api.coingecko.com/api/v3"
		}
	}
	if c.Pricing.RequestsPerMinute == 0 {
		c.Pricing.RequestsPerMinute = 25
	}
	if c.UniswapOverrides.DefaultFee == 0 {
		c.UniswapOverrides.DefaultFee = 3000
	}
	if c.OneInch.APIURL == "" {
		c.OneInch.APIURL = "https://api.1inch.dev/swap/v6.0"
	}
	if c.Schedule.RewardDrainCron == "" {
		c.Schedule.RewardDrainCron = "@every 10m"
	}
	if c.Schedule.CollectCron == "" {
		c.Schedule.CollectCron = "@every 1m"
	}
	if c.Rewards.DrainPolicy == "" {
		c.Rewards.DrainPolicy = DrainAbort
	}
	if c.TxQueue.PollInterval.Duration == 0 {
		c.TxQueue.PollInterval.Duration = 200 * time.Millisecond
	}
	if c.TxQueue.MaxPolls == 0 {
		c.TxQueue.MaxPolls = 20
	}
	for i := range c.Pools {
		p := &c.Pools[i]
		if p.Name == "" {
			p.Name = "(unnamed)"
		}
		if p.Kick != nil && p.Kick.ApprovalMargin == 0 {
			p.Kick.ApprovalMargin = 1.10
		}
		if p.CollectLPReward != nil && p.CollectLPReward.RedeemAs == "" {
			p.CollectLPReward.RedeemAs = "quote"
		}
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.EthRPCURL == "" {
		return fmt.Errorf("ethRpcUrl is required")
	}
	if c.SubgraphURL == "" {
		return fmt.Errorf("subgraphUrl is required")
	}
	if !common.IsHexAddress(c.Ajna.PoolInfoUtils) {
		return fmt.Errorf("ajna.poolInfoUtils must be an address")
	}
	if c.Rewards.DrainPolicy != DrainAbort && c.Rewards.DrainPolicy != DrainContinue {
		return fmt.Errorf("rewards.drainPolicy must be %q or %q", DrainAbort, DrainContinue)
	}
	if c.UniswapOverrides.WethAddress != "" && !common.IsHexAddress(c.UniswapOverrides.WethAddress) {
		return fmt.Errorf("uniswapOverrides.wethAddress must be an address")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool is required")
	}
	seen := make(map[string]bool, len(c.Pools))
	for i, p := range c.Pools {
		if err := p.validate(); err != nil {
			return fmt.Errorf("pools[%d] (%s): %w", i, p.Name, err)
		}
		key := strings.ToLower(p.Address)
		if seen[key] {
			return fmt.Errorf("pools[%d] (%s): duplicate address %s", i, p.Name, p.Address)
		}
		seen[key] = true
	}
	return nil
}

func (p PoolConfig) validate() error {
	if !common.IsHexAddress(p.Address) {
		return fmt.Errorf("address must be an address")
	}
	if err := p.Price.validate(p.Kick != nil); err != nil {
		return err
	}
	if p.Kick != nil {
		if p.Kick.PriceFactor <= 0 {
			return fmt.Errorf("kick.priceFactor must be positive")
		}
		if p.Kick.MinDebt < 0 {
			return fmt.Errorf("kick.minDebt must not be negative")
		}
		if p.Kick.ApprovalMargin < 1 {
			return fmt.Errorf("kick.approvalMargin must be at least 1")
		}
	}
	if p.Take != nil && p.Take.PriceFactor <= 0 {
		return fmt.Errorf("take.priceFactor must be positive")
	}
	if lp := p.CollectLPReward; lp != nil {
		if lp.RedeemAs != "quote" && lp.RedeemAs != "collateral" {
			return fmt.Errorf("collectLpReward.redeemAs must be quote or collateral")
		}
		if a := lp.RewardAction; a != nil {
			switch a.Action {
			case "transfer":
				if !common.IsHexAddress(a.To) {
					return fmt.Errorf("collectLpReward.rewardAction.to must be an address")
				}
			case "exchange":
				if a.TargetToken == "" {
					return fmt.Errorf("collectLpReward.rewardAction.targetToken is required")
				}
			default:
				return fmt.Errorf("collectLpReward.rewardAction.action %q is not supported", a.Action)
			}
		}
	}
	return nil
}

// validate checks the price origin. A source is required when the pool kicks.
func (c PriceConfig) validate(required bool) error {
	switch c.Source {
	case "":
		if required {
			return fmt.Errorf("price.source is required when kick is configured")
		}
	case SourceFixed:
		if c.Value <= 0 {
			return fmt.Errorf("price.value must be positive for a fixed price")
		}
	case SourceCoinGecko:
		if c.Query == "" {
			return fmt.Errorf("price.query is required for coingecko")
		}
	case SourcePool:
		switch c.Reference {
		case ReferenceHPB, ReferenceHTP, ReferenceLUP, ReferenceLLB:
		default:
			return fmt.Errorf("price.reference %q is not supported", c.Reference)
		}
	default:
		return fmt.Errorf("price.source %q is not supported", c.Source)
	}
	return nil
}
