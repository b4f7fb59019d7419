package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
ethRpcUrl: http://localhost:8545
subgraphUrl: http://localhost:8000/subgraphs/name/ajna
keeperKeystore: /keys/keeper.json
delayBetweenRuns: 30s
delayBetweenActions: 2
ajna:
  poolInfoUtils: "0x30c5eF2997d6a882DE52c4ec01B6D0a5e5B4fAAE"
pools:
  - name: WETH / USDC
    address: "0x0a5e5B4fAAE30c5eF2997d6a882DE52c4ec01B6D"
    price:
      source: coingecko
      query: ids=ethereum&vs_currencies=usd
    kick:
      minDebt: 50
      priceFactor: 0.9
    take:
      minCollateral: 0.01
      priceFactor: 0.99
      withdrawRewardLiquidity: true
    collectLpReward:
      minAmount: 0.001
      rewardAction:
        action: transfer
        to: "0x000000000000000000000000000000000000dEaD"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "keeper.yaml", sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 30*time.Second, cfg.DelayBetweenRuns.Duration)
	require.Equal(t, 2*time.Second, cfg.DelayBetweenActions.Duration)
	require.Len(t, cfg.Pools, 1)

	p := cfg.Pools[0]
	require.Equal(t, "WETH / USDC", p.Name)
	require.Equal(t, SourceCoinGecko, p.Price.Source)
	require.NotNil(t, p.Kick)
	require.InDelta(t, 0.9, p.Kick.PriceFactor, 1e-12)
	require.InDelta(t, 1.10, p.Kick.ApprovalMargin, 1e-12)
	require.True(t, p.Take.WithdrawRewardLiquidity)
	require.Equal(t, "quote", p.CollectLPReward.RedeemAs)
	require.Equal(t, "transfer", p.CollectLPReward.RewardAction.Action)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "keeper.yaml", sampleYAML))
	require.NoError(t, err)

	require.Equal(t, DrainAbort, cfg.Rewards.DrainPolicy)
	require.Equal(t, 200*time.Millisecond, cfg.TxQueue.PollInterval.Duration)
	require.Equal(t, 20, cfg.TxQueue.MaxPolls)
	require.Equal(t, "@every 10m", cfg.Schedule.RewardDrainCron)
	require.Equal(t, "https://api.coingecko.com/api/v3", cfg.Pricing.CoinGeckoURL)
	require.Equal(t, uint32(3000), cfg.UniswapOverrides.DefaultFee)
}

func TestLoadTOML(t *testing.T) {
	body := `
ethRpcUrl = "http://localhost:8545"
subgraphUrl = "http://localhost:8000"
delayBetweenRuns = "1m"

[ajna]
poolInfoUtils = "0x30c5eF2997d6a882DE52c4ec01B6D0a5e5B4fAAE"

[[pools]]
name = "fixed"
address = "0x0a5e5B4fAAE30c5eF2997d6a882DE52c4ec01B6D"

[pools.price]
source = "fixed"
value = 1.5
invert = true
`
	cfg, err := Load(writeFile(t, "keeper.toml", body))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, time.Minute, cfg.DelayBetweenRuns.Duration)
	require.InDelta(t, 1.5, cfg.Pools[0].Price.Value, 1e-12)
	require.True(t, cfg.Pools[0].Price.Invert)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEEPER_RPC_URL", "wss://rpc.example")
	t.Setenv("KEEPER_DRY_RUN", "true")
	t.Setenv("SQLITE_PATH", "/tmp/keeper.db")

	cfg, err := Load(writeFile(t, "keeper.yaml", sampleYAML))
	require.NoError(t, err)
	require.Equal(t, "wss://rpc.example", cfg.EthRPCURL)
	require.True(t, cfg.DryRun)
	require.Equal(t, "/tmp/keeper.db", cfg.Database.SQLitePath)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeFile(t, "keeper.yaml", sampleYAML))
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"rpc", func(c *Config) { c.EthRPCURL = "" }, "ethRpcUrl"},
		{"pool info", func(c *Config) { c.Ajna.PoolInfoUtils = "nope" }, "poolInfoUtils"},
		{"drain policy", func(c *Config) { c.Rewards.DrainPolicy = "retry" }, "drainPolicy"},
		{"no pools", func(c *Config) { c.Pools = nil }, "at least one pool"},
		{"kick factor", func(c *Config) { c.Pools[0].Kick.PriceFactor = 0 }, "kick.priceFactor"},
		{"take factor", func(c *Config) { c.Pools[0].Take.PriceFactor = -1 }, "take.priceFactor"},
		{"redeem", func(c *Config) { c.Pools[0].CollectLPReward.RedeemAs = "both" }, "redeemAs"},
		{"action", func(c *Config) { c.Pools[0].CollectLPReward.RewardAction.Action = "burn" }, "not supported"},
		{"duplicate", func(c *Config) { c.Pools = append(c.Pools, c.Pools[0]) }, "duplicate"},
		{"price source", func(c *Config) { c.Pools[0].Price.Source = "bogus" }, `price.source "bogus"`},
		{"price required", func(c *Config) { c.Pools[0].Price = PriceConfig{} }, "price.source is required"},
		{"price query", func(c *Config) { c.Pools[0].Price.Query = "" }, "price.query"},
		{"price reference", func(c *Config) {
			c.Pools[0].Price = PriceConfig{Source: SourcePool, Reference: "mid"}
		}, `price.reference "mid"`},
		{"fixed price", func(c *Config) { c.Pools[0].Price = PriceConfig{Source: SourceFixed} }, "price.value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	t.Run("take only pool needs no price", func(t *testing.T) {
		cfg := base()
		cfg.Pools[0].Kick = nil
		cfg.Pools[0].Price = PriceConfig{}
		require.NoError(t, cfg.Validate())
	})
	t.Run("pool reference", func(t *testing.T) {
		cfg := base()
		cfg.Pools[0].Price = PriceConfig{Source: SourcePool, Reference: ReferenceLLB}
		require.NoError(t, cfg.Validate())
	})
}

func TestDurationText(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1.5")))
	require.Equal(t, 1500*time.Millisecond, d.Duration)
	require.NoError(t, d.UnmarshalText([]byte("250ms")))
	require.Equal(t, 250*time.Millisecond, d.Duration)
	require.Error(t, d.UnmarshalText([]byte("soon")))
}
