package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"PoolKeeper/internal/calculator"
	"PoolKeeper/internal/chain"
	"PoolKeeper/internal/config"
	"PoolKeeper/internal/kick"
	"PoolKeeper/internal/logger"
	"PoolKeeper/internal/model"
	"PoolKeeper/internal/notifier"
	"PoolKeeper/internal/price"
	"PoolKeeper/internal/recorder"
	"PoolKeeper/internal/reward"
	"PoolKeeper/internal/scheduler"
	"PoolKeeper/internal/subgraph"
	"PoolKeeper/internal/take"
	"PoolKeeper/internal/txqueue"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "configs/keeper.yaml", "path to the keeper config (.yaml or .toml)")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	dryRun := pflag.Bool("dry-run", false, "log decisions without sending transactions")
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before environment overrides")
	pflag.Parse()

	log := logger.New(*verbose, "")

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("could not load env file", "path", *envFile, "error", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("config validation", "error", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if cfg.Logging.DebugFile != "" {
		log = logger.New(*verbose, cfg.Logging.DebugFile)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("keeper exited", "error", err)
		os.Exit(1)
	}
	log.Info("keeper stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("keeper starting", "pools", len(cfg.Pools), "dryRun", cfg.DryRun)

	key, err := loadKey(cfg)
	if err != nil {
		return fmt.Errorf("load keeper key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer client.Close()

	signer, err := chain.NewSigner(ctx, client, key)
	if err != nil {
		return err
	}
	log.Info("signer ready", "address", signer.Address(), "chainId", signer.ChainID())

	txq := txqueue.New(signer,
		txqueue.WithPollInterval(cfg.TxQueue.PollInterval.Duration),
		txqueue.WithMaxPolls(cfg.TxQueue.MaxPolls),
		txqueue.WithLogger(log.With("component", "txqueue")),
	)
	tokens := chain.NewERC20(signer)
	utils := chain.NewPoolInfoUtils(client, common.HexToAddress(cfg.Ajna.PoolInfoUtils))

	pools, err := chain.LoadPools(ctx, signer, tokens, utils, cfg.Pools, log)
	if err != nil {
		return err
	}

	rec := openRecorder(cfg, log)
	defer rec.Close()

	resolver := price.NewResolver(
		price.NewCoinGeckoSource(cfg.Pricing.CoinGeckoURL, cfg.Pricing.CoinGeckoAPIKey, cfg.Pricing.RequestsPerMinute),
		utils,
	)
	indexer := subgraph.NewClient(cfg.SubgraphURL)

	swapper := chain.NewSwapper(signer, tokens, chain.UniswapConfig{
		Router:     optionalAddress(cfg.UniswapOverrides.RouterAddress),
		Quoter:     optionalAddress(cfg.UniswapOverrides.QuoterAddress),
		DefaultFee: cfg.UniswapOverrides.DefaultFee,
	}, chain.NewOneInchClient(cfg.OneInch.APIURL, cfg.OneInch.APIKey), log)

	tracker := reward.NewTracker(reward.Params{
		Tokens:        tokens,
		Swapper:       swapper,
		Queue:         txq,
		Signer:        signer.Address(),
		ChainID:       signer.ChainID(),
		RouteOverride: optionalAddress(cfg.UniswapOverrides.WethAddress),
		Policy:        cfg.Rewards.DrainPolicy,
		Delay:         cfg.DelayBetweenActions.Duration,
		Recorder:      rec,
		Logger:        log,
	})

	var watchers sync.WaitGroup
	runners := make([]*scheduler.PoolRunner, 0, len(pools))
	for i, pool := range pools {
		pc := cfg.Pools[i]
		plog := log.With("pool", pc.Name)
		runner := &scheduler.PoolRunner{
			Info:   pool.Info(),
			Origin: price.OriginFromConfig(pc.Price),
		}

		if pc.Kick != nil {
			runner.Kick = kick.NewEngine(kick.Params{
				Pool:     pool,
				Indexer:  indexer,
				Queue:    txq,
				Config:   *pc.Kick,
				Signer:   signer.Address(),
				DryRun:   cfg.DryRun,
				Delay:    cfg.DelayBetweenActions.Duration,
				Recorder: rec,
				Logger:   plog,
			})
		}
		if pc.Take != nil {
			runner.Take = take.NewEngine(take.Params{
				Pool:     pool,
				Indexer:  indexer,
				Queue:    txq,
				Config:   *pc.Take,
				DryRun:   cfg.DryRun,
				Delay:    cfg.DelayBetweenActions.Duration,
				Recorder: rec,
				Logger:   plog,
			})
		}
		if cfg.CollectBonds {
			runner.Bonds = kick.NewBondCollector(pool, txq, signer.Address(), cfg.DryRun, rec, plog)
		}
		if lp := pc.CollectLPReward; lp != nil {
			action, err := reward.ActionFromConfig(lp.RewardAction)
			if err != nil {
				return fmt.Errorf("pool %s reward action: %w", pc.Name, err)
			}
			collector := reward.NewLPCollector(reward.LPCollectorParams{
				Pool:      pool,
				Queue:     txq,
				Tracker:   tracker,
				Signer:    signer.Address(),
				RedeemAs:  model.RedeemAs(lp.RedeemAs),
				MinAmount: calculator.FloatToWad(lp.MinAmount),
				Action:    action,
				DryRun:    cfg.DryRun,
				Recorder:  rec,
				Logger:    plog,
			})
			runner.Collector = collector

			watcher := chain.NewLPAwardWatcher(client, runner.Info.Address, signer.Address(), chain.DefaultLogPollInterval, plog)
			watchers.Add(1)
			go func() {
				defer watchers.Done()
				if err := watcher.Run(ctx, collector.HandleAward); err != nil && ctx.Err() == nil {
					plog.Error("LP award watcher stopped", "error", err)
				}
			}()
		}
		runners = append(runners, runner)
	}

	var tn *notifier.TelegramNotifier
	var notify notifier.Notifier = notifier.Noop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Proxy, log)
		notify = tn
	}

	metricsSrv := serveMetrics(cfg.Metrics.ListenAddr, log)

	sched := scheduler.New(ctx, scheduler.Params{
		Resolver:    resolver,
		Pools:       runners,
		Rewards:     tracker,
		Notifier:    notify,
		Recorder:    rec,
		Interval:    cfg.DelayBetweenRuns.Duration,
		CollectSpec: cfg.Schedule.CollectCron,
		DrainSpec:   cfg.Schedule.RewardDrainCron,
		DryRun:      cfg.DryRun,
		Logger:      log,
	})
	if err := sched.RegisterAll(); err != nil {
		return err
	}
	sched.Start()
	sched.Tick(ctx)

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	log.Info("keeper is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")

	sched.Stop()
	watchers.Wait()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if n := tracker.Len(); n > 0 {
		log.Warn("undisposed reward credits left in memory", "credits", n)
	}
	return nil
}

// loadKey prefers KEEPER_PRIVATE_KEY, then the configured keystore. The
// keystore passphrase comes from KEEPER_KEYSTORE_PASSWORD or a terminal prompt.
func loadKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if raw := os.Getenv("KEEPER_PRIVATE_KEY"); raw != "" {
		return chain.ParsePrivateKey(raw)
	}
	if cfg.KeeperKeystore == "" {
		return nil, errors.New("set keeperKeystore or KEEPER_PRIVATE_KEY")
	}
	password, ok := os.LookupEnv("KEEPER_KEYSTORE_PASSWORD")
	if !ok {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, errors.New("KEEPER_KEYSTORE_PASSWORD is not set and stdin is not a terminal")
		}
		fmt.Fprint(os.Stderr, "Keystore password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		password = string(pw)
	}
	return chain.LoadKeystore(cfg.KeeperKeystore, password)
}

func openRecorder(cfg *config.Config, log *slog.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Warn("init sqlite recorder failed, using noop", "error", err)
		return recorder.NewNoopRecorder()
	}
	return sr
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()
	log.Info("metrics server listening", "addr", addr)
	return srv
}

func optionalAddress(s string) common.Address {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}
	}
	return common.HexToAddress(s)
}
