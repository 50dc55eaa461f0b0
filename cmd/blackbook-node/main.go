package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodnatureofminers/blackbook/internal/audit"
	"github.com/goodnatureofminers/blackbook/internal/chain"
	"github.com/goodnatureofminers/blackbook/internal/metrics"
	"github.com/goodnatureofminers/blackbook/internal/miner"
	"github.com/goodnatureofminers/blackbook/internal/node"
	"github.com/goodnatureofminers/blackbook/internal/pricefeed"
	"github.com/goodnatureofminers/blackbook/internal/repository/clickhouse"
	"github.com/goodnatureofminers/blackbook/internal/seed"
	"github.com/goodnatureofminers/blackbook/internal/watcher"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Log logConfig `group:"logging"`

	MetricsAddr string `long:"metrics-addr" env:"BLACKBOOK_METRICS_ADDR" default:":2112" description:"address for the metrics server"`
	SeedFile    string `long:"seed-file" env:"BLACKBOOK_SEED_FILE" description:"TOML catalog of markets created at startup"`

	PowLimitBits     uint32        `long:"pow-limit-bits" env:"BLACKBOOK_POW_LIMIT_BITS" base:"16" default:"1f00ffff" description:"easiest target in compact form (hex)"`
	BlockSpacing     time.Duration `long:"block-spacing" env:"BLACKBOOK_BLOCK_SPACING" default:"10s" description:"target time between blocks"`
	RetargetInterval uint64        `long:"retarget-interval" env:"BLACKBOOK_RETARGET_INTERVAL" default:"20" description:"blocks between difficulty adjustments"`
	MinerWorkers     int           `long:"miner-workers" env:"BLACKBOOK_MINER_WORKERS" default:"4" description:"goroutines searching nonces"`
	MinerInterval    time.Duration `long:"miner-interval" env:"BLACKBOOK_MINER_INTERVAL" default:"2s" description:"idle wake-up interval of the miner"`
	MineEmpty        bool          `long:"mine-empty" env:"BLACKBOOK_MINE_EMPTY" description:"produce blocks without transactions"`
	ExpiryInterval   time.Duration `long:"expiry-interval" env:"BLACKBOOK_EXPIRY_INTERVAL" default:"5s" description:"how often expired markets are closed"`
	MempoolLimit     int           `long:"mempool-limit" env:"BLACKBOOK_MEMPOOL_LIMIT" default:"10000" description:"maximum queued transactions"`

	ClickhouseDSN string `long:"clickhouse-dsn" env:"BLACKBOOK_CLICKHOUSE_DSN" description:"archive committed blocks to ClickHouse"`
	PostgresDSN   string `long:"postgres-dsn" env:"BLACKBOOK_POSTGRES_DSN" description:"write the audit log to PostgreSQL"`
	PostgresConns int    `long:"postgres-max-conns" env:"BLACKBOOK_POSTGRES_MAX_CONNS" default:"4" description:"audit pool size"`
	RedisAddr     string `long:"redis-addr" env:"BLACKBOOK_REDIS_ADDR" description:"cache pushed prices in Redis"`
	RedisPassword string `long:"redis-password" env:"BLACKBOOK_REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"BLACKBOOK_REDIS_DB" default:"0" description:"Redis database"`
}

func main() {
	cfg := config{}

	_ = godotenv.Load()

	if _, err := flags.ParseArgs(&cfg, os.Args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("blackbook node failed", zap.Error(err))
	}
	logger.Info("blackbook node stopped")
}

func run(ctx context.Context, cfg config, logger *zap.Logger) error {
	nodeCfg := node.DefaultConfig()
	nodeCfg.Chain.PowLimitBits = cfg.PowLimitBits
	nodeCfg.Chain.TargetSpacing = cfg.BlockSpacing
	nodeCfg.Chain.RetargetInterval = cfg.RetargetInterval
	nodeCfg.Chain.Workers = cfg.MinerWorkers
	nodeCfg.MempoolLimit = cfg.MempoolLimit

	deps := node.Dependencies{Metrics: metrics.NewNode()}

	if cfg.ClickhouseDSN != "" {
		repo, err := clickhouse.NewRepository(cfg.ClickhouseDSN, metrics.NewArchive())
		if err != nil {
			return fmt.Errorf("init archive repository: %w", err)
		}
		defer func() {
			_ = repo.Close()
		}()
		if err := repo.Ping(ctx); err != nil {
			return fmt.Errorf("ping clickhouse: %w", err)
		}
		writer := clickhouse.NewArchiveWriter(logger, repo)
		writer.Start(ctx)
		defer writer.Stop()
		deps.Archive = writer
		logger.Info("archiving blocks to clickhouse")
	}

	if cfg.PostgresDSN != "" {
		pool, err := audit.Connect(ctx, cfg.PostgresDSN, cfg.PostgresConns)
		if err != nil {
			return fmt.Errorf("init audit store: %w", err)
		}
		defer pool.Close()
		if err := audit.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate audit store: %w", err)
		}
		deps.Audit = audit.NewPostgres(pool)
		logger.Info("writing audit log to postgres")
	}

	if cfg.RedisAddr != "" {
		prices, client, err := pricefeed.DialRedis(ctx, pricefeed.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("init price cache: %w", err)
		}
		defer func() {
			_ = client.Close()
		}()
		deps.Prices = prices
		logger.Info("caching prices in redis", zap.String("addr", cfg.RedisAddr))
	}

	n, err := node.New(ctx, logger, nodeCfg, deps)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}

	if cfg.SeedFile != "" {
		catalog, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		ids, err := seed.Apply(ctx, n, catalog, time.Now())
		if err != nil {
			return err
		}
		logger.Info("seeded markets", zap.Strings("markets", ids))
	}

	minerSvc, err := miner.NewService(logger, n, chain.NewSolver(nodeCfg.Chain), metrics.NewMiner(), miner.Config{
		Interval:  cfg.MinerInterval,
		MineEmpty: cfg.MineEmpty,
	})
	if err != nil {
		return fmt.Errorf("init miner: %w", err)
	}
	watcherSvc, err := watcher.NewService(logger, n, metrics.NewWatcher(), cfg.ExpiryInterval)
	if err != nil {
		return fmt.Errorf("init watcher: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(ctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		return minerSvc.Run(ctx)
	})
	g.Go(func() error {
		return watcherSvc.Run(ctx)
	})
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}()

	logger.Info("starting metrics server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return ctx.Err()
}
