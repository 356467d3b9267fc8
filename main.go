package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthcheck "github.com/alexliesenfeld/health"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/atlas-money/liquidator/config"
	"github.com/atlas-money/liquidator/execution"
	"github.com/atlas-money/liquidator/gas"
	"github.com/atlas-money/liquidator/health"
	"github.com/atlas-money/liquidator/index"
	"github.com/atlas-money/liquidator/node"
	"github.com/atlas-money/liquidator/nonce"
	"github.com/atlas-money/liquidator/pricefeed"
	"github.com/atlas-money/liquidator/scanner"
)

func main() {
	// load a local .env if present; real deployments set the environment
	godotenv.Load()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Send()
	}

	logger.Info().
		Str("nodeUrl", cfg.NodeURL).
		Str("indexUrl", cfg.IndexURL).
		Str("identity", cfg.Identity).
		Int("pools", len(cfg.Pools)).
		Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodeClient, err := node.NewClient(cfg.NodeURL)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}

	indexClient, err := index.NewClient(cfg.IndexURL, cfg.IndexRequestsPerSec)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}

	pairs := make([]string, 0, len(cfg.Pools))
	pools := make([]scanner.Pool, 0, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		pairs = append(pairs, pool.Pair)
		pools = append(pools, scanner.Pool{ID: pool.ID, Pair: pool.Pair})
	}

	feed := pricefeed.NewWebsocketFeed(cfg.PriceFeedURL, pairs, logger)
	go feed.Run(ctx)

	strategy, err := gas.NewStrategy(
		nodeClient,
		cfg.GasWindow,
		cfg.GasPercentile,
		cfg.GasUrgentMultiplier,
		cfg.GasLimit,
		cfg.GasFloorPrice,
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
	go strategy.Run(ctx, cfg.GasRefreshInterval)

	// seed the nonce ledger from chain state before anything can broadcast
	ledger := nonce.NewLedger()
	onchainSeq, err := nodeClient.AccountSequence(ctx, cfg.Identity)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to fetch account sequence")
	}
	ledger.Sync(cfg.Identity, onchainSeq)
	logger.Info().Uint64("sequence", onchainSeq).Msg("nonce ledger synced")

	engine := execution.NewEngine(execution.Config{
		Identity:            cfg.Identity,
		MinResidualSpread:   cfg.MinResidualSpread,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
		ConfirmPollInterval: cfg.ConfirmPollInterval,
		MaxEscalations:      cfg.MaxEscalations,
		InitialBackoff:      cfg.InitialBackoff,
		MaxBackoff:          cfg.MaxBackoff,
		MaxTransientWait:    cfg.MaxTransientWait,
		MaxConcurrent:       cfg.MaxConcurrent,
	}, nodeClient, strategy, ledger, logger)

	scan := scanner.New(scanner.Config{
		Pools:                 pools,
		ScanInterval:          cfg.ScanInterval,
		PriceMaxAge:           cfg.PriceMaxAge,
		MinProfit:             cfg.MinProfit,
		LoanFeeRate:           cfg.LoanFeeRate,
		ParamsRefreshInterval: cfg.ParamsRefreshInterval,
		ReadBackoffInitial:    cfg.ReadBackoffInitial,
		ReadBackoffMax:        cfg.ReadBackoffMax,
	}, indexClient, feed, strategy, engine, engine.Reports(), logger)

	health.StartServer(ctx, logger, cfg.ListenAddr, scan,
		healthcheck.Check{
			Name: "node",
			Check: func(ctx context.Context) error {
				_, err := nodeClient.AccountSequence(ctx, cfg.Identity)
				return err
			},
		},
		healthcheck.Check{
			Name: "index",
			Check: func(ctx context.Context) error {
				_, err := indexClient.PoolParams(ctx, cfg.Pools[0].ID)
				return err
			},
		},
		healthcheck.Check{
			Name: "pricefeed",
			Check: func(context.Context) error {
				for _, pair := range pairs {
					tick, err := feed.CurrentPrice(pair)
					if err != nil {
						return err
					}
					if tick.Stale(cfg.PriceMaxAge, time.Now()) {
						return fmt.Errorf("price for %s is stale (as of %s)", pair, tick.AsOf)
					}
				}
				return nil
			},
		},
		healthcheck.Check{
			Name: "pools",
			Check: func(context.Context) error {
				if halted := scan.HaltedPools(); len(halted) > 0 {
					return fmt.Errorf("pools halted pending acknowledgement: %v", halted)
				}
				return nil
			},
		},
	)

	logger.Info().Msg("starting scan loop")
	scan.Run(ctx)

	logger.Info().Msg("shutting down")
}
