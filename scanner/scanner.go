package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atlas-money/liquidator/execution"
	"github.com/atlas-money/liquidator/gas"
	"github.com/atlas-money/liquidator/metrics"
	"github.com/atlas-money/liquidator/pricefeed"
	"github.com/atlas-money/liquidator/sizing"
	"github.com/atlas-money/liquidator/types"
)

//go:generate mockgen -source=scanner.go -destination=mock/scanner.go -package=mock

// PositionSource is the read-only position indexer surface.
type PositionSource interface {
	Positions(ctx context.Context, poolID string) ([]types.Position, error)
	PoolParams(ctx context.Context, poolID string) (types.PoolParams, error)
}

// Executor consumes intents. Each handed-over intent is owned by the
// executor until it comes back through the report stream.
type Executor interface {
	Execute(ctx context.Context, intent types.LiquidationIntent)
}

// FeeQuoter estimates the network fee an execution would pay.
type FeeQuoter interface {
	Quote(urgency gas.Urgency) gas.FeeBid
}

// Pool maps a tracked pool to its oracle price pair.
type Pool struct {
	ID   string
	Pair string
}

// Config carries the scanner's tuning parameters.
type Config struct {
	Pools        []Pool
	ScanInterval time.Duration
	// PriceMaxAge is the staleness threshold: older ticks are no new
	// information and are not acted on.
	PriceMaxAge time.Duration
	// MinProfit is the minimum expected net profit, in the debt asset, for
	// an intent to be worth executing.
	MinProfit math.LegacyDec
	// LoanFeeRate is the flash loan provider's fee on the borrowed amount.
	LoanFeeRate math.LegacyDec
	// ParamsRefreshInterval bounds how long cached pool parameters are used
	// before re-fetching.
	ParamsRefreshInterval time.Duration
	// ReadBackoffInitial/ReadBackoffMax shape the per-pool backoff applied
	// after failed index reads.
	ReadBackoffInitial time.Duration
	ReadBackoffMax     time.Duration
}

type poolState struct {
	params       types.PoolParams
	paramsAsOf   time.Time
	failStreak   int
	retryAfter   time.Time
}

// Scanner re-evaluates every tracked position on each tick and emits at most
// one live intent per position. A failed read never corrupts state: the pool
// backs off and previously emitted intents stay untouched.
type Scanner struct {
	cfg       Config
	positions PositionSource
	prices    pricefeed.Source
	fees      FeeQuoter
	executor  Executor
	reports   <-chan execution.Report
	logger    zerolog.Logger

	pools map[string]*poolState
	// live maps positionID to the intent currently owned by the executor;
	// entries are removed only when a report comes back, never pre-emptively
	live map[string]uuid.UUID

	mu     sync.Mutex
	halted map[string]bool
}

func New(
	cfg Config,
	positions PositionSource,
	prices pricefeed.Source,
	fees FeeQuoter,
	executor Executor,
	reports <-chan execution.Report,
	logger zerolog.Logger,
) *Scanner {
	pools := make(map[string]*poolState, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		pools[pool.ID] = &poolState{}
	}

	return &Scanner{
		cfg:       cfg,
		positions: positions,
		prices:    prices,
		fees:      fees,
		executor:  executor,
		reports:   reports,
		logger:    logger.With().Str("component", "scanner").Logger(),
		pools:     pools,
		live:      make(map[string]uuid.UUID),
		halted:    make(map[string]bool),
	}
}

// Run drives the scan loop until ctx is cancelled, interleaving scan ticks
// with execution reports.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case report := <-s.reports:
			s.handleReport(report)
		case <-ticker.C:
			s.scanAll(ctx)
		}
	}
}

func (s *Scanner) handleReport(report execution.Report) {
	positionID := report.Intent.Plan.PositionID
	delete(s.live, positionID)

	event := s.logger.Info()
	if report.Outcome != execution.OutcomeConfirmed {
		event = s.logger.Warn().Err(report.Err)
	}
	event.
		Str("position", positionID).
		Str("outcome", string(report.Outcome)).
		Int("attempts", report.Attempts).
		Msg("intent finished, position eligible for re-discovery")
}

func (s *Scanner) scanAll(ctx context.Context) {
	for _, pool := range s.cfg.Pools {
		if s.Halted(pool.ID) {
			continue
		}
		s.scanPool(ctx, pool)
	}
}

func (s *Scanner) scanPool(ctx context.Context, pool Pool) {
	state := s.pools[pool.ID]
	now := time.Now()

	if now.Before(state.retryAfter) {
		return
	}

	tick, err := s.prices.CurrentPrice(pool.Pair)
	if err != nil {
		if errors.Is(err, pricefeed.ErrNoPrice) {
			// the feed has not delivered a first tick yet; like a stale tick
			// this is no new information, not an unhealthy index
			s.logger.Debug().Str("pool", pool.ID).Msg("no price observed yet, skipping tick")
			return
		}
		s.readFailed(pool.ID, state, err)
		return
	}
	if tick.Stale(s.cfg.PriceMaxAge, now) {
		// no new information, act on nothing
		s.logger.Debug().Str("pool", pool.ID).Time("asOf", tick.AsOf).Msg("stale price, skipping tick")
		return
	}

	if state.params.PoolID == "" || now.Sub(state.paramsAsOf) > s.cfg.ParamsRefreshInterval {
		params, err := s.positions.PoolParams(ctx, pool.ID)
		if err != nil {
			if state.params.PoolID == "" {
				s.readFailed(pool.ID, state, err)
				return
			}
			// keep serving the cached parameters until the refresh succeeds
			s.logger.Warn().Err(err).Str("pool", pool.ID).Msg("pool params refresh failed, using cached")
		} else {
			state.params = params
			state.paramsAsOf = now
		}
	}

	positions, err := s.positions.Positions(ctx, pool.ID)
	if err != nil {
		s.readFailed(pool.ID, state, err)
		return
	}

	state.failStreak = 0
	state.retryAfter = time.Time{}

	for _, position := range positions {
		if s.evaluate(ctx, position, tick, state.params) {
			// invariant violation halts the whole pool until acknowledged
			return
		}
	}
}

// invariantTolerance is one unit of the smallest fixed-point denomination,
// scaled up to absorb truncation in chained operations.
var invariantTolerance = math.LegacyNewDecWithPrec(10, 18)

// evaluate runs one position through the sizing engine and the profitability
// filter. Returns true when the pool must halt.
func (s *Scanner) evaluate(ctx context.Context, position types.Position, tick pricefeed.Tick, params types.PoolParams) bool {
	if _, inFlight := s.live[position.ID]; inFlight {
		// never supersede an in-flight intent mid-submission
		return false
	}

	plan, ok := sizing.Plan(position, tick.Price, params)
	if !ok {
		return false
	}

	// a plan that fails to restore the target ratio without exhausting the
	// position's collateral means our parameters disagree with the live
	// protocol; acting on it would be unsafe
	fullSeize := plan.CollateralToSeize.Equal(position.Collateral)
	if !fullSeize && plan.ResultingRatio.Add(invariantTolerance).LT(params.LowCollateralRatio) {
		s.logger.Error().
			Str("pool", position.PoolID).
			Str("position", position.ID).
			Str("resultingRatio", plan.ResultingRatio.String()).
			Str("target", params.LowCollateralRatio.String()).
			Msg("INVARIANT VIOLATION: plan does not restore target ratio, halting pool")
		s.halt(position.PoolID)
		return true
	}

	profit := s.expectedProfit(plan, tick.Price)
	if profit.LT(s.cfg.MinProfit) {
		// unprofitable now, but still re-evaluated next tick: a position
		// that is marginal at this price may be worth taking as it falls
		metrics.IntentsDiscarded.WithLabelValues("unprofitable").Inc()
		return false
	}

	intent := types.LiquidationIntent{
		ID:             uuid.New(),
		Plan:           plan,
		ExpectedProfit: profit,
		DiscoveredAt:   time.Now(),
	}

	s.live[position.ID] = intent.ID
	s.executor.Execute(ctx, intent)
	metrics.IntentsEmitted.Inc()

	s.logger.Info().
		Str("position", position.ID).
		Str("intent", intent.ID.String()).
		Str("expectedProfit", profit.String()).
		Msg("intent emitted")
	return false
}

// expectedProfit is the proceeds of selling the seized collateral at the
// undiscounted price, minus the debt repaid, the flash loan fee, and the
// estimated network fee, all in the debt asset.
func (s *Scanner) expectedProfit(plan types.LiquidationPlan, price math.LegacyDec) math.LegacyDec {
	proceeds := plan.CollateralToSeize.Mul(price)
	loanFee := plan.DebtToRetire.Mul(s.cfg.LoanFeeRate)

	bid := s.fees.Quote(gas.Normal)
	networkFee := bid.GasPrice.MulInt64(int64(bid.GasLimit))

	return proceeds.Sub(plan.DebtToRetire).Sub(loanFee).Sub(networkFee)
}

func (s *Scanner) readFailed(poolID string, state *poolState, err error) {
	state.failStreak++
	backoff := s.cfg.ReadBackoffInitial << (state.failStreak - 1)
	if backoff > s.cfg.ReadBackoffMax || backoff <= 0 {
		backoff = s.cfg.ReadBackoffMax
	}
	state.retryAfter = time.Now().Add(backoff)

	metrics.ScanErrors.Inc()
	s.logger.Warn().Err(err).
		Str("pool", poolID).
		Int("failStreak", state.failStreak).
		Dur("backoff", backoff).
		Msg("scan read failed")
}

func (s *Scanner) halt(poolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.halted[poolID] {
		s.halted[poolID] = true
		metrics.PoolsHalted.Inc()
	}
}

// Halted reports whether a pool is suspended pending operator
// acknowledgement.
func (s *Scanner) Halted(poolID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted[poolID]
}

// HaltedPools lists pools suspended by invariant violations.
func (s *Scanner) HaltedPools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pools []string
	for poolID := range s.halted {
		pools = append(pools, poolID)
	}
	return pools
}

// Acknowledge resumes scanning a halted pool. Exposed to the operator
// surface; scanning resumes on the next tick.
func (s *Scanner) Acknowledge(poolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted[poolID] {
		delete(s.halted, poolID)
		metrics.PoolsHalted.Dec()
	}
}
