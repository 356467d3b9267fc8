package gas

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/atlas-money/liquidator/node"
)

// Urgency selects how aggressively to bid. Urgent is used after an attempt
// has missed its confirmation window.
type Urgency int

const (
	Normal Urgency = iota
	Urgent
)

// FeeBid is a fully specified fee for one transaction.
type FeeBid struct {
	GasPrice math.LegacyDec
	GasLimit uint64
}

// FeeSource supplies fee statistics for recently confirmed blocks.
type FeeSource interface {
	RecentBlockFees(ctx context.Context, n int) ([]node.BlockFees, error)
}

// Strategy maps urgency to a fee bid from cached network observations.
//
// The observation is refreshed by a single background writer and swapped
// atomically, so Quote never blocks and never touches the network. Bids are
// monotonic in urgency and deliberately unbounded above: during congestion
// the cost of a missed liquidation exceeds even an extreme fee.
type Strategy struct {
	source           FeeSource
	window           int
	percentile       math.LegacyDec
	urgentMultiplier math.LegacyDec
	gasLimit         uint64
	floorPrice       math.LegacyDec
	logger           zerolog.Logger

	observation atomic.Value // math.LegacyDec
}

func NewStrategy(
	source FeeSource,
	window int,
	percentile math.LegacyDec,
	urgentMultiplier math.LegacyDec,
	gasLimit uint64,
	floorPrice math.LegacyDec,
	logger zerolog.Logger,
) (*Strategy, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %d", window)
	}
	if percentile.IsNegative() || percentile.GT(math.LegacyOneDec()) {
		return nil, fmt.Errorf("percentile must be in [0, 1], got %s", percentile)
	}
	// multiplier below one would break Quote(Urgent) >= Quote(Normal)
	if urgentMultiplier.LT(math.LegacyOneDec()) {
		return nil, fmt.Errorf("urgent multiplier must be >= 1, got %s", urgentMultiplier)
	}

	return &Strategy{
		source:           source,
		window:           window,
		percentile:       percentile,
		urgentMultiplier: urgentMultiplier,
		gasLimit:         gasLimit,
		floorPrice:       floorPrice,
		logger:           logger.With().Str("component", "gas").Logger(),
	}, nil
}

// Run refreshes the fee observation on a fixed interval until ctx is
// cancelled. A failed refresh keeps the previous observation; quoting from a
// slightly aged sample beats not quoting at all.
func (s *Strategy) Run(ctx context.Context, refreshInterval time.Duration) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		if err := s.refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("fee refresh failed, keeping previous observation")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Strategy) refresh(ctx context.Context) error {
	blocks, err := s.source.RecentBlockFees(ctx, s.window)
	if err != nil {
		return err
	}

	observed := s.observe(blocks)
	s.observation.Store(observed)
	return nil
}

// observe reduces per-block fee stats to a single effective price: the
// configured percentile of base+priority across the sampled blocks.
func (s *Strategy) observe(blocks []node.BlockFees) math.LegacyDec {
	var prices []math.LegacyDec
	for _, block := range blocks {
		for _, tip := range block.PriorityFees {
			prices = append(prices, block.BaseFee.Add(tip))
		}
		// empty blocks still pin the floor at their base fee
		if len(block.PriorityFees) == 0 {
			prices = append(prices, block.BaseFee)
		}
	}

	if len(prices) == 0 {
		return s.floorPrice
	}

	sort.Slice(prices, func(i, j int) bool { return prices[i].LT(prices[j]) })

	rank := s.percentile.MulInt64(int64(len(prices))).Ceil().TruncateInt64()
	if rank < 1 {
		rank = 1
	}
	price := prices[rank-1]

	if price.LT(s.floorPrice) {
		return s.floorPrice
	}
	return price
}

// Quote returns a fee bid for the given urgency. It reads only the cached
// observation and has no side effects.
func (s *Strategy) Quote(urgency Urgency) FeeBid {
	price := s.floorPrice
	if observed, ok := s.observation.Load().(math.LegacyDec); ok {
		price = observed
	}

	if urgency == Urgent {
		price = price.Mul(s.urgentMultiplier)
	}

	return FeeBid{GasPrice: price, GasLimit: s.gasLimit}
}

// Escalate returns a strictly higher bid than prev, for replacing a stuck
// transaction under the same sequence number. Repeated escalations compound
// without bound.
func (s *Strategy) Escalate(prev FeeBid) FeeBid {
	price := prev.GasPrice.Mul(s.urgentMultiplier)
	if price.LTE(prev.GasPrice) {
		// multiplier of exactly one still has to make progress
		price = prev.GasPrice.Add(s.floorPrice)
	}
	return FeeBid{GasPrice: price, GasLimit: prev.GasLimit}
}
