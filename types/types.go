package types

import (
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
)

// Position is a read-only snapshot of a borrower's position in a lending
// pool. The protocol owns all position mutation; the bot only reads
// snapshots and triggers mutation indirectly through the liquidate entry
// point.
type Position struct {
	ID              string
	PoolID          string
	CollateralAsset string
	DebtAsset       string
	// Collateral is denominated in the collateral asset, Borrowed in the
	// pool's synthetic debt asset. Both are non-negative.
	Collateral math.LegacyDec
	Borrowed   math.LegacyDec
}

// Inert reports whether a position holds no collateral and owes no debt.
// Inert positions are excluded from scanning.
func (p Position) Inert() bool {
	return p.Collateral.IsZero() && p.Borrowed.IsZero()
}

// PoolParams are the protocol parameters governing liquidation for a pool.
// Immutable for the duration of a scan cycle, refreshed periodically from
// the indexer.
type PoolParams struct {
	PoolID string
	// LowCollateralRatio is the minimum safe collateral/debt ratio, e.g. 2.00.
	LowCollateralRatio math.LegacyDec
	// LiquidationPenalty is the total price discount applied to seized
	// collateral, split between protocol fee and liquidator incentive.
	LiquidationPenalty math.LegacyDec
	// SafetyMargin is the extra fraction added to the computed collateral
	// delta so a single liquidation pushes the ratio comfortably above
	// LowCollateralRatio.
	SafetyMargin math.LegacyDec
}

// LiquidationPlan is the output of the sizing engine: how much collateral to
// seize and how much debt to retire so the position becomes safe again.
// Always recomputed fresh from a snapshot and a live price, never persisted.
type LiquidationPlan struct {
	PositionID          string
	PoolID              string
	CollateralToSeize   math.LegacyDec
	DebtToRetire        math.LegacyDec
	ResultingCollateral math.LegacyDec
	ResultingDebt       math.LegacyDec
	// ResultingRatio is LegacyMaxSortableDec when ResultingDebt is zero.
	ResultingRatio math.LegacyDec
}

// LiquidationIntent is an actionable opportunity: a plan plus its expected
// net profit. Created by the scanner, consumed exactly once by the execution
// engine.
type LiquidationIntent struct {
	ID   uuid.UUID
	Plan LiquidationPlan
	// ExpectedProfit is denominated in the debt asset, net of the flash loan
	// fee and the estimated network fee.
	ExpectedProfit math.LegacyDec
	DiscoveredAt   time.Time
}
