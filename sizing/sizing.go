package sizing

import (
	"cosmossdk.io/math"

	"github.com/atlas-money/liquidator/types"
)

// Plan computes a liquidation plan for a position at the given price. The
// second return value is false when the position is not liquidatable, which
// is the normal outcome for healthy positions, not an error.
//
// The arithmetic mirrors the protocol's on-chain sizing exactly: divisions
// truncate (round down) and the safety margin deliberately over-corrects so
// one liquidation pushes the position above the minimum ratio, rather than
// shaving it repeatedly as the price keeps moving within a block.
//
// Plan is pure: no I/O, no state, deterministic for identical inputs.
func Plan(position types.Position, price math.LegacyDec, params types.PoolParams) (types.LiquidationPlan, bool) {
	if !price.IsPositive() || !position.Borrowed.IsPositive() {
		return types.LiquidationPlan{}, false
	}

	// liquidatable iff collateralValue / borrowed < lowCollateralRatio,
	// compared multiplicatively to avoid a rounding direction choice
	collateralValue := position.Collateral.Mul(price)
	if collateralValue.GTE(params.LowCollateralRatio.Mul(position.Borrowed)) {
		return types.LiquidationPlan{}, false
	}

	// the price the liquidator effectively pays after the combined
	// protocol + incentive discount
	effectivePrice := price.Mul(math.LegacyOneDec().Sub(params.LiquidationPenalty))

	// collateral required, at the discounted price, to back the existing
	// debt at exactly the target ratio
	neededCollateral := position.Borrowed.Mul(params.LowCollateralRatio).QuoTruncate(effectivePrice)

	rawDelta := neededCollateral.Sub(position.Collateral)
	if rawDelta.IsNegative() {
		// cannot occur given the eligibility test above; treat as a
		// zero-sized no-op plan rather than an error
		rawDelta = math.LegacyZeroDec()
	}

	collateralToSeize := rawDelta.Mul(math.LegacyOneDec().Add(params.SafetyMargin))
	if collateralToSeize.GT(position.Collateral) {
		collateralToSeize = position.Collateral
	}

	debtToRetire := collateralToSeize.Mul(effectivePrice)
	if debtToRetire.GT(position.Borrowed) {
		debtToRetire = position.Borrowed
	}

	resultingCollateral := position.Collateral.Sub(collateralToSeize)
	resultingDebt := position.Borrowed.Sub(debtToRetire)

	resultingRatio := math.LegacyMaxSortableDec
	if resultingDebt.IsPositive() {
		resultingRatio = resultingCollateral.Mul(price).QuoTruncate(resultingDebt)
	}

	return types.LiquidationPlan{
		PositionID:          position.ID,
		PoolID:              position.PoolID,
		CollateralToSeize:   collateralToSeize,
		DebtToRetire:        debtToRetire,
		ResultingCollateral: resultingCollateral,
		ResultingDebt:       resultingDebt,
		ResultingRatio:      resultingRatio,
	}, true
}
