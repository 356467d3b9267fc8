package sizing

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/atlas-money/liquidator/types"
)

// d is a helper function to create math.LegacyDec
var d = math.LegacyMustNewDecFromStr

func testParams() types.PoolParams {
	return types.PoolParams{
		PoolID:             "atlas-usd",
		LowCollateralRatio: d("2.00"),
		LiquidationPenalty: d("0.10"),
		SafetyMargin:       d("0.10"),
	}
}

func pos(collateral, borrowed string) types.Position {
	return types.Position{
		ID:              "pos-1",
		PoolID:          "atlas-usd",
		CollateralAsset: "watom",
		DebtAsset:       "ausd",
		Collateral:      d(collateral),
		Borrowed:        d(borrowed),
	}
}

// tolerance of one unit in the smallest denomination, per the protocol's
// fixed-point rounding
var tolerance = d("0.000000000000000010")

func requireDecEq(t *testing.T, expected, actual math.LegacyDec) {
	t.Helper()
	diff := expected.Sub(actual).Abs()
	require.True(t, diff.LTE(tolerance), "expected %s within tolerance of %s", actual, expected)
}

func TestPlanWorkedExample(t *testing.T) {
	// the protocol's own worked example: price 5, collateral 50, debt 200
	plan, ok := Plan(pos("50", "200"), d("5"), testParams())
	require.True(t, ok)

	requireDecEq(t, d("7.222222222222222222"), plan.ResultingCollateral)
	requireDecEq(t, d("7.5"), plan.ResultingDebt)
	requireDecEq(t, d("4.814814814814814814"), plan.ResultingRatio)

	requireDecEq(t, d("42.777777777777777778"), plan.CollateralToSeize)
	requireDecEq(t, d("192.5"), plan.DebtToRetire)
}

func TestPlanNotLiquidatable(t *testing.T) {
	testCases := []struct {
		name     string
		position types.Position
		price    math.LegacyDec
	}{
		{"exactly at ratio", pos("80", "200"), d("5")},
		{"above ratio", pos("100", "200"), d("5")},
		{"no debt", pos("50", "0"), d("5")},
		{"inert", pos("0", "0"), d("5")},
		{"zero price", pos("50", "200"), d("0")},
		{"negative price", pos("50", "200"), d("-1")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := Plan(tc.position, tc.price, testParams())
			require.False(t, ok)
		})
	}
}

func TestPlanInvariants(t *testing.T) {
	testCases := []struct {
		name       string
		collateral string
		borrowed   string
		price      string
	}{
		{"worked example", "50", "200", "5"},
		{"barely unsafe", "79.9999", "200", "5"},
		{"deeply underwater", "10", "200", "5"},
		{"tiny position", "0.000001", "0.00001", "5"},
		{"large position", "5000000", "20000000", "5"},
		{"fractional price", "50", "200", "4.999999999999999999"},
		{"price crash", "50", "200", "0.5"},
		{"no collateral at all", "0", "200", "5"},
	}

	params := testParams()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			position := pos(tc.collateral, tc.borrowed)
			price := d(tc.price)

			plan, ok := Plan(position, price, params)
			require.True(t, ok)

			// a position cannot give up more than it has
			require.True(t, plan.CollateralToSeize.LTE(position.Collateral))
			require.True(t, plan.DebtToRetire.LTE(position.Borrowed))
			require.False(t, plan.CollateralToSeize.IsNegative())
			require.False(t, plan.DebtToRetire.IsNegative())

			// seizing the full collateral cannot restore the target
			// ratio, the clamp takes over and the plan retires as much
			// debt as the collateral pays for
			fullSeize := plan.CollateralToSeize.Equal(position.Collateral)
			if !fullSeize {
				require.True(
					t,
					plan.ResultingRatio.Add(tolerance).GTE(params.LowCollateralRatio),
					"resulting ratio %s below target %s", plan.ResultingRatio, params.LowCollateralRatio,
				)
			}
		})
	}
}

func TestPlanDeterministic(t *testing.T) {
	position := pos("50", "200")
	price := d("5")
	params := testParams()

	first, ok := Plan(position, price, params)
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		again, ok := Plan(position, price, params)
		require.True(t, ok)
		require.Equal(t, first, again)
	}
}

func TestPlanSeizeClampedToCollateral(t *testing.T) {
	// deeply underwater position: the unclamped delta exceeds the held
	// collateral, so the plan takes everything
	plan, ok := Plan(pos("10", "200"), d("5"), testParams())
	require.True(t, ok)

	require.True(t, plan.CollateralToSeize.Equal(d("10")))
	require.True(t, plan.ResultingCollateral.IsZero())
	// debt retired is capped at what the seized collateral pays for at the
	// discounted price: 10 * 4.5
	requireDecEq(t, d("45"), plan.DebtToRetire)
}

func TestPlanFullDebtRetirement(t *testing.T) {
	// near-total collapse: the margin-inflated seize pays for more than the
	// whole debt at the discounted price, so retirement clamps at the
	// borrowed amount and the resulting ratio is reported as unbounded
	plan, ok := Plan(pos("10", "42"), d("5"), testParams())
	require.True(t, ok)

	require.True(t, plan.DebtToRetire.Equal(d("42")))
	require.True(t, plan.ResultingDebt.IsZero())
	require.True(t, plan.ResultingRatio.Equal(math.LegacyMaxSortableDec))
}
