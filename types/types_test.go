package types

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

var d = math.LegacyMustNewDecFromStr

func TestPositionInert(t *testing.T) {
	testCases := []struct {
		name       string
		collateral string
		borrowed   string
		inert      bool
	}{
		{"active", "50", "200", false},
		{"repaid but collateralized", "50", "0", false},
		{"debt without collateral", "0", "200", false},
		{"empty", "0", "0", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			position := Position{
				ID:         "pos-1",
				PoolID:     "atlas-usd",
				Collateral: d(tc.collateral),
				Borrowed:   d(tc.borrowed),
			}
			require.Equal(t, tc.inert, position.Inert())
		})
	}
}
