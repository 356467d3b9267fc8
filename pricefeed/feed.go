package pricefeed

import (
	"errors"
	"time"

	"cosmossdk.io/math"
)

// ErrNoPrice is returned before the first tick for a pair has been observed.
var ErrNoPrice = errors.New("no price observed for pair")

// Tick is a single observed price for an asset pair.
type Tick struct {
	Pair  string
	Price math.LegacyDec
	AsOf  time.Time
}

// Stale reports whether the tick is older than maxAge. Stale ticks carry no
// new information and must not be acted on.
func (t Tick) Stale(maxAge time.Duration, now time.Time) bool {
	return now.Sub(t.AsOf) > maxAge
}

// Source provides the most recent observed price for an asset pair.
type Source interface {
	CurrentPrice(pair string) (Tick, error)
}
