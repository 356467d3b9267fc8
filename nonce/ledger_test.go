package nonce

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const identity = "atlas1keeper"

func TestReserveStrictlyIncreasing(t *testing.T) {
	ledger := NewLedger()
	ledger.Sync(identity, 7)

	require.Equal(t, uint64(7), ledger.Reserve(identity))
	require.Equal(t, uint64(8), ledger.Reserve(identity))
	require.Equal(t, uint64(9), ledger.Reserve(identity))
}

func TestReleasedNumberIsReusedLowestFirst(t *testing.T) {
	ledger := NewLedger()

	s0 := ledger.Reserve(identity) // 0
	s1 := ledger.Reserve(identity) // 1
	s2 := ledger.Reserve(identity) // 2

	require.NoError(t, ledger.Release(identity, s2))
	require.NoError(t, ledger.Release(identity, s0))
	require.NoError(t, ledger.Release(identity, s1))

	require.Equal(t, uint64(0), ledger.Reserve(identity))
	require.Equal(t, uint64(1), ledger.Reserve(identity))
	require.Equal(t, uint64(2), ledger.Reserve(identity))
	require.Equal(t, uint64(3), ledger.Reserve(identity))
}

func TestReleaseAfterBroadcastForbidden(t *testing.T) {
	ledger := NewLedger()

	seq := ledger.Reserve(identity)
	require.NoError(t, ledger.MarkBroadcast(identity, seq))

	err := ledger.Release(identity, seq)
	require.ErrorIs(t, err, ErrAlreadyBroadcast)
}

func TestRetiredNumberNeverReused(t *testing.T) {
	ledger := NewLedger()

	seq := ledger.Reserve(identity)
	require.NoError(t, ledger.MarkBroadcast(identity, seq))
	require.NoError(t, ledger.Retire(identity, seq))

	// the next reservation moves on, the burned slot is not recycled
	require.Equal(t, seq+1, ledger.Reserve(identity))
}

func TestRetireRequiresBroadcast(t *testing.T) {
	ledger := NewLedger()

	seq := ledger.Reserve(identity)
	require.ErrorIs(t, ledger.Retire(identity, seq), ErrNotBroadcast)
	require.ErrorIs(t, ledger.Retire(identity, seq+100), ErrUnknownSequence)
}

func TestMarkBroadcastIdempotent(t *testing.T) {
	ledger := NewLedger()

	seq := ledger.Reserve(identity)
	require.NoError(t, ledger.MarkBroadcast(identity, seq))
	require.NoError(t, ledger.MarkBroadcast(identity, seq))
}

func TestSyncNeverMovesBackwards(t *testing.T) {
	ledger := NewLedger()
	ledger.Sync(identity, 10)
	ledger.Sync(identity, 5)

	require.Equal(t, uint64(10), ledger.Reserve(identity))
}

func TestSyncPrunesConsumedNumbers(t *testing.T) {
	ledger := NewLedger()

	s0 := ledger.Reserve(identity) // 0
	ledger.Reserve(identity)       // 1
	require.NoError(t, ledger.Release(identity, s0))

	// chain reports sequence 2: both 0 and 1 are consumed on chain
	ledger.Sync(identity, 2)

	require.Equal(t, uint64(2), ledger.Reserve(identity))
	require.Equal(t, 1, ledger.LiveCount(identity))
}

func TestIdentitiesAreIndependent(t *testing.T) {
	ledger := NewLedger()

	require.Equal(t, uint64(0), ledger.Reserve("atlas1a"))
	require.Equal(t, uint64(0), ledger.Reserve("atlas1b"))
	require.Equal(t, uint64(1), ledger.Reserve("atlas1a"))
}

func TestConcurrentReserveNoCollisions(t *testing.T) {
	ledger := NewLedger()

	const workers = 16
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[uint64]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seq := ledger.Reserve(identity)
				mu.Lock()
				require.False(t, seen[seq], "sequence %d handed out twice", seq)
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
}
