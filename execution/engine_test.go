package execution

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/atlas-money/liquidator/gas"
	"github.com/atlas-money/liquidator/node"
	"github.com/atlas-money/liquidator/nonce"
	"github.com/atlas-money/liquidator/types"
)

var d = math.LegacyMustNewDecFromStr
var logger = zerolog.New(os.Stdout)

const identity = "atlas1keeper"

type broadcastScript struct {
	hash string
	err  error
}

// fakeClient scripts the node's behavior per call. Scripted slices pop one
// entry per call; an exhausted script repeats its last entry.
type fakeClient struct {
	mu         sync.Mutex
	simulate   []error
	broadcasts []broadcastScript
	statuses   []node.TxStatus
	statusErr  error
	accountSeq uint64

	sent []node.Tx
}

func pop[T any](script *[]T) (T, bool) {
	var zero T
	if len(*script) == 0 {
		return zero, false
	}
	head := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	return head, true
}

func (f *fakeClient) Simulate(_ context.Context, _ node.Tx) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := pop(&f.simulate)
	if !ok {
		return nil
	}
	return err
}

func (f *fakeClient) Broadcast(_ context.Context, tx node.Tx) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	result, ok := pop(&f.broadcasts)
	if !ok {
		return "hash-default", nil
	}
	return result.hash, result.err
}

func (f *fakeClient) TxStatus(_ context.Context, _ string) (node.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return node.StatusNotFound, f.statusErr
	}
	status, ok := pop(&f.statuses)
	if !ok {
		return node.StatusPending, nil
	}
	return status, nil
}

func (f *fakeClient) AccountSequence(_ context.Context, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accountSeq, nil
}

func (f *fakeClient) sentTxs() []node.Tx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]node.Tx(nil), f.sent...)
}

type fakeQuoter struct{}

func (fakeQuoter) Quote(urgency gas.Urgency) gas.FeeBid {
	price := d("1")
	if urgency == gas.Urgent {
		price = d("2")
	}
	return gas.FeeBid{GasPrice: price, GasLimit: 500_000}
}

func (fakeQuoter) Escalate(prev gas.FeeBid) gas.FeeBid {
	return gas.FeeBid{GasPrice: prev.GasPrice.Mul(d("2")), GasLimit: prev.GasLimit}
}

func testConfig() Config {
	return Config{
		Identity:            identity,
		MinResidualSpread:   d("0.5"),
		ConfirmationTimeout: 30 * time.Millisecond,
		ConfirmPollInterval: time.Millisecond,
		MaxEscalations:      2,
		InitialBackoff:      time.Millisecond,
		MaxBackoff:          4 * time.Millisecond,
		MaxTransientWait:    100 * time.Millisecond,
		MaxConcurrent:       4,
	}
}

func testIntent() types.LiquidationIntent {
	return types.LiquidationIntent{
		ID: uuid.New(),
		Plan: types.LiquidationPlan{
			PositionID:        "pos-1",
			PoolID:            "atlas-usd",
			CollateralToSeize: d("42.777777777777777778"),
			DebtToRetire:      d("192.5"),
		},
		ExpectedProfit: d("20"),
		DiscoveredAt:   time.Now(),
	}
}

func newTestEngine(client *fakeClient) (*Engine, *nonce.Ledger) {
	ledger := nonce.NewLedger()
	return NewEngine(testConfig(), client, fakeQuoter{}, ledger, logger), ledger
}

func awaitReport(t *testing.T, engine *Engine) Report {
	t.Helper()
	select {
	case report := <-engine.Reports():
		return report
	case <-time.After(5 * time.Second):
		t.Fatal("no report received")
		return Report{}
	}
}

func TestExecuteConfirms(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{{hash: "hash-1"}},
		statuses:   []node.TxStatus{node.StatusNotFound, node.StatusPending, node.StatusConfirmed},
	}
	engine, ledger := newTestEngine(client)

	engine.run(context.Background(), testIntent())

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeConfirmed, report.Outcome)
	require.NoError(t, report.Err)
	require.Equal(t, 1, report.Attempts)

	// the consumed sequence number is gone for good
	require.Equal(t, uint64(1), ledger.Reserve(identity))
	require.Equal(t, 1, ledger.LiveCount(identity))

	sent := client.sentTxs()
	require.Len(t, sent, 1)
	require.Equal(t, identity, sent[0].Sender)
	require.Equal(t, uint64(0), sent[0].Sequence)
	require.True(t, sent[0].Call.LoanAmount.Equal(d("192.5")))
	require.True(t, sent[0].Call.MinResidualSpread.Equal(d("0.5")))
}

func TestSimulationRevertIsTerminal(t *testing.T) {
	client := &fakeClient{
		simulate: []error{&node.RejectionError{Code: node.CodeExecutionReverted, Log: "position not eligible"}},
	}
	engine, ledger := newTestEngine(client)

	engine.run(context.Background(), testIntent())

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.Error(t, report.Err)

	// nothing was broadcast: the number is released and reused
	require.Equal(t, uint64(0), ledger.Reserve(identity))
	require.Empty(t, client.sentTxs())
}

func TestStuckAttemptIsFeeBumpedThenAbandoned(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{{hash: "hash-1"}, {hash: "hash-2"}, {hash: "hash-3"}},
		statuses:   []node.TxStatus{node.StatusPending},
	}
	engine, ledger := newTestEngine(client)

	engine.run(context.Background(), testIntent())

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeAbandoned, report.Outcome)
	require.ErrorIs(t, report.Err, errEscalationsExhausted)
	require.Equal(t, 3, report.Attempts)

	sent := client.sentTxs()
	require.Len(t, sent, 3)
	for i, tx := range sent {
		// every bump shares the original sequence number
		require.Equal(t, uint64(0), tx.Sequence)
		if i > 0 {
			require.True(t, tx.GasPrice.GT(sent[i-1].GasPrice), "fee bump %d did not raise the bid", i)
		}
	}

	// the abandoned tx may still confirm later; its number stays burned
	require.Equal(t, uint64(1), ledger.Reserve(identity))
}

func TestSustainedUnavailabilityAbandonsInBoundedTime(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{{err: errors.New("connection refused")}},
	}
	engine, ledger := newTestEngine(client)

	start := time.Now()
	engine.run(context.Background(), testIntent())
	elapsed := time.Since(start)

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeAbandoned, report.Outcome)
	// bounded by MaxTransientWait plus one backoff cycle, not unbounded
	require.Less(t, elapsed, 2*time.Second)

	// never broadcast: the number is reusable
	require.Equal(t, uint64(0), ledger.Reserve(identity))
}

func TestFeeTooLowEscalatesUnderSameSequence(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{
			{err: &node.FeeTooLowError{Log: "below mempool floor"}},
			{hash: "hash-1"},
		},
		statuses: []node.TxStatus{node.StatusConfirmed},
	}
	engine, _ := newTestEngine(client)

	engine.run(context.Background(), testIntent())

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeConfirmed, report.Outcome)
	require.Equal(t, 2, report.Attempts)

	sent := client.sentTxs()
	require.Len(t, sent, 2)
	require.Equal(t, sent[0].Sequence, sent[1].Sequence)
	require.True(t, sent[1].GasPrice.GT(sent[0].GasPrice))
}

func TestPersistentBadSequenceAbandonsInBoundedTime(t *testing.T) {
	// a node that rejects every freshly resynced number must exhaust the
	// transient budget, not loop forever
	client := &fakeClient{
		broadcasts: []broadcastScript{{err: &node.BadSequenceError{Log: "expected 5"}}},
		accountSeq: 5,
	}
	engine, ledger := newTestEngine(client)

	start := time.Now()
	engine.run(context.Background(), testIntent())
	elapsed := time.Since(start)

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeAbandoned, report.Outcome)
	require.Less(t, elapsed, 2*time.Second)

	// every recovery reused the synced number; nothing was broadcast, so it
	// ends up released for the next intent
	require.Equal(t, uint64(5), ledger.Reserve(identity))
}

func TestAbandonReportDoesNotBlockAfterShutdown(t *testing.T) {
	engine, ledger := newTestEngine(&fakeClient{})

	// fill the report buffer so a send can only complete via ctx
	for i := 0; i < cap(engine.reports); i++ {
		engine.reports <- Report{}
	}

	seq := ledger.Reserve(identity)
	chain := &attemptChain{intentID: uuid.New(), sequence: seq}
	attempt := chain.replace(fakeQuoter{}.Quote(gas.Normal))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		engine.abandon(ctx, engine.logger, testIntent(), chain, attempt, errors.New("shutting down"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("abandon blocked on a full report buffer after shutdown")
	}
}

func TestBadSequenceResyncsAndRetries(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{
			{err: &node.BadSequenceError{Log: "expected 5"}},
			{hash: "hash-1"},
		},
		statuses:   []node.TxStatus{node.StatusConfirmed},
		accountSeq: 5,
	}
	engine, _ := newTestEngine(client)

	engine.run(context.Background(), testIntent())

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeConfirmed, report.Outcome)

	sent := client.sentTxs()
	require.Len(t, sent, 2)
	require.Equal(t, uint64(0), sent[0].Sequence)
	require.Equal(t, uint64(5), sent[1].Sequence)
}

func TestOnChainFailureReportsTerminal(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{{hash: "hash-1"}},
		statuses:   []node.TxStatus{node.StatusPending, node.StatusFailed},
	}
	engine, ledger := newTestEngine(client)

	engine.run(context.Background(), testIntent())

	report := awaitReport(t, engine)
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.ErrorIs(t, report.Err, errTxFailedOnChain)

	// included-but-reverted consumes the number
	require.Equal(t, uint64(1), ledger.Reserve(identity))
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	client := &fakeClient{
		broadcasts: []broadcastScript{{hash: "hash-1"}},
		statuses:   []node.TxStatus{node.StatusConfirmed},
	}
	engine, _ := newTestEngine(client)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		engine.Execute(ctx, testIntent())
	}

	for i := 0; i < 10; i++ {
		report := awaitReport(t, engine)
		require.Equal(t, OutcomeConfirmed, report.Outcome)
	}
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"rejection", &node.RejectionError{Code: 111}, ClassTerminal},
		{"fee too low", &node.FeeTooLowError{}, ClassFeeTooLow},
		{"bad sequence", &node.BadSequenceError{}, ClassBadSequence},
		{"mempool full", &node.MempoolFullError{}, ClassTransient},
		{"transport", errors.New("dial tcp: connection refused"), ClassTransient},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, classify(tc.err))
		})
	}
}
