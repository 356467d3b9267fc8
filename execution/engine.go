package execution

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"cosmossdk.io/math"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/atlas-money/liquidator/gas"
	"github.com/atlas-money/liquidator/metrics"
	"github.com/atlas-money/liquidator/node"
	"github.com/atlas-money/liquidator/nonce"
	"github.com/atlas-money/liquidator/types"
)

// TxClient is the transaction-network surface the engine needs.
type TxClient interface {
	Simulate(ctx context.Context, tx node.Tx) error
	Broadcast(ctx context.Context, tx node.Tx) (string, error)
	TxStatus(ctx context.Context, hash string) (node.TxStatus, error)
	AccountSequence(ctx context.Context, identity string) (uint64, error)
}

// FeeQuoter produces and escalates fee bids.
type FeeQuoter interface {
	Quote(urgency gas.Urgency) gas.FeeBid
	Escalate(prev gas.FeeBid) gas.FeeBid
}

// Config carries the engine's operational tuning. All bounds are
// deliberately configuration, not constants.
type Config struct {
	// Identity is the signing identity all transactions are sent from.
	Identity string
	// MinResidualSpread makes the on-chain call revert rather than execute a
	// loss-making liquidation.
	MinResidualSpread math.LegacyDec
	// ConfirmationTimeout is how long one attempt may sit unconfirmed before
	// a fee-bumped replacement supersedes it.
	ConfirmationTimeout time.Duration
	// ConfirmPollInterval is how often a pending attempt's status is polled.
	ConfirmPollInterval time.Duration
	// MaxEscalations bounds fee bumps per intent.
	MaxEscalations int
	// InitialBackoff/MaxBackoff shape the transient-failure retry curve.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxTransientWait bounds the total time an intent may spend retrying
	// transient conditions before it is abandoned.
	MaxTransientWait time.Duration
	// MaxConcurrent bounds in-flight executions across positions.
	MaxConcurrent int64
}

// Engine turns intents into atomic flash-loan liquidation calls and drives
// each through submission, confirmation, and recovery. Attempts for
// different positions proceed concurrently; everything sharing the signing
// identity serializes through the nonce ledger.
type Engine struct {
	cfg     Config
	client  TxClient
	fees    FeeQuoter
	nonces  *nonce.Ledger
	logger  zerolog.Logger
	sem     *semaphore.Weighted
	reports chan Report
}

func NewEngine(
	cfg Config,
	client TxClient,
	fees FeeQuoter,
	nonces *nonce.Ledger,
	logger zerolog.Logger,
) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}

	return &Engine{
		cfg:     cfg,
		client:  client,
		fees:    fees,
		nonces:  nonces,
		logger:  logger.With().Str("component", "execution").Logger(),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		reports: make(chan Report, 64),
	}
}

// Reports returns the stream of terminal outcomes. The scanner consumes it
// to make positions eligible for re-discovery.
func (e *Engine) Reports() <-chan Report {
	return e.reports
}

// Execute takes ownership of an intent and processes it asynchronously. The
// caller must never submit two concurrently live intents for one position;
// that invariant is the scanner's.
func (e *Engine) Execute(ctx context.Context, intent types.LiquidationIntent) {
	go func() {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)
		e.run(ctx, intent)
	}()
}

func (e *Engine) buildTx(intent types.LiquidationIntent, sequence uint64, fee gas.FeeBid) node.Tx {
	return node.Tx{
		Sender:   e.cfg.Identity,
		Sequence: sequence,
		GasLimit: fee.GasLimit,
		GasPrice: fee.GasPrice,
		Call: node.FlashLiquidationCall{
			PoolID:            intent.Plan.PoolID,
			PositionID:        intent.Plan.PositionID,
			LoanAmount:        intent.Plan.DebtToRetire,
			CollateralToSeize: intent.Plan.CollateralToSeize,
			MinResidualSpread: e.cfg.MinResidualSpread,
		},
	}
}

var (
	errTxFailedOnChain      = errors.New("transaction included but reverted on chain")
	errEscalationsExhausted = errors.New("fee escalation budget exhausted")
)

type confirmResult int

const (
	confirmOK confirmResult = iota
	confirmFailed
	confirmTimeout
	confirmStop
)

func (e *Engine) run(ctx context.Context, intent types.LiquidationIntent) {
	logger := e.logger.With().
		Str("intent", intent.ID.String()).
		Str("position", intent.Plan.PositionID).
		Logger()

	sequence := e.nonces.Reserve(e.cfg.Identity)
	chain := &attemptChain{intentID: intent.ID, sequence: sequence}
	attempt := chain.replace(e.fees.Quote(gas.Normal))

	deadline := time.Now().Add(e.cfg.MaxTransientWait)
	backoff := e.cfg.InitialBackoff
	escalations := 0

	for {
		if ctx.Err() != nil {
			return
		}

		tx := e.buildTx(intent, chain.sequence, attempt.Fee)

		// simulate only while nothing is in the mempool yet; a replacement
		// bid must not be held hostage by a transiently failing simulation
		if !chain.broadcastAny() {
			if err := e.client.Simulate(ctx, tx); err != nil {
				if classify(err) == ClassTerminal {
					logger.Info().Err(err).Msg("simulation reverted, opportunity gone")
					e.failUnbroadcast(ctx, intent, chain, attempt, err)
					return
				}
				if !e.waitTransient(ctx, &backoff, deadline) {
					e.abandon(ctx, logger, intent, chain, attempt, err)
					return
				}
				continue
			}
		}

		attempt.State = StateSubmitted
		hash, err := e.client.Broadcast(ctx, tx)
		if err == nil {
			attempt.TxHash = hash
			attempt.State = StatePending
			if err := e.nonces.MarkBroadcast(e.cfg.Identity, chain.sequence); err != nil {
				logger.Error().Err(err).Msg("nonce ledger out of step")
			}
			logger.Info().Str("hash", hash).Uint64("sequence", chain.sequence).
				Str("gasPrice", attempt.Fee.GasPrice.String()).Msg("broadcast")
			metrics.AttemptsBroadcast.Inc()

			switch e.awaitConfirmation(ctx, attempt) {
			case confirmOK:
				attempt.State = StateConfirmed
				e.retire(logger, chain)
				e.report(ctx, Report{Intent: intent, Outcome: OutcomeConfirmed, Attempts: len(chain.attempts), FinishedAt: time.Now()})
				metrics.LiquidationsConfirmed.Inc()
				return
			case confirmFailed:
				attempt.State = StateFailed
				attempt.LastError = errTxFailedOnChain
				e.retire(logger, chain)
				e.report(ctx, Report{Intent: intent, Outcome: OutcomeFailed, Err: errTxFailedOnChain, Attempts: len(chain.attempts), FinishedAt: time.Now()})
				metrics.AttemptsFailed.WithLabelValues("onchain").Inc()
				return
			case confirmStop:
				// shutdown mid-flight: the broadcast tx stays in the mempool
				// and the nonce stays burned; a restart resyncs from chain
				return
			case confirmTimeout:
				escalations++
				if escalations > e.cfg.MaxEscalations {
					e.abandon(ctx, logger, intent, chain, attempt, errEscalationsExhausted)
					return
				}
				attempt = chain.replace(e.fees.Escalate(attempt.Fee))
				metrics.FeeEscalations.Inc()
				logger.Info().Int("escalation", escalations).
					Str("gasPrice", attempt.Fee.GasPrice.String()).Msg("fee bump")
				continue
			}
		}

		attempt.LastError = err
		switch classify(err) {
		case ClassTerminal:
			logger.Info().Err(err).Msg("broadcast rejected, opportunity gone")
			attempt.State = StateFailed
			if chain.broadcastAny() {
				// a replacement was rejected but an earlier tx is still in
				// the mempool: its number is burned, not reusable
				e.retire(logger, chain)
			} else if relErr := e.nonces.Release(e.cfg.Identity, chain.sequence); relErr != nil {
				logger.Error().Err(relErr).Msg("nonce ledger out of step")
			}
			e.report(ctx, Report{Intent: intent, Outcome: OutcomeFailed, Err: err, Attempts: len(chain.attempts), FinishedAt: time.Now()})
			metrics.AttemptsFailed.WithLabelValues("rejected").Inc()
			return

		case ClassFeeTooLow:
			escalations++
			if escalations > e.cfg.MaxEscalations {
				e.abandon(ctx, logger, intent, chain, attempt, err)
				return
			}
			attempt = chain.replace(e.fees.Escalate(attempt.Fee))
			metrics.FeeEscalations.Inc()

		case ClassBadSequence:
			if done := e.recoverBadSequence(ctx, logger, intent, chain, &attempt); done {
				return
			}
			// a node that keeps rejecting freshly resynced numbers is no
			// healthier than an unreachable one; the transient budget bounds
			// the recovery loop
			if !e.waitTransient(ctx, &backoff, deadline) {
				e.abandon(ctx, logger, intent, chain, attempt, err)
				return
			}

		case ClassTransient:
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("broadcast failed, retrying")
			if !e.waitTransient(ctx, &backoff, deadline) {
				e.abandon(ctx, logger, intent, chain, attempt, err)
				return
			}
		}
	}
}

// awaitConfirmation polls tx status until confirmation, on-chain failure, or
// the per-attempt timeout. Transport errors during polling are absorbed; the
// timeout bounds them.
func (e *Engine) awaitConfirmation(ctx context.Context, attempt *Attempt) confirmResult {
	timeout := time.NewTimer(e.cfg.ConfirmationTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(e.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return confirmStop
		case <-timeout.C:
			return confirmTimeout
		case <-ticker.C:
		}

		status, err := e.client.TxStatus(ctx, attempt.TxHash)
		if err != nil {
			continue
		}

		switch status {
		case node.StatusConfirmed:
			return confirmOK
		case node.StatusFailed:
			return confirmFailed
		case node.StatusPending, node.StatusNotFound:
			// not-found covers propagation delay right after broadcast
		}
	}
}

// recoverBadSequence handles the account counter moving underneath us. If
// one of our own replaced transactions actually confirmed, that is a win; if
// nothing of ours was ever broadcast the number is simply stale and we
// re-reserve after a resync. Returns true when the intent is finished.
func (e *Engine) recoverBadSequence(
	ctx context.Context,
	logger zerolog.Logger,
	intent types.LiquidationIntent,
	chain *attemptChain,
	attempt **Attempt,
) bool {
	if chain.broadcastAny() {
		for _, a := range chain.attempts {
			if a.TxHash == "" {
				continue
			}
			status, err := e.client.TxStatus(ctx, a.TxHash)
			if err == nil && status == node.StatusConfirmed {
				a.State = StateConfirmed
				e.retire(logger, chain)
				e.report(ctx, Report{Intent: intent, Outcome: OutcomeConfirmed, Attempts: len(chain.attempts), FinishedAt: time.Now()})
				metrics.LiquidationsConfirmed.Inc()
				return true
			}
		}
		// the slot was consumed by something that is not ours; the number is
		// burned and the opportunity goes back to the scanner
		(*attempt).State = StateFailed
		e.retire(logger, chain)
		e.report(ctx, Report{Intent: intent, Outcome: OutcomeFailed, Err: (*attempt).LastError, Attempts: len(chain.attempts), FinishedAt: time.Now()})
		metrics.AttemptsFailed.WithLabelValues("sequence").Inc()
		return true
	}

	// nothing broadcast: hand the stale number back, resync, start a fresh
	// chain on the newly reserved number
	if err := e.nonces.Release(e.cfg.Identity, chain.sequence); err != nil {
		logger.Error().Err(err).Msg("nonce ledger out of step")
	}
	if onchain, err := e.client.AccountSequence(ctx, e.cfg.Identity); err == nil {
		e.nonces.Sync(e.cfg.Identity, onchain)
	}
	chain.sequence = e.nonces.Reserve(e.cfg.Identity)
	*attempt = chain.replace((*attempt).Fee)
	logger.Info().Uint64("sequence", chain.sequence).Msg("resynced sequence number")
	return false
}

// waitTransient sleeps the jittered backoff, doubling it for next time.
// Returns false once the total transient budget is exhausted.
func (e *Engine) waitTransient(ctx context.Context, backoff *time.Duration, deadline time.Time) bool {
	if time.Now().After(deadline) {
		return false
	}

	sleep := *backoff/2 + time.Duration(rand.Int63n(int64(*backoff/2)+1))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(sleep):
	}

	*backoff *= 2
	if *backoff > e.cfg.MaxBackoff {
		*backoff = e.cfg.MaxBackoff
	}
	return true
}

// failUnbroadcast finishes an intent whose transaction never reached the
// network: the sequence number is released for reuse and the failure is
// reported without retry.
func (e *Engine) failUnbroadcast(ctx context.Context, intent types.LiquidationIntent, chain *attemptChain, attempt *Attempt, cause error) {
	attempt.State = StateFailed
	attempt.LastError = cause
	if err := e.nonces.Release(e.cfg.Identity, chain.sequence); err != nil {
		e.logger.Error().Err(err).Msg("nonce ledger out of step")
	}
	e.report(ctx, Report{Intent: intent, Outcome: OutcomeFailed, Err: cause, Attempts: len(chain.attempts), FinishedAt: time.Now()})
	metrics.AttemptsFailed.WithLabelValues("rejected").Inc()
}

// abandon finishes an intent whose retry or escalation budget ran out. A
// never-broadcast number is released; a broadcast one stays burned since the
// transaction may still be sitting in a mempool somewhere.
func (e *Engine) abandon(ctx context.Context, logger zerolog.Logger, intent types.LiquidationIntent, chain *attemptChain, attempt *Attempt, cause error) {
	attempt.State = StateAbandoned
	attempt.LastError = cause

	if chain.broadcastAny() {
		e.retire(logger, chain)
	} else if err := e.nonces.Release(e.cfg.Identity, chain.sequence); err != nil {
		logger.Error().Err(err).Msg("nonce ledger out of step")
	}

	logger.Warn().Err(cause).Int("attempts", len(chain.attempts)).Msg("abandoning intent")
	e.report(ctx, Report{Intent: intent, Outcome: OutcomeAbandoned, Err: cause, Attempts: len(chain.attempts), FinishedAt: time.Now()})
	metrics.AttemptsFailed.WithLabelValues("abandoned").Inc()
}

func (e *Engine) retire(logger zerolog.Logger, chain *attemptChain) {
	if err := e.nonces.Retire(e.cfg.Identity, chain.sequence); err != nil {
		logger.Error().Err(err).Msg("nonce ledger out of step")
	}
}

func (e *Engine) report(ctx context.Context, report Report) {
	select {
	case e.reports <- report:
	case <-ctx.Done():
	}
}
