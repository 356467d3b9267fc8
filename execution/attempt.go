package execution

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-money/liquidator/gas"
	"github.com/atlas-money/liquidator/node"
	"github.com/atlas-money/liquidator/types"
)

// AttemptState tracks one submission through its lifecycle:
// Drafted → Submitted → Pending → {Confirmed | Failed}. A Pending attempt
// that gets fee-bumped under the same sequence number becomes Replaced and a
// new attempt takes over the slot.
type AttemptState string

const (
	StateDrafted   AttemptState = "drafted"
	StateSubmitted AttemptState = "submitted"
	StatePending   AttemptState = "pending"
	StateConfirmed AttemptState = "confirmed"
	StateReplaced  AttemptState = "replaced"
	StateFailed    AttemptState = "failed"
	StateAbandoned AttemptState = "abandoned"
)

// Attempt is one concrete submission of an intent. Owned exclusively by the
// engine; superseded attempts are kept in their chain for audit rather than
// mutated in place.
type Attempt struct {
	IntentID  uuid.UUID
	Sequence  uint64
	Fee       gas.FeeBid
	State     AttemptState
	TxHash    string
	LastError error
}

// attemptChain holds every attempt made for one intent. All members share
// one sequence number; only the last is live.
type attemptChain struct {
	intentID uuid.UUID
	sequence uint64
	attempts []*Attempt
}

func (c *attemptChain) live() *Attempt {
	if len(c.attempts) == 0 {
		return nil
	}
	return c.attempts[len(c.attempts)-1]
}

// replace supersedes the live attempt with a fee-bumped one sharing the same
// sequence number.
func (c *attemptChain) replace(fee gas.FeeBid) *Attempt {
	if prev := c.live(); prev != nil {
		prev.State = StateReplaced
	}
	next := &Attempt{
		IntentID: c.intentID,
		Sequence: c.sequence,
		Fee:      fee,
		State:    StateDrafted,
	}
	c.attempts = append(c.attempts, next)
	return next
}

// broadcastAny reports whether any attempt in the chain reached the network.
func (c *attemptChain) broadcastAny() bool {
	for _, a := range c.attempts {
		switch a.State {
		case StateSubmitted, StatePending, StateConfirmed, StateReplaced, StateFailed, StateAbandoned:
			if a.TxHash != "" {
				return true
			}
		}
	}
	return false
}

// Outcome is the terminal disposition of an intent.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Report is the engine's feedback to the scanner: the position becomes
// eligible for re-discovery on any non-confirmed outcome.
type Report struct {
	Intent     types.LiquidationIntent
	Outcome    Outcome
	Err        error
	Attempts   int
	FinishedAt time.Time
}

// ErrorClass is the engine's taxonomy of submission failures.
type ErrorClass int

const (
	// ClassTransient covers transport failures and mempool backpressure:
	// retry with backoff, bounded in total time.
	ClassTransient ErrorClass = iota
	// ClassTerminal covers rejections meaning the opportunity is gone:
	// release resources and report without retry.
	ClassTerminal
	// ClassFeeTooLow means the bid missed the mempool floor or failed to
	// beat a replacement target: escalate under the same sequence number.
	ClassFeeTooLow
	// ClassBadSequence means account state moved underneath us: resync the
	// ledger before doing anything else.
	ClassBadSequence
)

func classify(err error) ErrorClass {
	var rejection *node.RejectionError
	if errors.As(err, &rejection) {
		return ClassTerminal
	}
	var feeTooLow *node.FeeTooLowError
	if errors.As(err, &feeTooLow) {
		return ClassFeeTooLow
	}
	var badSeq *node.BadSequenceError
	if errors.As(err, &badSeq) {
		return ClassBadSequence
	}
	// mempool-full and anything transport-shaped are retryable
	return ClassTransient
}
