package nonce

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownSequence  = errors.New("sequence number not reserved")
	ErrAlreadyBroadcast = errors.New("sequence number already broadcast")
	ErrNotBroadcast     = errors.New("sequence number not broadcast")
)

type seqState int

const (
	stateReserved seqState = iota
	stateBroadcast
)

type account struct {
	next uint64
	// free holds released pre-broadcast numbers, kept sorted so reuse
	// always takes the lowest available slot first
	free []uint64
	live map[uint64]seqState
}

// Ledger is the process-wide authority for per-identity sequence numbers.
// All outbound transactions for an identity serialize through it.
//
// A reserved number that never reached the network may be released and
// reused. Once broadcast, a number is spoken for: a stuck transaction is
// superseded by resubmitting under the same number, never by handing the
// number to a different intent.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*account
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*account)}
}

func (l *Ledger) account(identity string) *account {
	acc, ok := l.accounts[identity]
	if !ok {
		acc = &account{live: make(map[uint64]seqState)}
		l.accounts[identity] = acc
	}
	return acc
}

// Sync advances an identity's counter to match on-chain account state. Safe
// to call on startup and after bad-sequence rejections; it never moves the
// counter backwards.
func (l *Ledger) Sync(identity string, onchainNext uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(identity)
	if onchainNext > acc.next {
		acc.next = onchainNext
	}

	// numbers below the chain's counter are consumed and can never be handed
	// out again, even when the counter itself needs no advance
	kept := acc.free[:0]
	for _, seq := range acc.free {
		if seq >= onchainNext {
			kept = append(kept, seq)
		}
	}
	acc.free = kept
	for seq := range acc.live {
		if seq < onchainNext {
			delete(acc.live, seq)
		}
	}
}

// Reserve hands out the lowest available sequence number for an identity:
// a previously released number if one exists, otherwise the next fresh one.
func (l *Ledger) Reserve(identity string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(identity)

	var seq uint64
	if len(acc.free) > 0 {
		seq = acc.free[0]
		acc.free = acc.free[1:]
	} else {
		seq = acc.next
		acc.next++
	}

	acc.live[seq] = stateReserved
	return seq
}

// MarkBroadcast records that a transaction using seq has reached the
// network. From this point the number can no longer be released.
func (l *Ledger) MarkBroadcast(identity string, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(identity)
	state, ok := acc.live[seq]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSequence, seq)
	}
	if state == stateBroadcast {
		return nil
	}
	acc.live[seq] = stateBroadcast
	return nil
}

// Release returns a reserved, never-broadcast number to the pool for reuse.
// Releasing a broadcast number is forbidden: two conflicting transactions
// must never race for the same slot.
func (l *Ledger) Release(identity string, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(identity)
	state, ok := acc.live[seq]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSequence, seq)
	}
	if state == stateBroadcast {
		return fmt.Errorf("%w: %d", ErrAlreadyBroadcast, seq)
	}

	delete(acc.live, seq)
	acc.free = append(acc.free, seq)
	sort.Slice(acc.free, func(i, j int) bool { return acc.free[i] < acc.free[j] })
	return nil
}

// Retire marks a broadcast number as consumed, whether the transaction
// confirmed or failed on chain. The number is burned and never reused.
func (l *Ledger) Retire(identity string, seq uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.account(identity)
	state, ok := acc.live[seq]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSequence, seq)
	}
	if state != stateBroadcast {
		return fmt.Errorf("%w: %d", ErrNotBroadcast, seq)
	}

	delete(acc.live, seq)
	return nil
}

// LiveCount reports how many reserved or broadcast numbers an identity has
// outstanding. Used by health reporting.
func (l *Ledger) LiveCount(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.account(identity).live)
}
