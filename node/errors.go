package node

import "fmt"

// RejectionError is a terminal pre-inclusion failure: a simulation revert or
// a rejection the mempool will never accept (insufficient funds, reverted
// call). It means the opportunity is no longer valid, not that the network
// hiccuped.
type RejectionError struct {
	Code uint32
	Log  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("tx rejected (code %d): %s", e.Code, e.Log)
}

// FeeTooLowError signals the bid did not meet the mempool's current floor or
// did not beat the transaction it would replace. Recoverable by escalating
// the fee under the same sequence number.
type FeeTooLowError struct {
	Log string
}

func (e *FeeTooLowError) Error() string {
	return fmt.Sprintf("fee too low: %s", e.Log)
}

// BadSequenceError signals the sequence number no longer matches account
// state, e.g. another transaction from the same identity confirmed first.
type BadSequenceError struct {
	Log string
}

func (e *BadSequenceError) Error() string {
	return fmt.Sprintf("bad sequence: %s", e.Log)
}

// MempoolFullError is transient backpressure; retry after a delay.
type MempoolFullError struct {
	Log string
}

func (e *MempoolFullError) Error() string {
	return fmt.Sprintf("mempool full: %s", e.Log)
}
