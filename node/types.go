package node

import (
	"cosmossdk.io/math"
)

// FlashLiquidationCall is the single atomic composition executed on chain:
// borrow LoanAmount from the loan provider, liquidate the position, route the
// seized collateral back into the debt asset, repay the loan plus fee, keep
// the residual spread. The loan provider enforces repayment-or-revert; the
// MinResidualSpread check additionally reverts the whole call if realized
// proceeds minus the loan fee fall below the configured minimum margin.
type FlashLiquidationCall struct {
	PoolID            string         `json:"pool_id"`
	PositionID        string         `json:"position_id"`
	LoanAmount        math.LegacyDec `json:"loan_amount"`
	CollateralToSeize math.LegacyDec `json:"collateral_to_seize"`
	MinResidualSpread math.LegacyDec `json:"min_residual_spread"`
}

// Tx is a fully specified transaction ready for submission. Resubmitting a
// Tx with the same Sequence and a higher GasPrice replaces the earlier
// attempt in the mempool.
type Tx struct {
	Sender   string               `json:"sender"`
	Sequence uint64               `json:"sequence"`
	GasLimit uint64               `json:"gas_limit"`
	GasPrice math.LegacyDec       `json:"gas_price"`
	Call     FlashLiquidationCall `json:"call"`
}

// TxStatus is the network's view of a submitted transaction.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
	StatusNotFound  TxStatus = "not_found"
)

// BlockFees are the fee statistics of one confirmed block, used to calibrate
// competitive fee bids.
type BlockFees struct {
	Height       int64            `json:"height"`
	BaseFee      math.LegacyDec   `json:"base_fee"`
	PriorityFees []math.LegacyDec `json:"priority_fees"`
}

// broadcast result codes, mirrored from the node's mempool admission logic
const (
	CodeOK                uint32 = 0
	CodeInsufficientFunds uint32 = 5
	CodeFeeTooLow         uint32 = 13
	CodeTxAlreadyKnown    uint32 = 19
	CodeMempoolFull       uint32 = 20
	CodeBadSequence       uint32 = 32
	CodeExecutionReverted uint32 = 111
)
