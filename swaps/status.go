package swaps

import (
	"github.com/ethereum/go-ethereum/common"
)

// TxState is the lifecycle of one logical transaction attempt.
type TxState string

const (
	TxIdle    TxState = "idle"
	TxPending TxState = "pending"
	TxSuccess TxState = "success"
	TxError   TxState = "error"
)

// TransactionStatus is replaced, never mutated, on each transition.
type TransactionStatus struct {
	State   TxState     `json:"state"`
	Message string      `json:"message,omitempty"`
	TxHash  common.Hash `json:"txHash,omitempty"`
}

func idleStatus() TransactionStatus { return TransactionStatus{State: TxIdle} }

func pendingStatus(hash common.Hash) TransactionStatus {
	return TransactionStatus{State: TxPending, TxHash: hash}
}

func successStatus(hash common.Hash) TransactionStatus {
	return TransactionStatus{State: TxSuccess, TxHash: hash}
}

func errorStatus(hash common.Hash, err error) TransactionStatus {
	return TransactionStatus{State: TxError, TxHash: hash, Message: err.Error()}
}

// Stage is a step of the execution state machine.
type Stage string

const (
	StageIdle              Stage = "idle"
	StageChainSwitching    Stage = "chain_switching"
	StageGasEstimating     Stage = "gas_estimating"
	StageSubmitting        Stage = "submitting"
	StageConfirming        Stage = "confirming"
	StageCrossChainPolling Stage = "cross_chain_polling"
	StageSuccess           Stage = "success"
	StageError             Stage = "error"
)

// Terminal returns true for Success and Error.
func (s Stage) Terminal() bool {
	return s == StageSuccess || s == StageError
}

// ExecutionUpdate is emitted on every stage transition and every bridge poll.
type ExecutionUpdate struct {
	AttemptID  string            `json:"attemptId"`
	Stage      Stage             `json:"stage"`
	Status     TransactionStatus `json:"status"`
	CrossChain *CrossChainStatus `json:"crossChain,omitempty"`
	Quote      *Quote            `json:"-"`

	// Err is set on StageError.
	Err error `json:"-"`
}

// StatusHandler receives updates for a single ExecuteSwap call.
type StatusHandler func(ExecutionUpdate)

// Observer is subscribed to every execution the engine runs.
type Observer interface {
	OnStatusChange(ExecutionUpdate)
	OnTerminal(ExecutionUpdate)
}
