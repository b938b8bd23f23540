package swaps

import (
	"errors"
	"fmt"
)

var (
	ErrNoRoute           = errors.New("no route found")
	ErrCanceled          = errors.New("quote request canceled")
	ErrNoQuote           = errors.New("no quote available")
	ErrStaleQuote        = errors.New("quote does not match the current swap request")
	ErrChainSwitch       = errors.New("failed to switch chain")
	ErrGasEstimation     = errors.New("gas estimation failed")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrBridgeFailed      = errors.New("bridge transfer failed")
	ErrSwapInProgress    = errors.New("a swap is already executing")
)

// QuoteErrorKind classifies quote failures.
type QuoteErrorKind int

const (
	// KindRemote is any failure reported by the aggregator or the transport.
	KindRemote QuoteErrorKind = iota
	// KindNoRoute means the aggregator found nothing for the request.
	KindNoRoute
	// KindCanceled means the caller abandoned the request.
	KindCanceled
)

// QuoteError carries a human-readable message suitable for display.
type QuoteError struct {
	Kind       QuoteErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *QuoteError) Error() string {
	return e.Message
}

func (e *QuoteError) Unwrap() error {
	switch e.Kind {
	case KindCanceled:
		return ErrCanceled
	case KindNoRoute:
		return ErrNoRoute
	}
	return e.Err
}

// IsCanceled reports whether err is a quote cancellation.
func IsCanceled(err error) bool {
	var qe *QuoteError
	if errors.As(err, &qe) {
		return qe.Kind == KindCanceled
	}
	return errors.Is(err, ErrCanceled)
}

// ExecutionError is a terminal failure of one execution attempt.
type ExecutionError struct {
	Stage  Stage
	Err    error  // one of the sentinel errors above
	Detail string // remote detail, shown verbatim when present
}

func (e *ExecutionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Recoverable returns true when retrying the same swap is safe. A failed bridge leg
// is not: the source-chain transaction already moved the funds.
func (e *ExecutionError) Recoverable() bool {
	return !errors.Is(e.Err, ErrBridgeFailed)
}
