package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/swaps"
)

const pollInterval = 15 * time.Second

// Journal lists and updates journaled attempts; *db.Store satisfies it.
type Journal interface {
	PendingBridgeAttempts(ctx context.Context) ([]swaps.Attempt, error)
	UpdateAttempt(ctx context.Context, a swaps.Attempt) error
}

// StatusClient is the status half of swaps.QuoteClient.
type StatusClient interface {
	FetchStatus(ctx context.Context, fromChain, toChain uint64, txHash common.Hash) (swaps.CrossChainStatus, error)
}

// Tracker finishes bridge transfers whose executor went away, typically across a
// restart. Attempts still owned by a live executor are skipped.
type Tracker struct {
	journal   Journal
	client    StatusClient
	active    func() string
	observers []swaps.Observer
	interval  time.Duration
}

// New creates a tracker. active returns the attempt id currently owned by the
// executor and may be nil.
func New(journal Journal, client StatusClient, active func() string, observers ...swaps.Observer) *Tracker {
	if active == nil {
		active = func() string { return "" }
	}
	return &Tracker{
		journal:   journal,
		client:    client,
		active:    active,
		observers: observers,
		interval:  pollInterval,
	}
}

func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// Run once immediately on start
	t.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("Tracker stopped")
			return
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll checks every pending bridge attempt once.
func (t *Tracker) Poll(ctx context.Context) {
	pending, err := t.journal.PendingBridgeAttempts(ctx)
	if err != nil {
		log.Printf("Tracker: error listing pending attempts: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Printf("Tracker: checking %d pending bridge transfer(s)", len(pending))

	for _, a := range pending {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if a.ID == t.active() {
			continue
		}

		st, err := t.client.FetchStatus(ctx, a.FromChainID, a.ToChainID, a.TxHash)
		if err != nil {
			log.Printf("Tracker: error checking %s: %v", a.ID, err)
			continue
		}

		log.Printf("Tracker: %s status = %s", a.ID, st.Status)
		a.Bridge = st.Status

		var update swaps.ExecutionUpdate
		switch st.Status {
		case swaps.BridgeDone:
			a.Stage = swaps.StageSuccess
			a.Status = swaps.TxSuccess
			a.Message = ""
			update = swaps.ExecutionUpdate{
				Stage:  swaps.StageSuccess,
				Status: swaps.TransactionStatus{State: swaps.TxSuccess, TxHash: a.TxHash},
			}
		case swaps.BridgeFailed, swaps.BridgeInvalid:
			xerr := &swaps.ExecutionError{Stage: swaps.StageCrossChainPolling, Err: swaps.ErrBridgeFailed, Detail: st.SubstatusMessage}
			if st.Status == swaps.BridgeInvalid {
				xerr.Detail = fmt.Sprintf("aggregator does not recognise %s as a bridge transfer", a.TxHash.Hex())
			}
			a.Stage = swaps.StageError
			a.Status = swaps.TxError
			a.Message = xerr.Error()
			update = swaps.ExecutionUpdate{
				Stage:  swaps.StageError,
				Status: swaps.TransactionStatus{State: swaps.TxError, TxHash: a.TxHash, Message: a.Message},
				Err:    xerr,
			}
		default:
			continue
		}

		if err := t.journal.UpdateAttempt(ctx, a); err != nil {
			log.Printf("Tracker: error updating %s: %v", a.ID, err)
			continue
		}

		update.AttemptID = a.ID
		update.CrossChain = &st
		update.Quote = &swaps.Quote{
			FromToken:     a.FromToken,
			ToToken:       a.ToToken,
			FromAmount:    a.FromAmount,
			SourceChainID: a.FromChainID,
			DestChainID:   a.ToChainID,
		}
		for _, o := range t.observers {
			o.OnTerminal(update)
		}
	}
}
