// Package refund returns money to bidders from the custodial wallet. A
// refund is tried once and retried exactly once; a second failure is
// recorded for operators and never retried again automatically.
package refund

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/custody"
	"adspot-auction/internal/events"
	"adspot-auction/internal/store"
)

var ErrTransferFailed = errors.New("transfer_failed")

// TransferError wraps the last transfer failure. It matches
// ErrTransferFailed under errors.Is.
type TransferError struct {
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer_failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }

// Transferer moves USDC out of the custodial wallet.
type Transferer interface {
	Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
}

// Job is one refund owed to one bid entry.
type Job struct {
	SlotID     string
	AgentID    string
	Address    string
	Amount     decimal.Decimal
	BidEntryID string
}

type Policy struct {
	// Delay is applied before the first attempt of a scheduled refund only.
	Delay      time.Duration
	RetryDelay time.Duration
}

type Issuer struct {
	transfer Transferer
	lock     custody.Locker
	store    store.AuctionStore
	notifier events.Notifier
	policy   Policy
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

func NewIssuer(transfer Transferer, lock custody.Locker, st store.AuctionStore, notifier events.Notifier, policy Policy) *Issuer {
	if notifier == nil {
		notifier = events.Nop
	}
	return &Issuer{
		transfer: transfer,
		lock:     lock,
		store:    st,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Schedule runs the refund in the background after the configured delay.
// The delay keeps the transfer clear of the settlement that displaced the
// bidder on the same custodial account.
func (i *Issuer) Schedule(job Job) {
	i.wg.Add(1)
	metricRefundsInFlight.Inc()
	go func() {
		defer i.wg.Done()
		defer metricRefundsInFlight.Dec()
		// Detached from the request: the bidder is owed this regardless of
		// what happens to the HTTP call that triggered it.
		ctx := context.Background()
		_ = i.sleep(ctx, i.policy.Delay)
		_, _ = i.Refund(ctx, job)
	}()
}

// Refund transfers synchronously with the same try-then-retry-once policy.
func (i *Issuer) Refund(ctx context.Context, job Job) (string, error) {
	logger := log.With().
		Str("slot_id", job.SlotID).
		Str("agent_id", job.AgentID).
		Str("address", job.Address).
		Str("amount", job.Amount.String()).
		Logger()

	ref, err := i.attempt(ctx, job)
	attempts := 1
	if err != nil {
		logger.Warn().Err(err).Dur("retry_in", i.policy.RetryDelay).Msg("refund attempt failed")
		if sleepErr := i.sleep(ctx, i.policy.RetryDelay); sleepErr != nil {
			err = sleepErr
		} else {
			ref, err = i.attempt(ctx, job)
			attempts = 2
		}
	}
	if err != nil {
		terr := &TransferError{Attempts: attempts, Err: err}
		i.recordFailure(job, terr)
		logger.Error().Err(err).Int("attempts", attempts).Msg("refund unrecovered")
		return "", terr
	}

	i.markEntry(job, store.RefundRefunded, ref)
	i.resolveEarlierFailures(job, ref)
	i.notifier.Notify(ctx, events.Refund{
		Base:          events.Base{SlotID: job.SlotID, Timestamp: i.now()},
		AgentID:       job.AgentID,
		Address:       job.Address,
		Amount:        job.Amount,
		SettlementRef: ref,
		Attempts:      attempts,
	})
	logger.Info().Str("settlement_ref", ref).Int("attempts", attempts).Msg("refund sent")
	return ref, nil
}

// Wait blocks until every scheduled refund has finished or ctx is done.
func (i *Issuer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Issuer) attempt(ctx context.Context, job Job) (ref string, err error) {
	release, err := i.lock.Acquire(ctx)
	if err != nil {
		metricRefundAttemptsTotal.WithLabelValues("lock_error").Inc()
		return "", err
	}
	defer release()
	ref, err = i.transfer.Transfer(ctx, job.Address, job.Amount)
	if err != nil {
		metricRefundAttemptsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metricRefundAttemptsTotal.WithLabelValues("ok").Inc()
	return ref, nil
}

func (i *Issuer) recordFailure(job Job, terr *TransferError) {
	metricRefundUnrecoveredTotal.Inc()
	// Bookkeeping must survive a cancelled request context.
	ctx := context.Background()
	err := i.store.RecordFailedRefund(ctx, store.FailedRefund{
		ID:         store.NewID(),
		SlotID:     job.SlotID,
		AgentID:    job.AgentID,
		Address:    job.Address,
		Amount:     job.Amount,
		BidEntryID: job.BidEntryID,
		Reason:     terr.Err.Error(),
		Attempts:   terr.Attempts,
		CreatedAt:  i.now(),
	})
	if err != nil {
		log.Error().Err(err).Str("slot_id", job.SlotID).Str("agent_id", job.AgentID).Msg("persist failed refund")
	}
	i.markEntry(job, store.RefundFailed, "")
	i.notifier.Notify(ctx, events.RefundFailed{
		Base:     events.Base{SlotID: job.SlotID, Timestamp: i.now()},
		AgentID:  job.AgentID,
		Address:  job.Address,
		Amount:   job.Amount,
		Reason:   terr.Err.Error(),
		Attempts: terr.Attempts,
	})
}

// resolveEarlierFailures closes failed_refunds rows for a bid entry that a
// later transfer has now paid, so operators do not pay it again.
func (i *Issuer) resolveEarlierFailures(job Job, ref string) {
	n, err := i.store.ResolveFailedRefunds(context.Background(), job.BidEntryID, ref, i.now())
	if err != nil {
		log.Error().Err(err).Str("slot_id", job.SlotID).Str("bid_id", job.BidEntryID).Msg("resolve failed refunds")
		return
	}
	if n > 0 {
		log.Info().Str("slot_id", job.SlotID).Str("bid_id", job.BidEntryID).Int("resolved", n).Str("settlement_ref", ref).Msg("earlier failed refund recovered")
	}
}

func (i *Issuer) markEntry(job Job, status store.RefundStatus, ref string) {
	if job.BidEntryID == "" {
		return
	}
	_, err := i.store.UpdateAuction(context.Background(), job.SlotID, func(rec *store.AuctionRecord) error {
		for idx := range rec.BidHistory {
			if rec.BidHistory[idx].ID == job.BidEntryID {
				rec.BidHistory[idx].RefundStatus = status
				rec.BidHistory[idx].RefundRef = ref
				return nil
			}
		}
		return store.ErrSkipWrite
	})
	if err != nil {
		log.Error().Err(err).Str("slot_id", job.SlotID).Str("bid_id", job.BidEntryID).Msg("mark refund status")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
