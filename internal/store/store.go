// Package store persists auction records, one per ad slot, with atomic
// read-modify-write per slot.
package store

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSkipWrite lets an update function bail out without persisting and
	// without failing the caller.
	ErrSkipWrite = errors.New("skip write")
)

// UpdateFunc mutates a private copy of the record. Returning an error
// discards the mutation.
type UpdateFunc func(rec *AuctionRecord) error

type AuctionStore interface {
	GetAuction(ctx context.Context, slotID string) (*AuctionRecord, error)
	// EnsureAuction upserts an active record with no start or end time.
	EnsureAuction(ctx context.Context, slotID string) (*AuctionRecord, error)
	// UpdateAuction applies fn atomically to the slot's record, creating it
	// first when missing, and returns the record as stored afterwards.
	UpdateAuction(ctx context.Context, slotID string, fn UpdateFunc) (*AuctionRecord, error)
	ListExpiredActive(ctx context.Context, now time.Time) ([]string, error)
	RecordFailedRefund(ctx context.Context, fr FailedRefund) error
	// ListFailedRefunds returns unresolved failures, newest first.
	ListFailedRefunds(ctx context.Context, limit int) ([]FailedRefund, error)
	// ResolveFailedRefunds closes every open failure for a bid entry once a
	// later transfer paid it, and reports how many it closed.
	ResolveFailedRefunds(ctx context.Context, bidEntryID, ref string, at time.Time) (int, error)
	Ping(ctx context.Context) error
	Close()
}

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

// NewID returns a monotonic ULID, used for bid entries and failed refunds.
func NewID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}
