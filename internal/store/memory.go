package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process. One mutex covers every slot, which
// is stricter than per-slot atomicity needs.
type MemoryStore struct {
	mu       sync.Mutex
	auctions map[string]*AuctionRecord
	failed   []FailedRefund
	now      func() time.Time
}

var _ AuctionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{auctions: map[string]*AuctionRecord{}, now: time.Now}
}

func (s *MemoryStore) GetAuction(_ context.Context, slotID string) (*AuctionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.auctions[slotID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) EnsureAuction(_ context.Context, slotID string) (*AuctionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.auctions[slotID]
	if !ok {
		rec = newRecord(slotID, s.now())
		s.auctions[slotID] = rec
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) UpdateAuction(_ context.Context, slotID string, fn UpdateFunc) (*AuctionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[slotID]
	if !ok {
		cur = newRecord(slotID, s.now())
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			if !ok {
				return nil, ErrNotFound
			}
			return cur.Clone(), nil
		}
		return nil, err
	}
	next.SlotID = slotID
	next.Version = cur.Version + 1
	next.UpdatedAt = s.now()
	s.auctions[slotID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListExpiredActive(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, rec := range s.auctions {
		if rec.Status == StatusActive && rec.Expired(now) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) RecordFailedRefund(_ context.Context, fr FailedRefund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fr.ID == "" {
		fr.ID = NewID()
	}
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = s.now()
	}
	s.failed = append(s.failed, fr)
	return nil
}

func (s *MemoryStore) ListFailedRefunds(_ context.Context, limit int) ([]FailedRefund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]FailedRefund, 0, min(limit, len(s.failed)))
	for i := len(s.failed) - 1; i >= 0 && len(out) < limit; i-- {
		if s.failed[i].ResolvedAt == nil {
			out = append(out, s.failed[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) ResolveFailedRefunds(_ context.Context, bidEntryID, ref string, at time.Time) (int, error) {
	if bidEntryID == "" {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.failed {
		fr := &s.failed[i]
		if fr.BidEntryID == bidEntryID && fr.ResolvedAt == nil {
			resolved := at
			fr.ResolvedAt = &resolved
			fr.ResolvedRef = ref
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
