package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"adspot-auction/internal/money"
)

// PGStore keeps records in Postgres. Money is stored as integer micro-dollars.
type PGStore struct {
	Pool *pgxpool.Pool
}

var _ AuctionStore = (*PGStore)(nil)

func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PGStore{Pool: pool}, nil
}

func (s *PGStore) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *PGStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

const auctionColumns = `slot_id, status, current_bid_micros, current_winner, bid_history,
	auction_start_time, auction_end_time, withdrawn_agents, skipped_agents,
	auction_ended, auction_end_reason, declared_winner, winning_artifact,
	version, created_at, updated_at`

func scanAuction(row pgx.Row) (*AuctionRecord, error) {
	var (
		rec         AuctionRecord
		status      string
		bidMicros   *int64
		winnerRaw   []byte
		historyRaw  []byte
		artifactRaw []byte
	)
	err := row.Scan(&rec.SlotID, &status, &bidMicros, &winnerRaw, &historyRaw,
		&rec.AuctionStartTime, &rec.AuctionEndTime, &rec.WithdrawnAgents, &rec.SkippedAgents,
		&rec.AuctionEnded, &rec.AuctionEndReason, &rec.DeclaredWinner, &artifactRaw,
		&rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Status = Status(status)
	if bidMicros != nil {
		bid := money.FromMicros(*bidMicros)
		rec.CurrentBid = &bid
	}
	if len(winnerRaw) > 0 {
		if err := json.Unmarshal(winnerRaw, &rec.CurrentWinner); err != nil {
			return nil, fmt.Errorf("decode current_winner: %w", err)
		}
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &rec.BidHistory); err != nil {
			return nil, fmt.Errorf("decode bid_history: %w", err)
		}
	}
	if len(artifactRaw) > 0 {
		if err := json.Unmarshal(artifactRaw, &rec.WinningArtifact); err != nil {
			return nil, fmt.Errorf("decode winning_artifact: %w", err)
		}
	}
	return &rec, nil
}

func (s *PGStore) GetAuction(ctx context.Context, slotID string) (*AuctionRecord, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE slot_id = $1`, slotID)
	return scanAuction(row)
}

func (s *PGStore) EnsureAuction(ctx context.Context, slotID string) (*AuctionRecord, error) {
	if _, err := s.Pool.Exec(ctx, `INSERT INTO auctions (slot_id) VALUES ($1) ON CONFLICT (slot_id) DO NOTHING`, slotID); err != nil {
		return nil, err
	}
	return s.GetAuction(ctx, slotID)
}

// UpdateAuction locks the row with SELECT ... FOR UPDATE for the whole
// read-modify-write so concurrent writers on one slot queue up.
func (s *PGStore) UpdateAuction(ctx context.Context, slotID string, fn UpdateFunc) (*AuctionRecord, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO auctions (slot_id) VALUES ($1) ON CONFLICT (slot_id) DO NOTHING`, slotID); err != nil {
		return nil, err
	}
	cur, err := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE slot_id = $1 FOR UPDATE`, slotID))
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrSkipWrite) {
			// The upsert above is kept: the record exists from the first touch.
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return cur, nil
		}
		return nil, err
	}
	next.SlotID = slotID
	next.Version = cur.Version + 1

	var bidMicros *int64
	if next.CurrentBid != nil {
		v := money.ToMicros(*next.CurrentBid)
		bidMicros = &v
	}
	winnerRaw, err := jsonOrNil(next.CurrentWinner != nil, next.CurrentWinner)
	if err != nil {
		return nil, err
	}
	history := next.BidHistory
	if history == nil {
		history = []BidEntry{}
	}
	historyRaw, err := json.Marshal(history)
	if err != nil {
		return nil, err
	}
	artifactRaw, err := jsonOrNil(next.WinningArtifact != nil, next.WinningArtifact)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRow(ctx, `UPDATE auctions SET
		status = $2, current_bid_micros = $3, current_winner = $4, bid_history = $5,
		auction_start_time = $6, auction_end_time = $7, withdrawn_agents = $8, skipped_agents = $9,
		auction_ended = $10, auction_end_reason = $11, declared_winner = $12, winning_artifact = $13,
		version = $14, updated_at = now()
		WHERE slot_id = $1
		RETURNING `+auctionColumns,
		slotID, string(next.Status), bidMicros, winnerRaw, historyRaw,
		next.AuctionStartTime, next.AuctionEndTime, nonNil(next.WithdrawnAgents), nonNil(next.SkippedAgents),
		next.AuctionEnded, next.AuctionEndReason, next.DeclaredWinner, artifactRaw,
		next.Version)
	stored, err := scanAuction(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PGStore) ListExpiredActive(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `SELECT slot_id FROM auctions WHERE status = 'active' AND auction_end_time IS NOT NULL AND auction_end_time < $1 ORDER BY slot_id`, now)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PGStore) RecordFailedRefund(ctx context.Context, fr FailedRefund) error {
	if fr.ID == "" {
		fr.ID = NewID()
	}
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = time.Now()
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO failed_refunds (id, slot_id, agent_id, address, amount_micros, bid_entry_id, reason, attempts, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		fr.ID, fr.SlotID, fr.AgentID, fr.Address, money.ToMicros(fr.Amount), fr.BidEntryID, fr.Reason, fr.Attempts, fr.CreatedAt)
	return err
}

func (s *PGStore) ResolveFailedRefunds(ctx context.Context, bidEntryID, ref string, at time.Time) (int, error) {
	if bidEntryID == "" {
		return 0, nil
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE failed_refunds SET resolved_ref = $2, resolved_at = $3
		WHERE bid_entry_id = $1 AND resolved_at IS NULL`, bidEntryID, ref, at)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PGStore) ListFailedRefunds(ctx context.Context, limit int) ([]FailedRefund, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, slot_id, agent_id, address, amount_micros, bid_entry_id, reason, attempts, created_at
		FROM failed_refunds WHERE resolved_at IS NULL ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []FailedRefund{}
	for rows.Next() {
		var (
			fr     FailedRefund
			micros int64
		)
		if err := rows.Scan(&fr.ID, &fr.SlotID, &fr.AgentID, &fr.Address, &micros, &fr.BidEntryID, &fr.Reason, &fr.Attempts, &fr.CreatedAt); err != nil {
			return nil, err
		}
		fr.Amount = money.FromMicros(micros)
		out = append(out, fr)
	}
	return out, rows.Err()
}

func jsonOrNil(present bool, v any) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
