// Package auction is the ad-slot auction core: the bid negotiation and
// settlement engine and the lifecycle controller that ends auctions on
// expiry, withdrawal or skips.
package auction

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/config"
	"adspot-auction/internal/events"
	"adspot-auction/internal/refund"
	"adspot-auction/internal/store"
)

type Options struct {
	Pricing PriceRule
	// Spread widens the no-proposal acceptable range above the minimum, up
	// to Cap.
	Spread           decimal.Decimal
	Cap              decimal.Decimal
	SuggestionBuffer decimal.Decimal
	Duration         time.Duration
	ThinkingDelay    time.Duration
	// Roster is the fixed set of expected bidders, if known.
	Roster []string

	PayTo             string
	Network           string
	Asset             string
	AssetName         string
	AssetVersion      string
	MaxTimeoutSeconds int
	// ResourceBaseURL prefixes the x402 resource, e.g. https://host.
	ResourceBaseURL string
}

func OptionsFromConfig(a config.AuctionConfig, p config.PaymentConfig, publicBaseURL string) Options {
	return Options{
		Pricing:           IncrementRule{Starting: a.StartingBidUSDC, Increment: a.IncrementUSDC},
		Spread:            a.SpreadUSDC,
		Cap:               a.CapUSDC,
		SuggestionBuffer:  a.SuggestionBuffer,
		Duration:          time.Duration(a.DurationMinutes) * time.Minute,
		ThinkingDelay:     time.Duration(a.ThinkingDelayMS) * time.Millisecond,
		Roster:            a.Roster,
		PayTo:             p.PayTo,
		Network:           p.Network,
		Asset:             p.Asset,
		AssetName:         p.AssetName,
		AssetVersion:      p.AssetVersion,
		MaxTimeoutSeconds: p.MaxTimeoutSeconds,
		ResourceBaseURL:   strings.TrimRight(publicBaseURL, "/"),
	}
}

// RefundScheduler is the slice of the refund issuer the core uses.
type RefundScheduler interface {
	Schedule(job refund.Job)
	Refund(ctx context.Context, job refund.Job) (string, error)
}

// core is shared by Engine and Controller.
type core struct {
	store    store.AuctionStore
	refunds  RefundScheduler
	notifier events.Notifier
	opts     Options
	now      func() time.Time
}

func newCore(st store.AuctionStore, refunds RefundScheduler, notifier events.Notifier, opts Options) core {
	if notifier == nil {
		notifier = events.Nop
	}
	if opts.Pricing == nil {
		opts.Pricing = IncrementRule{Starting: decimal.NewFromInt(1), Increment: decimal.NewFromInt(1)}
	}
	if opts.Duration <= 0 {
		opts.Duration = 5 * time.Minute
	}
	return core{store: st, refunds: refunds, notifier: notifier, opts: opts, now: time.Now}
}

func (c *core) base(slotID string) events.Base {
	return events.Base{SlotID: slotID, Timestamp: c.now()}
}

// expireIfDue persists the ended state of an auction whose end time has
// passed and reports the reason it is closed. It returns nil when the
// auction is still open.
func (c *core) expireIfDue(ctx context.Context, rec *store.AuctionRecord) error {
	if rec == nil {
		return nil
	}
	if rec.Status != store.StatusActive {
		return &ClosedError{Reason: string(rec.Status)}
	}
	if !rec.Expired(c.now()) {
		return nil
	}
	c.endExpired(ctx, rec.SlotID)
	return &ClosedError{Reason: store.EndReasonTimeExpired}
}

func (c *core) endExpired(ctx context.Context, slotID string) bool {
	ended := false
	rec, err := c.store.UpdateAuction(ctx, slotID, func(r *store.AuctionRecord) error {
		ended = false
		if r.Status != store.StatusActive || !r.Expired(c.now()) {
			return store.ErrSkipWrite
		}
		ended = r.End(store.EndReasonTimeExpired, currentWinnerID(r))
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("slot_id", slotID).Msg("mark auction expired")
		return false
	}
	if !ended {
		return false
	}
	c.emitEnded(ctx, rec)
	return true
}

func (c *core) emitEnded(ctx context.Context, rec *store.AuctionRecord) {
	metricAuctionsEndedTotal.WithLabelValues(rec.AuctionEndReason).Inc()
	var amount *decimal.Decimal
	if rec.DeclaredWinner != "" && rec.IsWinner(rec.DeclaredWinner) && rec.CurrentBid != nil {
		v := *rec.CurrentBid
		amount = &v
	}
	c.notifier.Notify(ctx, events.AuctionEnded{
		Base:     c.base(rec.SlotID),
		Reason:   rec.AuctionEndReason,
		WinnerID: rec.DeclaredWinner,
		Amount:   amount,
	})
	log.Info().
		Str("slot_id", rec.SlotID).
		Str("reason", rec.AuctionEndReason).
		Str("winner", rec.DeclaredWinner).
		Msg("auction ended")
}

func currentWinnerID(rec *store.AuctionRecord) string {
	if rec.CurrentWinner == nil {
		return ""
	}
	return rec.CurrentWinner.AgentID
}

// remaining lists participants still in the running: the roster plus
// everyone who ever bid, minus withdrawn and skipped agents.
func (c *core) remaining(rec *store.AuctionRecord) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		if rec.HasWithdrawn(id) || rec.HasSkipped(id) {
			return
		}
		out = append(out, id)
	}
	for _, id := range c.opts.Roster {
		add(id)
	}
	for _, id := range rec.Bidders() {
		add(id)
	}
	return out
}

// chooseWinner applies on early termination: the current winner unless it
// withdrew, otherwise the sole remaining participant, otherwise nobody.
func (c *core) chooseWinner(rec *store.AuctionRecord) string {
	if id := currentWinnerID(rec); id != "" && !rec.HasWithdrawn(id) {
		return id
	}
	if left := c.remaining(rec); len(left) == 1 {
		return left[0]
	}
	return ""
}

func snapshotSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Seconds())
	return &s
}
