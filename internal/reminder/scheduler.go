// Package reminder sends booking reminders 48h, 24h and 1h before an event.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/concierge-engine/internal/apperrors"
	"gitlab.com/timkado/api/concierge-engine/internal/config"
	"gitlab.com/timkado/api/concierge-engine/internal/model"
	"gitlab.com/timkado/api/concierge-engine/internal/observer"
	"gitlab.com/timkado/api/concierge-engine/internal/storage"
	"gitlab.com/timkado/api/concierge-engine/internal/tenant"
	"gitlab.com/timkado/api/concierge-engine/pkg/logger"
	"gitlab.com/timkado/api/concierge-engine/pkg/utils"
)

const (
	DefaultWindow   = 30 * time.Minute
	DefaultInterval = time.Hour
)

// Offset is how long before the event a reminder is due.
type Offset struct {
	Label  string
	Before time.Duration
}

// DefaultOffsets are the reminder intervals, furthest first.
var DefaultOffsets = []Offset{
	{Label: "48h", Before: 48 * time.Hour},
	{Label: "24h", Before: 24 * time.Hour},
	{Label: "1h", Before: time.Hour},
}

// BookingFinder is the read side of storage.BookingRepo used by sweeps.
type BookingFinder interface {
	FindConfirmedBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
}

// Notifier delivers a composed reminder for a booking. The tenant is in ctx.
type Notifier interface {
	Notify(ctx context.Context, b *model.Booking, msg Message) (channel string, err error)
}

// SweepReport counts the outcome of one sweep.
type SweepReport struct {
	Matched int `json:"matched"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Scheduler runs reminder sweeps. Dedup lives in the ledger so a restart
// or a second replica never sends the same reminder twice.
type Scheduler struct {
	bookings BookingFinder
	ledger   storage.ReminderRepo
	notifier Notifier
	offsets  []Offset
	window   time.Duration
	interval time.Duration
	log      *zap.Logger
}

// NewScheduler validates cfg against offsets (DefaultOffsets when nil).
// A window wider than half the smallest gap between offsets would match
// a booking in two intervals at once and is rejected.
func NewScheduler(bookings BookingFinder, ledger storage.ReminderRepo, notifier Notifier, cfg config.ReminderConfig, offsets []Offset) (*Scheduler, error) {
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	sorted := append([]Offset(nil), offsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before > sorted[j].Before })

	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	for i := 1; i < len(sorted); i++ {
		gap := sorted[i-1].Before - sorted[i].Before
		if gap <= 0 {
			return nil, fmt.Errorf("%w: duplicate reminder offset %s", apperrors.ErrConfiguration, sorted[i].Label)
		}
		if window > gap/2 {
			return nil, fmt.Errorf("%w: reminder window %s exceeds half the gap between %s and %s",
				apperrors.ErrConfiguration, window, sorted[i-1].Label, sorted[i].Label)
		}
	}

	return &Scheduler{
		bookings: bookings,
		ledger:   ledger,
		notifier: notifier,
		offsets:  sorted,
		window:   window,
		interval: interval,
		log:      logger.Log.Named("reminder"),
	}, nil
}

// Sweep dispatches every reminder due at now. Per-booking failures are
// counted and joined into the returned error; the report is always valid.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	start := time.Now()
	defer func() { observer.ObserveReminderSweep(time.Since(start)) }()

	var report SweepReport
	var errs []error
	for _, off := range s.offsets {
		from := now.Add(off.Before - s.window)
		to := now.Add(off.Before + s.window)

		due, err := s.bookings.FindConfirmedBetween(ctx, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("find %s reminders: %w", off.Label, err))
			continue
		}
		for i := range due {
			report.Matched++
			sent, err := s.dispatch(ctx, &due[i], off)
			switch {
			case err != nil:
				report.Failed++
				errs = append(errs, err)
			case sent:
				report.Sent++
			default:
				report.Skipped++
			}
		}
	}

	if report.Matched > 0 {
		s.log.Info("Reminder sweep finished",
			zap.Time("now", now),
			zap.Int("matched", report.Matched),
			zap.Int("sent", report.Sent),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report, errors.Join(errs...)
}

// dispatch claims and sends one reminder. A failed send releases the
// claim so a later sweep retries it.
func (s *Scheduler) dispatch(ctx context.Context, b *model.Booking, off Offset) (bool, error) {
	log := s.log.With(zap.Uint64("booking_id", b.ID), zap.Uint64("tenant_id", b.UserID), zap.String("interval", off.Label))
	if b.UserID == 0 {
		observer.IncReminder(off.Label, "invalid_tenant")
		return false, fmt.Errorf("%w: booking %d has no tenant", apperrors.ErrValidation, b.ID)
	}
	ctx = logger.WithLogger(tenant.WithTenantID(ctx, b.UserID), log)

	claimed, err := s.ledger.TryMark(ctx, b.ID, off.Label, b.UserID)
	if err != nil {
		observer.IncReminder(off.Label, "claim_error")
		return false, fmt.Errorf("claim reminder %d/%s: %w", b.ID, off.Label, err)
	}
	if !claimed {
		observer.IncReminder(off.Label, "already_sent")
		return false, nil
	}

	channel, err := s.notifier.Notify(ctx, b, Compose(b, off.Label))
	if err != nil {
		observer.IncReminder(off.Label, "failed")
		if relErr := s.ledger.Release(ctx, b.ID, off.Label); relErr != nil {
			log.Error("Failed to release reminder claim, it will not be retried", zap.Error(relErr))
		}
		log.Warn("Reminder dispatch failed", zap.Error(err))
		return false, fmt.Errorf("dispatch reminder %d/%s: %w", b.ID, off.Label, err)
	}

	observer.IncReminder(off.Label, "sent")
	log.Info("Reminder sent", zap.String("channel", channel))
	return true, nil
}

// sweepOnce keeps a panicking sweep from killing the loop.
func (s *Scheduler) sweepOnce(ctx context.Context) {
	defer utils.RecoverWithLog(ctx, "reminder sweep")
	if _, err := s.Sweep(ctx, utils.Now()); err != nil {
		s.log.Warn("Reminder sweep had failures", zap.Error(err))
	}
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("Reminder scheduler started", zap.Duration("interval", s.interval), zap.Duration("window", s.window))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("Reminder scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
