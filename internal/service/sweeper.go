package service

import (
	"context"
	"log"
	"time"

	"atelier/config"
	"atelier/internal/repository"
)

// SweepStats reports what one sweep invocation did (or, for a dry run,
// would do).
type SweepStats struct {
	ExpiredPayments int64     `json:"expired_payments"`
	ClearedLinks    int64     `json:"cleared_links"`
	RanAt           time.Time `json:"ran_at"`
	DryRun          bool      `json:"dry_run"`
}

// Sweeper retires stale payment state on a time predicate: pending and
// processing payments past PaymentExpiryHours become cancelled ("expired"),
// and payment links past their expiry are cleared so the payment page
// refuses new charge attempts. Re-running is safe; once nothing matches,
// a sweep is a no-op.
type Sweeper struct {
	cfg      *config.PaymentConfig
	payments *repository.PaymentRepository
	requests *repository.RequestRepository
	now      func() time.Time
}

func NewSweeper(cfg *config.PaymentConfig, payments *repository.PaymentRepository, requests *repository.RequestRepository) *Sweeper {
	return &Sweeper{cfg: cfg, payments: payments, requests: requests, now: time.Now}
}

// Run performs one sweep and returns counts for observability.
func (s *Sweeper) Run() (*SweepStats, error) {
	now := s.now()
	paymentCutoff := now.Add(-time.Duration(s.cfg.PaymentExpiryHours) * time.Hour)

	expired, err := s.payments.ExpireStale(paymentCutoff)
	if err != nil {
		return nil, err
	}
	cleared, err := s.requests.ClearExpiredLinks(now)
	if err != nil {
		return nil, err
	}
	stats := &SweepStats{ExpiredPayments: expired, ClearedLinks: cleared, RanAt: now}
	if expired > 0 || cleared > 0 {
		log.Printf("[Sweeper] expired %d payments, cleared %d links", expired, cleared)
	}
	return stats, nil
}

// Stats is the dry run: it counts what Run would touch without acting.
func (s *Sweeper) Stats() (*SweepStats, error) {
	now := s.now()
	paymentCutoff := now.Add(-time.Duration(s.cfg.PaymentExpiryHours) * time.Hour)

	stale, err := s.payments.CountStale(paymentCutoff)
	if err != nil {
		return nil, err
	}
	links, err := s.requests.CountExpiredLinks(now)
	if err != nil {
		return nil, err
	}
	return &SweepStats{ExpiredPayments: stale, ClearedLinks: links, RanAt: now, DryRun: true}, nil
}

// Start runs the sweeper on an hourly ticker until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		log.Printf("[Sweeper] background sweep every hour (paymentExpiryHours=%d)", s.cfg.PaymentExpiryHours)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Run(); err != nil {
					log.Printf("[Sweeper] sweep failed: %v", err)
				}
			}
		}
	}()
}
