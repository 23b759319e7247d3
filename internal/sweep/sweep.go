package sweep

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/go-co-op/gocron"

	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
)

// TenantLister enumerates the tenant partitions the sweep walks.
type TenantLister interface {
	ListAll(ctx context.Context) ([]tenant.Context, error)
}

// Sweeper reclaims activation tokens past their retention window. Used
// tokens are kept for the same window as audit trail, then deleted with
// the rest.
type Sweeper struct {
	tenants   TenantLister
	tokens    kiosk.ActivationTokenRepo
	retention time.Duration
	logger    apt.Logger
	scheduler *gocron.Scheduler
}

func New(tenants TenantLister, tokens kiosk.ActivationTokenRepo, logger apt.Logger) *Sweeper {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Sweeper{
		tenants:   tenants,
		tokens:    tokens,
		retention: kiosk.TokenRetention,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the daily run. The scheduler owns its own goroutine;
// Stop tears it down.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.scheduler.Every(1).Day().At("04:00").Do(func() {
		s.Run(context.Background())
	}); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("activation token sweep scheduled")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.scheduler.Stop()
	return nil
}

// Run walks every tenant once. Failures are logged per tenant; one bad
// partition does not stop the sweep.
func (s *Sweeper) Run(ctx context.Context) {
	tenants, err := s.tenants.ListAll(ctx)
	if err != nil {
		s.logger.Errorf("cannot list tenants for token sweep: %v", err)
		return
	}

	cutoff := time.Now().Add(-s.retention)
	var total int64
	for _, tn := range tenants {
		deleted, err := s.tokens.DeleteExpiredBefore(ctx, tn, cutoff)
		if err != nil {
			s.logger.Errorf("token sweep failed for tenant %s: %v", tn.ID, err)
			continue
		}
		total += deleted
	}
	if total > 0 {
		s.logger.Infof("token sweep reclaimed %d activation tokens", total)
	}
}
