// internal/sweep/sweep.go
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"license-workflow/internal/assignment"
	commonerrors "license-workflow/internal/common/errors"
	"license-workflow/internal/common/logger"
	"license-workflow/internal/common/metrics"
	"license-workflow/internal/common/observability"
	"license-workflow/internal/workflow"
)

const leaseKey = "workflow:sweep:lease"

// releaseLease deletes the lease only when it still holds the caller's
// token. A sweep that outlives its TTL must not drop a lease another
// replica has since taken.
var releaseLease = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Config struct {
	Schedule string
	LeaseTTL time.Duration
}

// Sweeper periodically finds stalled applications and escalates them. A
// redis lease keeps concurrent replicas from sweeping at the same time;
// the sweep itself is idempotent, so a lost lease only costs duplicate
// reads, never duplicate escalations.
type Sweeper struct {
	config    *Config
	escalator *assignment.Escalator
	redis     *redis.Client
	obs       *observability.Observability
	logger    logger.Logger
	errs      *commonerrors.ErrorHandler
	cron      *cron.Cron
}

func NewSweeper(config *Config, escalator *assignment.Escalator, rdb *redis.Client, obs *observability.Observability, log logger.Logger) *Sweeper {
	l := log.WithFields(map[string]interface{}{"component": "sweep"})
	return &Sweeper{
		config:    config,
		escalator: escalator,
		redis:     rdb,
		obs:       obs,
		logger:    l,
		errs:      commonerrors.NewErrorHandler(l),
	}
}

// Start registers the cron schedule and begins sweeping. Call Stop to
// drain.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.Run(ctx); err != nil {
			s.logger.Error("sweep run failed", map[string]interface{}{
				"error": err,
			})
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep schedule %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", map[string]interface{}{
		"schedule": s.config.Schedule,
	})
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run executes one sweep. It returns nil without doing anything when
// another replica holds the lease.
func (s *Sweeper) Run(ctx context.Context) error {
	token := uuid.New().String()
	ok, err := s.redis.SetNX(ctx, leaseKey, token, s.config.LeaseTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		s.logger.Debug("sweep lease held elsewhere, skipping", nil)
		return nil
	}
	defer s.release(ctx, token)

	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.SweepDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if s.obs != nil {
			s.obs.RecordOperation(ctx, "sweep", outcome)
			s.obs.RecordOperationDuration(ctx, "sweep", time.Since(start), outcome)
		}
	}()

	stalled, err := s.escalator.FindStalled(ctx)
	if err != nil {
		outcome = "error"
		return err
	}
	metrics.SweepStalledFound.Set(float64(len(stalled)))

	var escalated, skipped, failed int
	for _, c := range stalled {
		rec, err := s.escalator.Escalate(ctx, c.ApplicationID, "")
		switch {
		case errors.Is(err, assignment.ErrNoEscalationPath):
			failed++
			s.logger.Error("application stalled with no escalation path", map[string]interface{}{
				"applicationId": c.ApplicationID,
				"stalledSince":  c.StalledSince,
			})
		case errors.Is(err, workflow.ErrNoOfficerAvailable):
			skipped++
			s.logger.Warn("no officer available, leaving for next sweep", map[string]interface{}{
				"applicationId": c.ApplicationID,
			})
		case err != nil:
			failed++
			s.errs.Handle("escalate", err, map[string]interface{}{
				"applicationId": c.ApplicationID,
			})
		case rec == nil:
			skipped++
		default:
			escalated++
		}
	}

	if failed > 0 {
		outcome = "partial"
	}
	s.logger.Info("sweep finished", map[string]interface{}{
		"found":     len(stalled),
		"escalated": escalated,
		"skipped":   skipped,
		"failed":    failed,
	})
	return nil
}

func (s *Sweeper) release(ctx context.Context, token string) {
	if err := releaseLease.Run(ctx, s.redis, []string{leaseKey}, token).Err(); err != nil {
		s.logger.Warn("sweep lease release failed", map[string]interface{}{
			"error": err,
		})
	}
}
