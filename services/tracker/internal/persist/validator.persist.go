package persist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tanmoy095/LogiSynapse/services/tracker/internal/shipments"
	"github.com/robfig/cron/v3"
)

const DefaultValidationSchedule = "@every 1m"

// Target is the live store the validator inspects.
type Target interface {
	Dispatcher
	GetState() shipments.State
}

// Validator is a best-effort self-healing pass: on a fixed schedule it checks
// the live slice for persistence metadata and hard-resets the store when it
// is missing. It does not guarantee the state is valid.
type Validator struct {
	target   Target
	logger   *slog.Logger
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
}

func NewValidator(target Target, logger *slog.Logger, schedule string) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultValidationSchedule
	}
	return &Validator{
		target:   target,
		logger:   logger,
		schedule: schedule,
		timeout:  10 * time.Second,
		cron:     cron.New(),
	}
}

// Check runs one pass and reports whether a reset was dispatched.
func (v *Validator) Check(ctx context.Context) bool {
	if v.target.GetState().Persist != nil {
		return false
	}
	v.logger.Warn("state has no persistence metadata, resetting store")
	if err := v.target.Dispatch(ctx, shipments.StoreReset()); err != nil {
		v.logger.Error("store reset failed", slog.Any("error", err))
		return false
	}
	return true
}

// Start schedules Check. The first run happens one interval from now.
func (v *Validator) Start() error {
	_, err := v.cron.AddFunc(v.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
		defer cancel()
		v.Check(ctx)
	})
	if err != nil {
		return fmt.Errorf("validator schedule %q: %w", v.schedule, err)
	}
	v.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (v *Validator) Stop() {
	<-v.cron.Stop().Done()
}
