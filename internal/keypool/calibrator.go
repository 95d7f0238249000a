package keypool

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/timmy/linkweaver/internal/logger"
)

// Calibrator re-probes the pool on a cron schedule.
type Calibrator struct {
	cron    *cron.Cron
	manager *Manager
	ctx     context.Context
}

// NewCalibrator schedules manager.RefreshKeys on spec, a standard five-field
// cron expression or a descriptor such as "@every 30m".
func NewCalibrator(ctx context.Context, manager *Manager, spec string) (*Calibrator, error) {
	c := &Calibrator{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		manager: manager,
		ctx:     logger.SetComponent(ctx, "calibrator"),
	}
	if _, err := c.cron.AddFunc(spec, c.run); err != nil {
		return nil, fmt.Errorf("invalid calibrate schedule %q: %w", spec, err)
	}
	return c, nil
}

// Start begins running the schedule in the background.
func (c *Calibrator) Start() {
	c.cron.Start()
}

// Stop halts the schedule and waits for a running pass to finish.
func (c *Calibrator) Stop() {
	<-c.cron.Stop().Done()
}

func (c *Calibrator) run() {
	if _, err := c.manager.RefreshKeys(c.ctx); err != nil {
		logger.CtxError(c.ctx, "Scheduled recalibration failed: %v", err)
	}
}
