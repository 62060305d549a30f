package alert

import (
	"bytes"
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultInterval is the pause between the end of one cycle and the start of the next.
const DefaultInterval = 10 * time.Second

// Cycler runs one evaluation cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (Report, error)
}

// Scheduler drives cycles one at a time until its context is cancelled.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
}

func NewScheduler(cycler Cycler, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{cycler: cycler, interval: interval}
}

// Run blocks until ctx is cancelled. A failed or panicking cycle is logged
// and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info("🚀 Starting alert monitoring...")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Alert monitoring stopped.")
			return
		case <-timer.C:
		}

		log.Info("🔄 -----------------------------------------")
		report, err := s.runOnce(ctx)
		if err != nil {
			log.Errorf("❌ Alert cycle failed: %v", err)
		} else {
			log.Debugf("Cycle report: %+v", report)
		}

		log.Infof("⏳ Waiting %s before the next check...", s.interval)
		timer.Reset(s.interval)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 4096)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			err = errors.Errorf("panic in alert cycle: %v\nStack trace: %s", r, stackTrace)
		}
	}()
	return s.cycler.RunCycle(ctx)
}
