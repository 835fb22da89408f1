package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/logfields"
)

// RunFunc executes one maintenance run for a build number.
type RunFunc func(ctx context.Context, buildNumber int64) (*Report, error)

// Daemon runs the maintenance pipeline periodically.
// Build numbers increase monotonically per run, starting at the externally
// supplied first build number.
type Daemon struct {
	run             RunFunc
	interval        time.Duration
	nextBuildNumber int64
	logger          *zap.Logger

	triggerCh  chan struct{}
	shutdownCh chan struct{}
	stopOnce   sync.Once

	mu         sync.Mutex
	lastReport *Report
}

func NewDaemon(run RunFunc, interval time.Duration, firstBuildNumber int64) *Daemon {
	return &Daemon{
		run:             run,
		interval:        interval,
		nextBuildNumber: firstBuildNumber,
		logger:          zap.L().Named("daemon"),
		triggerCh:       make(chan struct{}, 1),
		shutdownCh:      make(chan struct{}),
	}
}

// Start runs the pipeline immediately and then periodically until Stop() is
// called. It blocks until then.
func (d *Daemon) Start() {
	d.logger.Info(
		"daemon started",
		logfields.Event("daemon_started"),
		zap.Duration("run_interval", d.interval),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.runOnce()

	for {
		select {
		case <-d.shutdownCh:
			d.logger.Info("daemon terminated", logfields.Event("daemon_terminated"))
			return

		case <-ticker.C:
			d.runOnce()

		case <-d.triggerCh:
			d.logger.Debug(
				"maintenance run triggered manually",
				logfields.Event("run_triggered"),
			)
			d.runOnce()
		}
	}
}

func (d *Daemon) runOnce() {
	buildNumber := d.nextBuildNumber
	d.nextBuildNumber++

	// run errors are already logged and recorded in the report
	report, _ := d.run(context.Background(), buildNumber)

	if report != nil {
		d.mu.Lock()
		d.lastReport = report
		d.mu.Unlock()
	}
}

// Trigger schedules an immediate maintenance run.
// When a trigger is already pending the call is a no-op.
func (d *Daemon) Trigger() {
	select {
	case d.triggerCh <- struct{}{}:
	default:
	}
}

// LastReport returns the report of the most recent finished run, nil if no
// run finished yet.
func (d *Daemon) LastReport() *Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.lastReport
}

// Stop terminates the daemon loop.
// It does not interrupt a currently executing run.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		close(d.shutdownCh)
	})
}
