// Package probe implements read-only checks that detect if a repository
// clone needs maintenance.
package probe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/logfields"
)

const loggerName = "detector"

// Probe is a read-only check against a repository working tree.
// It returns true when it found a reason to run the updater.
type Probe interface {
	Probe(ctx context.Context) (signal bool, err error)
	Name() string
}

// Signal is the recorded outcome of a single probe run.
type Signal struct {
	Probe    string
	Detected bool
}

// Result is the combined outcome of all probes.
// Probes that failed to execute contribute a negative signal and a warning.
type Result struct {
	ChangesDetected bool
	Signals         []Signal
	Warnings        []error
}

// Detector runs all probes and combines their signals with a logical OR.
type Detector struct {
	probes []Probe
	logger *zap.Logger
}

func NewDetector(probes ...Probe) *Detector {
	return &Detector{
		probes: probes,
		logger: zap.L().Named(loggerName),
	}
}

// Detect runs all probes sequentially.
// A failing probe does not abort the detection, the error is recorded as
// warning in the result and the probe is treated as if it did not signal.
func (d *Detector) Detect(ctx context.Context) *Result {
	var result Result

	for _, p := range d.probes {
		logger := d.logger.With(logfields.Probe(p.Name()))

		signal, err := p.Probe(ctx)
		if err != nil {
			logger.Warn(
				"probe execution failed, treating as no signal",
				logfields.Event("probe_failed"),
				zap.Error(err),
			)

			result.Warnings = append(
				result.Warnings,
				fmt.Errorf("probe %s failed: %w", p.Name(), err),
			)
			result.Signals = append(result.Signals, Signal{Probe: p.Name()})

			continue
		}

		logger.Debug(
			"probe executed",
			logfields.Event("probe_executed"),
			zap.Bool("probe_signal", signal),
		)

		result.Signals = append(result.Signals, Signal{Probe: p.Name(), Detected: signal})
		result.ChangesDetected = result.ChangesDetected || signal
	}

	return &result
}
