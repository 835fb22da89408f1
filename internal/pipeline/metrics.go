package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/logfields"
	"github.com/simplesurance/upkeeper/internal/probe"
	"github.com/simplesurance/upkeeper/internal/updater"
)

const metricNamespace = "upkeeper"

const (
	runsMetricName         = "maintenance_runs_total"
	probeSignalsMetricName = "probe_signals_total"
	updateStepsMetricName  = "update_steps_total"
	prsOpenedMetricName    = "pull_requests_opened_total"
	lastRunMetricName      = "last_run_completion_timestamp_seconds"
)

const (
	resultLabel = "result"
	probeLabel  = "probe"
	stepLabel   = "step"
	statusLabel = "status"
)

type metricCollector struct {
	logger       *zap.Logger
	runs         *prometheus.CounterVec
	probeSignals *prometheus.CounterVec
	updateSteps  *prometheus.CounterVec
	prsOpened    prometheus.Counter
	lastRun      prometheus.Gauge
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of finished maintenance runs per result",
			},
			[]string{resultLabel},
		),
		probeSignals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      probeSignalsMetricName,
				Help:      "count of positive probe signals",
			},
			[]string{probeLabel},
		),
		updateSteps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      updateStepsMetricName,
				Help:      "count of executed update steps per status",
			},
			[]string{stepLabel, statusLabel},
		),
		prsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      prsOpenedMetricName,
				Help:      "count of opened pull requests",
			},
		),
		lastRun: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      lastRunMetricName,
				Help:      "unix timestamp of the last finished maintenance run",
			},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func (m *metricCollector) RunFinished(report *Report) {
	cnt, err := m.runs.GetMetricWith(prometheus.Labels{resultLabel: string(report.Result)})
	if err != nil {
		m.logGetMetricFailed(runsMetricName, err)
		return
	}

	cnt.Inc()
	m.lastRun.Set(float64(report.EndTime.Unix()))
}

func (m *metricCollector) ProbeSignals(signals []probe.Signal) {
	for _, signal := range signals {
		if !signal.Detected {
			continue
		}

		cnt, err := m.probeSignals.GetMetricWith(prometheus.Labels{probeLabel: signal.Probe})
		if err != nil {
			m.logGetMetricFailed(probeSignalsMetricName, err)
			continue
		}

		cnt.Inc()
	}
}

func (m *metricCollector) UpdateStepFinished(result updater.StepResult) {
	cnt, err := m.updateSteps.GetMetricWith(prometheus.Labels{
		stepLabel:   result.Step,
		statusLabel: string(result.Status),
	})
	if err != nil {
		m.logGetMetricFailed(updateStepsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) PullRequestOpened() {
	m.prsOpened.Inc()
}
