package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/githubclt"
	"github.com/simplesurance/upkeeper/internal/logfields"
	"github.com/simplesurance/upkeeper/internal/probe"
	"github.com/simplesurance/upkeeper/internal/updater"
)

// RunResult classifies how a pipeline run ended.
type RunResult string

const (
	// ResultNoChanges means no probe signalled, nothing was done.
	ResultNoChanges RunResult = "no-changes"
	// ResultNoDiff means the updater produced no working tree diff, the
	// feature branch was discarded.
	ResultNoDiff RunResult = "no-diff"
	// ResultPublished means a commit was pushed and a pull request opened.
	ResultPublished RunResult = "published"
	// ResultExistingPR means the pushed changes are covered by an already
	// open pull request.
	ResultExistingPR RunResult = "existing-pr"
	// ResultDryRun means changes were detected and applied locally but
	// publishing was skipped.
	ResultDryRun RunResult = "dry-run"
	// ResultFailed means the run was aborted by a fatal error.
	ResultFailed RunResult = "failed"
)

// Report is the summary of a single pipeline run.
// Non-fatal failures of probes, update steps and cleanup end up in Warnings
// instead of aborting the run.
type Report struct {
	BuildNumber   int64
	StartTime     time.Time
	EndTime       time.Time
	Result        RunResult
	FeatureBranch string
	Signals       []probe.Signal
	Steps         []updater.StepResult
	Warnings      []string
	PullRequest   *githubclt.PullRequest
}

func newReport(buildNumber int64, startTime time.Time) *Report {
	return &Report{
		BuildNumber: buildNumber,
		StartTime:   startTime,
	}
}

func (r *Report) addWarning(err error) {
	r.Warnings = append(r.Warnings, err.Error())
}

func (r *Report) LogFields() []zap.Field {
	fields := []zap.Field{
		logfields.BuildNumber(r.BuildNumber),
		zap.Duration("run.duration", r.EndTime.Sub(r.StartTime)),
		zap.String("run.result", string(r.Result)),
		zap.Int("run.warnings", len(r.Warnings)),
	}

	if r.FeatureBranch != "" {
		fields = append(fields, logfields.FeatureBranch(r.FeatureBranch))
	}

	if r.PullRequest != nil {
		fields = append(fields, logfields.PullRequest(r.PullRequest.Number))
	}

	return fields
}
