// Package pipeline orchestrates a single maintenance run: detect whether the
// repository needs maintenance, apply fixes, verify that they changed the
// working tree and publish them as a pull request.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/gitcmd"
	"github.com/simplesurance/upkeeper/internal/githubclt"
	"github.com/simplesurance/upkeeper/internal/logfields"
	"github.com/simplesurance/upkeeper/internal/probe"
	"github.com/simplesurance/upkeeper/internal/updater"
)

const loggerName = "pipeline"

const branchNamePrefix = "automated-update-"

const commitMsgTmpl = `Automated maintenance update (build %d)

Dependency upgrades, code formatting and documentation regeneration
applied by upkeeper. Do not amend this commit manually, it will be
recreated by the next maintenance build.`

const prTitleTmpl = "Automated maintenance update (build %d)"

const prBodyTmpl = `This pull request was opened automatically by upkeeper for build %d at %s.

Merging branch ` + "`%s`" + ` into ` + "`%s`" + ` applies:

- dependency upgrades
- code formatting
- documentation regeneration
`

// GithubClient is the github API surface used by the publisher stage.
type GithubClient interface {
	CreatePullRequest(ctx context.Context, owner, repo, title, body, head, base string) (*githubclt.PullRequest, error)
	ExistingOpenPR(ctx context.Context, owner, repo, head, base string) (*githubclt.PullRequest, error)
}

// Git executes git operations against the repository clone.
type Git interface {
	HasLocalChanges(ctx context.Context) (bool, error)
	CreateBranch(ctx context.Context, branch string) error
	Checkout(ctx context.Context, branch string) error
	AddAll(ctx context.Context) error
	Commit(ctx context.Context, message, botName, botEmail string) error
	Push(ctx context.Context, branch string, creds gitcmd.Credentials, force bool) error
	DeleteLocalBranch(ctx context.Context, branch string) error
	RemoteBranchExists(ctx context.Context, branch string, creds gitcmd.Credentials) (bool, error)
}

// Detector runs the probes and reports if maintenance is needed.
type Detector interface {
	Detect(ctx context.Context) *probe.Result
}

// Updater applies the maintenance fixes to the working tree.
type Updater interface {
	Apply(ctx context.Context) []updater.StepResult
}

// Retrier retries retryable operations, see Retryer.
type Retrier interface {
	Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error
}

// ConflictPolicy defines what happens when the feature branch of a run
// already exists on the remote, e.g. because a failed build was retried.
type ConflictPolicy string

const (
	// ConflictFail aborts the run with a fatal error.
	ConflictFail ConflictPolicy = "fail"
	// ConflictRecreate overwrites the remote branch with a force-push.
	ConflictRecreate ConflictPolicy = "recreate"
)

// Params configures a Pipeline.
type Params struct {
	Detector Detector
	Updater  Updater
	Git      Git
	GH       GithubClient
	Retryer  Retrier

	Owner          string
	Repo           string
	BaseBranch     string
	BuildNumber    int64
	BotName        string
	BotEmail       string
	GitCredentials gitcmd.Credentials
	ConflictPolicy ConflictPolicy
	DryRun         bool
}

// Pipeline runs the linear maintenance sequence:
// Detect -> Branch -> Update -> Verify -> Commit -> Push -> CreatePR,
// with a cleanup step (checkout base branch) always executed at the end.
// Only push and pull request API failures are fatal, all other failures are
// collected as warnings in the run report.
type Pipeline struct {
	Params

	logger *zap.Logger
	clock  func() time.Time
}

func New(p Params) *Pipeline {
	return &Pipeline{
		Params: p,
		logger: zap.L().Named(loggerName).With(
			logfields.RepositoryOwner(p.Owner),
			logfields.Repository(p.Repo),
			logfields.BaseBranch(p.BaseBranch),
		),
		clock: time.Now,
	}
}

// FeatureBranchName returns the deterministic branch name for a build
// number.
func FeatureBranchName(buildNumber int64) string {
	return fmt.Sprintf("%s%d", branchNamePrefix, buildNumber)
}

// Run executes one maintenance run.
// The returned report is non-nil also when an error is returned.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := newReport(p.BuildNumber, p.clock())

	result, err := p.run(ctx, report)
	report.Result = result
	report.EndTime = p.clock()

	metrics.RunFinished(report)

	if err != nil {
		p.logger.Error(
			"maintenance run failed",
			append(report.LogFields(), logfields.Event("run_failed"), zap.Error(err))...,
		)

		return report, err
	}

	p.logger.Info(
		"maintenance run finished",
		append(report.LogFields(), logfields.Event("run_finished"))...,
	)

	return report, nil
}

func (p *Pipeline) run(ctx context.Context, report *Report) (RunResult, error) {
	detection := p.Detector.Detect(ctx)

	report.Signals = detection.Signals
	for _, warn := range detection.Warnings {
		report.addWarning(warn)
	}
	metrics.ProbeSignals(detection.Signals)

	if !detection.ChangesDetected {
		p.logger.Info(
			"no changes detected, nothing to do",
			logfields.Event("no_changes_detected"),
		)

		return ResultNoChanges, nil
	}

	branch := FeatureBranchName(p.BuildNumber)
	report.FeatureBranch = branch

	if err := p.Git.CreateBranch(ctx, branch); err != nil {
		return ResultFailed, fmt.Errorf("creating feature branch failed: %w", err)
	}

	// always end on the base branch, also on fatal errors
	defer func() {
		if err := p.Git.Checkout(ctx, p.BaseBranch); err != nil {
			p.logger.Warn(
				"checking out base branch during cleanup failed",
				logfields.Event("cleanup_checkout_failed"),
				zap.Error(err),
			)
			report.addWarning(fmt.Errorf("cleanup failed: %w", err))
		}
	}()

	report.Steps = p.Updater.Apply(ctx)
	for _, step := range report.Steps {
		metrics.UpdateStepFinished(step)
		if step.Err != nil {
			report.addWarning(step.Err)
		}
	}

	// The updater ran but might not have changed anything, e.g. when
	// everything was already up to date. Re-derive ground truth from the
	// working tree before creating an empty pull request.
	changed, err := p.Git.HasLocalChanges(ctx)
	if err != nil {
		return ResultFailed, fmt.Errorf("verifying working tree status failed: %w", err)
	}

	if !changed {
		p.logger.Info(
			"update steps produced no diff, discarding feature branch",
			logfields.Event("no_diff_after_update"),
			logfields.FeatureBranch(branch),
		)

		p.discardFeatureBranch(ctx, report, branch)

		return ResultNoDiff, nil
	}

	if p.DryRun {
		p.logger.Info(
			"dry-run enabled, skipping commit, push and pull request creation",
			logfields.Event("dry_run_publish_skipped"),
			logfields.FeatureBranch(branch),
		)

		return ResultDryRun, nil
	}

	return p.publish(ctx, report, branch)
}

func (p *Pipeline) discardFeatureBranch(ctx context.Context, report *Report, branch string) {
	// the branch must not be checked out when it is deleted
	if err := p.Git.Checkout(ctx, p.BaseBranch); err != nil {
		report.addWarning(fmt.Errorf("checking out base branch failed: %w", err))
		return
	}

	if err := p.Git.DeleteLocalBranch(ctx, branch); err != nil {
		report.addWarning(fmt.Errorf("deleting feature branch failed: %w", err))
	}
}

func (p *Pipeline) publish(ctx context.Context, report *Report, branch string) (RunResult, error) {
	if err := p.Git.AddAll(ctx); err != nil {
		return ResultFailed, fmt.Errorf("staging changes failed: %w", err)
	}

	commitMsg := fmt.Sprintf(commitMsgTmpl, p.BuildNumber)
	if err := p.Git.Commit(ctx, commitMsg, p.BotName, p.BotEmail); err != nil {
		return ResultFailed, fmt.Errorf("creating commit failed: %w", err)
	}

	force, err := p.resolveBranchConflict(ctx, branch)
	if err != nil {
		return ResultFailed, err
	}

	if err := p.Git.Push(ctx, branch, p.GitCredentials, force); err != nil {
		return ResultFailed, fmt.Errorf("pushing feature branch failed: %w", err)
	}

	p.logger.Info(
		"feature branch pushed",
		logfields.Event("feature_branch_pushed"),
		logfields.FeatureBranch(branch),
	)

	pr, err := p.createPR(ctx, branch)
	if err != nil {
		return ResultFailed, fmt.Errorf("creating pull request failed: %w", err)
	}

	report.PullRequest = pr.PullRequest
	if pr.existed {
		return ResultExistingPR, nil
	}

	metrics.PullRequestOpened()

	return ResultPublished, nil
}

// resolveBranchConflict applies the configured policy when the feature
// branch already exists on the remote, e.g. when a build with the same
// number was retried after a failed push.
// It returns whether the push must be forced.
func (p *Pipeline) resolveBranchConflict(ctx context.Context, branch string) (force bool, err error) {
	exists, err := p.Git.RemoteBranchExists(ctx, branch, p.GitCredentials)
	if err != nil {
		return false, fmt.Errorf("checking if remote branch exists failed: %w", err)
	}

	if !exists {
		return false, nil
	}

	switch p.ConflictPolicy {
	case ConflictRecreate:
		p.logger.Info(
			"remote feature branch already exists, it will be overwritten",
			logfields.Event("remote_branch_recreated"),
			logfields.FeatureBranch(branch),
		)

		return true, nil

	default:
		return false, fmt.Errorf(
			"remote branch %q already exists, refusing to overwrite it (branch_conflict_policy: %s)",
			branch, ConflictFail,
		)
	}
}

type createPRResult struct {
	*githubclt.PullRequest
	existed bool
}

func (p *Pipeline) createPR(ctx context.Context, branch string) (*createPRResult, error) {
	logF := []zap.Field{
		logfields.FeatureBranch(branch),
		logfields.BuildNumber(p.BuildNumber),
	}

	// A previous run for the same branch might have failed after the PR
	// was opened. Reuse the open PR instead of POSTing a duplicate.
	existing := p.existingOpenPRBestEffort(ctx, branch)
	if existing != nil {
		p.logger.Info(
			"an open pull request for the feature branch already exists, reusing it",
			logfields.Event("pull_request_reused"),
			logfields.PullRequest(existing.Number),
		)

		return &createPRResult{PullRequest: existing, existed: true}, nil
	}

	title := fmt.Sprintf(prTitleTmpl, p.BuildNumber)
	body := fmt.Sprintf(
		prBodyTmpl,
		p.BuildNumber,
		p.clock().Format(time.RFC3339),
		branch,
		p.BaseBranch,
	)

	var pr *githubclt.PullRequest

	err := p.Retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		pr, err = p.GH.CreatePullRequest(ctx, p.Owner, p.Repo, title, body, branch, p.BaseBranch)
		return err
	}, logF)
	if err != nil {
		return nil, err
	}

	return &createPRResult{PullRequest: pr}, nil
}

// existingOpenPRBestEffort looks up an open PR for branch, lookup failures
// are logged and swallowed, the caller can proceed with creating a new PR.
func (p *Pipeline) existingOpenPRBestEffort(ctx context.Context, branch string) *githubclt.PullRequest {
	existing, err := p.GH.ExistingOpenPR(ctx, p.Owner, p.Repo, branch, p.BaseBranch)
	if err != nil {
		p.logger.Warn(
			"looking up existing open pull request failed, a new one will be created",
			logfields.Event("pull_request_lookup_failed"),
			zap.Error(err),
		)

		return nil
	}

	return existing
}
