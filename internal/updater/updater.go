// Package updater applies best-effort maintenance fixes to a repository
// working tree.
package updater

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/logfields"
)

const loggerName = "updater"

type StepStatus string

const (
	StatusSuccess StepStatus = "success"
	StatusSkipped StepStatus = "skipped"
	StatusWarning StepStatus = "warning"
)

// ErrNoCommand is returned by a CommandStep that has no command configured.
var ErrNoCommand = errors.New("no command configured")

// StepResult is the recorded outcome of an update step.
type StepResult struct {
	Step   string
	Status StepStatus
	Err    error
}

// Step applies one maintenance fix to the working tree.
type Step interface {
	Name() string
	Apply(ctx context.Context) error
}

// Updater runs all steps in order.
// Step failures do not abort the run, they are recorded as warnings and the
// following steps are still applied. There is no rollback on partial failure.
type Updater struct {
	steps  []Step
	logger *zap.Logger
}

func New(steps ...Step) *Updater {
	return &Updater{
		steps:  steps,
		logger: zap.L().Named(loggerName),
	}
}

func (u *Updater) Apply(ctx context.Context) []StepResult {
	results := make([]StepResult, 0, len(u.steps))

	for _, step := range u.steps {
		logger := u.logger.With(logfields.UpdateStep(step.Name()))

		err := step.Apply(ctx)
		if errors.Is(err, ErrNoCommand) {
			logger.Debug(
				"update step skipped",
				logfields.Event("update_step_skipped"),
			)

			results = append(results, StepResult{Step: step.Name(), Status: StatusSkipped})

			continue
		}

		if err != nil {
			logger.Warn(
				"update step failed, continuing with next step",
				logfields.Event("update_step_failed"),
				zap.Error(err),
			)

			results = append(results, StepResult{
				Step:   step.Name(),
				Status: StatusWarning,
				Err:    fmt.Errorf("update step %s failed: %w", step.Name(), err),
			})

			continue
		}

		logger.Debug("update step applied", logfields.Event("update_step_applied"))

		results = append(results, StepResult{Step: step.Name(), Status: StatusSuccess})
	}

	return results
}

// CommandStep runs a command in the repository directory.
type CommandStep struct {
	name    string
	dir     string
	command []string
}

func NewCommandStep(name, dir string, command []string) *CommandStep {
	return &CommandStep{
		name:    name,
		dir:     dir,
		command: command,
	}
}

func (s *CommandStep) Name() string {
	return s.name
}

func (s *CommandStep) Apply(ctx context.Context) error {
	if len(s.command) == 0 {
		return ErrNoCommand
	}

	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Dir = s.dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf(
			"running %q failed: %w: %s",
			strings.Join(s.command, " "), err, strings.TrimSpace(string(out)),
		)
	}

	return nil
}
