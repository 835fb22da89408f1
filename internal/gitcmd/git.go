// Package gitcmd runs git commands against a local repository clone.
package gitcmd

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/upkeeper/internal/logfields"
)

const loggerName = "gitcmd"

// Credentials is a username/password pair used to authenticate https git
// operations. The values are externally provisioned and must never appear in
// log messages or error strings.
type Credentials struct {
	User     string
	Password string
}

// Client executes git commands in a repository directory.
type Client struct {
	dir    string
	remote string
	logger *zap.Logger
}

func New(dir, remote string) *Client {
	return &Client{
		dir:    dir,
		remote: remote,
		logger: zap.L().Named(loggerName),
	}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir

	c.logger.Debug(
		"running git command",
		logfields.Event("git_command_running"),
		zap.Strings("git.args", redactAll(args)),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf(
			"git %s: %w: %s",
			strings.Join(redactAll(args), " "), err, redact(strings.TrimSpace(string(out))),
		)
	}

	return string(out), nil
}

// HasLocalChanges returns true if the working tree differs from the index or
// contains untracked files.
func (c *Client) HasLocalChanges(ctx context.Context) (bool, error) {
	out, err := c.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}

	return !isCleanStatus(out), nil
}

// CreateBranch creates branch and checks it out.
func (c *Client) CreateBranch(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "checkout", "-b", branch)
	return err
}

func (c *Client) Checkout(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "checkout", branch)
	return err
}

func (c *Client) AddAll(ctx context.Context) error {
	_, err := c.run(ctx, "add", "--all")
	return err
}

// Commit creates a single commit of all staged changes, authored and
// committed by the given bot identity.
func (c *Client) Commit(ctx context.Context, message, botName, botEmail string) error {
	_, err := c.run(ctx,
		"-c", "user.name="+botName,
		"-c", "user.email="+botEmail,
		"commit", "--message", message,
	)
	return err
}

// Push pushes branch to the remote via its https URL with basic-auth
// credentials injected. The credentialed URL is passed as a command argument
// and redacted from all errors and log messages.
func (c *Client) Push(ctx context.Context, branch string, creds Credentials, force bool) error {
	pushURL, err := c.authenticatedRemoteURL(ctx, creds)
	if err != nil {
		return err
	}

	args := []string{"push"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, pushURL, "refs/heads/"+branch+":refs/heads/"+branch)

	if _, err := c.run(ctx, args...); err != nil {
		return err
	}

	c.logger.Debug(
		"branch pushed",
		logfields.Event("git_branch_pushed"),
		logfields.FeatureBranch(branch),
	)

	return nil
}

// DeleteLocalBranch removes a local branch, it must not be checked out.
func (c *Client) DeleteLocalBranch(ctx context.Context, branch string) error {
	_, err := c.run(ctx, "branch", "-D", branch)
	return err
}

// RemoteBranchExists returns true when branch exists on the remote.
func (c *Client) RemoteBranchExists(ctx context.Context, branch string, creds Credentials) (bool, error) {
	pushURL, err := c.authenticatedRemoteURL(ctx, creds)
	if err != nil {
		return false, err
	}

	out, err := c.run(ctx, "ls-remote", "--heads", pushURL, "refs/heads/"+branch)
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(out) != "", nil
}

func (c *Client) authenticatedRemoteURL(ctx context.Context, creds Credentials) (string, error) {
	out, err := c.run(ctx, "remote", "get-url", "--push", c.remote)
	if err != nil {
		return "", err
	}

	authedURL, err := injectBasicAuth(strings.TrimSpace(out), creds)
	if err != nil {
		return "", err
	}

	registerSecret(authedURL)
	registerSecret(creds.Password)

	return authedURL, nil
}

// injectBasicAuth returns remoteURL with the userinfo section set to the
// given credentials. Only https remotes are supported.
func injectBasicAuth(remoteURL string, creds Credentials) (string, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return "", fmt.Errorf("parsing remote url failed: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("remote url scheme must be http(s), is: %q", u.Scheme)
	}

	u.User = url.UserPassword(creds.User, creds.Password)

	return u.String(), nil
}

func isCleanStatus(statusOut string) bool {
	return strings.TrimSpace(statusOut) == ""
}
