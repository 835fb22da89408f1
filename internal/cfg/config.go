package cfg

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
)

type Config struct {
	RepositoryDir        string `toml:"repository_dir"`
	GithubOwner          string `toml:"github_owner"`
	GithubRepository     string `toml:"github_repository"`
	BaseBranch           string `toml:"base_branch"`
	RemoteName           string `toml:"git_remote"`
	BranchConflictPolicy string `toml:"branch_conflict_policy"`
	ChangelogFile        string `toml:"changelog_file"`

	GithubAPIToken string `toml:"github_api_token"`
	GitUser        string `toml:"git_user"`
	GitPassword    string `toml:"git_password"`
	BotName        string `toml:"bot_name"`
	BotEmail       string `toml:"bot_email"`

	LogFormat  string `toml:"log_format"`
	LogTimeKey string `toml:"log_time_key"`
	LogLevel   string `toml:"log_level"`

	HTTPListenAddr string `toml:"http_server_listen_addr"`
	RunInterval    string `toml:"run_interval"`

	Probes  Probes  `toml:"probes"`
	Updates Updates `toml:"updates"`
}

type Probes struct {
	Dependencies  CommandProbe `toml:"dependencies"`
	Formatting    CommandProbe `toml:"formatting"`
	Documentation DocProbe     `toml:"documentation"`
}

// CommandProbe describes a probe that runs a command in the repository
// directory. A non-empty stdout is interpreted as a positive signal.
// If OutputQuery is set, the stdout is expected to be a stream of JSON
// documents and the jq query decides if the probe signals.
type CommandProbe struct {
	Command     []string `toml:"command"`
	OutputQuery string   `toml:"output_query"`
}

// DocProbe describes the documentation staleness check: it signals when a
// file matching SourceGlobs has a newer modification time than ArtifactFile.
type DocProbe struct {
	ArtifactFile string   `toml:"artifact_file"`
	SourceGlobs  []string `toml:"source_globs"`
}

type Updates struct {
	DependencyCommand []string `toml:"dependency_command"`
	FormatCommand     []string `toml:"format_command"`
	DocsCommand       []string `toml:"docs_command"`
}

const (
	BranchConflictFail     = "fail"
	BranchConflictRecreate = "recreate"
)

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.setDefaults()

	return &result, nil
}

func (r *Config) setDefaults() {
	if r.BaseBranch == "" {
		r.BaseBranch = "main"
	}

	if r.RemoteName == "" {
		r.RemoteName = "origin"
	}

	if r.BranchConflictPolicy == "" {
		r.BranchConflictPolicy = BranchConflictFail
	}

	if r.ChangelogFile == "" {
		r.ChangelogFile = "CHANGELOG.md"
	}

	if r.LogFormat == "" {
		r.LogFormat = "logfmt"
	}

	if r.LogLevel == "" {
		r.LogLevel = "info"
	}
}

func (r *Config) Validate() error {
	if r.RepositoryDir == "" {
		return errors.New("repository_dir is empty")
	}

	if r.GithubOwner == "" {
		return errors.New("github_owner is empty")
	}

	if r.GithubRepository == "" {
		return errors.New("github_repository is empty")
	}

	if r.BranchConflictPolicy != BranchConflictFail &&
		r.BranchConflictPolicy != BranchConflictRecreate {
		return fmt.Errorf(
			"branch_conflict_policy must be %q or %q, is: %q",
			BranchConflictFail, BranchConflictRecreate, r.BranchConflictPolicy,
		)
	}

	if _, err := r.RunIntervalDuration(); err != nil {
		return err
	}

	return nil
}

// RunIntervalDuration returns the parsed run_interval value.
// If run_interval is unset, 0 and a nil error is returned.
func (r *Config) RunIntervalDuration() (time.Duration, error) {
	if r.RunInterval == "" {
		return 0, nil
	}

	interval, err := time.ParseDuration(r.RunInterval)
	if err != nil {
		return 0, fmt.Errorf("parsing run_interval failed: %w", err)
	}

	if interval <= 0 {
		return 0, fmt.Errorf("run_interval must be positive, is: %s", interval)
	}

	return interval, nil
}

func (r *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(r)
}
