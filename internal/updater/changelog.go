package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const changelogDateFormat = "2006-01-02"

const changelogEntryTmpl = `
## %s - automated maintenance

- updated dependencies to their latest versions
- reformatted source files
- regenerated documentation
`

// ChangelogStep appends a fixed-format entry with the current date to the
// changelog file.
type ChangelogStep struct {
	dir  string
	file string

	// clock returns the current time, it can be overridden in tests
	clock func() time.Time
}

func NewChangelogStep(dir, file string) *ChangelogStep {
	return &ChangelogStep{
		dir:   dir,
		file:  file,
		clock: time.Now,
	}
}

func (s *ChangelogStep) Name() string {
	return "changelog"
}

func (s *ChangelogStep) Apply(_ context.Context) error {
	f, err := os.OpenFile(
		filepath.Join(s.dir, s.file),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY,
		0o644,
	)
	if err != nil {
		return err
	}

	entry := fmt.Sprintf(changelogEntryTmpl, s.clock().Format(changelogDateFormat))

	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
