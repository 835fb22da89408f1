package updater

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangelogStepAppendsDatedEntry(t *testing.T) {
	dir := t.TempDir()
	existing := "# Changelog\n\n## 2023-01-01 - initial release\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "CHANGELOG.md"), []byte(existing), 0o644))

	step := NewChangelogStep(dir, "CHANGELOG.md")
	step.clock = func() time.Time {
		return time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	}

	require.NoError(t, step.Apply(context.Background()))

	content, err := os.ReadFile(filepath.Join(dir, "CHANGELOG.md"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(content), existing), "existing content was modified")
	assert.Contains(t, string(content), "## 2024-05-17 - automated maintenance")
	assert.Equal(t, 3, strings.Count(string(content), "\n- "), "entry does not contain three bullet lines")
}

func TestChangelogStepCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()

	step := NewChangelogStep(dir, "CHANGELOG.md")
	require.NoError(t, step.Apply(context.Background()))

	content, err := os.ReadFile(filepath.Join(dir, "CHANGELOG.md"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "automated maintenance")
}
