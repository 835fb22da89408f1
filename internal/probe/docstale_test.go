package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFileWithMtime(t *testing.T, path string, mtime time.Time) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestDocStaleProbe(t *testing.T) {
	docTime := time.Now().Add(-time.Hour)

	testcases := []struct {
		name       string
		sourceTime time.Time
		want       bool
	}{
		{name: "SourceNewerThanDocs", sourceTime: docTime.Add(30 * time.Minute), want: true},
		{name: "SourceOlderThanDocs", sourceTime: docTime.Add(-30 * time.Minute), want: false},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			writeFileWithMtime(t, filepath.Join(dir, "API.md"), docTime)
			writeFileWithMtime(t, filepath.Join(dir, "handler.go"), tc.sourceTime)

			p, err := NewDocStaleProbe("documentation", dir, "API.md", []string{"*.go"})
			require.NoError(t, err)

			signal, err := p.Probe(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, signal)
		})
	}
}

func TestDocStaleProbeMissingArtifactIsStale(t *testing.T) {
	dir := t.TempDir()
	writeFileWithMtime(t, filepath.Join(dir, "handler.go"), time.Now())

	p, err := NewDocStaleProbe("documentation", dir, "API.md", []string{"*.go"})
	require.NoError(t, err)

	signal, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, signal)
}

func TestDocStaleProbeRequiresConfiguration(t *testing.T) {
	_, err := NewDocStaleProbe("documentation", t.TempDir(), "", []string{"*.go"})
	assert.Error(t, err)

	_, err = NewDocStaleProbe("documentation", t.TempDir(), "API.md", nil)
	assert.Error(t, err)
}
