package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandProbeSignalsOnNonEmptyOutput(t *testing.T) {
	p, err := NewCommandProbe("outdated", t.TempDir(), []string{"echo", "pkg v1.0.0 [v1.1.0]"}, "")
	require.NoError(t, err)

	signal, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, signal)
}

func TestCommandProbeNoSignalOnEmptyOutput(t *testing.T) {
	p, err := NewCommandProbe("outdated", t.TempDir(), []string{"true"}, "")
	require.NoError(t, err)

	signal, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, signal)
}

func TestCommandProbeMissingToolReturnsError(t *testing.T) {
	p, err := NewCommandProbe("outdated", t.TempDir(), []string{"/nonexistent/updatecheck"}, "")
	require.NoError(t, err)

	signal, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.False(t, signal)
}

func TestCommandProbeFailingCommandReturnsError(t *testing.T) {
	p, err := NewCommandProbe("outdated", t.TempDir(), []string{"false"}, "")
	require.NoError(t, err)

	signal, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.False(t, signal)
}

func TestCommandProbeOutputQuery(t *testing.T) {
	const listOutput = `{"Path":"example.com/a","Version":"v1.0.0","Update":{"Version":"v1.1.0"}}
{"Path":"example.com/b","Version":"v2.0.0"}`

	testcases := []struct {
		name  string
		query string
		want  bool
	}{
		{name: "UpdateAvailable", query: ".Update != null", want: true},
		{name: "NoMatch", query: `.Path == "example.com/c"`, want: false},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := NewCommandProbe(
				"outdated",
				t.TempDir(),
				[]string{"echo", listOutput},
				tc.query,
			)
			require.NoError(t, err)

			signal, err := p.Probe(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, signal)
		})
	}
}

func TestCommandProbeInvalidQueryIsRejected(t *testing.T) {
	_, err := NewCommandProbe("outdated", t.TempDir(), []string{"echo"}, ".foo |")
	require.Error(t, err)
}

func TestCommandProbeEmptyCommandIsRejected(t *testing.T) {
	_, err := NewCommandProbe("outdated", t.TempDir(), nil, "")
	require.Error(t, err)
}
