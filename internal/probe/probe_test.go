package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubProbe struct {
	name   string
	signal bool
	err    error
}

func (p *stubProbe) Name() string {
	return p.name
}

func (p *stubProbe) Probe(context.Context) (bool, error) {
	return p.signal, p.err
}

func TestDetectorCombinesSignalsWithOr(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	testcases := []struct {
		name    string
		signals []bool
		want    bool
	}{
		{name: "AllFalse", signals: []bool{false, false, false}, want: false},
		{name: "FirstTrue", signals: []bool{true, false, false}, want: true},
		{name: "LastTrue", signals: []bool{false, false, true}, want: true},
		{name: "AllTrue", signals: []bool{true, true, true}, want: true},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			probes := make([]Probe, 0, len(tc.signals))
			for i, signal := range tc.signals {
				probes = append(probes, &stubProbe{name: string(rune('a' + i)), signal: signal})
			}

			result := NewDetector(probes...).Detect(context.Background())

			assert.Equal(t, tc.want, result.ChangesDetected)
			assert.Len(t, result.Signals, len(tc.signals))
			assert.Empty(t, result.Warnings)
		})
	}
}

func TestFailingProbeIsANegativeSignalWithWarning(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	detector := NewDetector(
		&stubProbe{name: "broken", err: errors.New("tool not found")},
		&stubProbe{name: "ok", signal: false},
	)

	result := detector.Detect(context.Background())

	assert.False(t, result.ChangesDetected)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Error(), "broken")
	assert.Len(t, result.Signals, 2)
}
