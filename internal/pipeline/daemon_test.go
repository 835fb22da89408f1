package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type runRecorder struct {
	mu           sync.Mutex
	buildNumbers []int64
}

func (r *runRecorder) run(_ context.Context, buildNumber int64) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buildNumbers = append(r.buildNumbers, buildNumber)

	return &Report{BuildNumber: buildNumber, Result: ResultNoChanges}, nil
}

func (r *runRecorder) recorded() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]int64{}, r.buildNumbers...)
}

func TestDaemonRunsImmediatelyWithIncreasingBuildNumbers(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	recorder := runRecorder{}
	daemon := NewDaemon(recorder.run, 50*time.Millisecond, 10)

	doneChan := make(chan struct{})

	go func() {
		daemon.Start()
		close(doneChan)
	}()

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	daemon.Stop()

	select {
	case <-doneChan:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon loop did not terminate after Stop()")
	}

	runs := recorder.recorded()
	assert.Equal(t, int64(10), runs[0])
	assert.Equal(t, int64(11), runs[1])

	lastReport := daemon.LastReport()
	require.NotNil(t, lastReport)
	assert.Equal(t, ResultNoChanges, lastReport.Result)
}

func TestDaemonTriggerSchedulesARun(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	recorder := runRecorder{}
	daemon := NewDaemon(recorder.run, time.Hour, 1)

	doneChan := make(chan struct{})

	go func() {
		daemon.Start()
		close(doneChan)
	}()

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	daemon.Trigger()

	require.Eventually(t, func() bool {
		return len(recorder.recorded()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	daemon.Stop()

	select {
	case <-doneChan:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon loop did not terminate after Stop()")
	}
}
