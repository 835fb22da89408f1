package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/upkeeper/internal/githubclt"
)

func TestStatusEndpoint(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	daemon := NewDaemon(nil, time.Hour, 1)
	service := NewHTTPService(daemon)

	mux := http.NewServeMux()
	service.RegisterHandlers(mux, "/status/")

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/status/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	daemon.mu.Lock()
	daemon.lastReport = &Report{
		BuildNumber:   42,
		Result:        ResultPublished,
		FeatureBranch: FeatureBranchName(42),
		PullRequest:   &githubclt.PullRequest{Number: 7, URL: "https://localhost/pr/7"},
	}
	daemon.mu.Unlock()

	resp, err = srv.Client().Get(srv.URL + "/status/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view reportView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))

	assert.Equal(t, int64(42), view.BuildNumber)
	assert.Equal(t, string(ResultPublished), view.Result)
	assert.Equal(t, "automated-update-42", view.FeatureBranch)
	require.NotNil(t, view.PullRequest)
	assert.Equal(t, 7, view.PullRequest.Number)
}

func TestTriggerEndpointOnlyAcceptsPost(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	daemon := NewDaemon(nil, time.Hour, 1)
	service := NewHTTPService(daemon)

	mux := http.NewServeMux()
	service.RegisterHandlers(mux, "/status/")

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/status/trigger")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = srv.Client().Post(srv.URL+"/status/trigger", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
