package githubclt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/upkeeper/internal/upkeeperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	restClt := github.NewClient(srv.Client())

	baseURL, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	restClt.BaseURL = baseURL

	return &Client{
		restClt:    restClt,
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL, srv.Client()),
		logger:     zap.L(),
	}
}

func TestCreatePullRequestDecodesNumber(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	clt := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/testman/repo/pulls", r.URL.Path)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 42, "html_url": "https://localhost/testman/repo/pull/42"}`)
	})

	pr, err := clt.CreatePullRequest(
		context.Background(),
		"testman", "repo",
		"title", "body", "automated-update-42", "main",
	)
	require.NoError(t, err)

	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "https://localhost/testman/repo/pull/42", pr.URL)
}

func TestCreatePullRequestMalformedResponse(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	clt := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": `)
	})

	pr, err := clt.CreatePullRequest(
		context.Background(),
		"testman", "repo",
		"title", "body", "automated-update-42", "main",
	)
	require.Error(t, err)
	assert.Nil(t, pr)
}

func TestCreatePullRequestMissingNumberField(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	clt := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})

	pr, err := clt.CreatePullRequest(
		context.Background(),
		"testman", "repo",
		"title", "body", "automated-update-42", "main",
	)
	require.Error(t, err)
	assert.Nil(t, pr)
	assert.Contains(t, err.Error(), "number")
}

func TestCreatePullRequestServerErrorIsRetryable(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	clt := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := clt.CreatePullRequest(
		context.Background(),
		"testman", "repo",
		"title", "body", "automated-update-42", "main",
	)
	require.Error(t, err)

	var retryableErr *upkeeperr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrorsGraphql(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	// matches the error format of shurcooL/graphql do()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(503)
	}))

	t.Cleanup(srv.Close)

	clt := Client{
		logger:     zap.L(),
		graphQLClt: githubv4.NewEnterpriseClient(srv.URL, srv.Client()),
	}

	pr, err := clt.ExistingOpenPR(context.Background(), "test", "test", "head", "main")
	require.Error(t, err)
	assert.Nil(t, pr)

	var retryableErr *upkeeperr.RetryableError
	assert.ErrorAs(t, err, &retryableErr)
}

func TestWrapRetryableErrorsGraphqlWithNonStatusErr(t *testing.T) {
	err := errors.New("error")
	wrappedErr := (&Client{}).wrapGraphQLRetryableErrors(err)
	assert.Equal(t, err, wrappedErr)
}
