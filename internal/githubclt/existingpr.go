package githubclt

import (
	"context"

	"github.com/shurcooL/githubv4"

	"github.com/simplesurance/upkeeper/internal/logfields"
)

// ExistingOpenPR queries via the graphql API if an open pull request from
// head into base already exists.
// If one exists it is returned, otherwise nil.
func (clt *Client) ExistingOpenPR(ctx context.Context, owner, repo, head, base string) (*PullRequest, error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number githubv4.Int
					URL    githubv4.String `graphql:"url"`
				}
			} `graphql:"pullRequests(first: 1, states: OPEN, headRefName: $head, baseRefName: $base)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	vars := map[string]any{
		"owner": githubv4.String(owner),
		"repo":  githubv4.String(repo),
		"head":  githubv4.String(head),
		"base":  githubv4.String(base),
	}

	if err := clt.graphQLClt.Query(ctx, &query, vars); err != nil {
		return nil, clt.wrapGraphQLRetryableErrors(err)
	}

	nodes := query.Repository.PullRequests.Nodes
	if len(nodes) == 0 {
		return nil, nil
	}

	pr := PullRequest{
		Number: int(nodes[0].Number),
		URL:    string(nodes[0].URL),
	}

	clt.logger.Debug(
		"found existing open pull request for head branch",
		logfields.Event("github_existing_pull_request_found"),
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(pr.Number),
	)

	return &pr, nil
}
