package githubclt

import (
	"context"
	"fmt"
	"strings"

	"github.com/shurcooL/githubv4"
)

// VerificationReasonValid is the reason code github reports for a commit
// whose signature was verified against a known, trusted identity.
const VerificationReasonValid = "valid"

// CommitVerification is the host-asserted verification state of one
// commit of a pull request.
type CommitVerification struct {
	SHA      string
	Verified bool
	// Reason is the lower-cased github signature state, e.g. "valid",
	// "unsigned", "bad_email".
	Reason string
}

type prCommitsQuery struct {
	Repository struct {
		PullRequest struct {
			Commits struct {
				Nodes []struct {
					Commit struct {
						Oid       githubv4.GitObjectID
						Signature *struct {
							IsValid bool
							State   githubv4.GitSignatureState
						}
					}
				}
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
			} `graphql:"commits(first: 100, after: $commitCursor)"`
		} `graphql:"pullRequest(number: $prNumber)"`
	} `graphql:"repository(owner: $owner, name: $repository)"`
}

// PRCommitVerifications returns the verification state of every commit
// that is part of the pull request, in commit order.
func (clt *Client) PRCommitVerifications(ctx context.Context, owner, repo string, prNumber int) ([]CommitVerification, error) {
	var result []CommitVerification

	vars := map[string]any{
		"owner":        githubv4.String(owner),
		"repository":   githubv4.String(repo),
		"prNumber":     githubv4.Int(prNumber),
		"commitCursor": (*githubv4.String)(nil),
	}

	for {
		var query prCommitsQuery

		if err := clt.graphQLClt.Query(ctx, &query, vars); err != nil {
			return nil, fmt.Errorf("querying pull request commits failed: %w", clt.wrapGraphQLRetryableErrors(err))
		}

		for _, node := range query.Repository.PullRequest.Commits.Nodes {
			verification := CommitVerification{
				SHA:    string(node.Commit.Oid),
				Reason: "unsigned",
			}

			if sig := node.Commit.Signature; sig != nil {
				verification.Verified = sig.IsValid
				verification.Reason = strings.ToLower(string(sig.State))
			}

			result = append(result, verification)
		}

		pageInfo := query.Repository.PullRequest.Commits.PageInfo
		if !pageInfo.HasNextPage {
			return result, nil
		}

		vars["commitCursor"] = githubv4.NewString(pageInfo.EndCursor)
	}
}
