// Package githubclt provides a github API client.
package githubclt

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/go-github/v59/github"
	"github.com/shurcooL/githubv4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/simplesurance/rebasebot/internal/boterr"
	"github.com/simplesurance/rebasebot/internal/logfields"
)

const DefaultHTTPClientTimeout = time.Minute

const loggerName = "github_client"

var ErrPullRequestIsClosed = errors.New("pull request is closed")

// New returns a new github api client.
func New(oauthAPItoken string) *Client {
	httpClient := newHTTPClient(oauthAPItoken)
	return &Client{
		restClt:    github.NewClient(httpClient),
		graphQLClt: githubv4.NewClient(httpClient),
		logger:     zap.L().Named(loggerName),
	}
}

func newHTTPClient(apiToken string) *http.Client {
	if apiToken == "" {
		return &http.Client{
			Timeout: DefaultHTTPClientTimeout,
		}
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: apiToken},
	)

	tc := oauth2.NewClient(context.Background(), ts)
	tc.Timeout = DefaultHTTPClientTimeout

	return tc
}

// Client is an github API client.
// All methods return a boterr.RetryableError when an operation can be retried.
// This can be e.g. the case when the API ratelimit is exceeded.
type Client struct {
	restClt    *github.Client
	graphQLClt *githubv4.Client
	logger     *zap.Logger
}

// PullRequestInfo is the subset of pull request fields that the bot
// operates on.
type PullRequestInfo struct {
	Number     int
	HeadBranch string
	HeadSHA    string
	BaseBranch string
	BaseSHA    string
	CloneURL   string
}

// PullRequest retrieves an open pull request by number.
// If the pull request is closed ErrPullRequestIsClosed is returned.
func (clt *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*PullRequestInfo, error) {
	pr, _, err := clt.restClt.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, clt.wrapRetryableErrors(err)
	}

	if pr.GetState() == "closed" {
		return nil, ErrPullRequestIsClosed
	}

	prHead := pr.GetHead()
	if prHead.GetRef() == "" || prHead.GetSHA() == "" {
		return nil, errors.New("got pull request object with empty head ref or sha")
	}

	base := pr.GetBase()
	if base.GetRef() == "" || base.GetSHA() == "" {
		return nil, errors.New("got pull request object with empty base ref or sha")
	}

	cloneURL := base.GetRepo().GetCloneURL()
	if cloneURL == "" {
		return nil, errors.New("got pull request object with empty base repository clone url")
	}

	return &PullRequestInfo{
		Number:     number,
		HeadBranch: prHead.GetRef(),
		HeadSHA:    prHead.GetSHA(),
		BaseBranch: base.GetRef(),
		BaseSHA:    base.GetSHA(),
		CloneURL:   cloneURL,
	}, nil
}

// BranchBehindBy returns the number of commits that branch is behind
// baseBranch.
func (clt *Client) BranchBehindBy(ctx context.Context, owner, repo, baseBranch, branch string) (behindBy int, err error) {
	cmp, _, err := clt.restClt.Repositories.CompareCommits(ctx, owner, repo, baseBranch, branch, &github.ListOptions{PerPage: 1})
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if cmp.BehindBy == nil {
		return 0, boterr.NewRetryableAnytimeError(errors.New("github returned a nil BehindBy field"))
	}

	return *cmp.BehindBy, nil
}

// CreateIssueComment creates a comment in a issue or pull request
func (clt *Client) CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error {
	_, _, err := clt.restClt.Issues.CreateComment(ctx, owner, repo, issueOrPRNr, &github.IssueComment{Body: &comment})
	return clt.wrapRetryableErrors(err)
}

// CreateCommentReaction adds a reaction to an issue or pull request
// comment and returns the ID of the created reaction.
// content must be one of the reaction types that the github API accepts
// ("+1", "-1", "eyes", "confused", ...).
func (clt *Client) CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (int64, error) {
	reaction, _, err := clt.restClt.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, content)
	if err != nil {
		return 0, clt.wrapRetryableErrors(err)
	}

	if reaction.GetID() == 0 {
		return 0, errors.New("github returned a reaction with an empty id")
	}

	return reaction.GetID(), nil
}

// DeleteCommentReaction removes a reaction that was created via
// CreateCommentReaction.
// If the reaction does not exist anymore the operation succeeds.
func (clt *Client) DeleteCommentReaction(ctx context.Context, owner, repo string, commentID, reactionID int64) error {
	_, err := clt.restClt.Reactions.DeleteIssueCommentReaction(ctx, owner, repo, commentID, reactionID)
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response.StatusCode == http.StatusNotFound {
			clt.logger.Debug("deleting reaction returned a not found response, interpreting it as success",
				logfields.RepositoryOwner(owner),
				logfields.Repository(repo),
				zap.Int64("github.comment_id", commentID),
				logfields.Event("github_delete_reaction_returned_not_found"),
				zap.Error(err),
			)

			return nil
		}

		return clt.wrapRetryableErrors(err)
	}

	return nil
}

func (clt *Client) wrapRetryableErrors(err error) error {
	switch v := err.(type) {
	case *github.RateLimitError:
		clt.logger.Info(
			"rate limit exceeded",
			logfields.Event("github_api_rate_limit_exceeded"),
			zap.Int("github_api_rate_limit", v.Rate.Limit),
			zap.Time("github_api_rate_limit_reset_time", v.Rate.Reset.Time),
		)

		return boterr.NewRetryableError(err, v.Rate.Reset.Time)

	case *github.ErrorResponse:
		if v.Response.StatusCode >= 500 && v.Response.StatusCode < 600 {
			return boterr.NewRetryableAnytimeError(err)
		}
	}

	return err
}

var graphQlHTTPStatusErrRe = regexp.MustCompile(`^non-200 OK status code: ([0-9]+) .*`)

func (clt *Client) wrapGraphQLRetryableErrors(err error) error {
	matches := graphQlHTTPStatusErrRe.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return err
	}

	errcode, atoiErr := strconv.Atoi(matches[1])
	if atoiErr != nil {
		clt.logger.Info(
			"parsing http code from error string failed",
			zap.Error(atoiErr),
			zap.String("error_string", err.Error()),
			zap.String("http_errcode", matches[1]),
		)
		return err
	}

	if errcode >= 500 && errcode < 600 {
		return boterr.NewRetryableAnytimeError(err)
	}

	return err
}
