package rebase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/go-github/v59/github"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/gitcmd"
	"github.com/simplesurance/rebasebot/internal/githubclt"
	"github.com/simplesurance/rebasebot/internal/logfields"
	github_prov "github.com/simplesurance/rebasebot/internal/provider/github"
)

const loggerName = "rebaser"

// reaction contents understood by the github reactions API
const (
	reactionReceived = "eyes"
	reactionSuccess  = "+1"
	reactionFailure  = "-1"
	reactionNoop     = "confused"
)

const cleanupTimeout = time.Minute

// GithubClient is the github API surface the rebaser consumes.
type GithubClient interface {
	PullRequest(ctx context.Context, owner, repo string, number int) (*githubclt.PullRequestInfo, error)
	BranchBehindBy(ctx context.Context, owner, repo, baseBranch, branch string) (int, error)
	PRCommitVerifications(ctx context.Context, owner, repo string, prNumber int) ([]githubclt.CommitVerification, error)
	CreateIssueComment(ctx context.Context, owner, repo string, issueOrPRNr int, comment string) error
	CreateCommentReaction(ctx context.Context, owner, repo string, commentID int64, content string) (int64, error)
	DeleteCommentReaction(ctx context.Context, owner, repo string, commentID, reactionID int64) error
}

// GitClient runs git operations in a workspace directory.
type GitClient interface {
	Clone(ctx context.Context, url, dir string, cfgDirectives []string) error
	Checkout(ctx context.Context, dir, branch string) error
	Rebase(ctx context.Context, dir, onto string) (upToDate bool, err error)
	PushForceWithLease(ctx context.Context, dir, branch string) error
}

// Retryer is an interface used for running user-feedback deliveries
// repeatedly if they fail with a temporary error.
// The rebase pipeline itself is never retried.
type Retryer interface {
	Run(context.Context, func(context.Context) error, []zap.Field) error
	Stop()
}

// GitIdentity is the identity the bot commits with.
// SigningKeyID is only applied when the signing policy of a run allows
// signing.
type GitIdentity struct {
	Name         string
	Email        string
	SigningKeyID string
}

// Rebaser rebases pull-request branches onto their base branch when a
// trigger comment is posted.
// Every triggering comment is handled as an independent task, tasks for
// different or even the same pull request can run concurrently, they
// share no state.
type Rebaser struct {
	ch           <-chan *github_prov.Event
	logger       *zap.Logger
	trigger      *CommandTrigger
	repositories map[Repository]struct{}

	ghClient GithubClient
	git      GitClient
	retryer  Retryer

	apiToken    string
	gitIdentity GitIdentity

	processedEventCnt *atomic.Uint64
	taskDeferFn       func()
	wg                sync.WaitGroup
}

type Option func(*Rebaser)

// WithTaskDeferFunc sets a function that runs deferred in every
// go-routine the rebaser spawns.
// It can be used to install a panic handler.
func WithTaskDeferFunc(fn func()) Option {
	return func(r *Rebaser) {
		r.taskDeferFn = fn
	}
}

func New(
	ghClient GithubClient,
	git GitClient,
	eventChan <-chan *github_prov.Event,
	retryer Retryer,
	repos []Repository,
	trigger *CommandTrigger,
	gitIdentity GitIdentity,
	apiToken string,
	opts ...Option,
) *Rebaser {
	repoMap := make(map[Repository]struct{}, len(repos))
	for _, r := range repos {
		repoMap[r] = struct{}{}
	}

	rebaser := Rebaser{
		ghClient:          ghClient,
		git:               git,
		ch:                eventChan,
		retryer:           retryer,
		logger:            zap.L().Named(loggerName),
		trigger:           trigger,
		repositories:      repoMap,
		gitIdentity:       gitIdentity,
		apiToken:          apiToken,
		processedEventCnt: atomic.NewUint64(0),
	}

	for _, opt := range opts {
		opt(&rebaser)
	}

	return &rebaser
}

var logFieldEventIgnored = logfields.Event("github_event_ignored")

func (r *Rebaser) isMonitoredRepository(owner, repositoryName string) bool {
	repo := Repository{
		Owner:          owner,
		RepositoryName: repositoryName,
	}

	_, exist := r.repositories[repo]
	return exist
}

// EventLoop reads webhook events from the event channel and starts a
// rebase task for every comment that matches the trigger.
// It returns when the event channel is closed.
func (r *Rebaser) EventLoop() {
	r.logger.Info("rebaser event loop started")

	for event := range r.ch {
		logger := r.logger.With(event.LogFields...)

		ev, ok := event.Event.(*github.IssueCommentEvent)
		if !ok {
			logger.Debug("event ignored, not an issue comment event", logFieldEventIgnored)
			r.processedEventCnt.Inc()
			continue
		}

		if !r.handleIssueCommentEvent(logger, ev, event.JSON) {
			r.processedEventCnt.Inc()
		}
	}

	r.logger.Info("rebaser event loop terminated")
}

// handleIssueCommentEvent evaluates the trigger conditions and starts a
// rebase task when they all apply.
// It returns true when a task was started.
func (r *Rebaser) handleIssueCommentEvent(logger *zap.Logger, ev *github.IssueCommentEvent, eventJSON []byte) bool {
	owner := ev.GetRepo().GetOwner().GetLogin()
	repo := ev.GetRepo().GetName()
	prNumber := ev.GetIssue().GetNumber()
	commentID := ev.GetComment().GetID()

	logger = logger.With(
		logfields.RepositoryOwner(owner),
		logfields.Repository(repo),
		logfields.PullRequest(prNumber),
		zap.Int64("github.comment_id", commentID),
	)

	if ev.GetAction() != "created" {
		logger.Debug("event ignored, comment was not created", logFieldEventIgnored)
		return false
	}

	if !ev.GetIssue().IsPullRequest() {
		logger.Debug("event ignored, comment is not on a pull request", logFieldEventIgnored)
		return false
	}

	if !r.isMonitoredRepository(owner, repo) {
		logger.Debug("event is for repository that is not monitored", logFieldEventIgnored)
		return false
	}

	match, err := r.trigger.Matches(context.Background(), ev.GetComment().GetBody(), eventJSON)
	if err != nil {
		logger.Warn(
			"event ignored, evaluating trigger failed",
			logFieldEventIgnored,
			zap.Error(err),
		)

		return false
	}

	if !match {
		return false
	}

	r.wg.Add(1)
	go func() {
		if r.taskDeferFn != nil {
			defer r.taskDeferFn()
		}

		defer r.wg.Done()
		defer r.processedEventCnt.Inc()

		r.process(context.Background(), logger, owner, repo, prNumber, commentID)
	}()

	return true
}

// process runs the whole rebase pipeline for one triggering comment.
// The acknowledgment reaction and the workspace are released on every
// exit path.
func (r *Rebaser) process(ctx context.Context, logger *zap.Logger, owner, repo string, prNumber int, commentID int64) {
	start := time.Now()
	metrics.ReceivedCommandsInc()

	defer func() {
		logger.Info(
			"rebase request processed",
			logfields.Event("rebase_request_processed"),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	var reactionID int64
	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		var err error
		reactionID, err = r.ghClient.CreateCommentReaction(ctx, owner, repo, commentID, reactionReceived)
		return err
	}, nil)
	if err != nil {
		logger.Error(
			"posting acknowledgment reaction failed",
			logfields.Event("posting_reaction_failed"),
			zap.Error(err),
		)

		metrics.RebaseResultInc(resultLabelErrorVal)
		return
	}

	// the acknowledgment reaction is deleted on every path, also when
	// the task context was cancelled
	defer func() {
		cleanupCtx, cancelFn := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancelFn()

		err := r.retryer.Run(cleanupCtx, func(ctx context.Context) error {
			return r.ghClient.DeleteCommentReaction(ctx, owner, repo, commentID, reactionID)
		}, nil)
		if err != nil {
			logger.Error(
				"deleting acknowledgment reaction failed",
				logfields.Event("deleting_reaction_failed"),
				zap.Error(err),
			)
		}
	}()

	pr, err := r.ghClient.PullRequest(ctx, owner, repo, prNumber)
	if err != nil {
		r.notifyFailure(ctx, logger, owner, repo, commentID, fmt.Errorf("retrieving pull request failed: %w", err))
		return
	}

	logger = logger.With(
		logfields.Branch(pr.HeadBranch),
		logfields.BaseBranch(pr.BaseBranch),
	)

	behindBy, err := r.ghClient.BranchBehindBy(ctx, owner, repo, pr.BaseBranch, pr.HeadBranch)
	if err != nil {
		r.notifyFailure(ctx, logger, owner, repo, commentID, fmt.Errorf("evaluating if branch is behind base branch failed: %w", err))
		return
	}

	if behindBy == 0 {
		logger.Info(
			"branch contains all commits of its base branch, nothing to rebase",
			logfields.Event("rebase_not_needed"),
			logfields.Outcome(OutcomeNotNeeded.String()),
		)

		r.react(ctx, logger, owner, repo, commentID, reactionNoop)
		metrics.RebaseResultInc(resultLabelNotNeededVal)
		return
	}

	sign := r.signCommits(ctx, logger, owner, repo, prNumber)

	cloneURL, err := r.authenticatedCloneURL(pr.CloneURL)
	if err != nil {
		r.notifyFailure(ctx, logger, owner, repo, commentID, err)
		return
	}

	req := newRequest(owner, repo, prNumber, pr.HeadBranch, pr.BaseBranch, cloneURL, r.gitConfigDirectives(sign))

	ws, err := acquireWorkspace(prNumber)
	if err != nil {
		r.notifyFailure(ctx, logger, owner, repo, commentID, err)
		return
	}
	defer ws.Release()

	outcome, err := r.executeRebase(ctx, logger, ws, req)
	if err != nil {
		r.notifyRebaseError(ctx, logger, req, commentID, err)
		return
	}

	if outcome == OutcomePerformed {
		if err := r.publish(ctx, ws, req); err != nil {
			r.notifyRebaseError(ctx, logger, req, commentID, err)
			return
		}
	}

	logger.Info(
		"rebase finished",
		logfields.Event("rebase_finished"),
		logfields.Outcome(outcome.String()),
	)

	r.react(ctx, logger, owner, repo, commentID, reactionSuccess)

	switch outcome {
	case OutcomePerformed:
		metrics.RebaseResultInc(resultLabelPerformedVal)
	case OutcomeNotNeeded:
		metrics.RebaseResultInc(resultLabelNotNeededVal)
	}
}

// notifyRebaseError maps a rebase or publish failure to user feedback.
// Only conflicts are explained with a comment on the pull request, all
// other failures are visible in the logs and as failure reaction only.
func (r *Rebaser) notifyRebaseError(ctx context.Context, logger *zap.Logger, req *Request, commentID int64, err error) {
	var conflictErr *gitcmd.ConflictError
	var remoteChangedErr *gitcmd.RemoteChangedError

	switch {
	case errors.As(err, &conflictErr):
		logger.Info(
			"rebase stopped because of a conflict",
			logfields.Event("rebase_conflict"),
			logfields.Commit(conflictErr.Commit),
			zap.Error(err),
		)

		r.comment(ctx, logger, req.Owner, req.Repository, req.PRNumber, conflictComment(req.BaseBranch, conflictErr.Commit))
		metrics.RebaseResultInc(resultLabelConflictVal)

	case errors.As(err, &remoteChangedErr):
		// expected race, somebody pushed to the branch while it was
		// rebased, the remote branch is untouched
		logger.Info(
			"branch changed while it was rebased, rebase result was discarded",
			logfields.Event("rebase_remote_branch_changed"),
			zap.Error(err),
		)

		metrics.RebaseResultInc(resultLabelRemoteChangedVal)

	default:
		logger.Error(
			"rebase failed",
			logfields.Event("rebase_failed"),
			zap.Error(err),
		)

		metrics.RebaseResultInc(resultLabelErrorVal)
	}

	r.react(ctx, logger, req.Owner, req.Repository, commentID, reactionFailure)
}

// notifyFailure logs a failure that happened before a rebase request was
// assembled and posts the failure reaction.
func (r *Rebaser) notifyFailure(ctx context.Context, logger *zap.Logger, owner, repo string, commentID int64, err error) {
	logger.Error(
		"processing rebase command failed",
		logfields.Event("rebase_failed"),
		zap.Error(err),
	)

	r.react(ctx, logger, owner, repo, commentID, reactionFailure)
	metrics.RebaseResultInc(resultLabelErrorVal)
}

func (r *Rebaser) react(ctx context.Context, logger *zap.Logger, owner, repo string, commentID int64, content string) {
	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		_, err := r.ghClient.CreateCommentReaction(ctx, owner, repo, commentID, content)
		return err
	}, nil)
	if err != nil {
		logger.Error(
			"posting reaction failed",
			logfields.Event("posting_reaction_failed"),
			zap.String("github.reaction", content),
			zap.Error(err),
		)
	}
}

func (r *Rebaser) comment(ctx context.Context, logger *zap.Logger, owner, repo string, prNumber int, body string) {
	err := r.retryer.Run(ctx, func(ctx context.Context) error {
		return r.ghClient.CreateIssueComment(ctx, owner, repo, prNumber, body)
	}, nil)
	if err != nil {
		logger.Error(
			"posting comment failed",
			logfields.Event("posting_comment_failed"),
			zap.Error(err),
		)
	}
}

func conflictComment(baseBranch, conflictingCommit string) string {
	return fmt.Sprintf(
		"Rebasing onto `%s` stopped at commit %s because of a conflict.\n"+
			"Please rebase the branch manually, resolve the conflicts and push it again.",
		baseBranch, shortSHA(conflictingCommit),
	)
}

func shortSHA(sha string) string {
	if len(sha) <= 7 {
		return sha
	}

	return sha[:7]
}

// gitConfigDirectives returns the git configuration for a rebase run.
// It always contains the bot identity, the signing configuration is only
// included when the signing policy allows it and a signing key is
// configured.
func (r *Rebaser) gitConfigDirectives(sign bool) []string {
	directives := []string{
		"user.name=" + r.gitIdentity.Name,
		"user.email=" + r.gitIdentity.Email,
	}

	if sign && r.gitIdentity.SigningKeyID != "" {
		directives = append(directives,
			"user.signingkey="+r.gitIdentity.SigningKeyID,
			"commit.gpgsign=true",
		)
	}

	return directives
}

func (r *Rebaser) authenticatedCloneURL(cloneURL string) (string, error) {
	if r.apiToken == "" {
		return cloneURL, nil
	}

	u, err := url.Parse(cloneURL)
	if err != nil {
		return "", fmt.Errorf("parsing clone url failed: %w", err)
	}

	u.User = url.UserPassword("x-access-token", r.apiToken)

	return u.String(), nil
}

func (r *Rebaser) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.EventLoop()
	}()
}

// Stop stops the retryer and waits until the event loop and all rebase
// tasks terminated.
// The event channel must be closed before calling Stop.
func (r *Rebaser) Stop() {
	r.logger.Debug("rebaser terminating")

	r.retryer.Stop()

	r.wg.Wait()
	r.logger.Debug("rebaser terminated")
}
