package rebase

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/simplesurance/rebasebot/internal/githubclt"
)

// fakeGithubClient implements GithubClient for tests.
// All mutating operations are recorded and always succeed unless an
// error is configured.
type fakeGithubClient struct {
	mu sync.Mutex

	pr    *githubclt.PullRequestInfo
	prErr error

	behindBy      int
	behindByErr   error
	behindByCalls int

	verifications    []githubclt.CommitVerification
	verificationsErr error

	createReactionErr error
	nextReactionID    int64

	comments         []string
	reactions        []string
	deletedReactions []int64
}

func (c *fakeGithubClient) PullRequest(context.Context, string, string, int) (*githubclt.PullRequestInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.prErr != nil {
		return nil, c.prErr
	}

	return c.pr, nil
}

func (c *fakeGithubClient) BranchBehindBy(context.Context, string, string, string, string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.behindByCalls++
	return c.behindBy, c.behindByErr
}

func (c *fakeGithubClient) PRCommitVerifications(context.Context, string, string, int) ([]githubclt.CommitVerification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.verifications, c.verificationsErr
}

func (c *fakeGithubClient) CreateIssueComment(_ context.Context, _, _ string, _ int, comment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.comments = append(c.comments, comment)
	return nil
}

func (c *fakeGithubClient) CreateCommentReaction(_ context.Context, _, _ string, _ int64, content string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.createReactionErr != nil {
		return 0, c.createReactionErr
	}

	c.reactions = append(c.reactions, content)
	c.nextReactionID++
	return c.nextReactionID, nil
}

func (c *fakeGithubClient) DeleteCommentReaction(_ context.Context, _, _ string, _, reactionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletedReactions = append(c.deletedReactions, reactionID)
	return nil
}

func (c *fakeGithubClient) recordedReactions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string{}, c.reactions...)
}

func (c *fakeGithubClient) recordedComments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string{}, c.comments...)
}

func (c *fakeGithubClient) recordedReactionDeletes() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]int64{}, c.deletedReactions...)
}

// fakeGitClient implements GitClient for tests.
// Clone writes a file into the workspace directory so that tests can
// verify that the workspace is removed recursively.
type fakeGitClient struct {
	mu sync.Mutex

	calls    []string
	cloneDir string
	cloneURL string
	cloneCfg []string

	rebaseUpToDate bool
	rebaseErr      error
	pushErr        error
}

func (c *fakeGitClient) Clone(_ context.Context, url, dir string, cfgDirectives []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, "clone")
	c.cloneDir = dir
	c.cloneURL = url
	c.cloneCfg = append([]string{}, cfgDirectives...)

	return os.WriteFile(filepath.Join(dir, "clone-marker"), []byte("x"), 0o600)
}

func (c *fakeGitClient) Checkout(_ context.Context, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, "checkout")
	return nil
}

func (c *fakeGitClient) Rebase(_ context.Context, _, _ string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, "rebase")
	return c.rebaseUpToDate, c.rebaseErr
}

func (c *fakeGitClient) PushForceWithLease(_ context.Context, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, "push")
	return c.pushErr
}

func (c *fakeGitClient) recordedCalls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string{}, c.calls...)
}

func (c *fakeGitClient) workspaceDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cloneDir
}
