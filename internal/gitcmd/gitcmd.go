// Package gitcmd runs the git commandline client and translates its
// diagnostic output into typed results.
// The text patterns that git prints for conflicts and rejected lease
// pushes are matched only in this package, callers branch on the
// returned types.
package gitcmd

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/logfields"
)

const loggerName = "gitcmd"

// rebaseUpToDatePatterns match the status git-rebase prints when the
// branch already contains all commits of the branch it is rebased onto.
var rebaseUpToDatePatterns = []string{
	"is up to date",
}

// rebaseConflictPatterns match the diagnostics git-rebase prints when
// applying a commit fails because of a conflict.
var rebaseConflictPatterns = []string{
	"CONFLICT (",
	"could not apply",
	"Resolve all conflicts manually",
}

// pushRemoteChangedPatterns match the two distinct ref-mismatch
// diagnostics of a --force-with-lease push: the client-side stale-lease
// detection and the mismatch reported by the remote
// ("is at <sha> but expected <sha>").
// Other push rejections, e.g. by a pre-receive hook, must not match.
var pushRemoteChangedPatterns = []string{
	"stale info",
	"but expected",
}

// ConflictError is returned when rebasing stops because a commit could
// not be applied on the new base.
// Commit is the SHA of the commit that was being applied, Output the
// unmodified git diagnostic output.
type ConflictError struct {
	Commit string
	Output string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("rebase conflict at commit %s: %s", e.Commit, e.Output)
}

// RemoteChangedError is returned when a force-with-lease push is rejected
// because the remote branch does not match the value it had when it was
// fetched.
type RemoteChangedError struct {
	Output string
}

func (e *RemoteChangedError) Error() string {
	return fmt.Sprintf("remote branch changed since it was fetched: %s", e.Output)
}

type Client struct {
	logger *zap.Logger
}

func New() *Client {
	return &Client{
		logger: zap.L().Named(loggerName),
	}
}

func (c *Client) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("git %s failed: %w: %s", strings.Join(args, " "), err, output)
	}

	return output, nil
}

// Clone clones url into dir.
// The configuration directives (key=value strings) are written to the
// configuration of the new clone, they apply to all following operations
// in the repository.
func (c *Client) Clone(ctx context.Context, url, dir string, cfgDirectives []string) error {
	args := []string{"clone"}
	for _, directive := range cfgDirectives {
		args = append(args, "--config", directive)
	}
	args = append(args, url, dir)

	_, err := c.run(ctx, "", args...)
	if err != nil {
		return err
	}

	c.logger.Debug(
		"repository cloned",
		logfields.Event("git_repository_cloned"),
		logfields.Workspace(dir),
	)

	return nil
}

func (c *Client) Checkout(ctx context.Context, dir, branch string) error {
	_, err := c.run(ctx, dir, "checkout", branch)
	return err
}

// Rebase rebases the currently checked out branch onto the branch onto.
// If the branch already contains all commits of onto, upToDate is true.
// If a commit of the branch conflicts with onto, a *ConflictError
// carrying the SHA of the conflicting commit is returned.
func (c *Client) Rebase(ctx context.Context, dir, onto string) (upToDate bool, err error) {
	out, err := c.run(ctx, dir, "rebase", onto)
	if err != nil {
		if !containsAny(out, rebaseConflictPatterns) {
			return false, err
		}

		sha, revErr := c.RevParse(ctx, dir, "REBASE_HEAD")
		if revErr != nil {
			return false, fmt.Errorf("rebase conflicted but resolving the conflicting commit failed: %w, rebase output: %s", revErr, out)
		}

		c.logger.Debug(
			"rebase stopped with a conflict",
			logfields.Event("git_rebase_conflict"),
			logfields.Workspace(dir),
			logfields.Commit(sha),
		)

		return false, &ConflictError{Commit: sha, Output: out}
	}

	if containsAny(out, rebaseUpToDatePatterns) {
		return true, nil
	}

	return false, nil
}

// PushForceWithLease pushes branch to origin, overwriting the remote
// branch only if it still matches the value that was fetched.
// If the lease check fails a *RemoteChangedError is returned.
func (c *Client) PushForceWithLease(ctx context.Context, dir, branch string) error {
	out, err := c.run(ctx, dir, "push", "--force-with-lease", "origin", branch)
	if err != nil {
		if containsAny(out, pushRemoteChangedPatterns) {
			return &RemoteChangedError{Output: out}
		}

		return err
	}

	return nil
}

// RevParse resolves ref to a commit SHA.
func (c *Client) RevParse(ctx context.Context, dir, ref string) (string, error) {
	out, err := c.run(ctx, dir, "rev-parse", ref)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(out), nil
}

func containsAny(s string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}

	return false
}
