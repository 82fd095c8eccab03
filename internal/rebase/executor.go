package rebase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/logfields"
)

// executeRebase clones the repository into the workspace, checks out the
// feature branch and rebases it onto the base branch.
// The configuration directives of the request are applied at clone time,
// they are in effect for the rebase.
// Clone and checkout are expected to succeed, the branch exists because
// a comment referencing it was just posted, their failures are not
// treated specially.
func (r *Rebaser) executeRebase(ctx context.Context, logger *zap.Logger, ws *Workspace, req *Request) (Outcome, error) {
	if err := r.git.Clone(ctx, req.CloneURL, ws.Path, req.ConfigDirectives); err != nil {
		return OutcomeNotNeeded, fmt.Errorf("cloning repository failed: %w", err)
	}

	if err := r.git.Checkout(ctx, ws.Path, req.HeadBranch); err != nil {
		return OutcomeNotNeeded, fmt.Errorf("checking out branch failed: %w", err)
	}

	upToDate, err := r.git.Rebase(ctx, ws.Path, "origin/"+req.BaseBranch)
	if err != nil {
		return OutcomeNotNeeded, err
	}

	if upToDate {
		// the compare API reported the branch as behind, the clone can
		// be newer than that observation
		logger.Debug(
			"branch was already up to date when rebasing",
			logfields.Event("rebase_branch_already_up_to_date"),
		)

		return OutcomeNotNeeded, nil
	}

	return OutcomePerformed, nil
}

// publish pushes the rebased branch, overwriting the remote branch only
// if it still matches the value that was cloned.
// The lease check is the only safety boundary against updates that
// happened concurrently to the rebase, earlier branch state observations
// are advisory.
func (r *Rebaser) publish(ctx context.Context, ws *Workspace, req *Request) error {
	if err := r.git.PushForceWithLease(ctx, ws.Path, req.HeadBranch); err != nil {
		return fmt.Errorf("pushing rebased branch failed: %w", err)
	}

	return nil
}
