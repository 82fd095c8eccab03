package rebase

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/githubclt"
	"github.com/simplesurance/rebasebot/internal/logfields"
)

// signCommits decides if commits that the rebase rewrites may be signed
// with the bot key.
// Signing is only allowed when the pull request has >=1 commit and every
// commit is verified by github with the reason "valid". The decision is
// made once for the whole rebase, commits are never signed partially.
// When retrieving the verification states fails, signing is disabled,
// signing eligibility is never granted because it could not be checked.
func (r *Rebaser) signCommits(ctx context.Context, logger *zap.Logger, owner, repo string, prNumber int) bool {
	verifications, err := r.ghClient.PRCommitVerifications(ctx, owner, repo, prNumber)
	if err != nil {
		logger.Warn(
			"retrieving commit verification states failed, rewritten commits will not be signed",
			logfields.Event("commit_verification_retrieval_failed"),
			zap.Error(err),
		)

		return false
	}

	if len(verifications) == 0 {
		return false
	}

	signingEligible := true

	for _, verification := range verifications {
		if verification.Verified && verification.Reason == githubclt.VerificationReasonValid {
			continue
		}

		signingEligible = false

		logger.Info(
			"commit of pull request is not verified",
			logfields.Event("commit_not_verified"),
			logfields.Commit(verification.SHA),
			zap.String("github.verification_reason", verification.Reason),
		)
	}

	return signingEligible
}
