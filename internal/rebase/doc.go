// Package rebase provides rebasing of GitHub Pull-Request branches onto
// their base-branch, triggered by a comment command.
//
// When a configured command is posted as comment on a pull request, the
// rebaser acknowledges it with a reaction and runs the following
// pipeline:
//
// - check via the github compare API if the branch is behind its base
// branch, if it is not the run ends early,
//
// - derive the signing policy: rewritten commits are only signed when
// every commit of the pull request is verified by github,
//
// - clone the repository into a temporary workspace, check out the
// branch and rebase it onto the base branch with the native git client,
//
// - push the result with --force-with-lease, the push only succeeds if
// the remote branch still matches the fetched value.
//
// Every run is handled as an independent task, runs do not share state
// and are not serialized. Safety against concurrent branch updates is
// provided solely by the lease check of the push.
// The workspace directory and the acknowledgment reaction are removed on
// every exit path.
//
// Rebase conflicts are reported back on the pull request with a comment
// naming the conflicting commit, all other failures are only visible in
// the logs and as a failure reaction.
package rebase
