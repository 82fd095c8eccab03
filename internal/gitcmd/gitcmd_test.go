package gitcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const conflictOutput = `Auto-merging file.txt
CONFLICT (content): Merge conflict in file.txt
error: could not apply abcdef1... change file
Resolve all conflicts manually, mark them as resolved with
"git add/rm <conflicted_files>", then run "git rebase --continue".`

const upToDateOutput = `Current branch feature is up to date.`

const staleLeaseOutput = `To github.com:testman/repo.git
 ! [rejected]        feature -> feature (stale info)
error: failed to push some refs to 'github.com:testman/repo.git'`

const remoteRejectedOutput = `To github.com:testman/repo.git
 ! [remote rejected] feature -> feature (cannot lock ref 'refs/heads/feature': is at 1111111 but expected 2222222)
error: failed to push some refs to 'github.com:testman/repo.git'`

const protectedBranchOutput = `To github.com:testman/repo.git
 ! [remote rejected] feature -> feature (protected branch hook declined)
error: failed to push some refs to 'github.com:testman/repo.git'`

func TestRebaseOutputClassification(t *testing.T) {
	assert.True(t, containsAny(conflictOutput, rebaseConflictPatterns))
	assert.False(t, containsAny(upToDateOutput, rebaseConflictPatterns))

	assert.True(t, containsAny(upToDateOutput, rebaseUpToDatePatterns))
	assert.False(t, containsAny(conflictOutput, rebaseUpToDatePatterns))
}

func TestPushOutputClassification(t *testing.T) {
	// both the client-side stale lease detection and the rejection
	// reported by the remote must be recognized
	assert.True(t, containsAny(staleLeaseOutput, pushRemoteChangedPatterns))
	assert.True(t, containsAny(remoteRejectedOutput, pushRemoteChangedPatterns))

	assert.False(t, containsAny("error: unable to access repository", pushRemoteChangedPatterns))

	// rejections that are not lease mismatches, e.g. by a pre-receive
	// hook of a protected branch, are generic failures
	assert.False(t, containsAny(protectedBranchOutput, pushRemoteChangedPatterns))
}

func TestConflictErrorContainsCommit(t *testing.T) {
	err := &ConflictError{Commit: "abcdef1234", Output: conflictOutput}
	assert.Contains(t, err.Error(), "abcdef1234")
	assert.Contains(t, err.Error(), "CONFLICT")
}

func TestRemoteChangedErrorPreservesOutput(t *testing.T) {
	err := &RemoteChangedError{Output: staleLeaseOutput}
	assert.Contains(t, err.Error(), "stale info")
}
