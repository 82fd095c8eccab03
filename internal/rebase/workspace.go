package rebase

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/logfields"
)

// Workspace is a temporary directory that is exclusively owned by one
// rebase run.
// It is created before cloning and removed when the run ends, it is
// never shared between runs.
type Workspace struct {
	Path   string
	logger *zap.Logger
}

// acquireWorkspace creates a uniquely named temporary directory.
// The name contains the pull request number and a nanosecond timestamp,
// os.MkdirTemp additionally appends a random suffix.
func acquireWorkspace(prNumber int) (*Workspace, error) {
	prefix := fmt.Sprintf("rebasebot-pr%d-%d-", prNumber, time.Now().UnixNano())

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("creating workspace directory failed: %w", err)
	}

	return &Workspace{
		Path:   dir,
		logger: zap.L().Named(loggerName).With(logfields.Workspace(dir)),
	}, nil
}

// Release removes the workspace directory recursively.
// It is safe to call it multiple times and when the directory was never
// populated.
func (w *Workspace) Release() {
	if err := os.RemoveAll(w.Path); err != nil {
		w.logger.Warn(
			"removing workspace directory failed",
			logfields.Event("workspace_removal_failed"),
			zap.Error(err),
		)

		return
	}

	w.logger.Debug(
		"workspace directory removed",
		logfields.Event("workspace_removed"),
	)
}
