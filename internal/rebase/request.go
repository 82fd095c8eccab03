package rebase

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/rebasebot/internal/logfields"
)

// Repository identifies a github repository that the rebaser serves.
type Repository struct {
	Owner          string
	RepositoryName string
}

func (r *Repository) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.RepositoryName)
}

// Request describes one rebase attempt.
// It is created once per triggering comment and not modified afterwards.
type Request struct {
	Owner      string
	Repository string
	PRNumber   int
	HeadBranch string
	BaseBranch string
	// CloneURL is the authenticated URL used for fetching and pushing.
	CloneURL string
	// ConfigDirectives are git key=value configuration entries, they
	// contain the bot identity and, when the signing policy allows it,
	// the signing configuration.
	ConfigDirectives []string

	LogFields []zap.Field
}

func newRequest(owner, repo string, prNumber int, headBranch, baseBranch, cloneURL string, cfgDirectives []string) *Request {
	return &Request{
		Owner:            owner,
		Repository:       repo,
		PRNumber:         prNumber,
		HeadBranch:       headBranch,
		BaseBranch:       baseBranch,
		CloneURL:         cloneURL,
		ConfigDirectives: cfgDirectives,
		LogFields: []zap.Field{
			logfields.RepositoryOwner(owner),
			logfields.Repository(repo),
			logfields.PullRequest(prNumber),
			logfields.Branch(headBranch),
			logfields.BaseBranch(baseBranch),
		},
	}
}
