package rebase

// Outcome is the result of a rebase execution.
type Outcome int

const (
	// OutcomeNotNeeded means the branch already contained all commits
	// of its base branch, nothing was changed.
	OutcomeNotNeeded Outcome = iota
	// OutcomePerformed means the branch was rebased onto its base
	// branch.
	OutcomePerformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotNeeded:
		return "not-needed"
	case OutcomePerformed:
		return "performed"
	default:
		return "undefined"
	}
}
