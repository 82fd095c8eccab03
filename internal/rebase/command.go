package rebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// CommandTrigger decides if a comment starts a rebase run.
// The trimmed comment body must equal the configured command.
// An optional filter query can narrow triggering further, it is a jq
// expression that is evaluated against the JSON representation of the
// webhook event and must return a single boolean.
type CommandTrigger struct {
	command     string
	filterQuery *gojq.Query
}

func NewCommandTrigger(command, filterQuery string) (*CommandTrigger, error) {
	if command == "" {
		return nil, errors.New("command is empty")
	}

	trigger := CommandTrigger{command: command}

	if filterQuery != "" {
		query, err := gojq.Parse(filterQuery)
		if err != nil {
			return nil, fmt.Errorf("parsing filter query failed: %w", err)
		}

		trigger.filterQuery = query
	}

	return &trigger, nil
}

// Matches returns true if commentBody equals the trigger command and the
// optional filter query evaluates to true for eventJSON.
func (t *CommandTrigger) Matches(ctx context.Context, commentBody string, eventJSON []byte) (bool, error) {
	if strings.TrimSpace(commentBody) != t.command {
		return false, nil
	}

	if t.filterQuery == nil {
		return true, nil
	}

	if len(eventJSON) == 0 {
		return false, errors.New("json representation of event is empty")
	}

	var event any
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return false, fmt.Errorf("unmarshalling event json failed: %w", err)
	}

	iter := t.filterQuery.RunWithContext(ctx, event)

	result, ok := iter.Next()
	if !ok {
		return false, fmt.Errorf("filter query returned no result, query: %q", t.filterQuery.String())
	}

	switch val := result.(type) {
	case error:
		return false, fmt.Errorf("filter query failed, query: %q: %w", t.filterQuery.String(), val)

	case bool:
		return val, nil

	default:
		return false, fmt.Errorf("filter query returned non-bool result: %+v (%T), query: %q",
			result, result, t.filterQuery.String())
	}
}
