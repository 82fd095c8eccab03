package rebase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTriggerMatchesTrimmedBody(t *testing.T) {
	trigger, err := NewCommandTrigger("/rebase", "")
	require.NoError(t, err)

	testcases := []struct {
		body  string
		match bool
	}{
		{body: "/rebase", match: true},
		{body: "  /rebase\n", match: true},
		{body: "/rebase please", match: false},
		{body: "/Rebase", match: false},
		{body: "", match: false},
	}

	for _, tc := range testcases {
		t.Run(tc.body, func(t *testing.T) {
			match, err := trigger.Matches(context.Background(), tc.body, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.match, match)
		})
	}
}

func TestCommandTriggerFilterQuery(t *testing.T) {
	trigger, err := NewCommandTrigger("/rebase", `.issue.state == "open"`)
	require.NoError(t, err)

	match, err := trigger.Matches(context.Background(), "/rebase", []byte(`{"issue": {"state": "open"}}`))
	require.NoError(t, err)
	assert.True(t, match)

	match, err = trigger.Matches(context.Background(), "/rebase", []byte(`{"issue": {"state": "closed"}}`))
	require.NoError(t, err)
	assert.False(t, match)
}

func TestCommandTriggerFilterQueryNonBoolResult(t *testing.T) {
	trigger, err := NewCommandTrigger("/rebase", `.issue.state`)
	require.NoError(t, err)

	_, err = trigger.Matches(context.Background(), "/rebase", []byte(`{"issue": {"state": "open"}}`))
	assert.Error(t, err)
}

func TestNewCommandTriggerValidation(t *testing.T) {
	_, err := NewCommandTrigger("", "")
	assert.Error(t, err)

	_, err = NewCommandTrigger("/rebase", "][not a query")
	assert.Error(t, err)
}
