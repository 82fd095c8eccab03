package github

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-github/v59/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issueCommentPayload = `{
  "action": "created",
  "issue": {
    "number": 7,
    "pull_request": {"url": "https://api.github.com/repos/testman/repo/pulls/7"}
  },
  "comment": {"id": 4242, "body": "/rebase"},
  "repository": {
    "name": "repo",
    "owner": {"login": "testman"}
  }
}`

func newWebhookRequest(t *testing.T, eventType, payload string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/listener/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")

	return req
}

func TestHTTPHandlerForwardsIssueCommentEvent(t *testing.T) {
	ch := make(chan *Event, 1)
	provider := New(ch)

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, newWebhookRequest(t, "issue_comment", issueCommentPayload))

	require.Equal(t, http.StatusOK, resp.Code)

	var event *Event
	select {
	case event = <-ch:
	default:
		t.Fatal("no event was forwarded to the channel")
	}

	assert.Equal(t, "issue_comment", event.Type)
	assert.Equal(t, "delivery-1", event.DeliveryID)
	assert.NotEmpty(t, event.JSON)

	ev, ok := event.Event.(*github.IssueCommentEvent)
	require.True(t, ok, "event payload is not an IssueCommentEvent")
	assert.Equal(t, "created", ev.GetAction())
	assert.Equal(t, int64(4242), ev.GetComment().GetID())
	assert.Equal(t, "/rebase", ev.GetComment().GetBody())
}

func TestHTTPHandlerRejectsUnparseablePayload(t *testing.T) {
	ch := make(chan *Event, 1)
	provider := New(ch)

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, newWebhookRequest(t, "issue_comment", "{invalid json"))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, ch)
}

func TestHTTPHandlerRejectsEventsWhenChannelIsFull(t *testing.T) {
	ch := make(chan *Event) // unbuffered, send always blocks
	provider := New(ch)

	resp := httptest.NewRecorder()
	provider.HTTPHandler(resp, newWebhookRequest(t, "issue_comment", issueCommentPayload))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
