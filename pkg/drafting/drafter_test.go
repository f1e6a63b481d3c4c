package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/closingroom/pkg/contextkeys"
	"github.com/platinummonkey/closingroom/pkg/plans"
)

type fakeLimits struct {
	decision plans.Decision
	err      error
	recorded int
}

func (f *fakeLimits) CheckAIDraft(ctx context.Context, teamID int64) (plans.Decision, error) {
	return f.decision, f.err
}

func (f *fakeLimits) RecordAIDraft(ctx context.Context, teamID int64) {
	f.recorded++
}

type completionServer struct {
	*httptest.Server
	requests []map[string]interface{}
}

func newCompletionServer(t *testing.T, status int, content string) *completionServer {
	t.Helper()
	cs := &completionServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))
		cs.requests = append(cs.requests, req)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":{"message":"upstream unavailable","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini-2024-07-18",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 120, "completion_tokens": 45, "total_tokens": 165},
		})
	}))
	t.Cleanup(cs.Close)
	return cs
}

func newTestDrafter(t *testing.T, url string, limits Limits) (*Drafter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	d := NewDrafter(db, limits, Config{APIKey: "test-key", BaseURL: url + "/v1"}, Options{})
	return d, mock
}

func TestDraftClause(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, "\n```\nBuyer may terminate this Agreement by [[contract.inspection_deadline]].\n```\n")
	limits := &fakeLimits{decision: plans.Decision{Resource: plans.ResourceAIDrafts, Allowed: true}}
	d, mock := newTestDrafter(t, server.URL, limits)

	mock.ExpectExec("INSERT INTO ai_drafts").
		WithArgs(int64(5), "user-1", KindContingency, "gpt-4o-mini-2024-07-18", 120, 45).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctx := context.WithValue(context.Background(), contextkeys.UserIDKey, "user-1")
	draft, err := d.DraftClause(ctx, 5, &DraftRequest{
		Kind:         KindContingency,
		Instructions: "  Inspection contingency  ",
		Context:      map[string]string{"state": "OR", "buyer": "Ada Lovelace"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Buyer may terminate this Agreement by [[contract.inspection_deadline]].", draft.Text)
	assert.Equal(t, 120, draft.PromptTokens)
	assert.Equal(t, 45, draft.CompletionTokens)
	assert.Equal(t, 1, limits.recorded)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, server.requests, 1)
	assert.Equal(t, "gpt-4o-mini", server.requests[0]["model"])
	messages := server.requests[0]["messages"].([]interface{})
	require.Len(t, messages, 2)
	user := messages[1].(map[string]interface{})
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "Draft a contingency clause.\n\nInstructions:\nInspection contingency\n\nKnown details:\n- buyer: Ada Lovelace\n- state: OR\n", user["content"])
}

func TestDraftClause_Disabled(t *testing.T) {
	d := NewDrafter(nil, nil, Config{}, Options{})
	assert.False(t, d.Enabled())

	_, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: KindClause, Instructions: "x"})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestDraftClause_LimitReached(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, "unused")
	limits := &fakeLimits{decision: plans.Decision{Resource: plans.ResourceAIDrafts, Allowed: false, Current: 20, Limit: 20}}
	d, mock := newTestDrafter(t, server.URL, limits)

	_, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: KindClause, Instructions: "x"})
	require.Error(t, err)
	assert.True(t, plans.IsLimitError(err))
	assert.Empty(t, server.requests)
	assert.Zero(t, limits.recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftClause_LimitCheckFails(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, "unused")
	d, _ := newTestDrafter(t, server.URL, &fakeLimits{err: errors.New("db down")})

	_, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: KindClause, Instructions: "x"})
	assert.EqualError(t, err, "db down")
}

func TestDraftClause_UnknownKind(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, "unused")
	d, _ := newTestDrafter(t, server.URL, nil)

	_, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: "poem", Instructions: "x"})
	assert.Error(t, err)
	assert.Empty(t, server.requests)
}

func TestDraftClause_UpstreamError(t *testing.T) {
	server := newCompletionServer(t, http.StatusServiceUnavailable, "")
	limits := &fakeLimits{decision: plans.Decision{Allowed: true}}
	d, mock := newTestDrafter(t, server.URL, limits)

	_, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: KindClause, Instructions: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AI completion failed")
	assert.Zero(t, limits.recorded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftClause_EmptyCompletion(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, "   ")
	limits := &fakeLimits{decision: plans.Decision{Allowed: true}}
	d, _ := newTestDrafter(t, server.URL, limits)

	_, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: KindClause, Instructions: "x"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
	assert.Zero(t, limits.recorded)
}

func TestDraftClause_RecordFailureStillReturnsDraft(t *testing.T) {
	server := newCompletionServer(t, http.StatusOK, "Seller shall deliver the disclosure.")
	limits := &fakeLimits{decision: plans.Decision{Allowed: true, Overage: true}}
	d, mock := newTestDrafter(t, server.URL, limits)
	mock.ExpectExec("INSERT INTO ai_drafts").WillReturnError(errors.New("db down"))

	draft, err := d.DraftClause(context.Background(), 5, &DraftRequest{Kind: KindDisclosure, Instructions: "x"})
	require.NoError(t, err)
	assert.True(t, draft.Overage)
	assert.Equal(t, 1, limits.recorded)
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{"```\nfenced\n```", "fenced"},
		{"```text\nfenced\n```", "fenced"},
		{"```", "```"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanCompletion(tt.in), tt.in)
	}
}
