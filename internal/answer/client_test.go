package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsk(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	var gotTenant string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get("x-tenant-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		confidence := 0.92
		_ = json.NewEncoder(w).Encode(Result{
			Answer:     "Refunds are processed within 14 days.",
			Confidence: &confidence,
			QALogID:    "log-9",
			Sources:    []Source{{Title: "Refund policy", URL: "https://kb.example.com/refunds"}},
		})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "", "teams")
	result, err := client.Ask(context.Background(), "tenant-7", "  What is our refund policy?  ")
	require.NoError(t, err)

	require.Equal(t, "Refunds are processed within 14 days.", result.Answer)
	require.Equal(t, "log-9", result.QALogID)
	require.NotNil(t, result.Confidence)
	require.Len(t, result.Sources, 1)

	require.Equal(t, "tenant-7", gotTenant)
	require.Equal(t, "What is our refund policy?", gotBody["question"])
	require.Equal(t, "teams", gotBody["source"])
}

func TestAskEmptyQuestion(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "", "teams")
	_, err := client.Ask(context.Background(), "tenant-7", "   ")
	require.Error(t, err)
	require.Equal(t, int32(0), calls.Load())
}

func TestAskServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, srv.URL, "", "teams")
	_, err := client.Ask(context.Background(), "tenant-7", "question")
	require.Error(t, err)
}

func TestSubmitFeedback(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, "http://unused.example.com", srv.URL, "teams")
	err := client.SubmitFeedback(context.Background(), Feedback{
		TenantID: "tenant-7",
		QALogID:  "log-9",
		Rating:   "down",
		UserID:   "user-3",
	})
	require.NoError(t, err)

	require.Equal(t, "log-9", gotBody["qa_log_id"])
	require.Equal(t, "down", gotBody["feedback"])
	require.Equal(t, "tenant-7", gotBody["tenant_id"])
	require.Equal(t, "teams", gotBody["source"])
	require.Equal(t, "user-3", gotBody["teams_user_id"])
}

func TestSubmitFeedbackOmitsEmptyUser(t *testing.T) {
	t.Parallel()

	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(nil, "http://unused.example.com", srv.URL, "teams")
	err := client.SubmitFeedback(context.Background(), Feedback{TenantID: "tenant-7", QALogID: "log-9", Rating: "up"})
	require.NoError(t, err)
	_, present := gotBody["teams_user_id"]
	require.False(t, present)
}

func TestSubmitFeedbackUnconfigured(t *testing.T) {
	t.Parallel()

	client := NewClient(nil, "http://unused.example.com", "", "teams")
	err := client.SubmitFeedback(context.Background(), Feedback{TenantID: "t", QALogID: "q", Rating: "up"})
	require.Error(t, err)

	withURL := NewClient(nil, "http://unused.example.com", "http://127.0.0.1:1", "teams")
	err = withURL.SubmitFeedback(context.Background(), Feedback{TenantID: "t", Rating: "up"})
	require.Error(t, err)
}
