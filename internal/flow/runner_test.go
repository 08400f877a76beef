package flow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerClientExecute(t *testing.T) {
	var gotPath string
	var gotBody executeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"completed","output":{"message":"done"}}`))
	}))
	t.Cleanup(srv.Close)

	client := NewRunnerClient(srv.URL, 5*time.Second)
	result, err := client.Execute(context.Background(), "flow-1", 42,
		json.RawMessage(`[{"id":"n1"}]`), json.RawMessage(`[]`))
	require.NoError(t, err)

	assert.Equal(t, "/execute/flow-1", gotPath)
	assert.Equal(t, "flow-1", gotBody.FlowID)
	assert.Equal(t, int64(42), gotBody.ExecutionID)
	assert.JSONEq(t, `[{"id":"n1"}]`, string(gotBody.Nodes))

	assert.Equal(t, "completed", result.Status)
	assert.JSONEq(t, `{"message":"done"}`, string(result.Output))
}

func TestRunnerClientExecuteNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewRunnerClient(srv.URL, 5*time.Second)
	_, err := client.Execute(context.Background(), "flow-1", 42, nil, nil)
	assert.Error(t, err)
}
