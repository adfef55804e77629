package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_RunWorkflow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/workflows/wf-1/run", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("sync"))
		writeJSON(w, http.StatusOK, dto.NewSuccessResponse(dto.NewExecutionDetail(&storage.Execution{
			ID: "e1", WorkflowID: "wf-1", Status: storage.ExecutionSuccess, RowsProcessed: 42,
		}, false)))
	}))
	defer server.Close()

	exec, err := New(server.URL + "/").RunWorkflow(context.Background(), "wf-1", true)
	require.NoError(t, err)
	assert.Equal(t, "e1", exec.ID)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status)
	assert.Equal(t, int64(42), exec.RowsProcessed)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, dto.NewErrorResponse(http.StatusNotFound, "工作流不存在: nope"))
	}))
	defer server.Close()

	_, err := New(server.URL).RunWorkflow(context.Background(), "nope", false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "工作流不存在: nope", apiErr.Message)
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL).GetExecution(context.Background(), "e1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestClient_ListExecutionsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "wf-1", q.Get("workflow_id"))
		assert.Equal(t, "failed", q.Get("status"))
		assert.Equal(t, "2026-01-01", q.Get("date_from"))
		assert.Equal(t, "10", q.Get("limit"))
		assert.False(t, q.Has("date_to"), "空条件不发送")
		writeJSON(w, http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[storage.ExecutionSummary]{
			Total: 1,
			Items: []storage.ExecutionSummary{{Execution: storage.Execution{ID: "e1"}, WorkflowName: "复制"}},
		}))
	}))
	defer server.Close()

	res, err := New(server.URL).ListExecutions(context.Background(), ExecutionQuery{
		WorkflowID: "wf-1", Status: "failed", DateFrom: "2026-01-01", Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "复制", res.Items[0].WorkflowName)
}

func TestClient_Follow(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/executions/e1":
			status := storage.ExecutionRunning
			if polls.Add(1) >= 2 {
				status = storage.ExecutionSuccess
			}
			writeJSON(w, http.StatusOK, dto.NewSuccessResponse(dto.NewExecutionDetail(&storage.Execution{ID: "e1", Status: status}, true)))
		case "/api/v1/executions/e1/logs":
			var logs []storage.ExecutionLog
			switch r.URL.Query().Get("after_id") {
			case "":
				logs = []storage.ExecutionLog{{ID: 1, Message: "a"}, {ID: 2, Message: "b"}}
			case "2":
				logs = []storage.ExecutionLog{{ID: 3, Message: "c"}}
			}
			writeJSON(w, http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[storage.ExecutionLog]{Total: len(logs), Items: logs}))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	var seen []string
	exec, err := New(server.URL).Follow(context.Background(), "e1", time.Millisecond, func(l storage.ExecutionLog) {
		seen = append(seen, l.Message)
	})
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status)
	assert.Equal(t, []string{"a", "b", "c"}, seen, "按after_id增量拉取")
}

func TestClient_FollowCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/executions/e1" {
			writeJSON(w, http.StatusOK, dto.NewSuccessResponse(dto.NewExecutionDetail(&storage.Execution{ID: "e1", Status: storage.ExecutionRunning}, true)))
			return
		}
		writeJSON(w, http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[storage.ExecutionLog]{}))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(server.URL).Follow(ctx, "e1", 10*time.Millisecond, func(storage.ExecutionLog) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
