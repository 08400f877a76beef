package flow

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Runner is the external execution subsystem as this service sees it.
type Runner interface {
	Execute(ctx context.Context, flowID string, executionID int64, nodes, edges json.RawMessage) (*RunResult, error)
	Cancel(ctx context.Context, flowID string, executionID int64) error
}

// RunResult is the runner's answer to a dispatched flow.
type RunResult struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// RunnerClient talks to the flow runner over its HTTP contract:
// POST /execute/{flowID} to start, DELETE /execute/{flowID}/{executionID}
// to request a cancel.
type RunnerClient struct {
	baseURL string
	http    *http.Client
}

func NewRunnerClient(baseURL string, timeout time.Duration) *RunnerClient {
	return &RunnerClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	FlowID      string          `json:"flow_id"`
	ExecutionID int64           `json:"execution_id"`
	Nodes       json.RawMessage `json:"nodes"`
	Edges       json.RawMessage `json:"edges"`
}

func (c *RunnerClient) Execute(ctx context.Context, flowID string, executionID int64, nodes, edges json.RawMessage) (*RunResult, error) {
	body, err := json.Marshal(executeRequest{
		FlowID:      flowID,
		ExecutionID: executionID,
		Nodes:       nodes,
		Edges:       edges,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/execute/%s", c.baseURL, flowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("runner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("runner returned %d", resp.StatusCode)
	}

	result := &RunResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("decoding runner response: %w", err)
	}
	return result, nil
}

// Cancel is advisory: a 2xx means the runner accepted the request, not that
// the job stopped.
func (c *RunnerClient) Cancel(ctx context.Context, flowID string, executionID int64) error {
	url := fmt.Sprintf("%s/execute/%s/%d", c.baseURL, flowID, executionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("runner cancel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("runner returned %d", resp.StatusCode)
	}
	return nil
}
