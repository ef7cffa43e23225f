package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/turnkit/agentcore/internal/rollout"
)

// CompactionRequest is the body of the unary compaction call, per spec.md
// §4.H "Compaction".
type CompactionRequest struct {
	Model        string                 `json:"model"`
	Input        []rollout.ResponseItem `json:"input"`
	Instructions string                 `json:"instructions,omitempty"`
}

type compactionWireRequest struct {
	Model        string             `json:"model"`
	Input        []responseItemWire `json:"input"`
	Instructions string             `json:"instructions,omitempty"`
}

type compactionWireResponse struct {
	Output []responseItemWire `json:"output"`
}

// CompactionClient implements the compaction subagent's unary POST: accepts
// {model, input, instructions} and returns a compacted []ResponseItem.
type CompactionClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Auth       AuthRecovery
}

// NewCompactionClient builds a CompactionClient with a default *http.Client.
func NewCompactionClient(baseURL string, auth AuthRecovery) *CompactionClient {
	return &CompactionClient{HTTPClient: http.DefaultClient, BaseURL: baseURL, Auth: auth}
}

// Compact sends req and returns the compacted response items.
func (c *CompactionClient) Compact(ctx context.Context, req CompactionRequest) ([]rollout.ResponseItem, error) {
	auth, _ := c.Auth.Auth()

	wireReq := compactionWireRequest{
		Model:        req.Model,
		Input:        wireItems(req.Input),
		Instructions: req.Instructions,
	}
	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, fmt.Errorf("transport: encode compaction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build compaction request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+auth.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: compaction request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var wireResp compactionWireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, fmt.Errorf("transport: decode compaction response: %w", err)
	}

	out := make([]rollout.ResponseItem, len(wireResp.Output))
	for i, w := range wireResp.Output {
		out[i] = w.toRollout()
	}
	return out, nil
}
