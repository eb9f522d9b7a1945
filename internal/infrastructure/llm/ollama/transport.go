package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

const (
	generatePath     = "/api/generate"
	maxResponseBytes = 4 << 20
	maxErrorBody     = 2048
)

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

var (
	structuredOptions = generateOptions{Temperature: 0}
	chatOptions       = generateOptions{Temperature: 0.7, NumPredict: 1024}
)

type generateResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	EvalCount  int    `json:"eval_count,omitempty"`
}

// generate sends one non-streaming generate call and returns the model text.
// A nil format leaves the reply unconstrained.
func (a *Analyzer) generate(ctx context.Context, stage domain.Stage, prompt string, format json.RawMessage, opts generateOptions) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   a.model,
		Prompt:  prompt,
		Format:  format,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create %s request: %w", stage, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama %s request: %w", stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", readStatusError(stage, resp)
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode %s response: %w", stage, err)
	}
	slog.Debug("ollama_generate_completed",
		"stage", stage,
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"eval_count", out.EvalCount,
		"done_reason", out.DoneReason,
	)
	if out.DoneReason == "length" {
		return "", fmt.Errorf("ollama %s: reply truncated at the token limit", stage)
	}
	return strings.TrimSpace(out.Response), nil
}
