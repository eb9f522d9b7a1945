package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/resilience"
)

const unavailableMessage = "analysis service unavailable"

// StatusError is a non-2xx reply from the model server. Message holds the
// server's own error text when it sent {"error": "..."}.
type StatusError struct {
	Stage      domain.Stage
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama %s: status %d: %s", e.Stage, e.StatusCode, e.Message)
}

func (e *StatusError) transient() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500 && e.StatusCode != http.StatusNotImplemented
}

func readStatusError(stage domain.Stage, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(raw))

	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && strings.TrimSpace(envelope.Error) != "" {
		message = strings.TrimSpace(envelope.Error)
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &StatusError{Stage: stage, StatusCode: resp.StatusCode, Message: message}
}

// classifyGenerateError retries overload and network failures. Model replies
// that do not fit the schema fail fast but still count against the breaker.
func classifyGenerateError(err error) resilience.ErrorClassification {
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.As(err, &statusErr):
		transient := statusErr.transient()
		return resilience.ErrorClassification{Retryable: transient, RecordFailure: transient}
	case errors.As(err, &netErr):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// stageFailure turns a generate error into the pipeline's per-stage error.
func stageFailure(stage domain.Stage, err error) *domain.CapabilityError {
	out := &domain.CapabilityError{Stage: stage, Message: err.Error(), Err: err}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		out.Message = statusErr.Message
	}
	switch {
	case resilience.IsCircuitOpen(err):
		out.Message = unavailableMessage
		out.Err = domain.WrapError(domain.ErrTemporary, string(stage), err)
	case classifyGenerateError(err).Retryable:
		out.Err = domain.WrapError(domain.ErrTemporary, string(stage), err)
	}
	return out
}
