package httpledger

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

type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ledger status: %s", e.Status)
	}
	return fmt.Sprintf("ledger status: %s: %s", e.Status, e.Message)
}

// newStatusError decodes the gateway error body. A registry revert saying the
// hash is already stored maps to domain.ErrAlreadyRecorded.
func newStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := strings.TrimSpace(string(raw))
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Message: message}
	if resp.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(message), "already stored") {
		return domain.WrapError(domain.ErrAlreadyRecorded, "ledger submit", statusErr)
	}
	return statusErr
}

func classifyLedgerError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if domain.IsKind(err, domain.ErrAlreadyRecorded) || domain.IsKind(err, domain.ErrInvalidInput) {
		return resilience.ErrorClassification{}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
