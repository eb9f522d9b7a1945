package httpledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/resilience"
)

type Config struct {
	Endpoint        string
	Credential      string
	RegistryAddress string
	MaxRetries      int
	RetryDelay      time.Duration
	Timeout         time.Duration
}

// Client talks to an attestation gateway that signs and relays registry
// transactions. Submit blocks until the receipt is visible or retries run out.
type Client struct {
	endpoint   string
	credential string
	registry   string
	httpClient *http.Client
	executor   *resilience.Executor
	receipt    resilience.RetryPolicy
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		credential: cfg.Credential,
		registry:   cfg.RegistryAddress,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
		receipt:    resilience.FixedDelay(attempts, cfg.RetryDelay),
	}
}

type submitRequest struct {
	Registry   string `json:"registry"`
	ContractID string `json:"contract_id"`
	Hash       string `json:"hash"`
}

type submitResponse struct {
	TxID string `json:"tx_id"`
}

type receiptResponse struct {
	Status string `json:"status"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

func (c *Client) Submit(ctx context.Context, contractID, hash string) (string, error) {
	key, err := registryKey(contractID)
	if err != nil {
		return "", err
	}

	var submitted submitResponse
	err = c.executor.Execute(ctx, "ledger_submit", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodPost, "/v1/attestations", submitRequest{
			Registry:   c.registry,
			ContractID: key,
			Hash:       hash,
		}, &submitted)
	}, classifyLedgerError)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(submitted.TxID) == "" {
		return "", fmt.Errorf("ledger submit: empty transaction id")
	}

	err = c.executor.ExecuteWithPolicy(ctx, "ledger_receipt", c.receipt, func(callCtx context.Context) error {
		return c.checkReceipt(callCtx, submitted.TxID)
	}, resilience.RetryOn(domain.ErrReceiptPending))
	if err != nil {
		if domain.IsKind(err, domain.ErrReceiptPending) {
			return "", domain.WrapError(domain.ErrTemporary, "ledger receipt", fmt.Errorf("transaction %s not confirmed in time: %w", submitted.TxID, err))
		}
		return "", err
	}

	slog.Info("ledger_receipt_confirmed", "contract_id", contractID, "tx_id", submitted.TxID)
	return submitted.TxID, nil
}

func (c *Client) checkReceipt(ctx context.Context, txID string) error {
	var receipt receiptResponse
	err := c.doJSON(ctx, http.MethodGet, "/v1/attestations/tx/"+url.PathEscape(txID), nil, &receipt)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.WrapError(domain.ErrReceiptPending, "ledger receipt", err)
		}
		return err
	}

	switch strings.ToLower(receipt.Status) {
	case "confirmed":
		return nil
	case "pending", "":
		return domain.NewError(domain.ErrReceiptPending, "ledger receipt", "transaction "+txID+" pending")
	default:
		return fmt.Errorf("ledger receipt: transaction %s %s", txID, receipt.Status)
	}
}

func (c *Client) Verify(ctx context.Context, contractID, hash string) (bool, error) {
	key, err := registryKey(contractID)
	if err != nil {
		return false, err
	}

	query := url.Values{}
	query.Set("hash", hash)
	path := "/v1/attestations/" + url.PathEscape(c.registry) + "/" + url.PathEscape(key) + "?" + query.Encode()

	var out verifyResponse
	err = c.executor.Execute(ctx, "ledger_verify", func(callCtx context.Context) error {
		return c.doJSON(callCtx, http.MethodGet, path, nil, &out)
	}, classifyLedgerError)
	if err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal ledger request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return fmt.Errorf("create ledger request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ledger response: %w", err)
	}
	return nil
}

// registryKey renders a contract id as the 32-byte registry key: the UUID
// bytes right-padded with zeros.
func registryKey(contractID string) (string, error) {
	id, err := uuid.Parse(contractID)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "ledger registry key", err)
	}
	key := make([]byte, 32)
	copy(key, id[:])
	return "0x" + hex.EncodeToString(key), nil
}
