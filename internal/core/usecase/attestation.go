package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

// AttestationSettings describes the ledger integration. Enabled is true only
// when the feature flag, endpoint, credential and registry address are all set.
type AttestationSettings struct {
	Enabled         bool
	Network         string
	ExplorerBaseURL string
	// SubmitTimeout bounds the ledger call made while the finalizing
	// transaction holds the contract row lock.
	SubmitTimeout time.Duration
	// MaxAttempts is the number of failed reconcile submissions after which
	// a contract is abandoned.
	MaxAttempts int
}

const (
	defaultSubmitTimeout      = 10 * time.Second
	defaultMaxAttestAttempts  = 20
	defaultReconcileBatchSize = 50
)

type Attestor struct {
	store     ports.ContractStore
	ledger    ports.Ledger
	publisher ports.EventPublisher
	settings  AttestationSettings
}

func NewAttestor(
	store ports.ContractStore,
	ledger ports.Ledger,
	publisher ports.EventPublisher,
	settings AttestationSettings,
) *Attestor {
	return &Attestor{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		settings:  settings,
	}
}

func (a *Attestor) Enabled() bool {
	return a.settings.Enabled && a.ledger != nil
}

// Network is the ledger network name recorded in audit metadata.
func (a *Attestor) Network() string {
	return a.settings.Network
}

// ExplorerURL links a receipt to the ledger's public explorer.
func (a *Attestor) ExplorerURL(receiptID string) string {
	base := strings.TrimRight(strings.TrimSpace(a.settings.ExplorerBaseURL), "/")
	if base == "" || receiptID == "" {
		return ""
	}
	return base + "/tx/" + receiptID
}

// ContentHash is the deterministic fingerprint of a contract:
// "0x" + hex(sha256(document || id || canonical(meta))).
func ContentHash(contract *domain.Contract) string {
	meta := map[string]string{
		"filename":   contract.Filename,
		"created_at": contract.CreatedAt.UTC().Format(time.RFC3339Nano),
		"user_id":    contract.OwnerID,
	}
	raw, _ := json.Marshal(meta)
	canonical, err := jcs.Transform(raw)
	if err != nil {
		canonical = raw
	}

	h := sha256.New()
	h.Write(contract.Document)
	h.Write([]byte(contract.ID))
	h.Write(canonical)
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Finalize hashes the contract and submits the hash to the ledger when the
// integration is enabled. It never fails: any submission problem yields a
// pending attestation that is left for ReconcilePending. The submission is
// capped by SubmitTimeout because the caller holds the contract row lock.
func (a *Attestor) Finalize(ctx context.Context, contract *domain.Contract) domain.Attestation {
	out := domain.Attestation{Hash: ContentHash(contract), State: domain.AttestationPending}
	if !a.Enabled() {
		return out
	}

	submitCtx, cancel := context.WithTimeout(ctx, a.submitTimeout())
	defer cancel()

	receipt, state, err := a.submit(submitCtx, contract.ID, out.Hash)
	if err != nil {
		slog.Warn("attestation_submit_failed",
			"contract_id", contract.ID,
			"content_hash", out.Hash,
			"error", err,
		)
		return out
	}
	out.ReceiptID = receipt
	out.State = state
	return out
}

func (a *Attestor) submitTimeout() time.Duration {
	if a.settings.SubmitTimeout > 0 {
		return a.settings.SubmitTimeout
	}
	return defaultSubmitTimeout
}

func (a *Attestor) maxAttempts() int {
	if a.settings.MaxAttempts > 0 {
		return a.settings.MaxAttempts
	}
	return defaultMaxAttestAttempts
}

// submit maps the ledger reply to an attestation state. A hash the ledger
// already holds is terminal; an empty receipt stays pending.
func (a *Attestor) submit(ctx context.Context, contractID, hash string) (*string, domain.AttestationState, error) {
	receiptID, err := a.ledger.Submit(ctx, contractID, hash)
	if errors.Is(err, domain.ErrAlreadyRecorded) {
		slog.Info("attestation_already_recorded", "contract_id", contractID, "content_hash", hash)
		return nil, domain.AttestationAlreadyRecorded, nil
	}
	if err != nil {
		return nil, domain.AttestationPending, err
	}
	if receiptID == "" {
		return nil, domain.AttestationPending, nil
	}
	return &receiptID, domain.AttestationRecorded, nil
}

// NotifyPending asks the worker to retry a submission that produced no receipt.
func (a *Attestor) NotifyPending(ctx context.Context, contractID string) {
	if a.publisher == nil || !a.Enabled() {
		return
	}
	if err := a.publisher.PublishAttestationPending(ctx, contractID); err != nil {
		slog.Warn("attestation_pending_publish_failed", "contract_id", contractID, "error", err)
	}
}

// ReconcileContract resubmits the stored hash of one finalized contract and
// persists the outcome. It reports whether a receipt was stored. A failed
// submission counts as an attempt; once MaxAttempts is reached the contract is
// abandoned and leaves the pending set.
func (a *Attestor) ReconcileContract(ctx context.Context, contractID string) (bool, error) {
	if !a.Enabled() {
		return false, nil
	}

	contract, err := a.store.GetContract(ctx, contractID)
	if err != nil {
		return false, fmt.Errorf("load contract: %w", err)
	}
	if contract.ContentHash == nil || contract.ReceiptID != nil || contract.AttestationState != domain.AttestationPending {
		return false, nil
	}

	receipt, state, err := a.submit(ctx, contract.ID, *contract.ContentHash)
	if err != nil {
		if noteErr := a.noteFailedAttempt(ctx, contract.ID); noteErr != nil {
			slog.Warn("attestation_attempt_not_recorded", "contract_id", contract.ID, "error", noteErr)
		}
		return false, domain.WrapError(domain.ErrTemporary, "reconcile attestation", err)
	}

	switch state {
	case domain.AttestationRecorded:
		err = a.store.WithinTx(ctx, func(tx ports.ContractTx) error {
			return tx.SetReceipt(ctx, contract.ID, *receipt)
		})
		if err != nil {
			return false, fmt.Errorf("persist receipt: %w", err)
		}
		slog.Info("attestation_reconciled", "contract_id", contract.ID, "receipt_id", *receipt)
		return true, nil

	case domain.AttestationAlreadyRecorded:
		err = a.store.WithinTx(ctx, func(tx ports.ContractTx) error {
			return tx.MarkAttestation(ctx, contract.ID, domain.AttestationAlreadyRecorded)
		})
		if err != nil {
			return false, fmt.Errorf("persist attestation state: %w", err)
		}
		return false, nil

	default:
		if err := a.noteFailedAttempt(ctx, contract.ID); err != nil {
			return false, fmt.Errorf("record attestation attempt: %w", err)
		}
		return false, nil
	}
}

func (a *Attestor) noteFailedAttempt(ctx context.Context, contractID string) error {
	return a.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		attempts, err := tx.NoteAttestationAttempt(ctx, contractID, time.Now().UTC())
		if err != nil {
			return err
		}
		if attempts < a.maxAttempts() {
			return nil
		}
		slog.Error("attestation_abandoned", "contract_id", contractID, "attempts", attempts)
		return tx.MarkAttestation(ctx, contractID, domain.AttestationAbandoned)
	})
}

// ReconcilePending walks finalized contracts still in the pending state.
func (a *Attestor) ReconcilePending(ctx context.Context, limit int) (int, error) {
	if !a.Enabled() {
		return 0, nil
	}
	if limit <= 0 {
		limit = defaultReconcileBatchSize
	}

	pending, err := a.store.ListPendingAttestations(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending attestations: %w", err)
	}

	reconciled := 0
	for _, contract := range pending {
		if err := ctx.Err(); err != nil {
			return reconciled, err
		}
		ok, err := a.ReconcileContract(ctx, contract.ID)
		if err != nil {
			slog.Warn("attestation_reconcile_failed", "contract_id", contract.ID, "error", err)
			continue
		}
		if ok {
			reconciled++
		}
	}
	return reconciled, nil
}

func (a *Attestor) Verify(ctx context.Context, contractID, actorID string) (*domain.Verification, error) {
	access, err := readAccess(ctx, a.store, contractID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.requireParty("verify contract"); err != nil {
		return nil, err
	}

	contract := access.contract
	computed := ContentHash(contract)
	out := &domain.Verification{
		ContractID:   contract.ID,
		StoredHash:   contract.ContentHash,
		ComputedHash: computed,
		HashMatches:  contract.ContentHash != nil && *contract.ContentHash == computed,
		ReceiptID:    contract.ReceiptID,
	}
	if contract.ReceiptID != nil {
		out.ExplorerURL = a.ExplorerURL(*contract.ReceiptID)
	}
	if contract.ContentHash == nil || !a.Enabled() {
		return out, nil
	}

	out.LedgerChecked = true
	verified, err := a.ledger.Verify(ctx, contract.ID, computed)
	if err != nil {
		out.LedgerError = err.Error()
		return out, nil
	}
	out.LedgerVerified = verified
	return out, nil
}
