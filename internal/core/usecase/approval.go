package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

type ApprovalService struct {
	store     ports.ContractStore
	users     ports.UserDirectory
	audit     *AuditRecorder
	attestor  *Attestor
	archive   ports.DocumentArchive
	publisher ports.EventPublisher
	now       func() time.Time
}

func NewApprovalService(
	store ports.ContractStore,
	users ports.UserDirectory,
	audit *AuditRecorder,
	attestor *Attestor,
	archive ports.DocumentArchive,
	publisher ports.EventPublisher,
) *ApprovalService {
	return &ApprovalService{
		store:     store,
		users:     users,
		audit:     audit,
		attestor:  attestor,
		archive:   archive,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ApprovalService) AddSecondParty(ctx context.Context, contractID, actorID, email string) (*domain.PartyView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "add second party", "email is required")
	}

	var added *domain.PartyView
	err := s.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		access, err := lockedAccess(ctx, tx, contractID, actorID)
		if err != nil {
			return err
		}
		if err := access.requireOwner("add second party"); err != nil {
			return err
		}
		if access.byRole(domain.RoleSecondParty) != nil {
			return domain.NewError(domain.ErrConflict, "add second party", "contract already has a second party")
		}

		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("resolve second party: %w", err)
		}
		if user.ID == actorID {
			return domain.NewError(domain.ErrInvalidInput, "add second party", "cannot add yourself as second party")
		}

		party := &domain.Party{
			ID:         uuid.NewString(),
			ContractID: contractID,
			UserID:     user.ID,
			Role:       domain.RoleSecondParty,
			Approval:   domain.ApprovalPending,
			CreatedAt:  s.now(),
		}
		if err := tx.AddParty(ctx, party); err != nil {
			return fmt.Errorf("add second party: %w", err)
		}

		s.audit.Log(ctx, tx, contractID, domain.EventSecondPartyAdded,
			"Second party added: "+user.DisplayName(),
			&actorID,
			map[string]any{
				"second_party_email": user.Email,
				"second_party_name":  user.FullName,
			},
		)

		added = &domain.PartyView{Party: *party, UserName: user.FullName, UserEmail: user.Email}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, contractID, domain.EventSecondPartyAdded)
	return added, nil
}

// RemoveSecondParty drops the second party. A contract that had reached a
// terminal status goes back to review and the first party must approve again.
func (s *ApprovalService) RemoveSecondParty(ctx context.Context, contractID, actorID string) error {
	err := s.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		access, err := lockedAccess(ctx, tx, contractID, actorID)
		if err != nil {
			return err
		}
		if err := access.requireOwner("remove second party"); err != nil {
			return err
		}
		second := access.byRole(domain.RoleSecondParty)
		if second == nil {
			return domain.NewError(domain.ErrNotFound, "remove second party", "no second party to remove")
		}

		if err := tx.RemoveParty(ctx, contractID, domain.RoleSecondParty); err != nil {
			return fmt.Errorf("remove second party: %w", err)
		}

		name := second.UserName
		if name == "" {
			name = second.UserEmail
		}
		s.audit.Log(ctx, tx, contractID, domain.EventSecondPartyRemoved,
			"Second party removed: "+name,
			&actorID,
			nil,
		)

		status := access.contract.Status
		if status == domain.ContractApproved || status == domain.ContractRejected {
			if err := tx.UpdateStatus(ctx, contractID, domain.ContractPendingReview); err != nil {
				return fmt.Errorf("reset contract status: %w", err)
			}
			if err := tx.ResetApproval(ctx, contractID, domain.RoleFirstParty); err != nil {
				return fmt.Errorf("reset first party approval: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, contractID, domain.EventSecondPartyRemoved)
	return nil
}

type approvalOutcome struct {
	status    *domain.ApprovalStatus
	kind      domain.EventKind
	finalized bool
	contract  domain.Contract
}

// SetApproval records the actor's decision. The pending to decided move is a
// single conditional update, so of two concurrent calls for the same party
// exactly one succeeds and the other gets ErrAlreadyDecided.
func (s *ApprovalService) SetApproval(ctx context.Context, contractID, actorID string, approved bool) (*domain.ApprovalStatus, error) {
	var outcome approvalOutcome
	err := s.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		access, err := lockedAccess(ctx, tx, contractID, actorID)
		if err != nil {
			return err
		}
		if err := access.requireParty("set approval"); err != nil {
			return err
		}
		if access.actor.Approval != domain.ApprovalPending {
			return domain.NewError(domain.ErrAlreadyDecided, "set approval", "you have already submitted your decision")
		}

		state := domain.ApprovalRejected
		verb := "rejected"
		if approved {
			state = domain.ApprovalApproved
			verb = "approved"
		}
		now := s.now()
		applied, err := tx.DecideParty(ctx, contractID, actorID, state, now)
		if err != nil {
			return fmt.Errorf("record decision: %w", err)
		}
		if !applied {
			return domain.NewError(domain.ErrAlreadyDecided, "set approval", "you have already submitted your decision")
		}
		access.actor.Approval = state
		access.actor.ApprovedAt = &now

		kind := domain.ApprovalEventKind(access.actor.Role, approved)
		s.audit.Log(ctx, tx, contractID, kind,
			fmt.Sprintf("%s %s the contract", access.actor.Role.Label(), verb),
			&actorID,
			nil,
		)

		finalized, err := s.applyOverallStatus(ctx, tx, access)
		if err != nil {
			return err
		}

		outcome = approvalOutcome{
			status:    access.status(),
			kind:      kind,
			finalized: finalized,
			contract:  *access.contract,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, contractID, outcome.kind)
	if outcome.finalized {
		s.publish(ctx, contractID, domain.EventContractFinalized)
		s.archiveFinalized(ctx, &outcome.contract)
		if outcome.contract.AttestationState == domain.AttestationPending {
			s.attestor.NotifyPending(ctx, contractID)
		}
	}
	return outcome.status, nil
}

// applyOverallStatus persists a terminal contract status once reached. The
// finalization branch runs only on the call that moves the stored status to
// approved, which the row lock makes unique.
func (s *ApprovalService) applyOverallStatus(ctx context.Context, tx ports.ContractTx, access *partyAccess) (bool, error) {
	status := access.status().OverallStatus
	contract := access.contract

	switch status {
	case domain.OverallRejected:
		if contract.Status == domain.ContractRejected {
			return false, nil
		}
		if err := tx.UpdateStatus(ctx, contract.ID, domain.ContractRejected); err != nil {
			return false, fmt.Errorf("set contract rejected: %w", err)
		}
		contract.Status = domain.ContractRejected
		return false, nil

	case domain.OverallApproved:
		if contract.Status == domain.ContractApproved {
			return false, nil
		}
		if err := tx.UpdateStatus(ctx, contract.ID, domain.ContractApproved); err != nil {
			return false, fmt.Errorf("set contract approved: %w", err)
		}
		contract.Status = domain.ContractApproved
		if err := s.finalize(ctx, tx, contract); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, nil
	}
}

// finalize hashes and records the approved contract. Finalization is a system
// event, so contract_finalized carries no actor.
func (s *ApprovalService) finalize(ctx context.Context, tx ports.ContractTx, contract *domain.Contract) error {
	attestation := s.attestor.Finalize(ctx, contract)
	hash, receipt := attestation.Hash, attestation.ReceiptID
	finalizedAt := s.now()
	if err := tx.RecordAttestation(ctx, contract.ID, attestation, finalizedAt); err != nil {
		return fmt.Errorf("record attestation: %w", err)
	}
	contract.ContentHash = &hash
	contract.ReceiptID = receipt
	contract.FinalizedAt = &finalizedAt
	contract.AttestationState = attestation.State

	s.audit.Log(ctx, tx, contract.ID, domain.EventContractFinalized,
		"Contract finalized - both parties approved",
		nil,
		nil,
	)

	description := "Contract hash generated (blockchain pending)"
	var receiptID, explorerURL any
	if receipt != nil {
		description = "Contract hash stored on blockchain"
		receiptID = *receipt
		explorerURL = s.attestor.ExplorerURL(*receipt)
	}
	s.audit.Log(ctx, tx, contract.ID, domain.EventAttestationRecorded,
		description,
		nil,
		map[string]any{
			"document_hash":    hash,
			"transaction_hash": receiptID,
			"explorer_url":     explorerURL,
			"network":          s.attestor.Network(),
		},
	)
	return nil
}

func (s *ApprovalService) Status(ctx context.Context, contractID, actorID string) (*domain.ApprovalStatus, error) {
	access, err := readAccess(ctx, s.store, contractID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.requireParty("approval status"); err != nil {
		return nil, err
	}
	return access.status(), nil
}

func (s *ApprovalService) Parties(ctx context.Context, contractID, actorID string) ([]domain.PartyView, error) {
	access, err := readAccess(ctx, s.store, contractID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.requireParty("list parties"); err != nil {
		return nil, err
	}
	return access.parties, nil
}

func (s *ApprovalService) archiveFinalized(ctx context.Context, contract *domain.Contract) {
	if s.archive == nil || len(contract.Document) == 0 {
		return
	}
	key := fmt.Sprintf("finalized/%s/%s", contract.ID, sanitizeFilename(contract.Filename))
	if err := s.archive.Save(ctx, key, bytes.NewReader(contract.Document)); err != nil {
		slog.Warn("archive_finalized_failed", "contract_id", contract.ID, "key", key, "error", err)
	}
}

func (s *ApprovalService) publish(ctx context.Context, contractID string, kind domain.EventKind) {
	publishNotice(ctx, s.publisher, domain.LifecycleNotice{ContractID: contractID, Kind: kind, OccurredAt: s.now()})
}

// publishNotice is fire-and-forget; the committed audit trail stays the
// source of truth.
func publishNotice(ctx context.Context, publisher ports.EventPublisher, notice domain.LifecycleNotice) {
	if publisher == nil {
		return
	}
	if err := publisher.PublishLifecycle(ctx, notice); err != nil {
		slog.Warn("lifecycle_publish_failed", "contract_id", notice.ContractID, "event_type", notice.Kind, "error", err)
	}
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.bin"
	}
	return base
}
