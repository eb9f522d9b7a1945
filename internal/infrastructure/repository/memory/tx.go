package memory

import (
	"context"
	"slices"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

type tx struct {
	store *Store
	st    *state
}

func (t *tx) GetContract(_ context.Context, id string) (*domain.Contract, error) {
	return t.st.contract(id)
}

func (t *tx) LockContract(ctx context.Context, id string) (*domain.Contract, error) {
	return t.GetContract(ctx, id)
}

func (t *tx) ListPartyViews(_ context.Context, contractID string) ([]domain.PartyView, error) {
	return t.store.partyViews(t.st, contractID), nil
}

func (t *tx) CreateContract(_ context.Context, contract *domain.Contract) error {
	if err := t.store.fault("CreateContract"); err != nil {
		return err
	}
	if _, exists := t.st.contracts[contract.ID]; exists {
		return domain.NewError(domain.ErrConflict, "create contract", "contract already exists")
	}
	t.st.contracts[contract.ID] = *contract
	return nil
}

func (t *tx) SaveAnalysis(
	_ context.Context,
	contractID string,
	clauses []domain.Clause,
	translations []domain.Translation,
	risks []domain.Risk,
) error {
	if err := t.store.fault("SaveAnalysis"); err != nil {
		return err
	}
	if _, ok := t.st.contracts[contractID]; !ok {
		return domain.NewError(domain.ErrNotFound, "save analysis", "contract not found")
	}
	t.st.clauses[contractID] = slices.Clone(clauses)
	t.st.translations[contractID] = slices.Clone(translations)
	t.st.risks[contractID] = slices.Clone(risks)
	return nil
}

func (t *tx) update(contractID string, fn func(c *domain.Contract)) error {
	contract, ok := t.st.contracts[contractID]
	if !ok {
		return domain.NewError(domain.ErrNotFound, "update contract", "contract not found")
	}
	fn(&contract)
	contract.UpdatedAt = time.Now().UTC()
	t.st.contracts[contractID] = contract
	return nil
}

func (t *tx) UpdateStatus(_ context.Context, contractID string, status domain.ContractStatus) error {
	return t.update(contractID, func(c *domain.Contract) { c.Status = status })
}

func (t *tx) UpdateDetails(_ context.Context, contractID string, category *domain.Category, expiresAt *time.Time) error {
	return t.update(contractID, func(c *domain.Contract) {
		if category != nil {
			value := *category
			c.Category = &value
		}
		if expiresAt != nil {
			value := *expiresAt
			c.ExpiresAt = &value
		}
	})
}

func (t *tx) RecordAttestation(_ context.Context, contractID string, attestation domain.Attestation, finalizedAt time.Time) error {
	if err := t.store.fault("RecordAttestation"); err != nil {
		return err
	}
	return t.update(contractID, func(c *domain.Contract) {
		hash := attestation.Hash
		c.ContentHash = &hash
		c.ReceiptID = attestation.ReceiptID
		c.FinalizedAt = &finalizedAt
		c.AttestationState = attestation.State
	})
}

func (t *tx) SetReceipt(_ context.Context, contractID, receiptID string) error {
	return t.update(contractID, func(c *domain.Contract) {
		c.ReceiptID = &receiptID
		c.AttestationState = domain.AttestationRecorded
	})
}

func (t *tx) MarkAttestation(_ context.Context, contractID string, state domain.AttestationState) error {
	if err := t.store.fault("MarkAttestation"); err != nil {
		return err
	}
	return t.update(contractID, func(c *domain.Contract) { c.AttestationState = state })
}

func (t *tx) NoteAttestationAttempt(_ context.Context, contractID string, at time.Time) (int, error) {
	if _, ok := t.st.contracts[contractID]; !ok {
		return 0, domain.NewError(domain.ErrNotFound, "note attestation attempt", "contract not found")
	}
	attempts := t.st.attempts[contractID]
	attempts.count++
	attempts.last = at
	t.st.attempts[contractID] = attempts
	return attempts.count, nil
}

func (t *tx) DeleteContract(_ context.Context, contractID string) error {
	if _, ok := t.st.contracts[contractID]; !ok {
		return domain.NewError(domain.ErrNotFound, "delete contract", "contract not found")
	}
	delete(t.st.contracts, contractID)
	delete(t.st.clauses, contractID)
	delete(t.st.translations, contractID)
	delete(t.st.risks, contractID)
	delete(t.st.parties, contractID)
	delete(t.st.attempts, contractID)
	t.st.events = slices.DeleteFunc(t.st.events, func(e domain.Event) bool {
		return e.ContractID == contractID
	})
	return nil
}

func (t *tx) AddParty(_ context.Context, party *domain.Party) error {
	for _, existing := range t.st.parties[party.ContractID] {
		if existing.Role == party.Role || existing.UserID == party.UserID {
			return domain.NewError(domain.ErrConflict, "add party", "party already exists")
		}
	}
	t.st.parties[party.ContractID] = append(t.st.parties[party.ContractID], *party)
	return nil
}

func (t *tx) RemoveParty(_ context.Context, contractID string, role domain.PartyRole) error {
	before := len(t.st.parties[contractID])
	t.st.parties[contractID] = slices.DeleteFunc(t.st.parties[contractID], func(p domain.Party) bool {
		return p.Role == role
	})
	if len(t.st.parties[contractID]) == before {
		return domain.NewError(domain.ErrNotFound, "remove party", "party not found")
	}
	return nil
}

func (t *tx) DecideParty(_ context.Context, contractID, userID string, state domain.ApprovalState, at time.Time) (bool, error) {
	parties := t.st.parties[contractID]
	for i := range parties {
		if parties[i].UserID != userID {
			continue
		}
		if parties[i].Approval != domain.ApprovalPending {
			return false, nil
		}
		parties[i].Approval = state
		parties[i].ApprovedAt = &at
		return true, nil
	}
	return false, nil
}

func (t *tx) ResetApproval(_ context.Context, contractID string, role domain.PartyRole) error {
	parties := t.st.parties[contractID]
	for i := range parties {
		if parties[i].Role == role {
			parties[i].Approval = domain.ApprovalPending
			parties[i].ApprovedAt = nil
		}
	}
	return nil
}

// AppendEvent either stores the event or leaves the state untouched, which is
// what a savepoint rollback gives the postgres store.
func (t *tx) AppendEvent(_ context.Context, event *domain.Event) error {
	if err := t.store.fault("AppendEvent:" + string(event.Kind)); err != nil {
		return err
	}
	t.st.seq++
	stored := *event
	stored.Seq = t.st.seq
	t.st.events = append(t.st.events, stored)
	return nil
}
