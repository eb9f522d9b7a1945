package domain

import "time"

type PartyRole string

const (
	RoleFirstParty  PartyRole = "first_party"
	RoleSecondParty PartyRole = "second_party"
)

func (r PartyRole) Label() string {
	if r == RoleFirstParty {
		return "First party"
	}
	return "Second party"
}

type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

type Party struct {
	ID         string        `json:"id"`
	ContractID string        `json:"contract_id"`
	UserID     string        `json:"user_id"`
	Role       PartyRole     `json:"role"`
	Approval   ApprovalState `json:"approval_status"`
	ApprovedAt *time.Time    `json:"approved_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

type PartyView struct {
	Party
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

type OverallStatus string

const (
	OverallAwaitingSecondParty OverallStatus = "awaiting_second_party"
	OverallPending             OverallStatus = "pending"
	OverallApproved            OverallStatus = "approved"
	OverallRejected            OverallStatus = "rejected"
)

// DeriveOverallStatus computes the contract-level approval state from the two
// party records. A rejection by either side wins over approvals.
func DeriveOverallStatus(first, second *Party) OverallStatus {
	if first == nil || second == nil {
		return OverallAwaitingSecondParty
	}
	if first.Approval == ApprovalRejected || second.Approval == ApprovalRejected {
		return OverallRejected
	}
	if first.Approval == ApprovalApproved && second.Approval == ApprovalApproved {
		return OverallApproved
	}
	return OverallPending
}

// SplitParties picks the first and second party out of a contract's records.
func SplitParties(parties []Party) (first, second *Party) {
	for i := range parties {
		switch parties[i].Role {
		case RoleFirstParty:
			first = &parties[i]
		case RoleSecondParty:
			second = &parties[i]
		}
	}
	return first, second
}

type ApprovalStatus struct {
	FirstParty    *PartyView    `json:"first_party,omitempty"`
	SecondParty   *PartyView    `json:"second_party,omitempty"`
	OverallStatus OverallStatus `json:"overall_status"`
	IsOwner       bool          `json:"is_owner"`
	CanApprove    bool          `json:"can_approve"`
	ReceiptID     *string       `json:"blockchain_tx_hash,omitempty"`
}
