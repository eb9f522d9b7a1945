package domain

import "testing"

func TestDeriveOverallStatus(t *testing.T) {
	pending := &Party{Role: RoleFirstParty, Approval: ApprovalPending}
	approved := &Party{Role: RoleFirstParty, Approval: ApprovalApproved}
	rejected := &Party{Role: RoleSecondParty, Approval: ApprovalRejected}
	secondApproved := &Party{Role: RoleSecondParty, Approval: ApprovalApproved}

	cases := []struct {
		name          string
		first, second *Party
		want          OverallStatus
	}{
		{"no second party", approved, nil, OverallAwaitingSecondParty},
		{"both pending", pending, &Party{Role: RoleSecondParty, Approval: ApprovalPending}, OverallPending},
		{"one approved", approved, &Party{Role: RoleSecondParty, Approval: ApprovalPending}, OverallPending},
		{"rejection wins", approved, rejected, OverallRejected},
		{"both approved", approved, secondApproved, OverallApproved},
	}
	for _, tc := range cases {
		if got := DeriveOverallStatus(tc.first, tc.second); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestApprovalEventKind(t *testing.T) {
	if ApprovalEventKind(RoleFirstParty, true) != EventFirstPartyApproved ||
		ApprovalEventKind(RoleFirstParty, false) != EventFirstPartyRejected ||
		ApprovalEventKind(RoleSecondParty, true) != EventSecondPartyApproved ||
		ApprovalEventKind(RoleSecondParty, false) != EventSecondPartyRejected {
		t.Fatalf("unexpected approval event mapping")
	}
}

func TestSplitParties(t *testing.T) {
	parties := []Party{{ID: "b", Role: RoleSecondParty}, {ID: "a", Role: RoleFirstParty}}
	first, second := SplitParties(parties)
	if first == nil || first.ID != "a" || second == nil || second.ID != "b" {
		t.Fatalf("unexpected split: %+v %+v", first, second)
	}
}
