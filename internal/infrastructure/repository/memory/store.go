package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

// Store keeps contracts in-memory (single instance only). Transactions are
// serialized and work on a copy of the state that replaces the live state on
// commit.
type Store struct {
	mu    sync.Mutex
	state *state

	usersMu sync.RWMutex
	users   map[string]domain.User

	faultsMu sync.Mutex
	faults   map[string]error
}

type state struct {
	contracts    map[string]domain.Contract
	clauses      map[string][]domain.Clause
	translations map[string][]domain.Translation
	risks        map[string][]domain.Risk
	parties      map[string][]domain.Party
	attempts     map[string]attestationAttempts
	events       []domain.Event
	seq          int64
}

type attestationAttempts struct {
	count int
	last  time.Time
}

func NewStore() *Store {
	return &Store{
		state: &state{
			contracts:    make(map[string]domain.Contract),
			clauses:      make(map[string][]domain.Clause),
			translations: make(map[string][]domain.Translation),
			risks:        make(map[string][]domain.Risk),
			parties:      make(map[string][]domain.Party),
			attempts:     make(map[string]attestationAttempts),
		},
		users:  make(map[string]domain.User),
		faults: make(map[string]error),
	}
}

// AddUser registers an actor in the directory.
func (s *Store) AddUser(user domain.User) {
	s.usersMu.Lock()
	s.users[user.ID] = user
	s.usersMu.Unlock()
}

// FailOn makes the named transaction operation fail with err. For
// AppendEvent the operation name is "AppendEvent:<event kind>".
func (s *Store) FailOn(operation string, err error) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	if err == nil {
		delete(s.faults, operation)
		return
	}
	s.faults[operation] = err
}

func (s *Store) fault(operation string) error {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	return s.faults[operation]
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx ports.ContractTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{store: s, st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetContract(_ context.Context, id string) (*domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.contract(id)
}

func (s *Store) ListPartyViews(_ context.Context, contractID string) ([]domain.PartyView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partyViews(s.state, contractID), nil
}

func (s *Store) GetDetail(_ context.Context, id string) (*domain.ContractDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract, err := s.state.contract(id)
	if err != nil {
		return nil, err
	}
	detail := &domain.ContractDetail{
		Contract:     *contract,
		Clauses:      slices.Clone(s.state.clauses[id]),
		Translations: domain.EmptyTranslations(),
		Risks:        slices.Clone(s.state.risks[id]),
	}
	for _, tr := range s.state.translations[id] {
		detail.Translations[tr.Language] = append(detail.Translations[tr.Language], tr)
	}
	return detail, nil
}

func (s *Store) ListForUser(_ context.Context, userID string, filter domain.ListFilter) (*domain.ContractList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	search := strings.ToLower(filter.Search)
	var items []domain.ContractListItem
	for id, contract := range s.state.contracts {
		if search != "" && !strings.Contains(strings.ToLower(contract.Filename), search) {
			continue
		}
		item, ok := s.listItem(id, userID)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.ContractListItem) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(items)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	page := items[start:end]
	if page == nil {
		page = []domain.ContractListItem{}
	}
	return &domain.ContractList{
		Contracts: page,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}

func (s *Store) ListExpiring(_ context.Context, userID string, from, to time.Time, limit int) ([]domain.ContractListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []domain.ContractListItem
	for id, contract := range s.state.contracts {
		if contract.ExpiresAt == nil || contract.ExpiresAt.Before(from) || contract.ExpiresAt.After(to) {
			continue
		}
		item, ok := s.listItem(id, userID)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.ContractListItem) int {
		return a.ExpiresAt.Compare(*b.ExpiresAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) ListEvents(_ context.Context, contractID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []domain.Event
	for _, event := range s.state.events {
		if event.ContractID != contractID {
			continue
		}
		if event.ActorID != nil {
			if user, ok := s.user(*event.ActorID); ok {
				name := user.DisplayName()
				event.ActorName = &name
			}
		}
		events = append(events, event)
	}
	slices.SortStableFunc(events, func(a, b domain.Event) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.Seq - b.Seq)
	})
	return events, nil
}

func (s *Store) ListPendingAttestations(_ context.Context, limit int) ([]domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Contract
	for _, contract := range s.state.contracts {
		if contract.Status == domain.ContractApproved && contract.ContentHash != nil && contract.ReceiptID == nil &&
			contract.AttestationState == domain.AttestationPending {
			out = append(out, contract)
		}
	}
	// Never-attempted first, then least recently attempted, then oldest
	// finalization, as the postgres query orders them.
	slices.SortFunc(out, func(a, b domain.Contract) int {
		lastA, lastB := s.state.attempts[a.ID].last, s.state.attempts[b.ID].last
		if c := lastA.Compare(lastB); c != 0 {
			return c
		}
		return finalizedAt(a).Compare(finalizedAt(b))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func finalizedAt(c domain.Contract) time.Time {
	if c.FinalizedAt == nil {
		return time.Time{}
	}
	return *c.FinalizedAt
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.User, error) {
	user, ok := s.user(id)
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "get user", "user not found")
	}
	return &user, nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return &user, nil
		}
	}
	return nil, domain.NewError(domain.ErrNotFound, "find user by email", "no registered user with that email")
}

func (s *Store) user(id string) (domain.User, bool) {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	user, ok := s.users[id]
	return user, ok
}

func (s *Store) partyViews(st *state, contractID string) []domain.PartyView {
	parties := slices.Clone(st.parties[contractID])
	slices.SortFunc(parties, func(a, b domain.Party) int {
		return strings.Compare(string(a.Role), string(b.Role))
	})
	views := make([]domain.PartyView, 0, len(parties))
	for _, party := range parties {
		view := domain.PartyView{Party: party}
		if user, ok := s.user(party.UserID); ok {
			view.UserName = user.FullName
			view.UserEmail = user.Email
		}
		views = append(views, view)
	}
	return views
}

// listItem projects a contract for userID; ok is false when the user is not a party.
func (s *Store) listItem(contractID, userID string) (domain.ContractListItem, bool) {
	item := domain.ContractListItem{Contract: s.state.contracts[contractID]}
	item.Document = nil
	member := false
	for _, party := range s.state.parties[contractID] {
		approval := party.Approval
		if party.UserID == userID {
			member = true
			item.IsOwner = party.Role == domain.RoleFirstParty
			item.MyApprovalStatus = &approval
		} else {
			item.OtherPartyApprovalStatus = &approval
		}
		if party.Role == domain.RoleSecondParty {
			item.HasSecondParty = true
		}
	}
	return item, member
}

func (st *state) contract(id string) (*domain.Contract, error) {
	contract, ok := st.contracts[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get contract", fmt.Errorf("contract %s", id))
	}
	return &contract, nil
}

func (st *state) clone() *state {
	out := &state{
		contracts:    make(map[string]domain.Contract, len(st.contracts)),
		clauses:      make(map[string][]domain.Clause, len(st.clauses)),
		translations: make(map[string][]domain.Translation, len(st.translations)),
		risks:        make(map[string][]domain.Risk, len(st.risks)),
		parties:      make(map[string][]domain.Party, len(st.parties)),
		attempts:     maps.Clone(st.attempts),
		events:       slices.Clone(st.events),
		seq:          st.seq,
	}
	for k, v := range st.contracts {
		out.contracts[k] = v
	}
	for k, v := range st.clauses {
		out.clauses[k] = slices.Clone(v)
	}
	for k, v := range st.translations {
		out.translations[k] = slices.Clone(v)
	}
	for k, v := range st.risks {
		out.risks[k] = slices.Clone(v)
	}
	for k, v := range st.parties {
		out.parties[k] = slices.Clone(v)
	}
	return out
}
