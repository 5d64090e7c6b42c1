package client

import (
	"context"
	"sync"
	"time"

	"skillbadge/internal/domain"
	"skillbadge/internal/identity"
)

// fakeLedger is an in-memory Backend that counts remote calls per operation.
type fakeLedger struct {
	mu       sync.Mutex
	caller   domain.Principal
	nextID   domain.BadgeID
	badges   map[domain.BadgeID]domain.SkillBadge
	profiles map[domain.Principal]domain.UserProfile
	roles    map[domain.Principal]domain.UserRole
	calls    map[string]int
	failWith error
}

func newFakeLedger(caller domain.Principal) *fakeLedger {
	return &fakeLedger{
		caller:   caller,
		nextID:   7,
		badges:   make(map[domain.BadgeID]domain.SkillBadge),
		profiles: make(map[domain.Principal]domain.UserProfile),
		roles:    make(map[domain.Principal]domain.UserRole),
		calls:    make(map[string]int),
	}
}

func (f *fakeLedger) record(op string) error {
	f.calls[op]++
	return f.failWith
}

func (f *fakeLedger) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeLedger) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeLedger) fail(err error) {
	f.mu.Lock()
	f.failWith = err
	f.mu.Unlock()
}

func (f *fakeLedger) GetBadgesForUser(_ context.Context, user domain.Principal) ([]domain.SkillBadge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getBadgesForUser"); err != nil {
		return nil, err
	}
	var out []domain.SkillBadge
	for _, b := range f.badges {
		if b.Owner == user {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLedger) VerifyBadge(_ context.Context, id domain.BadgeID) (*domain.SkillBadge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("verifyBadge"); err != nil {
		return nil, err
	}
	b, ok := f.badges[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeLedger) GetAllBadges(context.Context) ([]domain.SkillBadge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getAllBadges"); err != nil {
		return nil, err
	}
	out := make([]domain.SkillBadge, 0, len(f.badges))
	for _, b := range f.badges {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeLedger) IssueBadge(_ context.Context, owner domain.Principal, skillName string, description, level *string) (domain.BadgeID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("issueBadge"); err != nil {
		return 0, err
	}
	id := f.nextID
	f.nextID++
	f.badges[id] = domain.SkillBadge{
		ID:             id,
		Owner:          owner,
		Issuer:         f.caller,
		SkillName:      skillName,
		Description:    description,
		Level:          level,
		Verified:       true,
		IssueTimestamp: time.Now().UnixNano(),
	}
	return id, nil
}

func (f *fakeLedger) GetCallerUserProfile(ctx context.Context) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getCallerUserProfile"); err != nil {
		return nil, err
	}
	p, ok := f.profiles[f.caller]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeLedger) GetUserProfile(_ context.Context, user domain.Principal) (*domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getUserProfile"); err != nil {
		return nil, err
	}
	p, ok := f.profiles[user]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeLedger) SaveCallerUserProfile(_ context.Context, profile domain.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("saveCallerUserProfile"); err != nil {
		return err
	}
	f.profiles[f.caller] = profile
	return nil
}

func (f *fakeLedger) GetCallerUserRole(context.Context) (domain.UserRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("getCallerUserRole"); err != nil {
		return "", err
	}
	role, ok := f.roles[f.caller]
	if !ok {
		return domain.RoleGuest, nil
	}
	return role, nil
}

func (f *fakeLedger) IsCallerAdmin(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("isCallerAdmin"); err != nil {
		return false, err
	}
	return f.roles[f.caller] == domain.RoleAdmin, nil
}

func (f *fakeLedger) AssignCallerUserRole(_ context.Context, user domain.Principal, role domain.UserRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("assignCallerUserRole"); err != nil {
		return err
	}
	f.roles[user] = role
	return nil
}

// staticIdentity is a Provider whose identity can be toggled by tests.
type staticIdentity struct {
	mu sync.Mutex
	id *identity.Identity
}

func (s *staticIdentity) Identity() (identity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == nil {
		return identity.Identity{}, false
	}
	return *s.id, true
}

func (s *staticIdentity) signIn(p domain.Principal) {
	s.mu.Lock()
	s.id = &identity.Identity{Principal: p}
	s.mu.Unlock()
}
