// Package memory provides in-memory repositories that enforce the same
// uniqueness rules as the Postgres schema. It backs service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
)

// Store holds users, roles, entreprises and memberships behind one mutex
type Store struct {
	mu          sync.Mutex
	roles       map[uuid.UUID]models.Role
	users       map[uuid.UUID]models.User
	entreprises map[uuid.UUID]models.Entreprise
	memberships map[uuid.UUID]models.Membership
}

// NewStore creates a store with every role seeded
func NewStore() *Store {
	s := NewEmptyStore()
	for _, code := range models.AllRoleCodes {
		id := uuid.New()
		s.roles[id] = models.Role{ID: id, Code: code, Label: string(code), CreatedAt: time.Now()}
	}
	return s
}

// NewEmptyStore creates a store without seeded roles
func NewEmptyStore() *Store {
	return &Store{
		roles:       make(map[uuid.UUID]models.Role),
		users:       make(map[uuid.UUID]models.User),
		entreprises: make(map[uuid.UUID]models.Entreprise),
		memberships: make(map[uuid.UUID]models.Membership),
	}
}

// Repositories returns repositories backed by the store. Customer, invoice
// and treasury repositories are left nil.
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Roles:       &roleRepository{s},
		Users:       &userRepository{s},
		Entreprises: &entrepriseRepository{s},
		Memberships: &membershipRepository{s},
	}
}

// TransactionManager returns a manager whose transactions apply writes immediately
func (s *Store) TransactionManager() repositories.TransactionManager {
	return txManager{}
}

// CountUsers returns the number of users with the given username
func (s *Store) CountUsers(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Username == username {
			n++
		}
	}
	return n
}

// Membership returns a membership regardless of its active flag
func (s *Store) Membership(id uuid.UUID) (models.Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	return m, ok
}

// AddEntreprise inserts an entreprise directly
func (s *Store) AddEntreprise(e *models.Entreprise) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entreprises[e.ID] = *e
}

// AddUser inserts a user directly
func (s *Store) AddUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
}

type txManager struct{}

func (txManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return tx{ctx: ctx}, nil
}

func (m txManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	t, _ := m.Begin(ctx)
	return fn(t.Context(), t)
}

type tx struct{ ctx context.Context }

func (tx) Commit() error              { return nil }
func (tx) Rollback() error            { return nil }
func (t tx) Context() context.Context { return t.ctx }

type roleRepository struct{ s *Store }

func (r *roleRepository) GetByCode(ctx context.Context, code models.RoleCode) (*models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Code == code {
			out := role
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *roleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context) ([]*models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		role := role
		out = append(out, &role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type userRepository struct{ s *Store }

func (r *userRepository) InsertIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return false, nil
		}
	}
	r.s.users[user.ID] = *user
	return true, nil
}

func (r *userRepository) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			out := u
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *userRepository) update(id uuid.UUID, fn func(*models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	r.s.users[id] = u
	return nil
}

func (r *userRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	return r.update(id, func(u *models.User) { u.Email = email })
}

func (r *userRepository) SetActiveTenant(ctx context.Context, id uuid.UUID, entrepriseID *uuid.UUID) error {
	return r.update(id, func(u *models.User) { u.EntrepriseID = entrepriseID })
}

func (r *userRepository) ClearActiveTenantIf(ctx context.Context, id, entrepriseID uuid.UUID) error {
	err := r.update(id, func(u *models.User) {
		if u.EntrepriseID != nil && *u.EntrepriseID == entrepriseID {
			u.EntrepriseID = nil
		}
	})
	if err == repositories.ErrNotFound {
		return nil
	}
	return err
}

type entrepriseRepository struct{ s *Store }

func (r *entrepriseRepository) Create(ctx context.Context, e *models.Entreprise) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.entreprises {
		if existing.Siret == e.Siret {
			return repositories.ErrConflict
		}
	}
	r.s.entreprises[e.ID] = *e
	return nil
}

func (r *entrepriseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Entreprise, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entreprises[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &e, nil
}

func (r *entrepriseRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.TenantMembership
	for _, m := range r.s.memberships {
		if m.UserID != userID || !m.IsActive {
			continue
		}
		e, ok := r.s.entreprises[m.EntrepriseID]
		if !ok || !e.IsActive {
			continue
		}
		out = append(out, &models.TenantMembership{
			Entreprise:   e,
			MembershipID: m.ID,
			Role:         m.Role,
			JoinedAt:     m.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entreprise.Name < out[j].Entreprise.Name })
	return out, nil
}

type membershipRepository struct{ s *Store }

func (r *membershipRepository) Create(ctx context.Context, m *models.Membership) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.memberships {
		if existing.IsActive && existing.UserID == m.UserID && existing.EntrepriseID == m.EntrepriseID {
			return repositories.ErrConflict
		}
	}
	r.s.memberships[m.ID] = *m
	return nil
}

func (r *membershipRepository) GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[id]
	if !ok || !m.IsActive || m.EntrepriseID != entrepriseID {
		return nil, repositories.ErrNotFound
	}
	return &m, nil
}

func (r *membershipRepository) GetActive(ctx context.Context, userID, entrepriseID uuid.UUID) (*models.Membership, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.memberships {
		if m.IsActive && m.UserID == userID && m.EntrepriseID == entrepriseID {
			out := m
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *membershipRepository) ListActiveMembers(ctx context.Context, entrepriseID uuid.UUID) ([]*models.MemberDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.MemberDetail
	for _, m := range r.s.memberships {
		if !m.IsActive || m.EntrepriseID != entrepriseID {
			continue
		}
		u := r.s.users[m.UserID]
		out = append(out, &models.MemberDetail{
			MembershipID: m.ID,
			UserID:       m.UserID,
			Username:     u.Username,
			Email:        u.Email,
			Role:         m.Role,
			JoinedAt:     m.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *membershipRepository) update(id uuid.UUID, fn func(*models.Membership)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memberships[id]
	if !ok || !m.IsActive {
		return repositories.ErrNotFound
	}
	fn(&m)
	m.UpdatedAt = time.Now()
	r.s.memberships[id] = m
	return nil
}

func (r *membershipRepository) UpdateRole(ctx context.Context, id uuid.UUID, role models.MembershipRole) error {
	return r.update(id, func(m *models.Membership) { m.Role = role })
}

func (r *membershipRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(m *models.Membership) { m.IsActive = false })
}
