package memberrepo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iglesia-ietq/asistencia-api/internal/domain"
	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/memberrepo"
)

// Repo is an in-memory implementation of memberrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID    map[domain.MemberID]memberrepo.Member
	idByRut map[domain.Rut]domain.MemberID
}

func NewRepo() *Repo {
	return &Repo{
		byID:    make(map[domain.MemberID]memberrepo.Member),
		idByRut: make(map[domain.Rut]domain.MemberID),
	}
}

func (r *Repo) Create(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return memberrepo.ErrAlreadyExists
	}
	if m.Rut != "" {
		if _, ok := r.idByRut[m.Rut]; ok {
			return memberrepo.ErrRutAlreadyRegistered
		}
	}

	r.byID[m.ID] = cloneMember(m)
	if m.Rut != "" {
		r.idByRut[m.Rut] = m.ID
	}
	return nil
}

func (r *Repo) Update(ctx context.Context, m memberrepo.Member) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[m.ID]
	if !ok {
		return memberrepo.ErrNotFound
	}
	// Rut binding is immutable once set.
	if existing.Rut != m.Rut {
		return memberrepo.ErrRutAlreadyRegistered
	}

	r.byID[m.ID] = cloneMember(m)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.MemberID) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *Repo) GetByRut(ctx context.Context, rut domain.Rut) (memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByRut[rut]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	m, ok := r.byID[id]
	if !ok {
		return memberrepo.Member{}, memberrepo.ErrNotFound
	}
	return cloneMember(m), nil
}

func (r *Repo) ListActive(ctx context.Context) ([]memberrepo.Member, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]memberrepo.Member, 0, len(r.byID))
	for _, m := range r.byID {
		if !m.IsActive {
			continue
		}
		out = append(out, cloneMember(m))
	}
	sortMembersByName(out)
	return out, nil
}

func cloneMember(m memberrepo.Member) memberrepo.Member {
	out := m
	if m.Notes != nil {
		v := *m.Notes
		out.Notes = &v
	}
	return out
}

func sortMembersByName(ms []memberrepo.Member) {
	sort.Slice(ms, func(i, j int) bool {
		ni := strings.ToLower(ms[i].Name)
		nj := strings.ToLower(ms[j].Name)
		if ni == nj {
			return string(ms[i].ID) < string(ms[j].ID)
		}
		return ni < nj
	})
}
