package identity

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository. Data is lost on restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	records  []Record
	byName   map[string]int
	byEmail  map[string]int
	byPublic map[string]int
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byName:   make(map[string]int),
		byEmail:  make(map[string]int),
		byPublic: make(map[string]int),
	}
}

func (r *MemoryRepository) ExistsUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, nameTaken := r.byName[username]
	_, emailTaken := r.byEmail[NormalizeEmail(email)]
	return nameTaken || emailTaken, nil
}

func (r *MemoryRepository) PublicIDExists(ctx context.Context, publicID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byPublic[publicID]
	return ok, nil
}

func (r *MemoryRepository) Create(ctx context.Context, rec Record) (User, error) {
	const op = "identity.MemoryRepository.Create"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	rec.Email = NormalizeEmail(rec.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[rec.Username]; ok {
		return User{}, ConflictError{Op: op, Field: FieldUsername}
	}
	if _, ok := r.byEmail[rec.Email]; ok {
		return User{}, ConflictError{Op: op, Field: FieldEmail}
	}
	if _, ok := r.byPublic[rec.PublicID]; ok {
		return User{}, ConflictError{Op: op, Field: FieldPublicID}
	}

	idx := len(r.records)
	r.records = append(r.records, rec)
	r.byName[rec.Username] = idx
	r.byEmail[rec.Email] = idx
	r.byPublic[rec.PublicID] = idx

	return rec.User, nil
}

// FindByLogin prefers the oldest matching account when the identifier matches
// more than one column across different users.
func (r *MemoryRepository) FindByLogin(ctx context.Context, identifier string) (Record, error) {
	const op = "identity.MemoryRepository.FindByLogin"
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	best := -1
	for _, idx := range []int{
		lookup(r.byName, identifier),
		lookup(r.byEmail, NormalizeEmail(identifier)),
		lookup(r.byPublic, identifier),
	} {
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return Record{}, NotFoundError{Op: op, Resource: "user"}
	}
	return r.records[best], nil
}

// Len returns the number of stored users.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func (r *MemoryRepository) Close() error { return nil }

func lookup(m map[string]int, key string) int {
	if idx, ok := m[key]; ok {
		return idx
	}
	return -1
}

var _ Repository = (*MemoryRepository)(nil)
