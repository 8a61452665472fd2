package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/folio/internal/domain"
)

// memoryUserRepository backs the API when no POSTGRES_DSN is configured.
type memoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryUserRepository returns an in-process implementation.
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (r *memoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.Clone(domain.NormalizeEmail(user.Email))
	if _, exists := r.byEmail[email]; exists {
		return ErrDuplicateEmail
	}
	now := r.now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.ID = strings.Clone(user.ID)
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now

	r.byID[user.ID] = *user
	r.byEmail[email] = user.ID
	return nil
}

func (r *memoryUserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[user.ID]
	if !ok {
		return ErrUserNotFound
	}
	email := domain.NormalizeEmail(user.Email)
	if ownerID, taken := r.byEmail[email]; taken && ownerID != user.ID {
		return ErrDuplicateEmail
	}
	delete(r.byEmail, existing.Email)

	user.ID = existing.ID
	user.Email = strings.Clone(email)
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = r.now().UTC()
	r.byID[existing.ID] = *user
	r.byEmail[user.Email] = existing.ID
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	user, ok := r.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (r *memoryUserRepository) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	r.mu.RLock()
	users := make([]domain.User, 0, len(r.byID))
	for _, user := range r.byID {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && user.IsActive != *filter.Active {
			continue
		}
		users = append(users, user)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Email < users[j].Email
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if filter.Offset >= len(users) {
		return []domain.User{}, nil
	}
	users = users[filter.Offset:]
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *memoryUserRepository) SetActive(_ context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.IsActive = active
	user.UpdatedAt = r.now().UTC()
	r.byID[user.ID] = user
	return nil
}

func (r *memoryUserRepository) SetRole(_ context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	user.Role = role
	user.UpdatedAt = r.now().UTC()
	r.byID[user.ID] = user
	return nil
}
