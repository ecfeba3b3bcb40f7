package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore 是进程内的 Users 实现，用于本地开发和测试。
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	users  map[string]*models.User // 按 UID
}

// NewMemoryStore 创建一个空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*models.User)}
}

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.UID == user.UID || u.Email == user.Email || u.Username == user.Username ||
			(u.Provider == user.Provider && u.ProviderID == user.ProviderID) {
			return fmt.Errorf("create user %s: %w", user.Email, models.ErrConflict)
		}
	}
	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.UID] = clone(user)
	return nil
}

func (s *MemoryStore) find(match func(*models.User) bool, what string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", what, models.ErrNotFound)
}

func (s *MemoryStore) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.UID == uid }, "user "+uid)
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.find(func(u *models.User) bool { return u.Email == email }, "user "+email)
}

func (s *MemoryStore) GetUserByProviderID(ctx context.Context, provider, providerID string) (*models.User, error) {
	return s.find(func(u *models.User) bool {
		return u.Provider == provider && u.ProviderID == providerID
	}, provider+" account "+providerID)
}

func (s *MemoryStore) SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.Status == models.StatusActive && strings.HasPrefix(u.Email, prefix) {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.UID]; !ok {
		return fmt.Errorf("update user %s: %w", user.UID, models.ErrNotFound)
	}
	user.UpdatedAt = time.Now()
	s.users[user.UID] = clone(user)
	return nil
}
