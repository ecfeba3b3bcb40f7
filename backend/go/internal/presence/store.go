package presence

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"sync"
	"time"
)

// Store 保存在线记录。记录是临时的，进程重启或过期后即丢失。
type Store interface {
	Put(ctx context.Context, rec models.PresenceRecord) error
	Remove(ctx context.Context, workspaceID, userID string) (bool, error)
	List(ctx context.Context, workspaceID string) ([]models.PresenceRecord, error)
	// Expire 删除 UpdatedAt 早于 cutoff 的记录，返回受影响的工作区。
	Expire(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Watcher 由多实例共享的存储实现，用于感知其他实例写入的变化。
type Watcher interface {
	Watch(ctx context.Context, onChange func(workspaceID string)) error
}

// MemoryStore 是单实例使用的内存实现。
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]map[string]models.PresenceRecord
}

// NewMemoryStore 创建一个空的 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[string]models.PresenceRecord)}
}

func (s *MemoryStore) Put(ctx context.Context, rec models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.records[rec.WorkspaceID]
	if !ok {
		ws = make(map[string]models.PresenceRecord)
		s.records[rec.WorkspaceID] = ws
	}
	// 乱序到达的旧坐标不覆盖新坐标
	if cur, ok := ws[rec.UserID]; ok && cur.UpdatedAt.After(rec.UpdatedAt) {
		return nil
	}
	ws[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, workspaceID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.records[workspaceID]
	if !ok {
		return false, nil
	}
	if _, ok := ws[userID]; !ok {
		return false, nil
	}
	delete(ws, userID)
	if len(ws) == 0 {
		delete(s.records, workspaceID)
	}
	return true, nil
}

func (s *MemoryStore) List(ctx context.Context, workspaceID string) ([]models.PresenceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PresenceRecord, 0, len(s.records[workspaceID]))
	for _, rec := range s.records[workspaceID] {
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Expire(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var touched []string
	for wsID, ws := range s.records {
		removed := false
		for userID, rec := range ws {
			if rec.UpdatedAt.Before(cutoff) {
				delete(ws, userID)
				removed = true
			}
		}
		if len(ws) == 0 {
			delete(s.records, wsID)
		}
		if removed {
			touched = append(touched, wsID)
		}
	}
	return touched, nil
}
