package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Users 是用户账户的持久化接口。查不到时返回 models.ErrNotFound，
// 邮箱、用户名或第三方账号重复时返回 models.ErrConflict。
type Users interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByProviderID(ctx context.Context, provider, providerID string) (*models.User, error)
	// SearchByEmailPrefix 按邮箱前缀查找用户，结果按邮箱排序。
	SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// ResetTokens 保存一次性的重置密码令牌。
type ResetTokens interface {
	Save(ctx context.Context, token, uid string, ttl time.Duration) error
	// Consume 取出并删除令牌；不存在或已过期时返回 models.ErrNotFound。
	Consume(ctx context.Context, token string) (string, error)
}

// Store 基于 GORM 实现 Users。
type Store struct {
	DB *gorm.DB
}

// NewStore 创建一个新的 Store 实例。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Migrate 创建或更新 users 表。
func (s *Store) Migrate() error {
	return s.DB.AutoMigrate(&models.User{})
}

// translate 把 GORM 错误转换为领域错误。需要在 gorm.Config 中打开 TranslateError。
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, models.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
