package store

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"strings"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// CreateUser 在数据库中创建一个新用户。
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return translate(s.DB.WithContext(ctx).Create(user).Error, "create user "+user.Email)
}

// GetUserByEmail 通过邮箱地址查找用户。
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err, "user "+email)
	}
	return &user, nil
}

// GetUserByUID 通过对外 UID 查找用户。
func (s *Store) GetUserByUID(ctx context.Context, uid string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("uid = ?", uid).First(&user).Error; err != nil {
		return nil, translate(err, "user "+uid)
	}
	return &user, nil
}

// GetUserByProviderID 通过 OAuth 提供商和其提供的用户 ID 查找用户。
func (s *Store) GetUserByProviderID(ctx context.Context, provider, providerID string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", provider, providerID).
		First(&user).Error
	if err != nil {
		return nil, translate(err, provider+" account "+providerID)
	}
	return &user, nil
}

// SearchByEmailPrefix 用于邀请时的用户选择器。
func (s *Store) SearchByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*models.User, error) {
	var users []*models.User
	err := s.DB.WithContext(ctx).
		Where("email LIKE ? AND status = ?", likeEscaper.Replace(prefix)+"%", models.StatusActive).
		Order("email").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, translate(err, "search users")
	}
	return users, nil
}

// UpdateUser 更新用户信息。
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	return translate(s.DB.WithContext(ctx).Save(user).Error, "update user "+user.UID)
}
