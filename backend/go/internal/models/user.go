package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserStatus 定义了用户账户的生命周期状态。
type UserStatus string

const (
	StatusPending     UserStatus = "pending"     // 账号待激活或验证
	StatusActive      UserStatus = "active"      // 账号正常
	StatusSuspended   UserStatus = "suspended"   // 账号被暂停
	StatusDeactivated UserStatus = "deactivated" // 账号已停用
)

// User 代表系统中的一个用户账户。
// 对外（JWT、工作区成员、邀请）一律使用 UID，自增 ID 只在数据库内部使用。
type User struct {
	gorm.Model

	UID       string `gorm:"uniqueIndex;not null;size:36"`
	Username  string `gorm:"unique;not null"`
	FullName  string `gorm:"size:255"`
	Email     string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"size:255" json:"-"` // 存储哈希后的密码，json中忽略
	AvatarURL string

	Provider   string `gorm:"not null"`
	ProviderID string `gorm:"index:idx_provider_id,unique;not null"`

	Status      UserStatus `gorm:"type:varchar(20);default:'pending';not null"`
	LastLoginAt *time.Time
	Settings    datatypes.JSONType[UserSettings]
}

// UserSettings 是编辑器偏好。
type UserSettings struct {
	Theme           string `json:"theme"`
	FontSize        int    `json:"fontSize"`
	ShowLineNumbers bool   `json:"showLineNumbers"`
	AISuggestions   bool   `json:"aiSuggestions"`
}

// DefaultSettings 是新账户的初始偏好。
func DefaultSettings() UserSettings {
	return UserSettings{Theme: "dark", FontSize: 14, ShowLineNumbers: true, AISuggestions: true}
}

// Validate 校验用户提交的偏好。
func (s UserSettings) Validate() error {
	if s.Theme != "dark" && s.Theme != "light" {
		return fmt.Errorf("unknown theme %q: %w", s.Theme, ErrInvalidInput)
	}
	if s.FontSize < 8 || s.FontSize > 40 {
		return fmt.Errorf("font size %d out of range: %w", s.FontSize, ErrInvalidInput)
	}
	return nil
}

func (User) TableName() string {
	return "users"
}

// DisplayName 返回展示用的名字，FullName 为空时回退到 Username。
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// Profile 转换为对外公开的用户资料。
func (u *User) Profile() *UserProfile {
	return &UserProfile{
		UserID:      u.UID,
		DisplayName: u.DisplayName(),
		Email:       u.Email,
		PhotoRef:    u.AvatarURL,
	}
}

// UserProfile 是认证服务对外返回的用户身份：{userId, displayName, photoRef}。
type UserProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	PhotoRef    string `json:"photoRef,omitempty"`
}
