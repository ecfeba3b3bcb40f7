package service

import (
	"SynapseCode/backend/go/internal/mailer"
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/user_service/store"
	"SynapseCode/backend/go/pkg/auth"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
)

const (
	minPasswordLength = 8
	searchLimit       = 10
	providerEmail     = "email"
	providerGoogle    = "google"
	defaultAvatar     = "/robotic.png"
)

// Options 配置用户服务。
type Options struct {
	ResetTTL time.Duration
	// ResetURL 是重置密码页面的地址，令牌以 token 查询参数附加。
	ResetURL string
	Mailer   mailer.Sender
	Google   GoogleVerifier
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service 封装了账户、登录和个人设置的业务逻辑。
type Service struct {
	users  store.Users
	resets store.ResetTokens
	tokens *auth.Tokens
	opts   Options
	log    *logger.Logger
}

// Session 是登录成功后返回给客户端的内容。
type Session struct {
	Token string              `json:"token"`
	User  *models.UserProfile `json:"user"`
}

// NewService 创建一个新的 Service 实例。
func NewService(users store.Users, resets store.ResetTokens, tokens *auth.Tokens, opts Options) *Service {
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Service{users: users, resets: resets, tokens: tokens, opts: opts, log: log}
}

func normalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", fmt.Errorf("invalid email %q: %w", email, models.ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must have at least %d characters: %w", minPasswordLength, models.ErrInvalidInput)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("密码哈希失败: %w", err)
	}
	return string(hashed), nil
}

// --- User Registration & Login ---

// Register 处理新用户通过邮箱注册的逻辑，成功后直接登录。
func (s *Service) Register(ctx context.Context, email, password, username, fullName string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is empty: %w", models.ErrInvalidInput)
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("该邮箱已被注册: %w", models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		UID:        uuid.NewString(),
		Username:   username,
		FullName:   strings.TrimSpace(fullName),
		Email:      email,
		AvatarURL:  defaultAvatar,
		Provider:   providerEmail,
		ProviderID: email,
		Status:     models.StatusActive,
		Password:   hashed,
		Settings:   datatypes.NewJSONType(models.DefaultSettings()),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.UID).Info("新用户注册")
	return s.login(ctx, user)
}

// Login 处理用户通过邮箱登录的逻辑。邮箱不存在和密码错误返回同一个错误。
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("用户不存在或密码错误: %w", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if user.Password == "" || bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, fmt.Errorf("用户不存在或密码错误: %w", models.ErrUnauthorized)
	}
	return s.login(ctx, user)
}

// GoogleLogin 校验 Google ID token，首次登录时创建账户。
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*Session, error) {
	if s.opts.Google == nil {
		return nil, fmt.Errorf("google login is not configured: %w", models.ErrUpstreamUnavailable)
	}
	id, err := s.opts.Google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByProviderID(ctx, providerGoogle, id.Subject)
	if err == nil {
		return s.login(ctx, user)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if !id.EmailVerified {
		return nil, fmt.Errorf("google email %s is not verified: %w", id.Email, models.ErrUnauthorized)
	}
	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%s 已使用密码注册: %w", email, models.ErrConflict)
	}

	avatar := id.Picture
	if avatar == "" {
		avatar = defaultAvatar
	}
	uid := uuid.NewString()
	user = &models.User{
		UID:        uid,
		Username:   strings.SplitN(email, "@", 2)[0] + "-" + uid[:8],
		FullName:   id.Name,
		Email:      email,
		AvatarURL:  avatar,
		Provider:   providerGoogle,
		ProviderID: id.Subject,
		Status:     models.StatusActive,
		Settings:   datatypes.NewJSONType(models.DefaultSettings()),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithField("user_id", uid).Info("Google 用户首次登录")
	return s.login(ctx, user)
}

func (s *Service) login(ctx context.Context, user *models.User) (*Session, error) {
	if user.Status != models.StatusActive {
		return nil, fmt.Errorf("account is %s: %w", user.Status, models.ErrForbidden)
	}
	now := s.opts.Now()
	user.LastLoginAt = &now
	if err := s.users.UpdateUser(ctx, user); err != nil {
		s.log.WithErr(err).Warn("记录登录时间失败")
	}
	profile := user.Profile()
	token, err := s.tokens.IssueIdentity(auth.Identity{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
		PhotoRef:    profile.PhotoRef,
	})
	if err != nil {
		return nil, fmt.Errorf("签发 token 失败: %w", err)
	}
	return &Session{Token: token, User: profile}, nil
}

// --- Profile ---

// Profile 返回用户的公开资料。
func (s *Service) Profile(ctx context.Context, uid string) (*models.UserProfile, error) {
	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// UpdateProfile 修改展示名和头像，空值表示不修改。
func (s *Service) UpdateProfile(ctx context.Context, uid, fullName, photoRef string) (*models.UserProfile, error) {
	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(fullName); name != "" {
		user.FullName = name
	}
	if ref := strings.TrimSpace(photoRef); ref != "" {
		user.AvatarURL = ref
	}
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// Settings 返回编辑器偏好，旧账户没有保存过时返回默认值。
func (s *Service) Settings(ctx context.Context, uid string) (models.UserSettings, error) {
	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return models.UserSettings{}, err
	}
	settings := user.Settings.Data()
	if settings == (models.UserSettings{}) {
		settings = models.DefaultSettings()
	}
	return settings, nil
}

// UpdateSettings 整体替换编辑器偏好。
func (s *Service) UpdateSettings(ctx context.Context, uid string, settings models.UserSettings) (models.UserSettings, error) {
	if err := settings.Validate(); err != nil {
		return models.UserSettings{}, err
	}
	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return models.UserSettings{}, err
	}
	user.Settings = datatypes.NewJSONType(settings)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return models.UserSettings{}, err
	}
	return settings, nil
}

// SearchUsers 按邮箱前缀查找可邀请的用户，不包含调用者自己。
func (s *Service) SearchUsers(ctx context.Context, callerUID, prefix string) ([]*models.UserProfile, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, fmt.Errorf("search prefix is empty: %w", models.ErrInvalidInput)
	}
	users, err := s.users.SearchByEmailPrefix(ctx, prefix, searchLimit+1)
	if err != nil {
		return nil, err
	}
	out := make([]*models.UserProfile, 0, len(users))
	for _, u := range users {
		if u.UID == callerUID {
			continue
		}
		if len(out) == searchLimit {
			break
		}
		out = append(out, u.Profile())
	}
	return out, nil
}

// --- Password reset ---

// SendPasswordReset 生成一次性令牌并发送重置邮件。邮箱未注册时同样返回成功。
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if s.opts.Mailer == nil {
		return fmt.Errorf("mail is not configured: %w", models.ErrUpstreamUnavailable)
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		s.log.Debug("重置密码请求的邮箱未注册")
		return nil
	}
	if err != nil {
		return err
	}
	if user.Provider != providerEmail {
		s.log.WithField("user_id", user.UID).Debug("第三方账户不支持重置密码")
		return nil
	}

	token := uuid.NewString()
	if err := s.resets.Save(ctx, token, user.UID, s.opts.ResetTTL); err != nil {
		return err
	}
	html, err := mailer.ResetPasswordHTML(s.opts.ResetURL + "?token=" + token)
	if err != nil {
		return fmt.Errorf("渲染重置邮件失败: %w", err)
	}
	rejected, err := s.opts.Mailer.SendMail(ctx, []string{email}, "Reset your SynapseCode password", html)
	if err != nil {
		return err
	}
	if len(rejected) > 0 {
		return fmt.Errorf("mail server rejected %s: %w", email, models.ErrUpstreamUnavailable)
	}
	return nil
}

// ResetPassword 用重置令牌设置新密码，令牌只能使用一次。
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	uid, err := s.resets.Consume(ctx, token)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("重置链接无效或已过期: %w", models.ErrUnauthorized)
	}
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return err
	}
	user.Password = hashed
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.log.WithField("user_id", uid).Info("密码已重置")
	return nil
}
