package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	issuer   = "SynapseCode_user_service"
	audience = "SynapseCode_clients"
)

// ErrInvalidToken 表示令牌无法解析、签名错误或已经过期。
var ErrInvalidToken = errors.New("无效的 token")

// Tokens 负责签发和校验 HS256 JWT。sub 中存放用户的 UID。
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens 创建一个 Tokens。ttl 为 0 时使用 7 天。
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Identity 是令牌中携带的用户身份。展示名和头像随令牌下发，
// 工作区服务因此不需要回查认证服务。
type Identity struct {
	UserID      string
	DisplayName string
	PhotoRef    string
}

// Issue 为指定用户签发一个只包含 UID 的 JWT。
func (t *Tokens) Issue(userID string) (string, error) {
	return t.IssueIdentity(Identity{UserID: userID})
}

// IssueIdentity 签发携带展示名和头像的 JWT。
func (t *Tokens) IssueIdentity(id Identity) (string, error) {
	if id.UserID == "" {
		return "", errors.New("userID 不能为空")
	}
	now := t.now()
	claims := jwt.MapClaims{
		"sub": id.UserID,
		"iss": issuer,
		"aud": audience,
		"exp": now.Add(t.ttl).Unix(),
		"iat": now.Unix(),
	}
	if id.DisplayName != "" {
		claims["name"] = id.DisplayName
	}
	if id.PhotoRef != "" {
		claims["picture"] = id.PhotoRef
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify 校验令牌并返回其中的用户 ID。
func (t *Tokens) Verify(tokenString string) (string, error) {
	id, err := t.VerifyIdentity(tokenString)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

// VerifyIdentity 校验令牌并返回完整身份。
func (t *Tokens) VerifyIdentity(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrInvalidToken
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// 确保 token 的签名方法是我们期望的
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if !claims.VerifyAudience(audience, true) || !claims.VerifyIssuer(issuer, true) {
		return Identity{}, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, fmt.Errorf("%w: 缺少 sub", ErrInvalidToken)
	}
	id := Identity{UserID: sub}
	id.DisplayName, _ = claims["name"].(string)
	id.PhotoRef, _ = claims["picture"].(string)
	return id, nil
}
