package service

import (
	"SynapseCode/backend/go/internal/models"
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// GoogleIdentity 是从 Google ID token 中取出的用户信息。
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleVerifier 校验前端拿到的 Google ID token。
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// IDTokenVerifier 用 Google 公钥校验 ID token 的签名和 audience。
type IDTokenVerifier struct {
	clientID string
}

// NewIDTokenVerifier 创建校验器，clientID 是 OAuth 客户端 ID。
func NewIDTokenVerifier(clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{clientID: clientID}
}

func (v *IDTokenVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, idToken, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("google id token: %v: %w", err, models.ErrUnauthorized)
	}
	claim := func(key string) string {
		s, _ := payload.Claims[key].(string)
		return s
	}
	verified, _ := payload.Claims["email_verified"].(bool)
	return &GoogleIdentity{
		Subject:       payload.Subject,
		Email:         claim("email"),
		EmailVerified: verified,
		Name:          claim("name"),
		Picture:       claim("picture"),
	}, nil
}
