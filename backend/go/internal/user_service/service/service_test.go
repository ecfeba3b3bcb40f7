package service

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/internal/user_service/store"
	"SynapseCode/backend/go/pkg/auth"
	"context"
	"errors"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	to   []string
	html string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendMail(ctx context.Context, to []string, subject, html string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return to, m.err
	}
	m.sent = append(m.sent, sentMail{to: to, html: html})
	return nil, nil
}

type fakeGoogle map[string]*GoogleIdentity

func (g fakeGoogle) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if id, ok := g[idToken]; ok {
		return id, nil
	}
	return nil, models.ErrUnauthorized
}

type fixture struct {
	svc    *Service
	users  *store.MemoryStore
	tokens *auth.Tokens
	mail   *fakeMailer
}

func newFixture(t *testing.T, google GoogleVerifier) *fixture {
	t.Helper()
	users := store.NewMemoryStore()
	tokens := auth.NewTokens("test-secret", time.Hour)
	mail := &fakeMailer{}
	svc := NewService(users, store.NewMemoryResetTokens(nil), tokens, Options{
		ResetURL: "https://synapse.example/reset",
		Mailer:   mail,
		Google:   google,
	})
	return &fixture{svc: svc, users: users, tokens: tokens, mail: mail}
}

func TestRegisterThenLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, " Ada@Example.com ", "correct horse", "ada", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", reg.User.DisplayName)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.Equal(t, defaultAvatar, reg.User.PhotoRef)

	id, err := f.tokens.VerifyIdentity(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.UserID, id.UserID)
	assert.Equal(t, "Ada Lovelace", id.DisplayName)

	login, err := f.svc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, reg.User.UserID, login.User.UserID)

	stored, err := f.users.GetUserByUID(ctx, reg.User.UserID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
	assert.NotEqual(t, "correct horse", stored.Password)
	assert.Equal(t, models.DefaultSettings(), stored.Settings.Data())
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "not-an-email", "correct horse", "ada", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.svc.Register(ctx, "ada@example.com", "short", "ada", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = f.svc.Register(ctx, "ada@example.com", "correct horse", "  ", "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "ADA@example.com", "another pass", "ada2", "")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLoginFailuresLookTheSame(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)

	_, wrongPass := f.svc.Login(ctx, "ada@example.com", "battery staple")
	_, noUser := f.svc.Login(ctx, "bob@example.com", "correct horse")
	assert.ErrorIs(t, wrongPass, models.ErrUnauthorized)
	assert.ErrorIs(t, noUser, models.ErrUnauthorized)
	assert.Equal(t, wrongPass.Error(), noUser.Error())
}

func TestSuspendedAccountCannotLogin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)

	u, err := f.users.GetUserByUID(ctx, reg.User.UserID)
	require.NoError(t, err)
	u.Status = models.StatusSuspended
	require.NoError(t, f.users.UpdateUser(ctx, u))

	_, err = f.svc.Login(ctx, "ada@example.com", "correct horse")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestGoogleLogin(t *testing.T) {
	f := newFixture(t, fakeGoogle{
		"good":       {Subject: "g-1", Email: "grace@example.com", EmailVerified: true, Name: "Grace Hopper", Picture: "https://img/g.png"},
		"unverified": {Subject: "g-2", Email: "eve@example.com"},
		"taken":      {Subject: "g-3", Email: "ada@example.com", EmailVerified: true},
	})
	ctx := context.Background()

	first, err := f.svc.GoogleLogin(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", first.User.DisplayName)
	assert.Equal(t, "https://img/g.png", first.User.PhotoRef)

	again, err := f.svc.GoogleLogin(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, first.User.UserID, again.User.UserID)

	_, err = f.svc.GoogleLogin(ctx, "forged")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.svc.GoogleLogin(ctx, "unverified")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)
	_, err = f.svc.GoogleLogin(ctx, "taken")
	assert.ErrorIs(t, err, models.ErrConflict)

	// a Google account has no password to log in with
	_, err = f.svc.Login(ctx, "grace@example.com", "")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = newFixture(t, nil).svc.GoogleLogin(ctx, "good")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestProfileAndSettings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	reg, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)
	uid := reg.User.UserID
	assert.Equal(t, "ada", reg.User.DisplayName)

	p, err := f.svc.UpdateProfile(ctx, uid, " Ada L. ", "")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", p.DisplayName)
	assert.Equal(t, defaultAvatar, p.PhotoRef)

	settings, err := f.svc.Settings(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), settings)

	settings.Theme = "light"
	settings.FontSize = 16
	_, err = f.svc.UpdateSettings(ctx, uid, settings)
	require.NoError(t, err)
	got, err := f.svc.Settings(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "light", got.Theme)
	assert.Equal(t, 16, got.FontSize)

	settings.FontSize = 200
	_, err = f.svc.UpdateSettings(ctx, uid, settings)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.Profile(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	me, err := f.svc.Register(ctx, "bea@example.com", "correct horse", "bea", "")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "bob@example.com", "correct horse", "bob", "")
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, "carl@example.com", "correct horse", "carl", "")
	require.NoError(t, err)

	found, err := f.svc.SearchUsers(ctx, me.User.UserID, " B ")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob@example.com", found[0].Email)

	_, err = f.svc.SearchUsers(ctx, me.User.UserID, "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

var tokenInLink = regexp.MustCompile(`href="([^"]+)"`)

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.SendPasswordReset(ctx, "ada@example.com"))
	require.NoError(t, f.svc.SendPasswordReset(ctx, "nobody@example.com"))
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, []string{"ada@example.com"}, f.mail.sent[0].to)

	m := tokenInLink.FindStringSubmatch(f.mail.sent[0].html)
	require.Len(t, m, 2)
	link, err := url.Parse(m[1])
	require.NoError(t, err)
	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "short"), models.ErrInvalidInput)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "battery staple"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "battery staple"), models.ErrUnauthorized)

	_, err = f.svc.Login(ctx, "ada@example.com", "correct horse")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.svc.Login(ctx, "ada@example.com", "battery staple")
	require.NoError(t, err)
}

func TestPasswordResetMailFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "ada@example.com", "correct horse", "ada", "")
	require.NoError(t, err)

	f.mail.err = errors.New("ses unavailable")
	assert.Error(t, f.svc.SendPasswordReset(ctx, "ada@example.com"))

	svc := NewService(f.users, store.NewMemoryResetTokens(nil), f.tokens, Options{})
	assert.ErrorIs(t, svc.SendPasswordReset(ctx, "ada@example.com"), models.ErrUpstreamUnavailable)
}
