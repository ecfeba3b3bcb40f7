package mailer

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/internal/models"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sesRequest 是 SendEmail 请求体中测试关心的字段。
type sesRequest struct {
	FromEmailAddress string
	Destination      struct{ ToAddresses []string }
	Content          struct {
		Simple struct {
			Subject struct{ Data string }
			Body    struct{ Html struct{ Data string } }
		}
	}
}

// newFakeSES 启动一个模拟 SES v2 接口的服务器，handler 决定每次请求的响应。
func newFakeSES(t *testing.T, handler func(w http.ResponseWriter, req sesRequest)) (*SES, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/email/outbound-emails", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Credential=test-key/")
		var req sesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		handler(w, req)
	}))
	t.Cleanup(srv.Close)

	s, err := NewSES(context.Background(), config.MailConfig{
		From:            "noreply@example.com",
		Region:          "eu-central-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        srv.URL,
	})
	require.NoError(t, err)
	return s, &calls
}

func TestSendMailRejectsMalformedAddresses(t *testing.T) {
	var got sesRequest
	s, calls := newFakeSES(t, func(w http.ResponseWriter, req sesRequest) {
		got = req
		_, _ = w.Write([]byte(`{"MessageId":"m-1"}`))
	})

	rejected, err := s.SendMail(context.Background(), []string{"Bob <bob@example.com>", "not-an-address"}, "SynapseCode | Reset", "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, []string{"not-an-address"}, rejected)
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "noreply@example.com", got.FromEmailAddress)
	assert.Equal(t, []string{"bob@example.com"}, got.Destination.ToAddresses)
	assert.Equal(t, "SynapseCode | Reset", got.Content.Simple.Subject.Data)
	assert.Equal(t, "<p>hi</p>", got.Content.Simple.Body.Html.Data)
}

func TestSendMailOnlyInvalidAddressesSkipsSES(t *testing.T) {
	s, calls := newFakeSES(t, func(w http.ResponseWriter, req sesRequest) {
		_, _ = w.Write([]byte(`{"MessageId":"m-1"}`))
	})
	rejected, err := s.SendMail(context.Background(), []string{"nope"}, "s", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"nope"}, rejected)
	assert.EqualValues(t, 0, calls.Load())
}

func TestSendMailMessageRejected(t *testing.T) {
	s, _ := newFakeSES(t, func(w http.ResponseWriter, req sesRequest) {
		w.Header().Set("X-Amzn-ErrorType", "MessageRejected")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Email address is not verified."}`))
	})
	rejected, err := s.SendMail(context.Background(), []string{"bob@example.com"}, "s", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@example.com"}, rejected)
}

func TestSendMailServiceFailureIsNotRetried(t *testing.T) {
	s, calls := newFakeSES(t, func(w http.ResponseWriter, req sesRequest) {
		w.Header().Set("X-Amzn-ErrorType", "TooManyRequestsException")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	})
	rejected, err := s.SendMail(context.Background(), []string{"bob@example.com"}, "s", "b")
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
	assert.Equal(t, []string{"bob@example.com"}, rejected)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewSESValidatesConfig(t *testing.T) {
	_, err := NewSES(context.Background(), config.MailConfig{})
	assert.Error(t, err)

	_, err = NewSES(context.Background(), config.MailConfig{From: "a@b.c", AccessKeyID: "only-key"})
	assert.Error(t, err)
}

func TestTemplatesEscape(t *testing.T) {
	html, err := InviteHTML("<script>", "W")
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "W")

	html, err = ResetPasswordHTML("https://app.example/reset?token=abc")
	require.NoError(t, err)
	assert.Contains(t, html, "token=abc")
}
