package mailer

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// DefaultRegion 是未配置区域时使用的 SES 区域。
const DefaultRegion = "eu-central-1"

// Sender 是发送事务邮件的接口，返回被拒收的地址。
type Sender interface {
	SendMail(ctx context.Context, to []string, subject, html string) ([]string, error)
}

// EmailAPI 是 sesv2.Client 中用到的部分，测试中可以替换。
type EmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES 通过 Amazon SES v2 发信。
type SES struct {
	api  EmailAPI
	from string
}

// NewSES 根据配置创建发信客户端。未配置访问密钥时使用 AWS 默认凭证链；
// Endpoint 用于本地模拟服务。SDK 内部不做重试，失败直接交给调用方。
func NewSES(ctx context.Context, cfg config.MailConfig) (*SES, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("邮件服务未配置 from")
	}
	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("accessKeyID 和 secretAccessKey 必须同时配置")
		}
		cred := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(cred))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("加载 AWS 配置失败: %w", err)
	}
	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewSESWithAPI(client, cfg.From), nil
}

// NewSESWithAPI 使用已有的 SES 客户端。
func NewSESWithAPI(api EmailAPI, from string) *SES {
	return &SES{api: api, from: from}
}

// SendMail 发送一封 HTML 邮件。格式不合法的地址会直接列入拒收，其余地址一次性提交。
// SES 拒收整封邮件时全部地址计入拒收；其他 SDK 错误归为 models.ErrUpstreamUnavailable。
func (s *SES) SendMail(ctx context.Context, to []string, subject, html string) ([]string, error) {
	var valid, rejected []string
	for _, addr := range to {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			rejected = append(rejected, addr)
			continue
		}
		valid = append(valid, parsed.Address)
	}
	if len(valid) == 0 {
		return rejected, nil
	}
	if err := ctx.Err(); err != nil {
		return rejected, err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: valid,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		var rejectedErr *types.MessageRejected
		if errors.As(err, &rejectedErr) {
			return append(rejected, valid...), nil
		}
		return append(rejected, valid...), fmt.Errorf("发送邮件失败: %v: %w", err, models.ErrUpstreamUnavailable)
	}
	if out == nil || out.MessageId == nil {
		return append(rejected, valid...), fmt.Errorf("SES 未返回 MessageId: %w", models.ErrUpstreamUnavailable)
	}
	return rejected, nil
}
