package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address  string `yaml:"address"`  // MongoDB 服务器地址
	Username string `yaml:"username"` // 用户名
	Password string `yaml:"password"` // 密码
	Database string `yaml:"database"` // 数据库名称
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表
	Username  string   `yaml:"username"`  // 用户名
	Password  string   `yaml:"password"`  // 密码
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topics  []string `yaml:"topics"`  // 启动时需要确保存在的主题
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`   // Redis 数据库配置
	MySQL   MySQLConfig `yaml:"mysql"`   // MySQL 数据库配置
	MongoDB MongoConfig `yaml:"mongodb"` // MongoDB 数据库配置
	Etcd    EtcdConfig  `yaml:"etcd"`    // Etcd 服务发现配置
	Kafka   KafkaConfig `yaml:"kafka"`   // Kafka 消息队列配置
}

// GoogleOAuthConfig 定义了 Google OAuth 的认证配置。
type GoogleOAuthConfig struct {
	ClientID     string `yaml:"clientID"`     // Google OAuth 客户端ID
	ClientSecret string `yaml:"clientSecret"` // Google OAuth 客户端Secret
	RedirectURL  string `yaml:"redirectURL"`  // 重定向URL
}

// AuthConfig 用于配置认证相关设置。
type AuthConfig struct {
	JwtSecret     string            `yaml:"jwtSecret"`     // JWT 密钥，可被环境变量 JWT_SECRET 覆盖
	TokenTTL      int               `yaml:"tokenTTL"`      // JWT 令牌的有效期（秒）
	ResetTokenTTL int               `yaml:"resetTokenTTL"` // 重置密码令牌的有效期（秒）
	ResetURL      string            `yaml:"resetURL"`      // 重置密码邮件中的前端链接前缀
	Google        GoogleOAuthConfig `yaml:"google"`        // Google OAuth 配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// LLMConfig 包含了生成式文本服务的配置。
type LLMConfig struct {
	Provider string       `yaml:"provider"` // "gemini"、"openai" 或 "ollama"
	Timeout  string       `yaml:"timeout"`  // 单次调用超时，例如 "30s"
	Gemini   GeminiConfig `yaml:"gemini"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
}

// OpenAIConfig 用于任何兼容 OpenAI Chat Completions 协议的服务。
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`  // 可被环境变量 OPENAI_API_KEY 覆盖
	BaseURL string `yaml:"baseURL"` // 为空时使用官方地址
	Model   string `yaml:"model"`
}

// OllamaConfig 是本地 Ollama 服务的配置。
type OllamaConfig struct {
	BaseURL string `yaml:"baseURL"` // 默认 "http://localhost:11434"
	Model   string `yaml:"model"`
}

// GeminiConfig 包含了 Gemini 模型的配置。
type GeminiConfig struct {
	APIKey string `yaml:"apiKey"` // 可被环境变量 GEMINI_API_KEY 覆盖
	Model  string `yaml:"model"`  // 例如 "gemini-1.5-flash"
}

// ExecutorConfig 是 Judge0 代码执行服务的配置。
type ExecutorConfig struct {
	BaseURL string `yaml:"baseURL"` // 例如 "https://judge0-ce.p.rapidapi.com"
	APIKey  string `yaml:"apiKey"`  // 可被环境变量 RAPIDAPI_KEY 覆盖
	APIHost string `yaml:"apiHost"` // X-RapidAPI-Host 头
	Timeout string `yaml:"timeout"`
}

// MailConfig 是 Amazon SES 发信配置。访问密钥为空时使用 AWS 默认凭证链。
type MailConfig struct {
	From            string `yaml:"from"`
	Region          string `yaml:"region"`          // 默认 "eu-central-1"
	AccessKeyID     string `yaml:"accessKeyID"`     // 可被环境变量 SES_ACCESS_KEY_ID 覆盖
	SecretAccessKey string `yaml:"secretAccessKey"` // 可被环境变量 SES_SECRET_ACCESS_KEY 覆盖
	Endpoint        string `yaml:"endpoint"`        // 留空使用官方地址，本地开发可指向模拟服务
}

// WorkspaceServiceConfig 是工作区服务（REST + 网关）的配置。
type WorkspaceServiceConfig struct {
	ServerAddress    string `yaml:"serverAddress"`
	StoreBackend     string `yaml:"storeBackend"`     // "memory" 或 "mongo"
	ChangeFeedTopic  string `yaml:"changeFeedTopic"`  // Kafka 主题，为空则不跨实例转发
	ConsumerGroup    string `yaml:"consumerGroup"`    // 每个实例应使用不同的消费组
	IdempotencyTTL   string `yaml:"idempotencyTTL"`   // 幂等令牌保留时长，例如 "10m"
	IdempotencyLimit int    `yaml:"idempotencyLimit"` // 幂等缓存最大条目数
	RegisterInEtcd   bool   `yaml:"registerInEtcd"`   // 是否在 etcd 中注册网关节点
	AdvertiseAddress string `yaml:"advertiseAddress"` // 注册到 etcd 的对外地址
}

// PresenceConfig 是在线状态服务的配置。
type PresenceConfig struct {
	Backend       string `yaml:"backend"`       // "memory" 或 "redis"
	Timeout       string `yaml:"timeout"`       // 记录存活时间，默认 "15s"
	SweepInterval string `yaml:"sweepInterval"` // 清扫间隔，默认 "5s"
	QueueSize     int    `yaml:"queueSize"`     // 发布队列长度
}

// GatewayConfig 是会话网关的配置。
type GatewayConfig struct {
	OutboundBuffer int      `yaml:"outboundBuffer"` // 每个会话的发送缓冲
	WriteTimeout   string   `yaml:"writeTimeout"`
	PingInterval   string   `yaml:"pingInterval"`
	PongTimeout    string   `yaml:"pongTimeout"`
	DrainTimeout   string   `yaml:"drainTimeout"`
	AllowedOrigins []string `yaml:"allowedOrigins"` // 为空表示允许所有来源
}

// UserServiceConfig 是认证服务的配置。
type UserServiceConfig struct {
	ServerAddress string `yaml:"serverAddress"`
	StoreBackend  string `yaml:"storeBackend"` // "mysql" 或 "memory"
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了限流器的配置。限流按用户（未登录时按 IP）分别计算。
type RateLimiterConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Algorithm   string            `yaml:"algorithm"` // 支持: "fixedWindow", "tokenBucket"
	FixedWindow FixedWindowConfig `yaml:"fixedWindow"`
	TokenBucket TokenBucketConfig `yaml:"tokenBucket"`
}

// FixedWindowConfig 定义了固定窗口计数器算法的配置。
type FixedWindowConfig struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"` // 例如: "1m", "30s"
}

// TokenBucketConfig 定义了令牌桶算法的配置。
type TokenBucketConfig struct {
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App              AppInfo                `yaml:"app"`
	Auth             AuthConfig             `yaml:"auth"`
	LLM              LLMConfig              `yaml:"llm"`
	Executor         ExecutorConfig         `yaml:"executor"`
	Mail             MailConfig             `yaml:"mail"`
	Logger           LoggerConfig           `yaml:"logger"`
	Databases        DatabaseConfigs        `yaml:"databases"`
	Middleware       MiddlewareConfig       `yaml:"middleware"`
	WorkspaceService WorkspaceServiceConfig `yaml:"workspaceService"`
	UserService      UserServiceConfig      `yaml:"userService"`
	Presence         PresenceConfig         `yaml:"presence"`
	Gateway          GatewayConfig          `yaml:"gateway"`
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 如果当前目录存在 .env 文件，会先将其加载到环境变量中；随后环境变量中的
// 密钥会覆盖 YAML 中的同名配置。
func LoadConfig(path string) (*AppConfig, error) {
	// .env 不存在不是错误。
	_ = godotenv.Load()

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Parse 解析 YAML 内容，填充默认值并应用环境变量覆盖。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * 3600
	}
	if c.Auth.ResetTokenTTL == 0 {
		c.Auth.ResetTokenTTL = 30 * 60
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.Gemini.Model == "" {
		c.LLM.Gemini.Model = "gemini-1.5-flash"
	}
	if c.LLM.Timeout == "" {
		c.LLM.Timeout = "30s"
	}
	if c.Executor.Timeout == "" {
		c.Executor.Timeout = "30s"
	}
	if c.WorkspaceService.ServerAddress == "" {
		c.WorkspaceService.ServerAddress = ":8081"
	}
	if c.WorkspaceService.StoreBackend == "" {
		c.WorkspaceService.StoreBackend = "memory"
	}
	if c.WorkspaceService.IdempotencyTTL == "" {
		c.WorkspaceService.IdempotencyTTL = "10m"
	}
	if c.WorkspaceService.IdempotencyLimit == 0 {
		c.WorkspaceService.IdempotencyLimit = 10000
	}
	if c.UserService.ServerAddress == "" {
		c.UserService.ServerAddress = ":8080"
	}
	if c.UserService.StoreBackend == "" {
		c.UserService.StoreBackend = "mysql"
	}
	if c.Presence.Backend == "" {
		c.Presence.Backend = "memory"
	}
	if c.Presence.Timeout == "" {
		c.Presence.Timeout = "15s"
	}
	if c.Presence.SweepInterval == "" {
		c.Presence.SweepInterval = "5s"
	}
	if c.Presence.QueueSize == 0 {
		c.Presence.QueueSize = 1024
	}
	if c.Gateway.OutboundBuffer == 0 {
		c.Gateway.OutboundBuffer = 256
	}
	if c.Gateway.WriteTimeout == "" {
		c.Gateway.WriteTimeout = "10s"
	}
	if c.Gateway.PingInterval == "" {
		c.Gateway.PingInterval = "20s"
	}
	if c.Gateway.PongTimeout == "" {
		c.Gateway.PongTimeout = "45s"
	}
	if c.Gateway.DrainTimeout == "" {
		c.Gateway.DrainTimeout = "5s"
	}
}

func (c *AppConfig) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JwtSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("RAPIDAPI_KEY"); v != "" {
		c.Executor.APIKey = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.Mail.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.Mail.SecretAccessKey = v
	}
}

func (c *AppConfig) validate() error {
	durations := map[string]string{
		"llm.timeout":                     c.LLM.Timeout,
		"executor.timeout":                c.Executor.Timeout,
		"workspaceService.idempotencyTTL": c.WorkspaceService.IdempotencyTTL,
		"presence.timeout":                c.Presence.Timeout,
		"presence.sweepInterval":          c.Presence.SweepInterval,
		"gateway.writeTimeout":            c.Gateway.WriteTimeout,
		"gateway.pingInterval":            c.Gateway.PingInterval,
		"gateway.pongTimeout":             c.Gateway.PongTimeout,
		"gateway.drainTimeout":            c.Gateway.DrainTimeout,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("配置项 %s 不是合法的时长 %q: %w", key, value, err)
		}
	}
	switch c.WorkspaceService.StoreBackend {
	case "memory", "mongo":
	default:
		return fmt.Errorf("不支持的 storeBackend: %s", c.WorkspaceService.StoreBackend)
	}
	switch c.UserService.StoreBackend {
	case "mysql", "memory":
	default:
		return fmt.Errorf("不支持的 userService.storeBackend: %s", c.UserService.StoreBackend)
	}
	switch c.LLM.Provider {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("不支持的 llm.provider: %s", c.LLM.Provider)
	}
	switch c.Presence.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("不支持的 presence.backend: %s", c.Presence.Backend)
	}
	return nil
}

// Duration 解析一个已经校验过的时长字符串。
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
