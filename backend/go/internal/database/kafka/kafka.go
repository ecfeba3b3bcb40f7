package kafka

import (
	"SynapseCode/backend/go/internal/config"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Admin 是到 Kafka 的管理连接，启动时用来确认变更流主题存在。
type Admin struct {
	conn    *kafka.Conn
	brokers []string
	log     *logger.Logger
}

// Dial 连接配置中的第一个 broker。
func Dial(ctx context.Context, cfg *config.KafkaConfig, log *logger.Logger) (*Admin, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置 Kafka brokers")
	}
	dialer := &kafka.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka 初始化连接失败: %w", err)
	}
	return &Admin{conn: conn, brokers: cfg.Brokers, log: log}, nil
}

// EnsureTopics 创建尚不存在的主题，返回新建的主题名。
func (a *Admin) EnsureTopics(topics ...string) ([]string, error) {
	partitions, err := a.conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("无法读取 Kafka 分区信息: %w", err)
	}
	existing := make(map[string]struct{})
	for _, p := range partitions {
		existing[p.Topic] = struct{}{}
	}

	var toCreate []kafka.TopicConfig
	var names []string
	for _, name := range topics {
		if _, ok := existing[name]; ok || name == "" {
			continue
		}
		toCreate = append(toCreate, kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		names = append(names, name)
	}
	if len(toCreate) == 0 {
		return nil, nil
	}
	if err := a.conn.CreateTopics(toCreate...); err != nil {
		return nil, fmt.Errorf("自动创建 Kafka 主题失败: %w", err)
	}
	a.log.WithField("topics", names).Info("已创建 Kafka 主题")
	return names, nil
}

// Controller 返回集群控制器地址，也可作为健康检查。
func (a *Admin) Controller() (string, error) {
	controller, err := a.conn.Controller()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), nil
}

// Close 关闭管理连接。
func (a *Admin) Close() error {
	return a.conn.Close()
}
