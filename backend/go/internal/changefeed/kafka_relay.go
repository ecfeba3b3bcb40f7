package changefeed

import (
	"SynapseCode/backend/go/internal/models"
	"SynapseCode/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaRelay shares change events between instances through one Kafka topic.
// Messages are keyed by change-feed topic, so all events of one workspace land
// in one partition and keep their order.
type KafkaRelay struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *logger.Logger
}

// NewKafkaRelay creates a relay. groupID must be unique per instance because
// every instance needs every event.
func NewKafkaRelay(brokers []string, topic, groupID string, log *logger.Logger) *KafkaRelay {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.LastOffset,
	})
	return &KafkaRelay{writer: writer, reader: reader, logger: log}
}

// Forward implements Relay.
func (r *KafkaRelay) Forward(ctx context.Context, ev models.ChangeEvent) error {
	msgBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化变更事件失败: %w", err)
	}
	err = r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Topic),
		Value: msgBytes,
	})
	if err != nil {
		return fmt.Errorf("写入 Kafka 失败: %w", err)
	}
	return nil
}

// Start consumes events from other instances and hands them to hub.Ingest
// until ctx is done.
func (r *KafkaRelay) Start(ctx context.Context, hub *Hub) {
	go func() {
		for {
			msg, err := r.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					r.logger.Info("停止变更事件消费")
					return
				}
				r.logger.WithErr(err).Error("从 Kafka 拉取变更事件失败")
				continue
			}
			if err := HandleRelayMessage(hub, msg.Value); err != nil {
				r.logger.WithErr(err).WithPayload(map[string]interface{}{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("处理变更事件失败")
			}
			if err := r.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				r.logger.WithErr(err).Error("提交 Kafka 偏移量失败")
			}
		}
	}()
}

// HandleRelayMessage decodes one relayed event and ingests it.
func HandleRelayMessage(hub *Hub, value []byte) error {
	var ev models.ChangeEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("解析变更事件失败: %w", err)
	}
	if ev.Topic == "" {
		return fmt.Errorf("变更事件缺少 topic")
	}
	hub.Ingest(ev)
	return nil
}

// Close closes the writer and the reader.
func (r *KafkaRelay) Close() error {
	werr := r.writer.Close()
	rerr := r.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
