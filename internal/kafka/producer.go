package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

const publishBatchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer 发布投票生命周期事件
type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka broker")
	}

	partitions, err := topicPartitions(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("生产者检测到Kafka主题分区", zap.String("topic", cfg.Topic), zap.Int("partitions", len(partitions)))

	return newProducer(newWriter(cfg), logger), nil
}

// newWriter 按投票ID做Hash分区，同一投票的事件保持顺序
//
// 每次只写一条事件，默认1秒的攒批等待会直接拖慢关闭流程。
func newWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: publishBatchTimeout,
	}
}

func newProducer(w messageWriter, logger *zap.Logger) *Producer {
	return &Producer{writer: w, logger: logger.Named("kafka-producer")}
}

// Publish 发送生命周期事件，以投票ID作为消息Key
func (p *Producer) Publish(ctx context.Context, event model.PollEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化投票事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PollID),
		Value: data,
		Time:  event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送投票事件 %s 失败: %w", event.Type, err)
	}

	p.logger.Debug("已发送投票事件", zap.String("type", string(event.Type)), zap.String("poll_id", event.PollID))
	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// topicPartitions 读取主题的分区ID
func topicPartitions(cfg config.KafkaConfig) ([]int, error) {
	conn, err := kafka.Dial("tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("连接Kafka失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions(cfg.Topic)
	if err != nil {
		return nil, fmt.Errorf("读取分区信息失败: %w", err)
	}

	ids := make([]int, 0, len(partitions))
	for _, p := range partitions {
		if p.Topic == cfg.Topic {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
