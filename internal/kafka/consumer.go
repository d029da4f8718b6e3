package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

// 期望的并发消费goroutine数量
const maxWorkers = 4

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler 处理一条生命周期事件
type EventHandler func(ctx context.Context, event *model.PollEvent) error

// Consumer 以消费者组方式读取生命周期事件
type Consumer struct {
	readers    []messageReader
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	retries    int
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewConsumer(cfg config.KafkaConfig, logger *zap.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka broker")
	}

	partitions, err := topicPartitions(cfg)
	if err != nil {
		return nil, err
	}

	// 同一组内reader数量超过分区数没有意义
	numWorkers := maxWorkers
	if len(partitions) < numWorkers {
		numWorkers = len(partitions)
	}
	if numWorkers == 0 {
		numWorkers = 1
	}
	logger.Info("创建Kafka消费者",
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
		zap.Int("partitions", len(partitions)),
		zap.Int("workers", numWorkers))

	readers := make([]messageReader, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}))
	}

	return newConsumer(readers, logger), nil
}

func newConsumer(readers []messageReader, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		readers:    readers,
		ctx:        ctx,
		cancel:     cancel,
		retries:    3,
		retryDelay: 500 * time.Millisecond,
		logger:     logger.Named("kafka-consumer"),
	}
}

// StartConsuming 每个reader一个goroutine
func (c *Consumer) StartConsuming(handler EventHandler) {
	for i, reader := range c.readers {
		c.wg.Add(1)
		go func(workerID int, r messageReader) {
			defer c.wg.Done()
			c.consumeMessages(workerID, r, handler)
		}(i, reader)
	}

	c.logger.Info("已启动Kafka消费者工作线程", zap.Int("workers", len(c.readers)))
}

func (c *Consumer) consumeMessages(workerID int, reader messageReader, handler EventHandler) {
	logger := c.logger.With(zap.Int("worker", workerID))
	logger.Debug("消费者工作线程已启动")

	for {
		m, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
				logger.Debug("消费者工作线程收到停止信号")
				return
			}
			logger.Warn("读取消息失败", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		if !c.handleMessage(logger, m, handler) {
			continue
		}
		if err := reader.CommitMessages(c.ctx, m); err != nil && c.ctx.Err() == nil {
			logger.Warn("提交偏移量失败", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handleMessage 解码并处理一条消息，返回是否可以提交
//
// 无法解析的消息直接跳过；处理失败时重试，仍失败则记录后跳过
func (c *Consumer) handleMessage(logger *zap.Logger, m kafka.Message, handler EventHandler) bool {
	var event model.PollEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		logger.Warn("解析消息失败，跳过", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
		return true
	}

	var err error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if err = handler(c.ctx, &event); err == nil {
			return true
		}
		if attempt == c.retries {
			break
		}
		select {
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		case <-c.ctx.Done():
			return false
		}
	}

	logger.Error("处理消息失败，跳过",
		zap.String("type", string(event.Type)),
		zap.String("poll_id", event.PollID),
		zap.Int("attempts", c.retries),
		zap.Error(err))
	return true
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	c.logger.Info("正在停止所有Kafka消费者工作线程")
	c.cancel()
	c.wg.Wait()

	for i, reader := range c.readers {
		if err := reader.Close(); err != nil {
			c.logger.Warn("关闭消费者失败", zap.Int("worker", i), zap.Error(err))
		}
	}

	c.logger.Info("所有Kafka消费者工作线程已停止")
	return nil
}
