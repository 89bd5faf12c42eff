package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
)

// Producer publishes accepted plays to the score feed topic
type Producer struct {
	config   *config.KafkaConfig
	producer sarama.AsyncProducer
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewProducer creates an async producer and starts draining its result channels
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return newProducer(cfg, producer, logger), nil
}

func newProducer(cfg *config.KafkaConfig, producer sarama.AsyncProducer, logger *slog.Logger) *Producer {
	p := &Producer{
		config:   cfg,
		producer: producer,
		logger:   logger,
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.logger.Error("score feed publish failed", "error", err.Err, "topic", err.Msg.Topic)
		}
	}()
	return p
}

// PublishScore queues ev on the feed topic, keyed by user so a user's plays stay ordered
func (p *Producer) PublishScore(ctx context.Context, ev domain.ScoreEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling score event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.config.Topic,
		Key:   sarama.StringEncoder(fmt.Sprint(ev.UserID)),
		Value: sarama.ByteEncoder(data),
	}
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and stops the producer
func (p *Producer) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	return err
}
