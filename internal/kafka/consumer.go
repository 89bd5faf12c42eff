package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FeedSink receives score events published by other nodes
type FeedSink interface {
	BroadcastScore(ev domain.ScoreEvent)
}

// Consumer forwards score feed events from other nodes to the local sink
type Consumer struct {
	config        *config.KafkaConfig
	nodeID        string
	sink          FeedSink
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewConsumer creates the feed consumer. Events published by nodeID are skipped.
func NewConsumer(cfg *config.KafkaConfig, nodeID string, sink FeedSink, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		nodeID:        nodeID,
		sink:          sink,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start joins the consumer group in the background. It does not wait for the
// brokers, so a node without Kafka keeps serving its local feed.
func (c *Consumer) Start() error {
	c.logger.Info("starting score feed consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	handler := &consumerGroupHandler{consumer: c}
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler)
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || c.ctx.Err() != nil {
				return
			}
			if err != nil {
				c.logger.Error("score feed consume failed", "error", err)
				select {
				case <-c.ctx.Done():
					return
				case <-time.After(c.config.RetryDelay):
				}
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop leaves the group and waits for the consume loop to exit
func (c *Consumer) Stop() error {
	c.logger.Info("stopping score feed consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

type consumerGroupHandler struct {
	consumer *Consumer
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.consumer.logger.Info("score feed consumer joined group",
		"member_id", session.MemberID(),
		"generation", session.GenerationID(),
	)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil

		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.handle(message)
			session.MarkMessage(message, "")
		}
	}
}

// handle decodes one feed message and forwards it unless this node produced it
func (c *Consumer) handle(message *sarama.ConsumerMessage) {
	var ev domain.ScoreEvent
	if err := json.Unmarshal(message.Value, &ev); err != nil {
		c.logger.Warn("failed to unmarshal message",
			"error", err,
			"offset", message.Offset,
			"partition", message.Partition,
		)
		return
	}
	if ev.Node == c.nodeID {
		return
	}
	if ev.UserID == 0 || ev.Mode == "" {
		c.logger.Warn("invalid score event", "user_id", ev.UserID, "mode", ev.Mode)
		return
	}
	c.sink.BroadcastScore(ev)
}
