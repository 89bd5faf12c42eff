package kafka

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
)

type recordingSink struct {
	got []domain.ScoreEvent
}

func (s *recordingSink) BroadcastScore(ev domain.ScoreEvent) {
	s.got = append(s.got, ev)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumerSkipsOwnAndInvalidEvents(t *testing.T) {
	sink := &recordingSink{}
	c := &Consumer{nodeID: "node-a", sink: sink, logger: discard()}

	messages := []string{
		`{"node":"node-b","user_id":7,"mode":"osu","username":"Alice"}`,
		`{"node":"node-a","user_id":8,"mode":"osu"}`,
		`{"node":"node-b","user_id":0,"mode":"osu"}`,
		`not json`,
	}
	for _, m := range messages {
		c.handle(&sarama.ConsumerMessage{Value: []byte(m)})
	}

	if len(sink.got) != 1 || sink.got[0].UserID != 7 || sink.got[0].Username != "Alice" {
		t.Fatalf("forwarded = %+v", sink.got)
	}
}

func TestProducerPublishesScore(t *testing.T) {
	cfg := &config.KafkaConfig{Topic: "bancho-scores"}
	mock := mocks.NewAsyncProducer(t, nil)
	mock.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev domain.ScoreEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.UserID != 3 || ev.Mode != "mania" {
			t.Errorf("published %+v", ev)
		}
		return nil
	})

	p := newProducer(cfg, mock, discard())
	if err := p.PublishScore(context.Background(), domain.ScoreEvent{UserID: 3, Mode: "mania"}); err != nil {
		t.Fatalf("PublishScore: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
