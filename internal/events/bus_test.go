package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bancho-server/internal/domain"
)

func testBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishWaitsForHandlersInOrder(t *testing.T) {
	b := testBus()
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(KindAnnounce, func(ctx context.Context, ev Event) error {
			time.Sleep(time.Millisecond)
			order = append(order, i)
			return nil
		})
	}

	if err := b.Publish(context.Background(), NewAnnounce(domain.Announcement{Message: "hi"})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("handler order = %v", order)
	}
}

func TestPublishOnlyMatchingKind(t *testing.T) {
	b := testBus()
	var announce, status int
	b.Subscribe(KindAnnounce, func(context.Context, Event) error { announce++; return nil })
	b.Subscribe(KindSendStatus, func(context.Context, Event) error { status++; return nil })

	_ = b.Publish(context.Background(), NewSendStatus(SendStatus{}))
	_ = b.Publish(context.Background(), NewSendStatus(SendStatus{}))

	if announce != 0 || status != 2 {
		t.Fatalf("announce=%d status=%d", announce, status)
	}
}

func TestFailingHandlerDoesNotStopSiblings(t *testing.T) {
	b := testBus()
	var ran []string
	b.Subscribe(KindAnnounce, func(context.Context, Event) error {
		ran = append(ran, "panic")
		panic("boom")
	})
	b.Subscribe(KindAnnounce, func(context.Context, Event) error {
		ran = append(ran, "error")
		return errors.New("failed")
	})
	b.Subscribe(KindAnnounce, func(context.Context, Event) error {
		ran = append(ran, "ok")
		return nil
	})

	if err := b.Publish(context.Background(), NewAnnounce(domain.Announcement{})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(ran) != 3 {
		t.Fatalf("ran = %v", ran)
	}
	if got := b.Stats().Failed; got != 2 {
		t.Errorf("Failed = %d, want 2", got)
	}
}

func TestPublishWaitsPastDeadline(t *testing.T) {
	b := testBus()
	var finished bool
	b.Subscribe(KindAnnounce, func(context.Context, Event) error {
		time.Sleep(50 * time.Millisecond)
		finished = true
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.Publish(ctx, NewAnnounce(domain.Announcement{}))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish err = %v, want deadline exceeded", err)
	}
	if !finished {
		t.Fatal("Publish returned before its handler finished")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := testBus()
	if err := b.Publish(context.Background(), NewPacketReceived(PacketReceived{})); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(context.Background(), Event{Kind: Kind(200)}); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestEventConstructorsSetKind(t *testing.T) {
	cases := []struct {
		ev   Event
		kind Kind
		set  bool
	}{
		{NewLoginRequest(LoginRequest{}), KindLoginRequest, NewLoginRequest(LoginRequest{}).Login != nil},
		{NewPacketReceived(PacketReceived{}), KindPacketReceived, NewPacketReceived(PacketReceived{}).Packet != nil},
		{NewStatsRequest(StatsRequest{}), KindStatsRequest, NewStatsRequest(StatsRequest{}).Stats != nil},
		{NewSendStatus(SendStatus{}), KindSendStatus, NewSendStatus(SendStatus{}).Status != nil},
		{NewAnnounce(domain.Announcement{}), KindAnnounce, NewAnnounce(domain.Announcement{}).Announce != nil},
	}
	for _, c := range cases {
		t.Run(c.kind.String(), func(t *testing.T) {
			if c.ev.Kind != c.kind || !c.set {
				t.Fatalf("event = %+v", c.ev)
			}
		})
	}
}
