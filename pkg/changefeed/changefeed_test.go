package changefeed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/blip0/control-plane/pkg/cache"
)

func newTestClient(t *testing.T) *cache.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cache.New(rdb, logger)
}

func TestPublishAndConsumeRoundTrip(t *testing.T) {
	c := newTestClient(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	consumer := NewConsumer(c, logger)
	received := make(chan Message, 1)
	consumer.On(ChannelNetwork, func(_ context.Context, msg Message) {
		received <- msg
	})

	go consumer.Run(ctx)
	time.Sleep(50 * time.Millisecond) // let the subscription establish

	pub := NewPublisher(c, logger)
	networkID := uuid.New()
	tenantID := uuid.New()
	want := Message{
		TenantID:  &tenantID,
		Action:    ActionUpdate,
		NetworkID: &networkID,
		Timestamp: time.Now(),
	}
	if err := pub.Publish(ctx, ChannelNetwork, want); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got.Action != ActionUpdate || got.NetworkID == nil || *got.NetworkID != networkID {
			t.Errorf("got %+v, want action=update network_id=%s", got, networkID)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for dispatched message")
	}
}

func TestConsumerRunWithNoHandlersReturnsImmediately(t *testing.T) {
	c := newTestClient(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	consumer := NewConsumer(c, logger)
	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("Run() with no handlers should return immediately without error, got %v", err)
	}
}
