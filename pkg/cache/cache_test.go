package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rdb, logger), mr
}

func TestGetSetRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	stored, err := c.Set(ctx, "k1", payload{Name: "hello"}, SetOptions{TTL: time.Minute})
	if err != nil || !stored {
		t.Fatalf("Set() = %v, %v", stored, err)
	}

	var out payload
	if err := c.Get(ctx, "k1", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.Name != "hello" {
		t.Errorf("Name = %q, want hello", out.Name)
	}
}

func TestGetNotFound(t *testing.T) {
	c, _ := newTestClient(t)
	var out map[string]any
	err := c.Get(context.Background(), "missing", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSetOnlyIfAbsent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	stored, err := c.Set(ctx, "k", "v1", SetOptions{OnlyIfAbsent: true})
	if err != nil || !stored {
		t.Fatalf("first Set() = %v, %v, want stored=true", stored, err)
	}

	stored, err = c.Set(ctx, "k", "v2", SetOptions{OnlyIfAbsent: true})
	if err != nil {
		t.Fatalf("second Set() error = %v", err)
	}
	if stored {
		t.Error("second Set() should not store when key already present")
	}
}

func TestDeleteAndExists(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	c.Set(ctx, "a", "1", SetOptions{})
	c.Set(ctx, "b", "2", SetOptions{})

	n, err := c.Exists(ctx, "a", "b", "c")
	if err != nil || n != 2 {
		t.Fatalf("Exists() = %d, %v, want 2", n, err)
	}

	deleted, err := c.Delete(ctx, "a", "c")
	if err != nil || deleted != 1 {
		t.Fatalf("Delete() = %d, %v, want 1", deleted, err)
	}
}

func TestSetMembership(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.SAdd(ctx, "s", "m1", "m2", "m3"); err != nil {
		t.Fatalf("SAdd() error = %v", err)
	}
	if err := c.SRem(ctx, "s", "m2"); err != nil {
		t.Fatalf("SRem() error = %v", err)
	}

	members, err := c.SMembers(ctx, "s")
	if err != nil {
		t.Fatalf("SMembers() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("len(members) = %d, want 2", len(members))
	}
}

func TestListOps(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.LPush(ctx, "l", "a", "b"); err != nil {
		t.Fatalf("LPush() error = %v", err)
	}
	vals, err := c.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange() error = %v", err)
	}
	if len(vals) != 2 {
		t.Errorf("len(vals) = %d, want 2", len(vals))
	}
}

func TestDeletePatternScansInBatches(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		c.Set(ctx, "tenant:x:monitor:"+string(rune('a'+i%26))+string(rune('0'+i/26)), "v", SetOptions{})
	}
	c.Set(ctx, "tenant:y:monitor:keep", "v", SetOptions{})

	deleted, err := c.DeletePattern(ctx, "tenant:x:monitor:*")
	if err != nil {
		t.Fatalf("DeletePattern() error = %v", err)
	}
	if deleted == 0 {
		t.Error("expected at least one key deleted")
	}

	n, _ := c.Exists(ctx, "tenant:y:monitor:keep")
	if n != 1 {
		t.Error("DeletePattern should not touch non-matching keys")
	}
}

func TestPublish(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	n, err := c.Publish(ctx, "blip0:monitor:update", []byte(`{"action":"create"}`))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0 (no subscribers)", n)
	}
}
