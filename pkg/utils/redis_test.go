package utils

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenRedis_PingsServer(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := OpenRedis(context.Background(), mr.Addr(), WithRedisPoolSize(4))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	if got := rdb.Options().PoolSize; got != 4 {
		t.Fatalf("expected pool size 4, got %d", got)
	}
}

func TestOpenRedis_Authenticates(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	if _, err := OpenRedis(context.Background(), mr.Addr()); err == nil {
		t.Fatalf("expected auth failure without password")
	}
	rdb, err := OpenRedis(context.Background(), mr.Addr(), WithRedisAuth("s3cret", 0))
	if err != nil {
		t.Fatalf("open with password: %v", err)
	}
	defer rdb.Close()
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

func TestOpenRedis_FailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := OpenRedis(context.Background(), addr); err == nil {
		t.Fatalf("expected ping failure")
	}
}
