package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRememberThenLookup(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := New(srv.Addr(), "", "test:idem", time.Hour)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Lookup(ctx, "u-1", "key-1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Remember(ctx, "u-1", "key-1", "c-1"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	if err := store.Remember(ctx, "u-1", "key-1", "c-2"); err != nil {
		t.Fatalf("second Remember() error = %v", err)
	}

	id, ok, err := store.Lookup(ctx, "u-1", "key-1")
	if err != nil || !ok || id != "c-1" {
		t.Fatalf("expected first contract to win, got id=%q ok=%v err=%v", id, ok, err)
	}
	if _, ok, _ := store.Lookup(ctx, "u-2", "key-1"); ok {
		t.Fatalf("keys must be scoped per user")
	}
	if ttl := srv.TTL("test:idem:u-1:key-1"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestKeysExpire(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := New(srv.Addr(), "", "", time.Minute)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := store.Remember(ctx, "u-1", "k", "c-1"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, ok, err := store.Lookup(ctx, "u-1", "k"); err != nil || ok {
		t.Fatalf("expected expired key, got ok=%v err=%v", ok, err)
	}
}

func TestLookupSurfacesRedisErrors(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := New(srv.Addr(), "", "", time.Minute)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.Close()
	if _, _, err := store.Lookup(context.Background(), "u-1", "k"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(" ", "", "", 0); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
