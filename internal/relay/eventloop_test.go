package relay

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRunEventLoopStopsOnCancel(t *testing.T) {
	registry := NewRegistry()
	spawner := NewSpawner(nil, discardLogger(), rate.NewLimiter(rate.Inf, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- RunEventLoop(ctx, registry, spawner)
	}()

	time.Sleep(3 * TickInterval)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("event loop did not stop after cancel")
	}
}

func TestRunEventLoopAppliesPendingRelaysAfterTick(t *testing.T) {
	registry := NewRegistry()
	spawner := NewSpawner(nil, discardLogger(), rate.NewLimiter(rate.Inf, 1))

	upstream := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1002}
	local, spawnErr := spawner.OpenRelay(upstream)
	if spawnErr != nil {
		t.Fatalf("open relay: %v", spawnErr)
	}
	defer func() {
		for _, r := range registry.Relays() {
			r.conn.Close()
		}
	}()
	_ = local

	if len(registry.Relays()) != 0 {
		t.Fatalf("relay must not be registered before a tick applies it")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(2 * TickInterval)
		cancel()
	}()
	if err := RunEventLoop(ctx, registry, spawner); err != nil {
		t.Fatalf("run event loop: %v", err)
	}

	if len(registry.Relays()) != 1 {
		t.Fatalf("expected spawned relay to be registered after a tick, got %d", len(registry.Relays()))
	}
}
