package relay

import (
	"context"
	"time"

	"braces.dev/errtrace"

	"legshim/internal/scanner"
)

// TickInterval matches the original shim's 30Hz poll loop.
const TickInterval = time.Second / 30

// RunEventLoop drives every registered relay's Tick once per
// TickInterval until ctx is canceled. Registry and relay-list mutations
// produced during a tick — both the upstream-to-local map and any newly
// spawned relays — are applied only after every relay already in the
// registry has been processed for that tick, so a Lookup made mid-tick
// always observes the registry as it stood at the tick's start.
func RunEventLoop(ctx context.Context, registry *Registry, spawner *Spawner) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var cmds []scanner.Command
		for _, r := range registry.Relays() {
			c, err := r.Tick(registry, spawner)
			if err != nil {
				return errtrace.Wrap(err)
			}
			cmds = append(cmds, c...)
		}

		registry.Apply(cmds)
		for _, r := range spawner.TakePending() {
			registry.Add(r)
		}
	}
}
