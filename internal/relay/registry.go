package relay

import (
	"net"

	"legshim/internal/scanner"
)

// Registry is the ordered list of relays plus the upstream-to-local
// address map the scanner consults. Both are mutated only between event
// loop ticks, after every relay for the current tick has been processed,
// so a tick always observes a stable snapshot.
type Registry struct {
	relays          []*Relay
	upstreamToLocal map[string]*net.UDPAddr
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{upstreamToLocal: make(map[string]*net.UDPAddr)}
}

// Lookup implements scanner.Registry.
func (r *Registry) Lookup(upstream *net.UDPAddr) (*net.UDPAddr, bool) {
	local, ok := r.upstreamToLocal[upstream.String()]
	return local, ok
}

// Relays returns the current relay list. Safe to range over during a
// tick: Apply and Add are only ever called after that range completes.
func (r *Registry) Relays() []*Relay {
	return r.relays
}

// Apply records the upstream addresses resolved by relay-spawn commands
// produced during the tick just completed.
func (r *Registry) Apply(cmds []scanner.Command) {
	for _, c := range cmds {
		r.upstreamToLocal[c.Upstream.String()] = c.Local
	}
}

// Add appends a newly bound relay to the registry.
func (r *Registry) Add(rl *Relay) {
	r.relays = append(r.relays, rl)
}
