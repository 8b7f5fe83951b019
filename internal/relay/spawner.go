package relay

import (
	"crypto/tls"
	"log/slog"
	"net"

	"braces.dev/errtrace"
	"golang.org/x/time/rate"
)

// Spawner implements scanner.RelayOpener. It binds a new relay
// immediately when the scanner asks for one — matching the original's
// synchronous "create shim, remember its address, defer the list
// append" split — and throttles how often that may happen so a hostile
// or buggy upstream can't be used to exhaust local ports.
type Spawner struct {
	tlsConfig *tls.Config
	log       *slog.Logger
	limiter   *rate.Limiter

	pending []*Relay
}

// NewSpawner builds a Spawner that dials spawned relays' upstreams with
// tlsConfig (nil for plaintext) and allows at most limiter's rate of new
// relays.
func NewSpawner(tlsConfig *tls.Config, log *slog.Logger, limiter *rate.Limiter) *Spawner {
	return &Spawner{tlsConfig: tlsConfig, log: log, limiter: limiter}
}

// OpenRelay implements scanner.RelayOpener.
func (s *Spawner) OpenRelay(upstream *net.UDPAddr) (*net.UDPAddr, error) {
	if !s.limiter.Allow() {
		return nil, errtrace.Wrap(errRateLimited)
	}
	local := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
	r, err := Listen(local, upstream, s.tlsConfig, s.log)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	s.pending = append(s.pending, r)
	return r.LocalAddr(), nil
}

// TakePending returns the relays opened since the last call and clears
// the accumulator. The event loop calls this once per tick, after every
// existing relay has already been processed, and registers each
// returned relay so it is ticked starting next cycle.
func (s *Spawner) TakePending() []*Relay {
	p := s.pending
	s.pending = nil
	return p
}
