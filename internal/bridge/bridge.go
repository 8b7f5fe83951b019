// Package bridge pairs one LEG connection with one NEW connection for a
// single client, shuttling packets between them and running the payload
// scanner on the NEW→LEG direction.
package bridge

import (
	"log/slog"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"legshim/internal/legconn"
	"legshim/internal/legproto"
	"legshim/internal/newproto"
	"legshim/internal/scanner"
)

type state string

const (
	statePending state = "pending"
	stateActive  state = "active"
	stateClosed  state = "closed"
)

type trigger string

const (
	triggerActivate trigger = "activate"
	triggerClose    trigger = "close"
)

// Bridge is the 1-to-1 pairing of a LEG connection with a NEW connection.
// Its lifecycle is tracked through a small state machine: a bridge is
// Pending at construction, Active once wired into the relay's dispatch
// table, and Closed once torn down — Closed is terminal.
type Bridge struct {
	leg    *legconn.Connection
	new    *newproto.Connection
	log    *slog.Logger
	fsm    *stateless.StateMachine
}

// New builds a Bridge already transitioned to Active; relays only
// construct a Bridge after a successful NEW-side connect, so there is no
// externally observable Pending window.
func New(leg *legconn.Connection, newConn *newproto.Connection, log *slog.Logger) *Bridge {
	b := &Bridge{leg: leg, new: newConn, log: log}
	b.fsm = stateless.NewStateMachine(statePending)
	b.fsm.Configure(statePending).Permit(triggerActivate, stateActive)
	b.fsm.Configure(stateActive).Permit(triggerClose, stateClosed)
	b.fsm.Configure(stateClosed)
	if err := b.fsm.Fire(triggerActivate); err != nil {
		panic(err) // unreachable: statePending always permits triggerActivate
	}
	return b
}

// Active reports whether the bridge is still wired into the relay's
// dispatch table.
func (b *Bridge) Active() bool {
	return b.fsm.MustState() == stateActive
}

// Close tears the bridge down: fires the terminal state transition and
// attempts a best-effort DisconnectNotification on the LEG side.
func (b *Bridge) Close() {
	_ = b.fsm.Fire(triggerClose)
	b.leg.Close()
	b.new.Close()
	b.log.Debug("closing bridge")
}

// ReceiveFromUpstream drains the NEW connection, scans the resulting
// packets for embedded addresses to rewrite, forwards them to the LEG
// client, and returns any relay-spawn commands the scan produced.
func (b *Bridge) ReceiveFromUpstream(registry scanner.Registry, opener scanner.RelayOpener) ([]scanner.Command, error) {
	packets, err := b.new.Receive()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	for _, p := range packets {
		b.log.Debug("tcpudp got packet", "name", legproto.DebugName(p))
	}
	cmds, err := scanner.Scan(packets, registry, opener)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := b.leg.Send(packets); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return cmds, nil
}

// ReceiveFromClient decodes one inbound LEG datagram and forwards the
// resulting packets upstream over the NEW connection.
func (b *Bridge) ReceiveFromClient(data []byte) error {
	packets, err := b.leg.HandleDatagram(data)
	if err != nil {
		return errtrace.Wrap(err)
	}
	for _, p := range packets {
		b.log.Debug("raknet got packet", "name", legproto.DebugName(p))
	}
	return errtrace.Wrap(b.new.Send(packets))
}

// LEGClosed reports whether the LEG side has observed a peer disconnect.
func (b *Bridge) LEGClosed() bool {
	return b.leg.Closed()
}
