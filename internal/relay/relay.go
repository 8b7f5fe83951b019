// Package relay hosts LEG-facing listeners that each translate to a
// single upstream NEW address, spawning new listeners on demand when the
// payload scanner observes a redirect to an address not yet relayed.
package relay

import (
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"braces.dev/errtrace"

	"legshim/internal/bridge"
	"legshim/internal/legconn"
	"legshim/internal/legproto"
	"legshim/internal/newproto"
	"legshim/internal/scanner"
)

// readPollTimeout is the per-attempt deadline used to approximate
// non-blocking reads on the LEG-facing socket, mirroring newproto's
// approach for the same problem.
const readPollTimeout = time.Millisecond

var errWouldBlock = errors.New("relay: would block")

// Relay hosts one LEG-facing UDP socket and relays every client
// connection made to it to a single upstream NEW address. As LEG is
// connectionless, one socket serves every client of the relay; clients
// are demultiplexed by source address into per-client bridges.
type Relay struct {
	upstreamAddr *net.UDPAddr
	conn         *net.UDPConn
	tlsConfig    *tls.Config
	log          *slog.Logger

	bridges map[string]*bridge.Bridge
}

// Listen binds a new relay to localAddr, forwarding client connections
// made to it onward to upstreamAddr over the NEW protocol.
func Listen(localAddr, upstreamAddr *net.UDPAddr, tlsConfig *tls.Config, log *slog.Logger) (*Relay, error) {
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	log.Info("starting new relay", "local", conn.LocalAddr(), "upstream", upstreamAddr)
	return &Relay{
		upstreamAddr: upstreamAddr,
		conn:         conn,
		tlsConfig:    tlsConfig,
		log:          log,
		bridges:      make(map[string]*bridge.Bridge),
	}, nil
}

// LocalAddr returns the address the relay's LEG-facing socket is bound to.
func (r *Relay) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Tick drains the LEG socket, dispatching datagrams to existing bridges
// or accepting new client connections, then drains every bridge's NEW
// side. It returns the relay-spawn commands the scanner produced this
// tick; the caller is responsible for applying them only after every
// relay has been ticked.
func (r *Relay) Tick(registry scanner.Registry, opener scanner.RelayOpener) ([]scanner.Command, error) {
	if err := r.receiveLEG(); err != nil {
		return nil, errtrace.Wrap(err)
	}

	var cmds []scanner.Command
	for addr, b := range r.bridges {
		c, err := b.ReceiveFromUpstream(registry, opener)
		if err != nil {
			logBridgeError(r.log, err)
			b.Close()
			delete(r.bridges, addr)
			continue
		}
		cmds = append(cmds, c...)
	}
	return cmds, nil
}

func (r *Relay) receiveLEG() error {
	buf := make([]byte, legconn.MaxPacketSize)
	for {
		n, addr, err := readLEGDatagram(r.conn, buf)
		if err != nil {
			if errors.Is(err, errWouldBlock) || errors.Is(err, syscall.ECONNRESET) {
				return nil
			}
			return errtrace.Wrap(err)
		}

		key := addr.String()
		b, ok := r.bridges[key]
		if !ok {
			if err := r.acceptConnection(addr, buf[:n]); err != nil {
				return errtrace.Wrap(err)
			}
			continue
		}
		if err := b.ReceiveFromClient(buf[:n]); err != nil {
			r.log.Error("raknet receive error", "addr", addr, "error", err)
			b.Close()
			delete(r.bridges, key)
		}
	}
}

// acceptConnection handles a datagram from an address with no existing
// bridge. Only an OpenConnectionRequest of at most two bytes is meaningful here; a
// successful upstream dial wires a new bridge and replies
// OpenConnectionReply, otherwise the client is told there are no free
// incoming connections.
func (r *Relay) acceptConnection(addr *net.UDPAddr, data []byte) error {
	if len(data) == 0 || len(data) > 2 || data[0] != byte(legproto.OpenConnectionRequest) {
		return nil
	}

	reply := byte(legproto.NoFreeIncomingConnections)
	nc, err := newproto.Dial(r.upstreamAddr.String(), r.tlsConfig)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			r.log.Error("connection to upstream refused", "upstream", r.upstreamAddr)
		} else {
			r.log.Error("could not establish upstream connection", "error", err)
		}
	} else {
		leg := legconn.New(r.conn, addr)
		r.bridges[addr.String()] = bridge.New(leg, nc, r.log)
		reply = byte(legproto.OpenConnectionReply)
	}

	_, err = r.conn.WriteTo([]byte{reply, 0}, addr)
	return errtrace.Wrap(err)
}

func readLEGDatagram(conn *net.UDPConn, buf []byte) (int, *net.UDPAddr, error) {
	if err := conn.SetReadDeadline(time.Now().Add(readPollTimeout)); err != nil {
		return 0, nil, errtrace.Wrap(err)
	}
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, errWouldBlock
		}
		return 0, nil, err
	}
	return n, addr, nil
}

func logBridgeError(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, net.ErrClosed):
	case errors.Is(err, io.EOF):
	case errors.Is(err, syscall.ECONNRESET):
		log.Warn("connection was reset unexpectedly")
	default:
		log.Error("bridge error", "error", err)
	}
}
