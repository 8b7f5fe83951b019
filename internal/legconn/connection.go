package legconn

import (
	"errors"
	"net"

	"braces.dev/errtrace"

	"legshim/internal/bitio"
	"legshim/internal/legproto"
	"legshim/internal/rangelist"
)

// ErrClosed is returned by Send once the peer's DisconnectNotification
// has been observed inbound.
var ErrClosed = errors.New("legconn: connection closed by peer")

// Connection is one LEG-side client connection: it owns the receive and
// send engines, the pending-ack set, and the remembered remote clock
// value to echo back.
type Connection struct {
	closed          bool
	remoteClockEcho uint32
	acks            *rangelist.List
	recv            *receivePart
	send            *sendPart
}

// New builds a Connection that sends to addr over the shared socket.
// socket is typically the relay's own listening socket; reads are
// performed solely by the relay's demultiplexer.
func New(socket net.PacketConn, addr net.Addr) *Connection {
	return &Connection{
		acks: rangelist.New(),
		recv: newReceivePart(),
		send: newSendPart(socket, addr),
	}
}

// HandleDatagram decodes one inbound UDP datagram and returns the
// application packets ready for delivery, in order.
func (c *Connection) HandleDatagram(data []byte) ([]legproto.Packet, error) {
	r := bitio.NewReader(data)
	hasRemoteClock, remoteClock, err := decodeHeader(r)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if hasRemoteClock {
		c.remoteClockEcho = remoteClock
	}
	subPackets, err := parseSubPackets(r)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	packets := c.recv.processIncoming(subPackets, c.acks, &c.closed)
	return packets, nil
}

// Send serializes and transmits a batch of application packets. Returns
// ErrClosed if the peer has already sent a DisconnectNotification.
func (c *Connection) Send(packets []legproto.Packet) error {
	if c.closed {
		return ErrClosed
	}
	return errtrace.Wrap(c.send.sendPackets(packets, c.acks, c.remoteClockEcho))
}

// Closed reports whether the peer's DisconnectNotification has been
// observed.
func (c *Connection) Closed() bool {
	return c.closed
}

// Close attempts a best-effort DisconnectNotification to the peer. Errors
// are deliberately ignored: by the time a connection is torn down there
// is nothing useful to do with a failed final send.
func (c *Connection) Close() {
	_ = c.send.sendPackets([]legproto.Packet{
		{Reliability: legproto.Unreliable, Data: []byte{byte(legproto.DisconnectNotification)}},
	}, c.acks, c.remoteClockEcho)
}
