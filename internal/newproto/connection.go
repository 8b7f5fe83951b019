// Package newproto implements the NEW connection engine: a TCP
// length-prefixed reliable stream with a resumable partial-read cursor,
// and a UDP tagged unreliable stream with sequence-based staleness
// filtering.
package newproto

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"braces.dev/errtrace"

	"legshim/internal/legproto"
)

// maxDatagramSize bounds a single UDP read; NEW unreliable packets are
// never split, so this must exceed the largest application payload.
const maxDatagramSize = 2048

// readPollTimeout is the per-attempt deadline used to approximate a
// non-blocking socket read: each Read either returns data immediately or
// reports a timeout, which is treated the same as a would-block result.
const readPollTimeout = time.Millisecond

var errWouldBlock = errors.New("newproto: would block")

type framePhase int

const (
	phaseLength framePhase = iota
	phaseBody
)

// frameCursor is the TCP inbound framing state that survives across
// Receive calls so a frame split across reads is never lost.
type frameCursor struct {
	phase       framePhase
	offset      int
	lengthBytes [4]byte
	body        []byte
}

// Connection is one NEW-side upstream connection: a TCP stream (plain or
// TLS) for reliable traffic, plus a UDP socket bound to the same local
// address for unreliable traffic.
type Connection struct {
	tcp        net.Conn
	udp        *net.UDPConn
	seqNumRecv uint32
	seqNumSend uint32
	cursor     frameCursor
}

// Dial connects to addr over TCP (optionally wrapped in TLS when
// tlsConfig is non-nil) and binds a UDP socket to the same local address,
// connected to addr. Both sockets are configured for short-deadline,
// effectively non-blocking reads.
func Dial(addr string, tlsConfig *tls.Config) (*Connection, error) {
	tcpConn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	var stream net.Conn = tcpConn
	if tlsConfig != nil {
		tlsConn := tls.Client(tcpConn, tlsConfig)
		if err := handshake(tlsConn); err != nil {
			tcpConn.Close()
			return nil, errtrace.Wrap(err)
		}
		stream = tlsConn
	}

	udpLocal, err := net.ResolveUDPAddr("udp", tcpConn.LocalAddr().String())
	if err != nil {
		stream.Close()
		return nil, errtrace.Wrap(err)
	}
	udpRemote, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		stream.Close()
		return nil, errtrace.Wrap(err)
	}
	udpConn, err := net.DialUDP("udp", udpLocal, udpRemote)
	if err != nil {
		stream.Close()
		return nil, errtrace.Wrap(err)
	}

	return &Connection{tcp: stream, udp: udpConn}, nil
}

// handshake performs the TLS handshake eagerly, busy-waiting with a 30ms
// sleep on a timeout — the one deliberate blocking exception in an
// otherwise non-blocking design.
func handshake(conn *tls.Conn) error {
	for {
		if err := conn.SetDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
			return errtrace.Wrap(err)
		}
		err := conn.Handshake()
		if err == nil {
			return errtrace.Wrap(conn.SetDeadline(time.Time{}))
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			time.Sleep(30 * time.Millisecond)
			continue
		}
		return errtrace.Wrap(err)
	}
}

// Send transmits a batch of application packets: Unreliable and
// UnreliableSequenced go out tagged over UDP; Reliable and
// ReliableOrdered are both flattened onto length-prefixed TCP frames,
// since this side has no separate unordered-reliable channel.
func (c *Connection) Send(packets []legproto.Packet) error {
	for _, p := range packets {
		switch p.Reliability {
		case legproto.Unreliable:
			buf := make([]byte, 1+len(p.Data))
			buf[0] = 0x00
			copy(buf[1:], p.Data)
			if _, err := c.udp.Write(buf); err != nil {
				return errtrace.Wrap(err)
			}
		case legproto.UnreliableSequenced:
			seq := c.seqNumSend
			c.seqNumSend++
			buf := make([]byte, 5+len(p.Data))
			buf[0] = 0x01
			binary.LittleEndian.PutUint32(buf[1:5], seq)
			copy(buf[5:], p.Data)
			if _, err := c.udp.Write(buf); err != nil {
				return errtrace.Wrap(err)
			}
		default:
			var lenBuf [4]byte
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p.Data)))
			if _, err := c.tcp.Write(lenBuf[:]); err != nil {
				return errtrace.Wrap(err)
			}
			if len(p.Data) > 0 {
				if _, err := c.tcp.Write(p.Data); err != nil {
					return errtrace.Wrap(err)
				}
			}
		}
	}
	return nil
}

// Receive drains the TCP stream, then the UDP socket, each until a read
// would block, returning every packet assembled along the way.
func (c *Connection) Receive() ([]legproto.Packet, error) {
	var packets []legproto.Packet
	if err := c.receiveTCP(&packets); err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := c.receiveUDP(&packets); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return packets, nil
}

func readNonBlocking(conn net.Conn, buf []byte) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(readPollTimeout)); err != nil {
		return 0, errtrace.Wrap(err)
	}
	n, err := conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return 0, errWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, errWouldBlock
	}
	return n, nil
}

func (c *Connection) receiveTCP(packets *[]legproto.Packet) error {
	for {
		if c.cursor.phase == phaseLength {
			for c.cursor.offset < len(c.cursor.lengthBytes) {
				n, err := readNonBlocking(c.tcp, c.cursor.lengthBytes[c.cursor.offset:])
				if err == errWouldBlock {
					return nil
				}
				if err != nil {
					return errtrace.Wrap(err)
				}
				c.cursor.offset += n
			}
			length := binary.LittleEndian.Uint32(c.cursor.lengthBytes[:])
			c.cursor.body = make([]byte, length)
			c.cursor.offset = 0
			c.cursor.phase = phaseBody
		}

		for c.cursor.offset < len(c.cursor.body) {
			n, err := readNonBlocking(c.tcp, c.cursor.body[c.cursor.offset:])
			if err == errWouldBlock {
				return nil
			}
			if err != nil {
				return errtrace.Wrap(err)
			}
			c.cursor.offset += n
		}

		*packets = append(*packets, legproto.Packet{Reliability: legproto.ReliableOrdered, Data: c.cursor.body})
		c.cursor.phase = phaseLength
		c.cursor.offset = 0
		c.cursor.body = nil
	}
}

func (c *Connection) receiveUDP(packets *[]legproto.Packet) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := readNonBlocking(c.udp, buf)
		if err == errWouldBlock {
			return nil
		}
		if err != nil {
			return errtrace.Wrap(err)
		}
		if n < 1 {
			continue
		}
		switch buf[0] {
		case 0x00:
			data := append([]byte(nil), buf[1:n]...)
			*packets = append(*packets, legproto.Packet{Reliability: legproto.Unreliable, Data: data})
		case 0x01:
			if n < 5 {
				return errtrace.Wrap(fmt.Errorf("newproto: short unreliable-sequenced datagram"))
			}
			seq := binary.LittleEndian.Uint32(buf[1:5])
			if wrapLess(c.seqNumRecv, seq) {
				c.seqNumRecv = seq + 1
				data := append([]byte(nil), buf[5:n]...)
				*packets = append(*packets, legproto.Packet{Reliability: legproto.UnreliableSequenced, Data: data})
			}
		default:
			return errtrace.Wrap(fmt.Errorf("newproto: invalid UDP tag byte %d", buf[0]))
		}
	}
}

// wrapLess is the same "wrap subtract < 2^31" forward-window predicate
// used by the LEG receive engine, duplicated locally to avoid a
// cross-package dependency for one line of arithmetic.
func wrapLess(base, target uint32) bool {
	return target-base < 1<<31
}

// Close releases both sockets.
func (c *Connection) Close() error {
	udpErr := c.udp.Close()
	tcpErr := c.tcp.Close()
	if tcpErr != nil {
		return errtrace.Wrap(tcpErr)
	}
	return errtrace.Wrap(udpErr)
}
