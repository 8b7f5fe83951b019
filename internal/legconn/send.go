package legconn

import (
	"net"

	"braces.dev/errtrace"

	"legshim/internal/bitio"
	"legshim/internal/legproto"
	"legshim/internal/rangelist"
)

// mtuSize matches the MTU the game client negotiates on loopback;
// udpHeaderSize is the IPv4+UDP overhead subtracted to get the budget
// available for the LEG header and payload.
const (
	mtuSize       = 1228
	udpHeaderSize = 28
	// MaxPacketSize is the largest payload+header a single LEG datagram
	// may carry before the send engine splits it.
	MaxPacketSize = mtuSize - udpHeaderSize
)

// sendPart holds the per-connection outbound counters and owns the
// shared LEG socket handle used to reach one client.
type sendPart struct {
	socket   net.PacketConn
	addr     net.Addr
	msgNum   uint32
	splitIdx uint16
	unrelSeq uint32
	relOrd   uint32
}

func newSendPart(socket net.PacketConn, addr net.Addr) *sendPart {
	return &sendPart{socket: socket, addr: addr}
}

func (sp *sendPart) nextMessageNumber() uint32 {
	n := sp.msgNum
	sp.msgNum++
	return n
}

func (sp *sendPart) nextSplitIndex() uint16 {
	n := sp.splitIdx
	sp.splitIdx++
	return n
}

// assignReliability consumes the ordinal counter appropriate to rel, if
// any, producing the wire-level reliability data for one outbound packet.
func (sp *sendPart) assignReliability(rel legproto.Reliability) (legproto.Reliability, uint32) {
	switch rel {
	case legproto.UnreliableSequenced:
		ord := sp.unrelSeq
		sp.unrelSeq++
		return legproto.UnreliableSequenced, ord
	case legproto.ReliableOrdered:
		ord := sp.relOrd
		sp.relOrd++
		return legproto.ReliableOrdered, ord
	default:
		return rel, 0
	}
}

// headerLen computes the sub-packet header size in bytes for the given
// reliability mode and split state, including one byte of alignment
// padding.
func headerLen(rel legproto.Reliability, isSplit bool) int {
	bits := 32 + 3 // message number + reliability id
	if rel == legproto.UnreliableSequenced || rel == legproto.ReliableOrdered {
		bits += 5 + 32 // ordering channel + ordinal
	}
	bits++ // has-split flag
	if isSplit {
		bits += 16 + 32 + 32 + 16 // id, index, count, length (worst case compressed sizes)
	}
	return bits/8 + 1
}

// processOutgoing assigns message numbers and reliability ordinals to a
// batch of abstract packets, splitting any that exceed MaxPacketSize.
func (sp *sendPart) processOutgoing(packets []legproto.Packet) []*legproto.SubPacket {
	out := make([]*legproto.SubPacket, 0, len(packets))
	for _, pkt := range packets {
		rel, ord := sp.assignReliability(pkt.Reliability)

		if headerLen(rel, false)+len(pkt.Data) > MaxPacketSize {
			splitID := sp.nextSplitIndex()
			chunkSize := MaxPacketSize - headerLen(rel, true)
			chunks := chunkBytes(pkt.Data, chunkSize)
			count := uint32(len(chunks))
			for i, chunk := range chunks {
				out = append(out, &legproto.SubPacket{
					MessageNumber: sp.nextMessageNumber(),
					Reliability:   rel,
					Ordinal:       ord,
					Split:         &legproto.SplitInfo{ID: splitID, Index: uint32(i), Count: count},
					Data:          chunk,
				})
			}
			continue
		}

		out = append(out, &legproto.SubPacket{
			MessageNumber: sp.nextMessageNumber(),
			Reliability:   rel,
			Ordinal:       ord,
			Data:          pkt.Data,
		})
	}
	return out
}

func chunkBytes(data []byte, size int) [][]byte {
	if size <= 0 {
		return nil
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	if len(chunks) == 0 {
		chunks = [][]byte{{}}
	}
	return chunks
}

// sendPackets is the top-level send operation: split/number the packets,
// then emit one datagram per sub-packet (acks riding along with the
// first), or a single ack-only datagram if there is nothing else to send.
func (sp *sendPart) sendPackets(packets []legproto.Packet, acks *rangelist.List, remoteClockEcho uint32) error {
	subPackets := sp.processOutgoing(packets)

	if len(subPackets) == 0 {
		return errtrace.Wrap(sp.sendAcksOnly(acks, remoteClockEcho))
	}

	for _, p := range subPackets {
		if err := sp.sendOne(p, acks, remoteClockEcho); err != nil {
			return errtrace.Wrap(err)
		}
	}
	return nil
}

func (sp *sendPart) sendOne(p *legproto.SubPacket, acks *rangelist.List, remoteClockEcho uint32) error {
	w := bitio.NewWriter()
	encodeAckHeader(w, acks, remoteClockEcho)
	w.WriteBit(false) // has_remote_clock: we never originate a clock
	p.Encode(w)
	return errtrace.Wrap(sp.send(w.Bytes()))
}

func (sp *sendPart) sendAcksOnly(acks *rangelist.List, remoteClockEcho uint32) error {
	if acks.IsEmpty() {
		return nil
	}
	w := bitio.NewWriter()
	encodeAckHeader(w, acks, remoteClockEcho)
	return errtrace.Wrap(sp.send(w.Bytes()))
}

func (sp *sendPart) send(data []byte) error {
	_, err := sp.socket.WriteTo(data, sp.addr)
	return errtrace.Wrap(err)
}
