package legconn

import (
	"errors"

	"braces.dev/errtrace"

	"legshim/internal/bitio"
	"legshim/internal/legproto"
	"legshim/internal/rangelist"
)

// receivePart holds the per-connection inbound ordering and reassembly
// state.
type receivePart struct {
	unrelSeqIndex uint32
	relOrdIndex   uint32
	outOfOrder    map[uint32]legproto.Packet
	splitPackets  map[uint16][]*[]byte
}

func newReceivePart() *receivePart {
	return &receivePart{
		outOfOrder:   make(map[uint32]legproto.Packet),
		splitPackets: make(map[uint16][]*[]byte),
	}
}

// parseSubPackets decodes sub-packets from the datagram body until the
// reader is exhausted. Running out of bits mid-field is expected whenever
// the datagram's last entry didn't fit and silently ends parsing; an
// unknown reliability id, a nonzero ordering channel, or an invalid split
// count is a malformed datagram and is returned as an error instead.
func parseSubPackets(r *bitio.Reader) ([]*legproto.SubPacket, error) {
	var out []*legproto.SubPacket
	for {
		p, err := legproto.DecodeSubPacket(r)
		if err != nil {
			if errors.Is(err, bitio.ErrShortBuffer) {
				break
			}
			return nil, errtrace.Wrap(err)
		}
		out = append(out, p)
	}
	return out, nil
}

// wrapLess reports whether, treating a and b as points on a 32-bit
// circle, a comes before or at b in the forward half of the circle.
func wrapLess(a, b uint32) bool {
	return b-a < 1<<31
}

// processIncoming classifies, acks, reassembles, and orders a batch of
// decoded sub-packets, returning the packets ready for delivery to the
// bridge in delivery order.
func (rp *receivePart) processIncoming(subPackets []*legproto.SubPacket, acks *rangelist.List, closed *bool) []legproto.Packet {
	packets := make([]legproto.Packet, 0, len(subPackets))

	for _, sp := range subPackets {
		if sp.Reliability == legproto.Reliable || sp.Reliability == legproto.ReliableOrdered {
			acks.Insert(sp.MessageNumber)
		}

		if sp.Split != nil {
			parts, ok := rp.splitPackets[sp.Split.ID]
			if !ok {
				parts = make([]*[]byte, sp.Split.Count)
				rp.splitPackets[sp.Split.ID] = parts
			}
			data := sp.Data
			parts[sp.Split.Index] = &data

			complete := true
			for _, part := range parts {
				if part == nil {
					complete = false
					break
				}
			}
			if !complete {
				continue
			}
			var assembled []byte
			for _, part := range parts {
				assembled = append(assembled, *part...)
			}
			sp.Data = assembled
			delete(rp.splitPackets, sp.Split.ID)
		}

		if len(sp.Data) >= 1 && sp.Data[0] == byte(legproto.DisconnectNotification) {
			*closed = true
			continue
		}

		switch sp.Reliability {
		case legproto.UnreliableSequenced:
			if wrapLess(rp.unrelSeqIndex, sp.Ordinal) {
				rp.unrelSeqIndex = sp.Ordinal + 1
			} else {
				continue // stale
			}
		case legproto.ReliableOrdered:
			if sp.Ordinal == rp.relOrdIndex {
				rp.relOrdIndex++
				packets = append(packets, sp.ToPacket())
				for {
					next, ok := rp.outOfOrder[rp.relOrdIndex]
					if !ok {
						break
					}
					packets = append(packets, next)
					delete(rp.outOfOrder, rp.relOrdIndex)
					rp.relOrdIndex++
				}
				continue
			} else if wrapLess(rp.relOrdIndex, sp.Ordinal) {
				rp.outOfOrder[sp.Ordinal] = sp.ToPacket()
				continue
			} else {
				continue // duplicate
			}
		}

		packets = append(packets, sp.ToPacket())
	}

	return packets
}
