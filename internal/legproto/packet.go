// Package legproto implements the LEG sub-packet codec: message numbers,
// reliability tagging, split-packet info, and the length-prefixed payload
// that together make up one entry in a LEG datagram.
package legproto

import (
	"fmt"

	"braces.dev/errtrace"

	"legshim/internal/bitio"
)

// Reliability is the reliability mode of a packet exchanged between the
// LEG and NEW connection engines. ReliableSequenced from the original
// wire protocol is unsupported and never produced or accepted here.
type Reliability uint8

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
)

func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "Unreliable"
	case UnreliableSequenced:
		return "UnreliableSequenced"
	case Reliable:
		return "Reliable"
	case ReliableOrdered:
		return "ReliableOrdered"
	default:
		return fmt.Sprintf("Reliability(%d)", uint8(r))
	}
}

// MessageType enumerates the LEG control message ids this program cares
// about. Reply datagrams carrying one of these are always exactly two
// bytes: [id, 0].
type MessageType byte

const (
	OpenConnectionRequest     MessageType = 9
	OpenConnectionReply       MessageType = 10
	NoFreeIncomingConnections MessageType = 18
	DisconnectNotification    MessageType = 19
)

// Packet is the abstract exchange unit between the LEG and NEW engines:
// a reliability tag plus opaque application bytes.
type Packet struct {
	Reliability Reliability
	Data        []byte
}

// SplitInfo identifies one chunk of a packet that was too large to send
// as a single sub-packet.
type SplitInfo struct {
	ID    uint16
	Index uint32
	Count uint32
}

// SubPacket is one fully decoded LEG sub-packet.
type SubPacket struct {
	MessageNumber uint32
	Reliability   Reliability
	// Ordinal is only meaningful when Reliability is UnreliableSequenced
	// or ReliableOrdered.
	Ordinal uint32
	Split   *SplitInfo
	Data    []byte
}

func hasOrdinal(rel Reliability) bool {
	return rel == UnreliableSequenced || rel == ReliableOrdered
}

// Encode writes the sub-packet using its fixed bit layout.
func (p *SubPacket) Encode(w *bitio.Writer) {
	w.WriteUint32(p.MessageNumber)
	w.WriteBits(uint8(p.Reliability), 3)
	if hasOrdinal(p.Reliability) {
		w.WriteBits(0, 5) // ordering channel, always 0
		w.WriteUint32(p.Ordinal)
	}
	w.WriteBit(p.Split != nil)
	if p.Split != nil {
		w.WriteUint16(p.Split.ID)
		w.WriteCompressedUint32(p.Split.Index)
		w.WriteCompressedUint32(p.Split.Count)
	}
	w.WriteCompressedUint16(uint16(len(p.Data)) * 8)
	w.Align()
	w.WriteBytes(p.Data)
}

// DecodeSubPacket reads one sub-packet. Returns an error on an undecodable
// datagram, an unknown reliability id, a nonzero ordering channel, or a
// split count of 1 or fewer — all fatal for the enclosing datagram.
func DecodeSubPacket(r *bitio.Reader) (*SubPacket, error) {
	msgNum, err := r.ReadUint32()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	relID, err := r.ReadBits(3)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if relID > 3 {
		return nil, errtrace.Wrap(fmt.Errorf("legproto: unknown reliability id %d", relID))
	}
	rel := Reliability(relID)

	var ordinal uint32
	if hasOrdinal(rel) {
		channel, err := r.ReadBits(5)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		if channel != 0 {
			return nil, errtrace.Wrap(fmt.Errorf("legproto: nonzero ordering channel %d", channel))
		}
		ordinal, err = r.ReadUint32()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
	}

	hasSplit, err := r.ReadBit()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	var split *SplitInfo
	if hasSplit {
		id, err := r.ReadUint16()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		index, err := r.ReadCompressedUint32()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		count, err := r.ReadCompressedUint32()
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		if count <= 1 {
			return nil, errtrace.Wrap(fmt.Errorf("legproto: split count must be > 1, got %d", count))
		}
		split = &SplitInfo{ID: id, Index: index, Count: count}
	}

	bitLen, err := r.ReadCompressedUint16()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	r.Align()
	byteLen := (int(bitLen) + 7) / 8
	data, err := r.ReadBytes(byteLen)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	return &SubPacket{
		MessageNumber: msgNum,
		Reliability:   rel,
		Ordinal:       ordinal,
		Split:         split,
		Data:          data,
	}, nil
}

// ToPacket strips the wire-level fields, keeping only what the bridge
// needs to see.
func (p *SubPacket) ToPacket() Packet {
	return Packet{Reliability: p.Reliability, Data: p.Data}
}
