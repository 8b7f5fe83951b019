// Package legconn implements the LEG connection engine: datagram header
// framing, acknowledgement tracking, split-packet reassembly, ordering,
// and outbound message numbering/splitting.
package legconn

import (
	"braces.dev/errtrace"

	"legshim/internal/bitio"
	"legshim/internal/rangelist"
)

// decodeHeader consumes the ack block and remote-clock field of a LEG
// datagram. Acks are parsed and discarded; the translator never tracks
// per-message retransmission on its own account. remoteClock is returned
// only when present; callers decide whether to update stored state.
func decodeHeader(r *bitio.Reader) (hasRemoteClock bool, remoteClock uint32, err error) {
	hasAcks, err := r.ReadBit()
	if err != nil {
		return false, 0, errtrace.Wrap(err)
	}
	if hasAcks {
		if _, err := r.ReadUint32(); err != nil { // old_clock, ignored
			return false, 0, errtrace.Wrap(err)
		}
		if _, err := rangelist.Decode(r); err != nil {
			return false, 0, errtrace.Wrap(err)
		}
	}
	hasRemoteClock, err = r.ReadBit()
	if err != nil {
		return false, 0, errtrace.Wrap(err)
	}
	if hasRemoteClock {
		remoteClock, err = r.ReadUint32()
		if err != nil {
			return false, 0, errtrace.Wrap(err)
		}
	}
	return hasRemoteClock, remoteClock, nil
}

// encodeAckHeader writes the ack portion of a datagram header (has_acks
// bit, optional echoed clock and range list) then clears acks: acks are
// only ever written once per sendPackets call.
func encodeAckHeader(w *bitio.Writer, acks *rangelist.List, remoteClockEcho uint32) {
	hasAcks := !acks.IsEmpty()
	w.WriteBit(hasAcks)
	if hasAcks {
		w.WriteUint32(remoteClockEcho)
		acks.Encode(w)
	}
	acks.Clear()
}
