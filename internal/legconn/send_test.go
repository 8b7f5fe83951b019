package legconn

import (
	"net"
	"testing"

	"legshim/internal/legproto"
)

func testSendPart(t *testing.T) *sendPart {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return newSendPart(conn, addr)
}

func TestMessageNumberSequence(t *testing.T) {
	sp := testSendPart(t)
	packets := []legproto.Packet{
		{Reliability: legproto.Unreliable},
		{Reliability: legproto.Unreliable},
	}
	out := sp.processOutgoing(packets)
	if out[0].MessageNumber != 0 || out[1].MessageNumber != 1 {
		t.Fatalf("got %d, %d", out[0].MessageNumber, out[1].MessageNumber)
	}
}

func TestUnrelSeqIndexSequence(t *testing.T) {
	sp := testSendPart(t)
	packets := []legproto.Packet{
		{Reliability: legproto.UnreliableSequenced},
		{Reliability: legproto.UnreliableSequenced},
	}
	out := sp.processOutgoing(packets)
	if out[0].Ordinal != 0 || out[1].Ordinal != 1 {
		t.Fatalf("got %d, %d", out[0].Ordinal, out[1].Ordinal)
	}
}

func TestRelOrdIndexSequence(t *testing.T) {
	sp := testSendPart(t)
	packets := []legproto.Packet{
		{Reliability: legproto.ReliableOrdered},
		{Reliability: legproto.ReliableOrdered},
	}
	out := sp.processOutgoing(packets)
	if out[0].Ordinal != 0 || out[1].Ordinal != 1 {
		t.Fatalf("got %d, %d", out[0].Ordinal, out[1].Ordinal)
	}
}

func TestSplitPacketChunking(t *testing.T) {
	sp := testSendPart(t)
	packets := []legproto.Packet{
		{Reliability: legproto.ReliableOrdered, Data: make([]byte, MaxPacketSize*3)},
	}
	out := sp.processOutgoing(packets)
	if len(out) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(out))
	}
	for i, p := range out {
		if p.MessageNumber != uint32(i) {
			t.Fatalf("chunk %d: message number %d", i, p.MessageNumber)
		}
		if p.Ordinal != 0 {
			t.Fatalf("chunk %d: expected ordinal 0, got %d", i, p.Ordinal)
		}
		if p.Split == nil {
			t.Fatalf("chunk %d: expected split info", i)
		}
		if p.Split.ID != 0 || p.Split.Count != 4 || p.Split.Index != uint32(i) {
			t.Fatalf("chunk %d: got %+v", i, p.Split)
		}
	}
}

func TestCountersWrap(t *testing.T) {
	sp := testSendPart(t)
	sp.msgNum = ^uint32(0)
	sp.splitIdx = ^uint16(0)
	sp.unrelSeq = ^uint32(0)
	sp.relOrd = ^uint32(0)

	if n := sp.nextMessageNumber(); n != ^uint32(0) {
		t.Fatalf("got %d", n)
	}
	if n := sp.nextMessageNumber(); n != 0 {
		t.Fatalf("got %d", n)
	}
	if n := sp.nextSplitIndex(); n != ^uint16(0) {
		t.Fatalf("got %d", n)
	}
	if n := sp.nextSplitIndex(); n != 0 {
		t.Fatalf("got %d", n)
	}
	if _, ord := sp.assignReliability(legproto.UnreliableSequenced); ord != ^uint32(0) {
		t.Fatalf("got %d", ord)
	}
	if _, ord := sp.assignReliability(legproto.UnreliableSequenced); ord != 0 {
		t.Fatalf("got %d", ord)
	}
	if _, ord := sp.assignReliability(legproto.ReliableOrdered); ord != ^uint32(0) {
		t.Fatalf("got %d", ord)
	}
	if _, ord := sp.assignReliability(legproto.ReliableOrdered); ord != 0 {
		t.Fatalf("got %d", ord)
	}
}
