package relay

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"legshim/internal/legproto"
)

func TestRelayAcceptsConnectionRequest(t *testing.T) {
	upstream, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen upstream: %v", err)
	}
	defer upstream.Close()
	go func() {
		for {
			conn, err := upstream.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	upstreamAddr := upstream.Addr().(*net.TCPAddr)
	r, err := Listen(
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		&net.UDPAddr{IP: upstreamAddr.IP, Port: upstreamAddr.Port},
		nil,
		discardLogger(),
	)
	if err != nil {
		t.Fatalf("listen relay: %v", err)
	}
	defer r.conn.Close()

	client, err := net.DialUDP("udp", nil, r.LocalAddr())
	if err != nil {
		t.Fatalf("dial client: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte{byte(legproto.OpenConnectionRequest), 0}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	registry := NewRegistry()
	spawner := NewSpawner(nil, discardLogger(), rate.NewLimiter(rate.Inf, 1))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := r.Tick(registry, spawner); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if len(r.bridges) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bridge was never accepted")
		}
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if n != 2 || buf[0] != byte(legproto.OpenConnectionReply) {
		t.Fatalf("got reply %v", buf[:n])
	}
}

func TestAcceptConnectionEmptyDatagramNoPanic(t *testing.T) {
	r, err := Listen(
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1},
		nil,
		discardLogger(),
	)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer r.conn.Close()

	if err := r.acceptConnection(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2}, nil); err != nil {
		t.Fatalf("expected no error on an empty datagram, got %v", err)
	}
	if len(r.bridges) != 0 {
		t.Fatalf("expected no bridge created, got %d", len(r.bridges))
	}
}

func TestLogBridgeErrorSilentOnEOF(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	logBridgeError(log, io.EOF)
	if buf.Len() != 0 {
		t.Fatalf("expected no log output for io.EOF, got %q", buf.String())
	}
}

func TestLogBridgeErrorLogsUnrecognizedError(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	logBridgeError(log, errors.New("boom"))
	if buf.Len() == 0 {
		t.Fatal("expected a log line for an unrecognized error")
	}
}

func TestRelayTickIdleReturnsNoCommands(t *testing.T) {
	r, err := Listen(
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1},
		nil,
		discardLogger(),
	)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer r.conn.Close()

	cmds, err := r.Tick(NewRegistry(), NewSpawner(nil, discardLogger(), rate.NewLimiter(rate.Inf, 1)))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(cmds) != 0 {
		t.Fatalf("expected no commands, got %d", len(cmds))
	}
}
