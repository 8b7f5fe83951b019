// Package scanner implements the payload scanner that inspects NEW→LEG
// packets for the two application payloads that embed upstream server
// addresses, rewriting them to point at a local relay.
package scanner

import (
	"encoding/binary"
	"net"
	"strconv"

	"braces.dev/errtrace"

	"legshim/internal/fixedstring"
	"legshim/internal/legproto"
)

// Registry resolves an upstream address to the local relay already
// listening for it, if one exists. The scanner never mutates the
// registry directly — see Command.
type Registry interface {
	Lookup(upstream *net.UDPAddr) (local *net.UDPAddr, ok bool)
}

// RelayOpener starts a new relay bound to 127.0.0.1:0 that forwards to
// upstream, returning the address it bound to.
type RelayOpener interface {
	OpenRelay(upstream *net.UDPAddr) (local *net.UDPAddr, err error)
}

// Command instructs the event loop to register a newly opened relay.
// The scanner returns these instead of mutating the registry directly so
// the loop observes a stable registry for the remainder of the tick.
type Command struct {
	Upstream *net.UDPAddr
	Local    *net.UDPAddr
}

const (
	magicByte0 = 0x53
	magicByte1 = 0x05

	loginResponseSubtype = 0
	redirectSubtype      = 14

	loginResponseHostOffset = 345
	loginResponsePortOffset = 411
	loginResponseMinLen     = 413

	redirectHostOffset = 8
	redirectPortOffset = 8 + fixedstring.Size
)

// Scan inspects each packet in place, rewriting embedded host/port fields
// where recognized, and returns any relay-spawn commands produced.
func Scan(packets []legproto.Packet, registry Registry, opener RelayOpener) ([]Command, error) {
	var cmds []Command
	for i := range packets {
		data := packets[i].Data
		if len(data) <= 8 || data[0] != magicByte0 || data[1] != magicByte1 {
			continue
		}
		switch data[3] {
		case loginResponseSubtype:
			if len(data) > loginResponseMinLen && data[8] == 1 {
				cmd, err := rewrite(data, loginResponseHostOffset, loginResponsePortOffset, registry, opener)
				if err != nil {
					return nil, errtrace.Wrap(err)
				}
				if cmd != nil {
					cmds = append(cmds, *cmd)
				}
			}
		case redirectSubtype:
			cmd, err := rewrite(data, redirectHostOffset, redirectPortOffset, registry, opener)
			if err != nil {
				return nil, errtrace.Wrap(err)
			}
			if cmd != nil {
				cmds = append(cmds, *cmd)
			}
		}
	}
	return cmds, nil
}

func rewrite(data []byte, hostOffset, portOffset int, registry Registry, opener RelayOpener) (*Command, error) {
	host, err := fixedstring.Read(data[hostOffset:])
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if host == "localhost" {
		host = "127.0.0.1"
	}
	port := binary.LittleEndian.Uint16(data[portOffset : portOffset+2])

	connectAddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	var cmd *Command
	local, ok := registry.Lookup(connectAddr)
	if !ok {
		opened, err := opener.OpenRelay(connectAddr)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		local = opened
		cmd = &Command{Upstream: connectAddr, Local: local}
	}

	if err := fixedstring.Write(data[hostOffset:], "127.0.0.1"); err != nil {
		return nil, errtrace.Wrap(err)
	}
	binary.LittleEndian.PutUint16(data[portOffset:portOffset+2], uint16(local.Port))
	return cmd, nil
}
