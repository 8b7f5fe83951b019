package legproto

import "fmt"

// DebugName returns a short human-readable label for a packet, used only
// in debug-level logging. Mirrors the subset of the original protocol's
// message catalogue that the translator actually observes in practice.
func DebugName(p Packet) string {
	if len(p.Data) == 0 {
		return "<empty packet>"
	}
	if p.Data[0] != 0x53 {
		switch p.Data[0] {
		case 0:
			return "InternalPing"
		case 3:
			return "ConnectedPong"
		case 4:
			return "ConnectionRequest"
		case 14:
			return "ConnectionRequestAccepted"
		case 17:
			return "NewIncomingConnection"
		case 19:
			return "DisconnectNotification"
		case 36:
			return "ReplicaManagerConstruction"
		case 37:
			return "ReplicaManagerDestruction"
		case 39:
			return "ReplicaManagerSerialize"
		default:
			return fmt.Sprintf("%d", p.Data[0])
		}
	}
	if len(p.Data) < 8 {
		return "<truncated application packet>"
	}
	group, sub := p.Data[1], p.Data[3]
	switch group {
	case 0:
		if sub == 0 {
			return "Handshake"
		}
	case 1:
		if sub == 0 {
			return "LoginRequest"
		}
	case 2:
		if sub == 1 {
			return "GeneralChatMessage"
		}
	case 4:
		switch sub {
		case 1:
			return "SessionInfo"
		case 2:
			return "CharacterListRequest"
		case 4:
			return "EnterWorld"
		case 5:
			return "GameMessage"
		case 15:
			return "Routing"
		case 19:
			return "LoadComplete"
		case 22:
			return "PositionUpdate"
		case 23:
			return "Mail"
		case 25:
			return "StringCheck"
		}
	case 5:
		switch sub {
		case 0:
			return "LoginResponse"
		case 2:
			return "LoadWorld"
		case 4:
			return "CharacterData"
		case 6:
			return "CharacterList"
		case 12:
			return "GameMessage"
		case 14:
			return "GeneralChatMessage"
		case 49:
			return "Mail"
		case 59:
			return "Moderation"
		}
	}
	return fmt.Sprintf("53-%d-0-%d", group, sub)
}
