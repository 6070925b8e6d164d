package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EnginePacketType is the first character of every Engine.IO v4 frame
type EnginePacketType byte

const (
	EngineOpen    EnginePacketType = '0'
	EngineClose   EnginePacketType = '1'
	EnginePing    EnginePacketType = '2'
	EnginePong    EnginePacketType = '3'
	EngineMessage EnginePacketType = '4'
	EngineUpgrade EnginePacketType = '5'
	EngineNoop    EnginePacketType = '6'
)

// SocketPacketType follows EngineMessage in Socket.IO v5 packets
type SocketPacketType byte

const (
	SocketConnect      SocketPacketType = '0'
	SocketDisconnect   SocketPacketType = '1'
	SocketEvent        SocketPacketType = '2'
	SocketAck          SocketPacketType = '3'
	SocketConnectError SocketPacketType = '4'
	SocketBinaryEvent  SocketPacketType = '5'
	SocketBinaryAck    SocketPacketType = '6'
)

var ErrInvalidPacket = errors.New("invalid packet")

// Packet is one decoded frame
type Packet struct {
	Type       EnginePacketType
	SocketType SocketPacketType
	Namespace  string
	// Event is only set for SocketEvent packets
	Event string
	// Data is the open handshake, the connect/connect_error body, or the first event argument
	Data json.RawMessage
}

// OpenPayload is the body of the Engine.IO open packet
type OpenPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// DecodePacket parses a text frame
func DecodePacket(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, fmt.Errorf("%w: empty frame", ErrInvalidPacket)
	}

	p := Packet{Type: EnginePacketType(frame[0])}
	rest := frame[1:]

	switch p.Type {
	case EngineOpen, EngineClose, EnginePing, EnginePong, EngineUpgrade, EngineNoop:
		if len(rest) > 0 {
			p.Data = json.RawMessage(rest)
		}
		return p, nil
	case EngineMessage:
	default:
		return Packet{}, fmt.Errorf("%w: unknown engine packet type %q", ErrInvalidPacket, frame[0])
	}

	if len(rest) == 0 {
		return Packet{}, fmt.Errorf("%w: message without socket packet", ErrInvalidPacket)
	}
	p.SocketType = SocketPacketType(rest[0])
	body := string(rest[1:])

	p.Namespace = "/"
	if strings.HasPrefix(body, "/") {
		ns, after, found := strings.Cut(body, ",")
		p.Namespace = ns
		if found {
			body = after
		} else {
			body = ""
		}
	}

	switch p.SocketType {
	case SocketConnect, SocketDisconnect, SocketConnectError:
		if body != "" {
			p.Data = json.RawMessage(body)
		}
		return p, nil
	case SocketEvent, SocketAck:
	case SocketBinaryEvent, SocketBinaryAck:
		return Packet{}, fmt.Errorf("%w: binary packets are not supported", ErrInvalidPacket)
	default:
		return Packet{}, fmt.Errorf("%w: unknown socket packet type %q", ErrInvalidPacket, rest[0])
	}

	// optional ack id before the argument array
	body = strings.TrimLeft(body, "0123456789")

	var args []json.RawMessage
	if err := json.Unmarshal([]byte(body), &args); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}

	if p.SocketType == SocketAck {
		if len(args) > 0 {
			p.Data = args[0]
		}
		return p, nil
	}

	if len(args) == 0 {
		return Packet{}, fmt.Errorf("%w: event without name", ErrInvalidPacket)
	}
	if err := json.Unmarshal(args[0], &p.Event); err != nil {
		return Packet{}, fmt.Errorf("%w: event name: %v", ErrInvalidPacket, err)
	}
	if len(args) > 1 {
		p.Data = args[1]
	}

	return p, nil
}

// EncodeEvent builds a 42 event frame for the given namespace
func EncodeEvent(namespace string, event string, data any) ([]byte, error) {
	args := []any{event}
	if data != nil {
		args = append(args, data)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event, err)
	}
	return append(messagePrefix(SocketEvent, namespace), body...), nil
}

// ConnectPacket asks the server to join namespace
func ConnectPacket(namespace string) []byte {
	return messagePrefix(SocketConnect, namespace)
}

// PongPacket answers a server ping
func PongPacket() []byte {
	return []byte{byte(EnginePong)}
}

func messagePrefix(t SocketPacketType, namespace string) []byte {
	prefix := []byte{byte(EngineMessage), byte(t)}
	if namespace != "" && namespace != "/" {
		prefix = append(prefix, namespace...)
		prefix = append(prefix, ',')
	}
	return prefix
}
