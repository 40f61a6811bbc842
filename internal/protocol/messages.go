// Package protocol defines the JSON frames exchanged over the room socket and
// the drawing primitives carried inside chat payloads.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse errors. UnknownTypeError unwraps to ErrUnknownType.
var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownType    = errors.New("unknown message type")
)

// MessageType is the "type" field of every frame.
type MessageType string

const (
	TypeJoinRoom  MessageType = "join_room"
	TypeLeaveRoom MessageType = "leave_room"
	TypeChat      MessageType = "chat"
	TypeSystem    MessageType = "system"
	TypeError     MessageType = "error"
)

// UnknownTypeError carries the offending type so it can be echoed back.
type UnknownTypeError struct{ Type string }

func (e *UnknownTypeError) Error() string { return fmt.Sprintf("unknown message type: %s", e.Type) }
func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// RoomRef is a room reference as sent by clients: a JSON number or a string.
// A string holding only digits is usable both as an id and as a slug.
type RoomRef struct {
	raw     string
	id      uint
	hasID   bool
	numeric bool // arrived as a JSON number
}

// RoomByID refers to a room by numeric id.
func RoomByID(id uint) RoomRef {
	return RoomRef{raw: strconv.FormatUint(uint64(id), 10), id: id, hasID: true, numeric: true}
}

// RoomBySlug refers to a room by slug. A digit-only slug also carries
// the numeric id, which is tried first.
func RoomBySlug(slug string) RoomRef {
	r := RoomRef{raw: slug}
	if id, err := strconv.ParseUint(slug, 10, 64); err == nil && id > 0 {
		r.id, r.hasID = uint(id), true
	}
	return r
}

// ID returns the numeric form, if the reference has one.
func (r RoomRef) ID() (uint, bool) { return r.id, r.hasID }

// Slug returns the string form. Empty for references that arrived as numbers.
func (r RoomRef) Slug() string {
	if r.numeric {
		return ""
	}
	return r.raw
}

// IsZero reports whether r was never set.
func (r RoomRef) IsZero() bool  { return r.raw == "" }
func (r RoomRef) String() string { return r.raw }

// MarshalJSON writes a number for id references and a string otherwise.
func (r RoomRef) MarshalJSON() ([]byte, error) {
	if r.numeric {
		return []byte(r.raw), nil
	}
	return json.Marshal(r.raw)
}

// UnmarshalJSON accepts a positive integer or a non-empty string.
func (r *RoomRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: roomId is null", ErrInvalidMessage)
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("%w: empty roomId", ErrInvalidMessage)
		}
		*r = RoomBySlug(s)
		return nil
	}
	id, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("%w: roomId must be a positive integer or a string", ErrInvalidMessage)
	}
	*r = RoomByID(uint(id))
	return nil
}

// ClientMessage is a frame sent by a client.
type ClientMessage struct {
	Type    MessageType
	RoomID  RoomRef
	Message string
}

// JoinRoom, LeaveRoom and Chat build client frames.
func JoinRoom(ref RoomRef) ClientMessage  { return ClientMessage{Type: TypeJoinRoom, RoomID: ref} }
func LeaveRoom(ref RoomRef) ClientMessage { return ClientMessage{Type: TypeLeaveRoom, RoomID: ref} }
func Chat(ref RoomRef, message string) ClientMessage {
	return ClientMessage{Type: TypeChat, RoomID: ref, Message: message}
}

// MarshalJSON omits "message" except for chat frames.
func (m ClientMessage) MarshalJSON() ([]byte, error) {
	out := struct {
		Type    MessageType `json:"type"`
		RoomID  RoomRef     `json:"roomId"`
		Message *string     `json:"message,omitempty"`
	}{Type: m.Type, RoomID: m.RoomID}
	if m.Type == TypeChat {
		out.Message = &m.Message
	}
	return json.Marshal(out)
}

// ParseClientMessage decodes and validates one inbound frame.
// Unknown types return *UnknownTypeError; everything else malformed wraps ErrInvalidMessage.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var raw struct {
		Type    *string          `json:"type"`
		RoomID  *json.RawMessage `json:"roomId"`
		Message *string          `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw.Type == nil || *raw.Type == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	m := ClientMessage{Type: MessageType(*raw.Type)}
	switch m.Type {
	case TypeJoinRoom, TypeLeaveRoom, TypeChat:
	default:
		return ClientMessage{}, &UnknownTypeError{Type: *raw.Type}
	}

	if raw.RoomID == nil {
		return ClientMessage{}, fmt.Errorf("%w: missing roomId", ErrInvalidMessage)
	}
	if err := m.RoomID.UnmarshalJSON(*raw.RoomID); err != nil {
		return ClientMessage{}, err
	}
	if m.Type == TypeChat {
		if raw.Message == nil {
			return ClientMessage{}, fmt.Errorf("%w: missing message", ErrInvalidMessage)
		}
		m.Message = *raw.Message
	}
	return m, nil
}

// ServerMessage is a frame sent by the server. Chat frames carry the room and sender.
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	RoomID    uint        `json:"roomId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	UserName  string      `json:"userName,omitempty"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
}

// System builds an acknowledgement or greeting.
func System(message string) ServerMessage {
	return ServerMessage{Type: TypeSystem, Message: message}
}

// Error builds a rejection; the connection stays open.
func Error(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

// ChatBroadcast is the frame fanned out to the other members of roomID.
func ChatBroadcast(roomID uint, userID, userName, message string, at time.Time) ServerMessage {
	ts := at.UTC()
	return ServerMessage{
		Type:      TypeChat,
		Message:   message,
		RoomID:    roomID,
		UserID:    userID,
		UserName:  userName,
		Timestamp: &ts,
	}
}

// Encode returns the JSON text frame.
func (m ServerMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ParseServerMessage decodes a server frame. The type must be present and
// known; the other fields are optional.
func ParseServerMessage(data []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch m.Type {
	case TypeSystem, TypeError, TypeChat:
		return m, nil
	case "":
		return ServerMessage{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return ServerMessage{}, &UnknownTypeError{Type: string(m.Type)}
	}
}
