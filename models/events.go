package models

import (
	"encoding/json"
	"fmt"
)

// Event names carried on the wire. The set is closed: anything outside it is
// dropped by the receiving side.
const (
	// Client to server.
	EventJoin         = "join"
	EventJoinChannel  = "join-channel"
	EventMessage      = "message"
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventFileUpload   = "file-upload"
	EventSwitchServer = "switch-server"

	// Server to client.
	EventChannels        = "channels"
	EventUsers           = "users"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventChannelMessages = "channel-messages"
	EventNewMessage      = "new-message"
	EventFileMessage     = "file-message"
	EventUserTyping      = "user-typing"
	EventUserStopTyping  = "user-stop-typing"
)

// Event is the envelope every websocket frame carries: a name from the closed
// set above plus its payload, left raw until the name is known.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent wraps a payload into an envelope.
func NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %q payload: %w", name, err)
	}
	return Event{Event: name, Data: data}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %q payload: %w", e.Event, err)
	}
	return nil
}

// JoinRequest is the profile a connection presents when joining.
type JoinRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// MessageRequest asks the router to post a text message.
type MessageRequest struct {
	Content string `json:"content"`
	Channel string `json:"channel"`
}

// TypingRequest marks the start or end of typing in a channel. The same shape
// serves both the typing and stop-typing events.
type TypingRequest struct {
	Channel string `json:"channel"`
}

// FileUploadRequest asks the router to post an inline file.
type FileUploadRequest struct {
	Channel string      `json:"channel"`
	File    FilePayload `json:"file"`
}

// ChannelMessages is the one-time log snapshot sent to a connection when it
// joins a channel.
type ChannelMessages struct {
	Channel  string    `json:"channel"`
	Messages []Message `json:"messages"`
}

// TypingNotice tells other channel members that a user is (or stopped)
// typing.
type TypingNotice struct {
	Username string `json:"username"`
	Channel  string `json:"channel"`
}

// BusEvent is the envelope used for transit over the event bus. Origin is the
// connection id the event came from; when ExcludeOrigin is set the write pump
// of that connection drops the event, matching the "everyone but the sender"
// broadcasts of presence and typing.
type BusEvent struct {
	Origin        string `json:"origin,omitempty"`
	ExcludeOrigin bool   `json:"excludeOrigin,omitempty"`
	Event         Event  `json:"event"`
}
