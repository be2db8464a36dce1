// Package client is the protocol-facing half of a chat client: it mirrors
// server-pushed state into a local view, emits user intents, and leaves
// rendering to whoever hooks OnChange.
package client

import (
	"fmt"

	"github.com/wizardin/chat-server/models"
)

// State is the local mirror of what the server has pushed: the channel
// listing, the member roster, and the currently viewed channel's log and
// typing set. It is a plain value; Client owns the mutable copy.
type State struct {
	Channels       []models.ChannelInfo
	Members        []models.User
	CurrentChannel string
	Messages       []models.Message
	Typing         map[string]struct{} // usernames typing in the current channel
	Unread         map[string]bool     // channels with activity while not viewed
	PendingSync    bool                // log cleared, waiting for channel-messages
}

func newState() *State {
	return &State{
		Typing: make(map[string]struct{}),
		Unread: make(map[string]bool),
	}
}

// switchChannel applies the optimistic local part of a channel switch: the
// view moves immediately, the log empties until the snapshot arrives.
func (s *State) switchChannel(name string) {
	s.CurrentChannel = name
	s.Messages = nil
	s.PendingSync = true
	s.Typing = make(map[string]struct{})
	delete(s.Unread, name)
}

// apply is the reducer: one inbound event, one local mutation. The event set
// is closed; unknown names are an error so protocol drift surfaces loudly in
// tests.
func (s *State) apply(ev models.Event) error {
	switch ev.Event {
	case models.EventChannels:
		var channels []models.ChannelInfo
		if err := ev.Decode(&channels); err != nil {
			return err
		}
		s.Channels = channels

	case models.EventUsers:
		var users []models.User
		if err := ev.Decode(&users); err != nil {
			return err
		}
		s.Members = users

	case models.EventUserJoined:
		var user models.User
		if err := ev.Decode(&user); err != nil {
			return err
		}
		for _, m := range s.Members {
			if m.ID == user.ID {
				return nil
			}
		}
		s.Members = append(s.Members, user)

	case models.EventUserLeft:
		var user models.User
		if err := ev.Decode(&user); err != nil {
			return err
		}
		for i, m := range s.Members {
			if m.ID == user.ID {
				s.Members = append(s.Members[:i], s.Members[i+1:]...)
				break
			}
		}
		delete(s.Typing, user.Username)

	case models.EventChannelMessages:
		var sync models.ChannelMessages
		if err := ev.Decode(&sync); err != nil {
			return err
		}
		if sync.Channel != s.CurrentChannel {
			return nil
		}
		// The snapshot was copied on the server before it reached us, so a
		// live message may already sit in the local log that the snapshot
		// predates. Ids are monotonic per channel: keep the applied suffix
		// beyond the snapshot tail instead of erasing it.
		merged := sync.Messages
		var tail int64
		if n := len(merged); n > 0 {
			tail = merged[n-1].ID
		}
		for _, msg := range s.Messages {
			if msg.ID > tail {
				merged = append(merged, msg)
			}
		}
		s.Messages = merged
		s.PendingSync = false

	case models.EventNewMessage, models.EventFileMessage:
		var msg models.Message
		if err := ev.Decode(&msg); err != nil {
			return err
		}
		if msg.Channel != s.CurrentChannel {
			s.Unread[msg.Channel] = true
			return nil
		}
		// Ids are monotonic per channel, so anything at or below the tail is
		// a duplicate of what the snapshot already delivered.
		if n := len(s.Messages); n > 0 && msg.ID <= s.Messages[n-1].ID {
			return nil
		}
		s.Messages = append(s.Messages, msg)

	case models.EventUserTyping:
		var notice models.TypingNotice
		if err := ev.Decode(&notice); err != nil {
			return err
		}
		if notice.Channel == s.CurrentChannel {
			s.Typing[notice.Username] = struct{}{}
		}

	case models.EventUserStopTyping:
		var notice models.TypingNotice
		if err := ev.Decode(&notice); err != nil {
			return err
		}
		if notice.Channel == s.CurrentChannel {
			delete(s.Typing, notice.Username)
		}

	default:
		return fmt.Errorf("unknown event %q", ev.Event)
	}
	return nil
}
