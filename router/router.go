// Package router owns the channel set and routes intents from connections
// into channel logs and bus broadcasts. All mutation goes through a single
// lock, so every subscriber observes a channel's messages in acceptance
// order.
package router

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wizardin/chat-server/config"
	"github.com/wizardin/chat-server/models"
	"github.com/wizardin/chat-server/nats_service"
	"github.com/wizardin/chat-server/session"
)

var (
	// ErrUnknownUser rejects intents from connections that never joined.
	ErrUnknownUser = errors.New("connection has no registered user")

	// ErrUnknownRoom rejects intents against channels that do not exist.
	ErrUnknownRoom = errors.New("no such channel")

	// ErrEmptyContent rejects whitespace-only message content.
	ErrEmptyContent = errors.New("empty message content")

	// ErrPayloadTooLarge rejects inline files over the size cap.
	ErrPayloadTooLarge = errors.New("file payload exceeds size cap")
)

// Bus is the fan-out half of the event bus the router publishes into.
type Bus interface {
	PublishEvent(ctx context.Context, subject string, ev models.BusEvent) error
}

type channelState struct {
	name     string
	messages []models.Message
	lastID   int64
}

// Router validates intents against the session registry and the channel set,
// appends accepted messages, and broadcasts the resulting events.
type Router struct {
	registry *session.Registry
	bus      Bus

	mu       sync.Mutex
	channels map[string]*channelState
	names    []string // seed order, for stable listings

	now func() time.Time
}

// New creates a router owning the given channel names. The set is fixed for
// the life of the process.
func New(registry *session.Registry, bus Bus, channelNames []string) *Router {
	r := &Router{
		registry: registry,
		bus:      bus,
		channels: make(map[string]*channelState, len(channelNames)),
		now:      time.Now,
	}
	for _, name := range channelNames {
		if _, ok := r.channels[name]; ok {
			continue
		}
		r.channels[name] = &channelState{name: name}
		r.names = append(r.names, name)
	}
	return r
}

// ListChannels returns metadata for every channel in seed order.
func (r *Router) ListChannels() []models.ChannelInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]models.ChannelInfo, 0, len(r.names))
	for _, name := range r.names {
		infos = append(infos, models.ChannelInfo{Name: name})
	}
	return infos
}

// Join registers the connection's profile and announces the new user to
// everyone else. The returned events are the joiner's initial sync (channel
// listing plus the current user roster) and must be delivered to the joining
// connection only.
func (r *Router) Join(ctx context.Context, connID string, profile models.JoinRequest) ([]models.Event, error) {
	user, err := r.registry.Register(connID, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to register connection %s: %w", connID, err)
	}

	channelsEv, err := models.NewEvent(models.EventChannels, r.ListChannels())
	if err != nil {
		return nil, err
	}
	usersEv, err := models.NewEvent(models.EventUsers, r.registry.ListAll())
	if err != nil {
		return nil, err
	}

	joined, err := models.NewEvent(models.EventUserJoined, user)
	if err != nil {
		return nil, err
	}
	if err := r.bus.PublishEvent(ctx, nats_service.PresenceSubject(), models.BusEvent{
		Origin:        connID,
		ExcludeOrigin: true,
		Event:         joined,
	}); err != nil {
		return nil, fmt.Errorf("failed to announce join of %s: %w", connID, err)
	}

	return []models.Event{channelsEv, usersEv}, nil
}

// JoinChannel returns the one-time log snapshot for the subscribing
// connection. Nothing is broadcast; live updates reach the subscriber through
// its bus subscription.
func (r *Router) JoinChannel(connID, name string) (models.Event, error) {
	r.mu.Lock()
	ch, ok := r.channels[name]
	if !ok {
		r.mu.Unlock()
		return models.Event{}, fmt.Errorf("join-channel from %s: %w", connID, ErrUnknownRoom)
	}
	snapshot := make([]models.Message, len(ch.messages))
	copy(snapshot, ch.messages)
	r.mu.Unlock()

	return models.NewEvent(models.EventChannelMessages, models.ChannelMessages{
		Channel:  name,
		Messages: snapshot,
	})
}

// PostMessage validates, appends, and broadcasts a text message. The sender
// receives the broadcast too, which is its only delivery confirmation.
func (r *Router) PostMessage(ctx context.Context, connID, channel, content string) (models.Message, error) {
	user, err := r.registry.Lookup(connID)
	if err != nil {
		return models.Message{}, fmt.Errorf("message from %s: %w", connID, ErrUnknownUser)
	}
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyContent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[channel]
	if !ok {
		return models.Message{}, fmt.Errorf("message to %q: %w", channel, ErrUnknownRoom)
	}

	msg := r.buildMessage(ch, user)
	msg.Content = content
	return r.appendAndBroadcast(ctx, ch, connID, models.EventNewMessage, msg)
}

// PostFile validates, appends, and broadcasts an inline file message.
// Oversized payloads are rejected before anything is appended.
func (r *Router) PostFile(ctx context.Context, connID, channel string, file models.FilePayload) (models.Message, error) {
	user, err := r.registry.Lookup(connID)
	if err != nil {
		return models.Message{}, fmt.Errorf("file-upload from %s: %w", connID, ErrUnknownUser)
	}
	if file.Size > config.MaxFileBytes || inlineBytes(file.Data) > config.MaxFileBytes {
		return models.Message{}, fmt.Errorf("file %q (%d bytes): %w", file.Name, file.Size, ErrPayloadTooLarge)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[channel]
	if !ok {
		return models.Message{}, fmt.Errorf("file-upload to %q: %w", channel, ErrUnknownRoom)
	}

	msg := r.buildMessage(ch, user)
	msg.File = &file
	return r.appendAndBroadcast(ctx, ch, connID, models.EventFileMessage, msg)
}

// NotifyTyping relays a typing or stop-typing notice to the channel,
// excluding the sender. No typing state is retained.
func (r *Router) NotifyTyping(ctx context.Context, connID, channel string, isTyping bool) error {
	user, err := r.registry.Lookup(connID)
	if err != nil {
		return fmt.Errorf("typing from %s: %w", connID, ErrUnknownUser)
	}

	name := models.EventUserStopTyping
	if isTyping {
		name = models.EventUserTyping
	}
	ev, err := models.NewEvent(name, models.TypingNotice{
		Username: user.Username,
		Channel:  channel,
	})
	if err != nil {
		return err
	}
	return r.bus.PublishEvent(ctx, nats_service.RoomSubject(channel), models.BusEvent{
		Origin:        connID,
		ExcludeOrigin: true,
		Event:         ev,
	})
}

// Leave unregisters the connection and announces the departure to everyone
// else. Connections that never joined leave without a broadcast.
func (r *Router) Leave(ctx context.Context, connID string) error {
	user, err := r.registry.Unregister(connID)
	if err != nil {
		return nil
	}

	left, err := models.NewEvent(models.EventUserLeft, user)
	if err != nil {
		return err
	}
	return r.bus.PublishEvent(ctx, nats_service.PresenceSubject(), models.BusEvent{
		Origin:        connID,
		ExcludeOrigin: true,
		Event:         left,
	})
}

// buildMessage stamps a new message with the channel's next id. Ids start
// from wall-clock milliseconds, as the original numbering did, but never
// repeat or go backwards within a channel. Caller holds r.mu.
func (r *Router) buildMessage(ch *channelState, user models.User) models.Message {
	now := r.now()
	id := now.UnixMilli()
	if id <= ch.lastID {
		id = ch.lastID + 1
	}
	ch.lastID = id

	return models.Message{
		ID:        id,
		Username:  user.Username,
		Avatar:    user.Avatar,
		Timestamp: now.UTC(),
		Channel:   ch.name,
	}
}

// appendAndBroadcast commits the message and publishes it while still holding
// r.mu, so bus order matches log order. Caller holds r.mu.
func (r *Router) appendAndBroadcast(ctx context.Context, ch *channelState, connID, eventName string, msg models.Message) (models.Message, error) {
	ev, err := models.NewEvent(eventName, msg)
	if err != nil {
		return models.Message{}, err
	}

	ch.messages = append(ch.messages, msg)
	if err := r.bus.PublishEvent(ctx, nats_service.RoomSubject(ch.name), models.BusEvent{
		Origin: connID,
		Event:  ev,
	}); err != nil {
		return models.Message{}, fmt.Errorf("failed to broadcast to %q: %w", ch.name, err)
	}
	return msg, nil
}

// inlineBytes estimates the decoded size of a data URL payload.
func inlineBytes(data string) int64 {
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	return int64(base64.StdEncoding.DecodedLen(len(data)))
}
