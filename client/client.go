package client

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wizardin/chat-server/config"
	"github.com/wizardin/chat-server/models"
)

var (
	// ErrEmptyContent rejects whitespace-only messages before they hit the
	// wire; the server would drop them silently anyway.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrPayloadTooLarge rejects files over the cap before transmission.
	ErrPayloadTooLarge = errors.New("file payload exceeds size cap")
)

// PayloadTooLargeNotice is the alert text a frontend shows when a file is
// rejected for size.
const PayloadTooLargeNotice = "File too large! Maximum size is 10MB"

// Transport is the bidirectional channel the client emits intents through.
type Transport interface {
	Send(ev models.Event) error
	Close() error
}

// Client maintains the mirrored state and turns user actions into protocol
// events. All methods are safe for concurrent use; the transport's read loop
// feeds HandleEvent while UI code calls the intent methods.
type Client struct {
	transport Transport

	mu    sync.Mutex
	state *State

	debouncer *Debouncer

	// OnChange, when set, is invoked with a snapshot after every state
	// mutation. Rendering hangs off this hook and stays out of the core.
	OnChange func(State)
}

// New creates a client over the given transport.
func New(transport Transport) *Client {
	c := &Client{
		transport: transport,
		state:     newState(),
	}
	c.debouncer = NewDebouncer(time.Second, c.emitTyping, c.emitStopTyping)
	return c
}

// HandleEvent applies one inbound event to the local state. Events that fail
// to decode are reported but leave the state untouched.
func (c *Client) HandleEvent(ev models.Event) error {
	c.mu.Lock()
	if err := c.state.apply(ev); err != nil {
		c.mu.Unlock()
		return err
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if c.OnChange != nil {
		c.OnChange(snapshot)
	}
	return nil
}

// Snapshot returns a copy of the current local state.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() State {
	s := *c.state
	s.Channels = append([]models.ChannelInfo(nil), c.state.Channels...)
	s.Members = append([]models.User(nil), c.state.Members...)
	s.Messages = append([]models.Message(nil), c.state.Messages...)
	s.Typing = make(map[string]struct{}, len(c.state.Typing))
	for k := range c.state.Typing {
		s.Typing[k] = struct{}{}
	}
	s.Unread = make(map[string]bool, len(c.state.Unread))
	for k, v := range c.state.Unread {
		s.Unread[k] = v
	}
	return s
}

// Join presents the user's profile to the server.
func (c *Client) Join(username, avatar string) error {
	ev, err := models.NewEvent(models.EventJoin, models.JoinRequest{
		Username: username,
		Avatar:   avatar,
	})
	if err != nil {
		return err
	}
	return c.transport.Send(ev)
}

// JoinChannel switches the local view immediately and asks the server for the
// channel's log. The view shows an empty, pending log until channel-messages
// arrives.
func (c *Client) JoinChannel(name string) error {
	c.mu.Lock()
	c.state.switchChannel(name)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if c.OnChange != nil {
		c.OnChange(snapshot)
	}

	ev, err := models.NewEvent(models.EventJoinChannel, name)
	if err != nil {
		return err
	}
	return c.transport.Send(ev)
}

// SendMessage posts a text message to the current channel. Sending also ends
// any in-flight typing indication.
func (c *Client) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	c.mu.Lock()
	channel := c.state.CurrentChannel
	c.mu.Unlock()

	ev, err := models.NewEvent(models.EventMessage, models.MessageRequest{
		Content: content,
		Channel: channel,
	})
	if err != nil {
		return err
	}
	if err := c.transport.Send(ev); err != nil {
		return err
	}
	c.debouncer.Blur()
	return nil
}

// SendFile posts an inline file to the current channel. Oversized files are
// rejected locally; PayloadTooLargeNotice is the matching user-facing text.
func (c *Client) SendFile(file models.FilePayload) error {
	if file.Size > config.MaxFileBytes {
		return fmt.Errorf("%q: %w", file.Name, ErrPayloadTooLarge)
	}

	c.mu.Lock()
	channel := c.state.CurrentChannel
	c.mu.Unlock()

	ev, err := models.NewEvent(models.EventFileUpload, models.FileUploadRequest{
		Channel: channel,
		File:    file,
	})
	if err != nil {
		return err
	}
	return c.transport.Send(ev)
}

// InputActivity records one keystroke in the message box. The debouncer turns
// a burst of keystrokes into a single typing event and one stop-typing after
// a second of silence.
func (c *Client) InputActivity() {
	c.debouncer.Keystroke()
}

// Blur records the message box losing focus, forcing an immediate
// stop-typing if one is pending.
func (c *Client) Blur() {
	c.debouncer.Blur()
}

// Close tears down the transport. The server sees the disconnect and handles
// the rest.
func (c *Client) Close() error {
	c.debouncer.Blur()
	return c.transport.Close()
}

func (c *Client) emitTyping() {
	c.mu.Lock()
	channel := c.state.CurrentChannel
	c.mu.Unlock()

	ev, err := models.NewEvent(models.EventTyping, models.TypingRequest{Channel: channel})
	if err != nil {
		return
	}
	c.transport.Send(ev)
}

func (c *Client) emitStopTyping() {
	c.mu.Lock()
	channel := c.state.CurrentChannel
	c.mu.Unlock()

	ev, err := models.NewEvent(models.EventStopTyping, models.TypingRequest{Channel: channel})
	if err != nil {
		return
	}
	c.transport.Send(ev)
}
