package client

import (
	"errors"
	"sync"
	"testing"

	"github.com/wizardin/chat-server/models"
)

// fakeTransport records every event the client emits.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []models.Event
	closed bool
}

func (f *fakeTransport) Send(ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) events() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Event(nil), f.sent...)
}

// TestJoinIntent verifies the join intent carries the profile.
func TestJoinIntent(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport)

	if err := c.Join("merlin", "wizard.png"); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	sent := transport.events()
	if len(sent) != 1 || sent[0].Event != models.EventJoin {
		t.Fatalf("Unexpected events: %+v", sent)
	}
	var profile models.JoinRequest
	if err := sent[0].Decode(&profile); err != nil {
		t.Fatalf("Failed to decode join payload: %v", err)
	}
	if profile.Username != "merlin" || profile.Avatar != "wizard.png" {
		t.Errorf("Unexpected profile: %+v", profile)
	}
}

// TestJoinChannelOptimisticSwitch verifies the local view flips before any
// confirmation: current channel set, log cleared and pending, intent sent.
func TestJoinChannelOptimisticSwitch(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport)

	var observed []State
	c.OnChange = func(s State) { observed = append(observed, s) }

	if err := c.JoinChannel("general"); err != nil {
		t.Fatalf("JoinChannel failed: %v", err)
	}

	state := c.Snapshot()
	if state.CurrentChannel != "general" || !state.PendingSync || len(state.Messages) != 0 {
		t.Errorf("View did not switch optimistically: %+v", state)
	}
	if len(observed) == 0 {
		t.Error("OnChange not invoked for the optimistic switch")
	}

	sent := transport.events()
	if len(sent) != 1 || sent[0].Event != models.EventJoinChannel {
		t.Fatalf("Unexpected events: %+v", sent)
	}
	var name string
	if err := sent[0].Decode(&name); err != nil {
		t.Fatalf("Failed to decode join-channel payload: %v", err)
	}
	if name != "general" {
		t.Errorf("join-channel for %q", name)
	}
}

// TestSendMessageRejectsEmpty verifies whitespace-only content never reaches
// the transport.
func TestSendMessageRejectsEmpty(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport)
	c.JoinChannel("general")
	before := len(transport.events())

	for _, content := range []string{"", "  ", "\t\n"} {
		if err := c.SendMessage(content); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Content %q: expected ErrEmptyContent, got %v", content, err)
		}
	}
	if len(transport.events()) != before {
		t.Error("Rejected content was sent")
	}
}

// TestSendMessageTargetsCurrentChannel verifies the message intent carries
// the channel being viewed and ends a pending typing indication.
func TestSendMessageTargetsCurrentChannel(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport)
	c.JoinChannel("random")
	c.InputActivity() // typing fires
	before := len(transport.events())

	if err := c.SendMessage("a wild message"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sent := transport.events()[before:]
	if len(sent) != 2 {
		t.Fatalf("Expected message + stop-typing, got %d events", len(sent))
	}
	if sent[0].Event != models.EventMessage {
		t.Fatalf("Expected message event, got %q", sent[0].Event)
	}
	var req models.MessageRequest
	if err := sent[0].Decode(&req); err != nil {
		t.Fatalf("Failed to decode message payload: %v", err)
	}
	if req.Channel != "random" || req.Content != "a wild message" {
		t.Errorf("Unexpected request: %+v", req)
	}
	if sent[1].Event != models.EventStopTyping {
		t.Errorf("Expected stop-typing after send, got %q", sent[1].Event)
	}
}

// TestSendFileRejectsOversized verifies the 10 MiB pre-send cap and that the
// sentinel stays distinct from the alert text shown to the user.
func TestSendFileRejectsOversized(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport)
	c.JoinChannel("general")
	before := len(transport.events())

	err := c.SendFile(models.FilePayload{Name: "tome.pdf", Size: 11 << 20, Type: "application/pdf"})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	if PayloadTooLargeNotice != "File too large! Maximum size is 10MB" {
		t.Errorf("Unexpected alert text: %q", PayloadTooLargeNotice)
	}
	if len(transport.events()) != before {
		t.Error("Oversized file was transmitted")
	}

	if err := c.SendFile(models.FilePayload{Name: "spell.png", Size: 1024, Type: "image/png", Data: "data:image/png;base64,aGk="}); err != nil {
		t.Fatalf("SendFile failed: %v", err)
	}
	sent := transport.events()
	if sent[len(sent)-1].Event != models.EventFileUpload {
		t.Errorf("Expected file-upload, got %q", sent[len(sent)-1].Event)
	}
}

// TestHandleEventFeedsState verifies the transport-to-state path and the
// OnChange hook.
func TestHandleEventFeedsState(t *testing.T) {
	transport := &fakeTransport{}
	c := New(transport)

	var changes int
	c.OnChange = func(State) { changes++ }

	ev, err := models.NewEvent(models.EventChannels, []models.ChannelInfo{{Name: "general"}})
	if err != nil {
		t.Fatalf("Failed to build event: %v", err)
	}
	if err := c.HandleEvent(ev); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if got := c.Snapshot(); len(got.Channels) != 1 || got.Channels[0].Name != "general" {
		t.Errorf("State not updated: %+v", got.Channels)
	}
	if changes != 1 {
		t.Errorf("OnChange invoked %d times, want 1", changes)
	}
}
