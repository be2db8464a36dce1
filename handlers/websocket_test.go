package handlers_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/wizardin/chat-server/client"
	"github.com/wizardin/chat-server/handlers"
	"github.com/wizardin/chat-server/nats_service"
	"github.com/wizardin/chat-server/router"
	"github.com/wizardin/chat-server/session"
)

// startTestServer boots the full stack on a loopback port: embedded NATS,
// registry, router, and the fiber websocket endpoint.
func startTestServer(t *testing.T) string {
	t.Helper()

	svc, err := nats_service.NewNatsService("")
	if err != nil {
		t.Fatalf("Failed to start bus: %v", err)
	}
	t.Cleanup(svc.Close)

	registry := session.NewRegistry()
	rt := router.New(registry, svc, []string{"general", "random"})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		handlers.HandleWebSocket(c, rt, svc)
	}))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() {
		app.ShutdownWithTimeout(2 * time.Second)
	})

	return "ws://" + ln.Addr().String() + "/ws"
}

func dialClient(t *testing.T, url string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, url)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", url, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// waitFor polls until the condition holds or the timeout expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func logContents(c *client.Client) []string {
	var contents []string
	for _, msg := range c.Snapshot().Messages {
		contents = append(contents, msg.Content)
	}
	return contents
}

// TestEndToEndChat runs the full late-joiner scenario over real sockets:
// alice posts before bob subscribes, bob's initial sync shows the history,
// and both live views converge in order.
func TestEndToEndChat(t *testing.T) {
	url := startTestServer(t)

	alice := dialClient(t, url)
	if err := alice.Join("alice", "a.png"); err != nil {
		t.Fatalf("alice join failed: %v", err)
	}
	waitFor(t, "alice's initial roster", func() bool {
		return len(alice.Snapshot().Members) == 1
	})
	if got := alice.Snapshot().Channels; len(got) != 2 {
		t.Errorf("alice's channel listing: %+v", got)
	}

	if err := alice.JoinChannel("general"); err != nil {
		t.Fatalf("alice join-channel failed: %v", err)
	}
	waitFor(t, "alice's channel sync", func() bool {
		return !alice.Snapshot().PendingSync
	})

	if err := alice.SendMessage("hello"); err != nil {
		t.Fatalf("alice send failed: %v", err)
	}
	waitFor(t, "alice's own echo", func() bool {
		log := logContents(alice)
		return len(log) == 1 && log[0] == "hello"
	})

	bob := dialClient(t, url)
	if err := bob.Join("bob", "b.png"); err != nil {
		t.Fatalf("bob join failed: %v", err)
	}
	waitFor(t, "bob's roster to include alice", func() bool {
		return len(bob.Snapshot().Members) == 2
	})
	waitFor(t, "alice to see bob join", func() bool {
		return len(alice.Snapshot().Members) == 2
	})

	if err := bob.JoinChannel("general"); err != nil {
		t.Fatalf("bob join-channel failed: %v", err)
	}
	waitFor(t, "bob's initial sync to replay history", func() bool {
		log := logContents(bob)
		return !bob.Snapshot().PendingSync && len(log) == 1 && log[0] == "hello"
	})

	if err := alice.SendMessage("world"); err != nil {
		t.Fatalf("alice send failed: %v", err)
	}
	for name, c := range map[string]*client.Client{"alice": alice, "bob": bob} {
		c := c
		waitFor(t, name+"'s converged log", func() bool {
			log := logContents(c)
			return len(log) == 2 && log[0] == "hello" && log[1] == "world"
		})
	}
}

// TestEndToEndTypingAndDeparture verifies typing relay (sender excluded) and
// the single user-left broadcast on disconnect.
func TestEndToEndTypingAndDeparture(t *testing.T) {
	url := startTestServer(t)

	alice := dialClient(t, url)
	bob := dialClient(t, url)
	for name, c := range map[string]*client.Client{"alice": alice, "bob": bob} {
		if err := c.Join(name, name+".png"); err != nil {
			t.Fatalf("%s join failed: %v", name, err)
		}
		if err := c.JoinChannel("general"); err != nil {
			t.Fatalf("%s join-channel failed: %v", name, err)
		}
	}
	waitFor(t, "both rosters complete", func() bool {
		return len(alice.Snapshot().Members) == 2 && len(bob.Snapshot().Members) == 2
	})
	waitFor(t, "both channel syncs", func() bool {
		return !alice.Snapshot().PendingSync && !bob.Snapshot().PendingSync
	})

	alice.InputActivity()
	waitFor(t, "bob to see alice typing", func() bool {
		_, ok := bob.Snapshot().Typing["alice"]
		return ok
	})
	if _, ok := alice.Snapshot().Typing["alice"]; ok {
		t.Error("alice received her own typing relay")
	}

	alice.Blur()
	waitFor(t, "bob to see alice stop typing", func() bool {
		_, ok := bob.Snapshot().Typing["alice"]
		return !ok
	})

	if err := bob.Close(); err != nil {
		t.Fatalf("bob close failed: %v", err)
	}
	waitFor(t, "alice to see bob leave", func() bool {
		members := alice.Snapshot().Members
		return len(members) == 1 && members[0].Username == "alice"
	})
}

// TestEndToEndBackgroundActivity verifies that messages for a channel the
// client is not viewing mark it unread instead of touching the log.
func TestEndToEndBackgroundActivity(t *testing.T) {
	url := startTestServer(t)

	alice := dialClient(t, url)
	bob := dialClient(t, url)
	for name, c := range map[string]*client.Client{"alice": alice, "bob": bob} {
		if err := c.Join(name, name+".png"); err != nil {
			t.Fatalf("%s join failed: %v", name, err)
		}
	}

	// Both subscribe to general; bob then switches to random, keeping the
	// general subscription at the transport level.
	for name, c := range map[string]*client.Client{"alice": alice, "bob": bob} {
		if err := c.JoinChannel("general"); err != nil {
			t.Fatalf("%s join-channel failed: %v", name, err)
		}
		waitFor(t, name+"'s sync", func() bool { return !c.Snapshot().PendingSync })
	}
	if err := bob.JoinChannel("random"); err != nil {
		t.Fatalf("bob switch failed: %v", err)
	}
	waitFor(t, "bob's random sync", func() bool { return !bob.Snapshot().PendingSync })

	if err := alice.SendMessage("anyone here?"); err != nil {
		t.Fatalf("alice send failed: %v", err)
	}

	waitFor(t, "bob's unread marker for general", func() bool {
		return bob.Snapshot().Unread["general"]
	})
	if log := logContents(bob); len(log) != 0 {
		t.Errorf("Background message leaked into bob's random view: %v", log)
	}
}
