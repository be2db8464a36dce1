package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wizardin/chat-server/config"
	"github.com/wizardin/chat-server/models"
	"github.com/wizardin/chat-server/nats_service"
	"github.com/wizardin/chat-server/router"
)

// Client holds the per-connection state: the socket, the outbound event
// queue, and the bus subscriptions accumulated as the user joins channels.
type Client struct {
	Conn      *websocket.Conn
	Router    *router.Router
	Bus       *nats_service.NatsService
	ConnID    string
	EventChan chan models.Event // Outbound events: bus deliveries + direct replies
	DoneChan  chan struct{}     // Closed when the reader exits

	consumers  []jetstream.ConsumeContext
	subscribed map[string]bool
}

// NewClient creates the per-connection state for a freshly upgraded socket.
func NewClient(conn *websocket.Conn, rt *router.Router, bus *nats_service.NatsService, connID string) *Client {
	return &Client{
		Conn:       conn,
		Router:     rt,
		Bus:        bus,
		ConnID:     connID,
		EventChan:  make(chan models.Event, 256),
		DoneChan:   make(chan struct{}),
		subscribed: make(map[string]bool),
	}
}

// queueEvent hands an event to the write pump without blocking the caller
// indefinitely.
func (c *Client) queueEvent(ev models.Event) {
	select {
	case c.EventChan <- ev:
	case <-time.After(1 * time.Second):
		log.Printf("Timeout queueing %q for connection %s", ev.Event, c.ConnID)
	case <-c.DoneChan:
	}
}

// deliverBusEvent runs in a NATS delivery goroutine. Events the sender
// flagged as everyone-but-me are dropped here when they originated from this
// connection.
func (c *Client) deliverBusEvent(ev models.BusEvent) {
	if ev.ExcludeOrigin && ev.Origin == c.ConnID {
		return
	}
	c.queueEvent(ev.Event)
}

// subscribeRoom attaches this connection to a channel's live event subject.
// Subscriptions accumulate across channel switches; the client filters by the
// channel field on each event, so stale subjects only cost traffic.
func (c *Client) subscribeRoom(ctx context.Context, channel string) error {
	if c.subscribed[channel] {
		return nil
	}
	consumeCtx, err := c.Bus.SubscribeSubject(ctx, nats_service.RoomSubject(channel), c.deliverBusEvent)
	if err != nil {
		return err
	}
	c.consumers = append(c.consumers, consumeCtx)
	c.subscribed[channel] = true
	return nil
}

// HandleRead reads envelopes from the WebSocket connection and dispatches
// them to the router. Invalid or rejected intents are dropped; the protocol
// has no error-reply channel.
func (c *Client) HandleRead(ctx context.Context) {
	defer func() {
		log.Printf("Reader closed for connection %s", c.ConnID)
		close(c.DoneChan) // Signal writer to stop
	}()
	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error for %s: %v", c.ConnID, err)
			} else {
				log.Printf("WebSocket closed for %s: %v", c.ConnID, err)
			}
			break
		}

		var env models.Event
		if err := json.Unmarshal(raw, &env); err != nil {
			// Malformed frames are ignored, not fatal; the protocol has no
			// error replies.
			log.Printf("Dropping malformed frame from %s: %v", c.ConnID, err)
			continue
		}
		c.dispatch(ctx, env)
	}
}

// dispatch routes one inbound envelope by its event name. Unknown names fall
// through silently.
func (c *Client) dispatch(ctx context.Context, env models.Event) {
	switch env.Event {
	case models.EventJoin:
		var profile models.JoinRequest
		if err := env.Decode(&profile); err != nil {
			log.Printf("Dropping join from %s: %v", c.ConnID, err)
			return
		}
		replies, err := c.Router.Join(ctx, c.ConnID, profile)
		if err != nil {
			log.Printf("Dropping join from %s: %v", c.ConnID, err)
			return
		}
		for _, reply := range replies {
			c.queueEvent(reply)
		}

	case models.EventJoinChannel:
		var channel string
		if err := env.Decode(&channel); err != nil {
			log.Printf("Dropping join-channel from %s: %v", c.ConnID, err)
			return
		}
		// Subscribe before snapshotting so no accepted message falls in the
		// gap. The client dedupes by message id if one shows up in both.
		if err := c.subscribeRoom(ctx, channel); err != nil {
			log.Printf("Failed to subscribe %s to %q: %v", c.ConnID, channel, err)
			return
		}
		snapshot, err := c.Router.JoinChannel(c.ConnID, channel)
		if err != nil {
			log.Printf("Dropping join-channel from %s: %v", c.ConnID, err)
			return
		}
		c.queueEvent(snapshot)

	case models.EventMessage:
		var req models.MessageRequest
		if err := env.Decode(&req); err != nil {
			log.Printf("Dropping message from %s: %v", c.ConnID, err)
			return
		}
		if _, err := c.Router.PostMessage(ctx, c.ConnID, req.Channel, req.Content); err != nil {
			log.Printf("Dropping message from %s: %v", c.ConnID, err)
		}

	case models.EventFileUpload:
		var req models.FileUploadRequest
		if err := env.Decode(&req); err != nil {
			log.Printf("Dropping file-upload from %s: %v", c.ConnID, err)
			return
		}
		if _, err := c.Router.PostFile(ctx, c.ConnID, req.Channel, req.File); err != nil {
			log.Printf("Dropping file-upload from %s: %v", c.ConnID, err)
		}

	case models.EventTyping, models.EventStopTyping:
		var req models.TypingRequest
		if err := env.Decode(&req); err != nil {
			log.Printf("Dropping %s from %s: %v", env.Event, c.ConnID, err)
			return
		}
		if err := c.Router.NotifyTyping(ctx, c.ConnID, req.Channel, env.Event == models.EventTyping); err != nil {
			log.Printf("Dropping %s from %s: %v", env.Event, c.ConnID, err)
		}

	case models.EventSwitchServer:
		var serverID string
		if err := env.Decode(&serverID); err != nil {
			log.Printf("Dropping switch-server from %s: %v", c.ConnID, err)
			return
		}
		if serverID != "home" {
			return
		}
		listing, err := models.NewEvent(models.EventChannels, c.Router.ListChannels())
		if err != nil {
			log.Printf("Failed to build channel listing for %s: %v", c.ConnID, err)
			return
		}
		c.queueEvent(listing)

	default:
		log.Printf("Ignoring unknown event %q from %s", env.Event, c.ConnID)
	}
}

// HandleWrite writes queued events to the WebSocket connection and keeps the
// connection alive with pings.
func (c *Client) HandleWrite() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		log.Printf("Writer closed for connection %s", c.ConnID)
	}()

	for {
		select {
		case ev := <-c.EventChan:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteJSON(ev); err != nil {
				log.Printf("WebSocket write error for %s: %v", c.ConnID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("WebSocket ping error for %s: %v", c.ConnID, err)
				return
			}

		case <-c.DoneChan:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// teardown announces the departure, stops the NATS deliveries and closes the
// socket. EventChan is deliberately left open: Stop does not wait for
// in-flight delivery callbacks, so one may still queue an event after it
// returns. The write pump exits through DoneChan instead and the channel is
// collected with the client.
func (c *Client) teardown() {
	log.Printf("Cleaning up connection %s", c.ConnID)
	leaveCtx, cancelLeave := context.WithTimeout(context.Background(), 5*time.Second)
	if err := c.Router.Leave(leaveCtx, c.ConnID); err != nil {
		log.Printf("Failed to announce departure of %s: %v", c.ConnID, err)
	}
	cancelLeave()

	for _, consumer := range c.consumers {
		consumer.Stop()
	}
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// HandleWebSocket manages the lifecycle of one WebSocket connection.
func HandleWebSocket(c *websocket.Conn, rt *router.Router, bus *nats_service.NatsService) {
	connID := uuid.NewString()
	client := NewClient(c, rt, bus, connID)
	log.Printf("Connection %s established", connID)

	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()

	// Presence announcements go to every live connection, joined or not, so
	// the subscription starts at connection time.
	presence, err := bus.SubscribeSubject(subCtx, nats_service.PresenceSubject(), client.deliverBusEvent)
	if err != nil {
		log.Printf("Failed to subscribe %s to presence: %v", connID, err)
		c.Close()
		return
	}
	client.consumers = append(client.consumers, presence)

	defer client.teardown()

	go client.HandleWrite()

	// Blocking read loop; returning triggers the deferred teardown, which the
	// rest of the system observes as a disconnect.
	client.HandleRead(subCtx)

	log.Printf("HandleWebSocket finished for %s", connID)
}
