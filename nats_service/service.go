package nats_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wizardin/chat-server/config"
	"github.com/wizardin/chat-server/models"
)

const embeddedReadyTimeout = 5 * time.Second

// NatsService is the event bus between the router and the per-connection
// write pumps. Events transit a memory-storage JetStream stream, so nothing
// survives a restart.
type NatsService struct {
	js       jetstream.JetStream
	nc       *nats.Conn
	embedded *natsserver.Server
}

// NewNatsService connects to the NATS server at url, or runs an in-process
// one when url is empty, and ensures the event stream exists.
func NewNatsService(url string) (*NatsService, error) {
	var embedded *natsserver.Server
	if url == "" {
		srv, err := startEmbeddedServer()
		if err != nil {
			return nil, err
		}
		embedded = srv
		url = srv.ClientURL()
		log.Printf("Running embedded NATS server at %s", url)
	}

	nc, err := nats.Connect(url)
	if err != nil {
		shutdownEmbedded(embedded)
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		shutdownEmbedded(embedded)
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := js.Stream(ctx, config.StreamName)
	if err != nil {
		log.Printf("Stream '%s' not found, attempting to create...", config.StreamName)
		streamCfg := jetstream.StreamConfig{
			Name:        config.StreamName,
			Description: "Carries live chat events",
			Subjects:    []string{fmt.Sprintf("%s.>", config.SubjectPrefix)},
			Storage:     jetstream.MemoryStorage,
			MaxAge:      time.Hour,
		}
		stream, err = js.CreateStream(ctx, streamCfg)
		if err != nil {
			nc.Close()
			shutdownEmbedded(embedded)
			return nil, fmt.Errorf("failed to create stream '%s': %w", config.StreamName, err)
		}
		log.Printf("Stream '%s' created successfully", config.StreamName)
	} else {
		log.Printf("Found existing stream '%s'", stream.CachedInfo().Config.Name)
	}

	return &NatsService{js: js, nc: nc, embedded: embedded}, nil
}

func startEmbeddedServer() (*natsserver.Server, error) {
	storeDir, err := os.MkdirTemp("", "chat-jetstream-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream store dir: %w", err)
	}

	srv, err := natsserver.NewServer(&natsserver.Options{
		Port:      -1,
		JetStream: true,
		StoreDir:  storeDir,
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(embeddedReadyTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", embeddedReadyTimeout)
	}
	return srv, nil
}

func shutdownEmbedded(srv *natsserver.Server) {
	if srv != nil {
		srv.Shutdown()
	}
}

// Close closes the NATS connection and stops the embedded server, if any.
func (s *NatsService) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
	if s.embedded != nil {
		s.embedded.Shutdown()
		s.embedded.WaitForShutdown()
	}
}

// PublishEvent sends a bus event to the given subject. Publish acks are
// awaited, so events from one caller land on the stream in call order.
func (s *NatsService) PublishEvent(ctx context.Context, subject string, ev models.BusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject '%s': %w", subject, err)
	}
	return nil
}

// RoomSubject returns the subject carrying one channel's events.
func RoomSubject(channel string) string {
	return fmt.Sprintf("%s.room.%s", config.SubjectPrefix, channel)
}

// PresenceSubject returns the subject carrying join/leave announcements.
func PresenceSubject() string {
	return config.SubjectPrefix + ".presence"
}

// SubscribeSubject delivers every new event on the subject to the handler via
// an ephemeral consumer. Replay of existing history is deliberately not done
// here; initial sync is the router's snapshot, delivered directly to the
// subscribing connection. The caller stops the returned context on teardown.
func (s *NatsService) SubscribeSubject(ctx context.Context, subject string, handler func(ev models.BusEvent)) (jetstream.ConsumeContext, error) {
	cons, err := s.js.CreateOrUpdateConsumer(ctx, config.StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for subject '%s': %w", subject, err)
	}

	consumeCtx, err := cons.Consume(func(jsMsg jetstream.Msg) {
		var ev models.BusEvent
		if err := json.Unmarshal(jsMsg.Data(), &ev); err != nil {
			log.Printf("Error unmarshaling event from subject '%s': %v", jsMsg.Subject(), err)
			return
		}
		handler(ev)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming from subject '%s': %w", subject, err)
	}
	return consumeCtx, nil
}
