// Package config holds the runtime defaults for the chat server along with
// environment-variable overrides for deployment-specific settings.
package config

import (
	"os"
	"strconv"
	"time"
)

const (
	// WriteWait is the time allowed to write a message to the peer.
	WriteWait = 10 * time.Second

	// PongWait is the time allowed to read the next pong message from the peer.
	PongWait = 60 * time.Second

	// PingPeriod is how often pings are sent. Must be less than PongWait.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is the websocket read limit. It sits above MaxFileBytes
	// because inline files arrive base64-encoded inside a JSON envelope.
	MaxMessageSize int64 = 16 << 20

	// MaxFileBytes is the cap on an inline file payload.
	MaxFileBytes int64 = 10 << 20

	// StreamName is the JetStream stream backing event fan-out.
	StreamName = "CHAT"

	// SubjectPrefix is the root of the event subject hierarchy.
	SubjectPrefix = "chat"
)

// ServerAddr is the listen address for the HTTP/WebSocket server.
var ServerAddr = ":3002"

// NatsURL is the NATS server to connect to. When empty, the server runs an
// in-process NATS instance instead of dialing out.
var NatsURL = ""

// SeedChannels is the fixed set of channels created at startup. The protocol
// has no channel-creation operation, so this is the complete set.
var SeedChannels = []string{"general", "random", "wizards-only"}

func init() {
	LoadFromEnv()
}

// LoadFromEnv refreshes the overridable settings from the environment.
// Unset or unparseable values keep their defaults.
func LoadFromEnv() {
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		ServerAddr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			ServerAddr = ":" + port
		}
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		NatsURL = url
	}
}
