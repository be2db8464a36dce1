package models

import (
	"time"
)

// Message represents one entry in a channel's log. Text messages carry
// Content; file messages carry File instead. A message belongs to exactly one
// channel and is immutable once appended.
type Message struct {
	ID        int64        `json:"id"`        // Monotonically increasing within a channel
	Username  string       `json:"username"`  // Author snapshot at post time
	Avatar    string       `json:"avatar"`    // Author avatar snapshot
	Content   string       `json:"content,omitempty"`
	Timestamp time.Time    `json:"timestamp"` // Creation time, UTC
	Channel   string       `json:"channel"`   // Name of the owning channel
	File      *FilePayload `json:"file,omitempty"`
}

// FilePayload is an inline file transfer. Data is a data URL produced by the
// sender, so its length exceeds the declared Size by the base64 overhead.
type FilePayload struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"` // MIME type
	Data string `json:"data"`
}
