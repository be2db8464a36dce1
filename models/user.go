package models

// StatusOnline is the presence status assigned to every registered user.
// Away/busy states never made it into the protocol.
const StatusOnline = "online"

// User is the identity attached to one live connection. ID is the connection
// id; a connection has at most one User at a time.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status"`
}

// ChannelInfo is the channel metadata sent in channel listings.
type ChannelInfo struct {
	Name string `json:"name"`
}
