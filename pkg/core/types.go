package core

import (
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Citation is a source reference attached to a search-grounded response.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Message is one turn in a chat session.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Text      string     `json:"text"`
	Streaming bool       `json:"streaming,omitempty"`
	Citations []Citation `json:"citations,omitempty"`

	// Images holds base64-encoded image payloads produced by image editing.
	Images []string `json:"images,omitempty"`
}

// ChatSession is a persisted conversation.
type ChatSession struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResponseStyle tunes how verbose the assistant is.
type ResponseStyle string

const (
	StyleConversational ResponseStyle = "Conversational"
	StyleConcise        ResponseStyle = "Concise"
	StyleDetailed       ResponseStyle = "Detailed"
)

// LiveConfig configures one live voice connection attempt. Immutable once
// handed to the session manager.
type LiveConfig struct {
	VoiceName     string
	Language      string
	ResponseStyle ResponseStyle
}

// ConnectionState is the live session manager's externally observable state.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Principal is the identity under which storage operations are scoped.
// The zero value is the local guest.
type Principal struct {
	UserID string
}

// Guest is the unauthenticated local principal.
var Guest = Principal{}

// IsGuest reports whether the principal routes to on-device storage.
func (p Principal) IsGuest() bool {
	return strings.TrimSpace(p.UserID) == ""
}
