package models

import "time"

// Role is the closed set of identities a session can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
	RoleAdmin Role = "admin"
	RoleBot   Role = "bot"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleGuest, RoleAdmin, RoleBot:
		return true
	}
	return false
}

// IsAdmin is the single authorization predicate for admin-only actions.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusApproved MessageStatus = "approved"
	StatusRejected MessageStatus = "rejected"
)

type MessageType string

const (
	TypeNormal  MessageType = "normal"
	TypeEvent   MessageType = "event"
	TypeFlash   MessageType = "flash"
	TypeWarning MessageType = "warning"
)

type Message struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	Username       string        `json:"username"`
	Role           Role          `json:"role"`
	Content        string        `json:"content"`
	Timestamp      int64         `json:"timestamp"`
	Status         MessageStatus `json:"status"`
	Type           MessageType   `json:"type"`
	ForcePublished bool          `json:"forcePublished,omitempty"`
	FlashDuration  int           `json:"flashDuration,omitempty"`
}

// Visible reports whether the message belongs to the public feed.
// Non-normal messages are always visible regardless of status.
func (m Message) Visible() bool {
	return m.Status == StatusApproved || m.Type != TypeNormal || m.ForcePublished
}

// MessagePatch carries the mutable moderation fields of a message.
// Nil fields are left untouched.
type MessagePatch struct {
	Status         *MessageStatus
	ForcePublished *bool
}

type ChatConfig struct {
	Enabled           bool   `json:"enabled"`
	Cooldown          int    `json:"cooldown"`
	TimerEndTime      *int64 `json:"timerEndTime"`
	SimulationMode    bool   `json:"simulationMode"`
	DirectChatEnabled bool   `json:"directChatEnabled"`
}

func DefaultChatConfig() ChatConfig {
	return ChatConfig{Enabled: true}
}

// ConfigPatch merges only the fields that are set.
// ClearTimer wins over TimerEndTime.
type ConfigPatch struct {
	Enabled           *bool
	Cooldown          *int
	TimerEndTime      *int64
	ClearTimer        bool
	SimulationMode    *bool
	DirectChatEnabled *bool
}

type MutedUser struct {
	Username   string `json:"username"`
	MutedUntil int64  `json:"mutedUntil"`
}

type BlockedWord struct {
	Word    string `json:"word"`
	AddedAt int64  `json:"addedAt"`
}

type TypingUser struct {
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// User is one live session. Mute and hidden flags are derived from the
// store's handle-keyed records whenever the user list is read.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Role       Role   `json:"role"`
	IsOnline   bool   `json:"isOnline"`
	IsMuted    bool   `json:"isMuted"`
	MutedUntil int64  `json:"mutedUntil,omitempty"`
	IsHidden   bool   `json:"isHidden"`
}

// Snapshot is the persisted document. Users and typing state are
// session-only and never part of it.
type Snapshot struct {
	Messages     []Message     `json:"messages"`
	MutedUsers   []MutedUser   `json:"mutedUsers"`
	BlockedWords []BlockedWord `json:"blockedWords"`
	Config       ChatConfig    `json:"config"`
}

// Millis converts t to epoch milliseconds, the unit used on the wire.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
