package models

type EventType string

// Client to server.
const (
	EventAuth              EventType = "auth"
	EventSendMessage       EventType = "send_message"
	EventTyping            EventType = "typing"
	EventApproveMessage    EventType = "approve_message"
	EventRejectMessage     EventType = "reject_message"
	EventForcePublish      EventType = "force_publish"
	EventSendEvent         EventType = "send_event"
	EventSendFlash         EventType = "send_flash"
	EventSendWarning       EventType = "send_warning"
	EventUpdateConfig      EventType = "update_config"
	EventMuteUser          EventType = "mute_user"
	EventUnmuteUser        EventType = "unmute_user"
	EventHideUser          EventType = "hide_user"
	EventUnhideUser        EventType = "unhide_user"
	EventAddBlockedWord    EventType = "add_blocked_word"
	EventRemoveBlockedWord EventType = "remove_blocked_word"
	EventClearHistory      EventType = "clear_history"
	EventResetTimers       EventType = "reset_timers"
	EventDeleteMessage     EventType = "delete_message"
	EventTriggerAnimation  EventType = "trigger_animation"
	EventExportHistory     EventType = "export_history"
	EventBotCommand        EventType = "bot_command"
	EventBotConfirm        EventType = "bot_confirm"
)

// Server to client.
const (
	EventInitialState       EventType = "initial_state"
	EventMessage            EventType = "message"
	EventPendingMessage     EventType = "pending_message"
	EventFlashMessage       EventType = "flash_message"
	EventMessageApproved    EventType = "message_approved"
	EventMessageRejected    EventType = "message_rejected"
	EventMessageDeleted     EventType = "message_deleted"
	EventUsersUpdate        EventType = "users_update"
	EventTypingUpdate       EventType = "typing_update"
	EventConfigUpdate       EventType = "config_update"
	EventMutedUsersUpdate   EventType = "muted_users_update"
	EventBlockedWordsUpdate EventType = "blocked_words_update"
	EventMessagesCleared    EventType = "messages_cleared"
	EventAnimationTrigger   EventType = "animation_trigger"
	EventExportData         EventType = "export_data"
	EventBotReply           EventType = "bot_reply"
	EventError              EventType = "error"
)

// Envelope is decoded first to route a frame by its type.
type Envelope struct {
	Type EventType `json:"type"`
}

type InitialStateEvent struct {
	Type            EventType     `json:"type"`
	Messages        []Message     `json:"messages"`
	Users           []User        `json:"users"`
	Config          ChatConfig    `json:"config"`
	MutedUsers      []MutedUser   `json:"mutedUsers"`
	BlockedWords    []BlockedWord `json:"blockedWords"`
	TypingUsers     []TypingUser  `json:"typingUsers"`
	PendingMessages []Message     `json:"pendingMessages,omitempty"`
}

// MessageEvent is used for message, pending_message and flash_message.
type MessageEvent struct {
	Type    EventType `json:"type"`
	Message Message   `json:"message"`
}

// MessageIDEvent is used for message_approved, message_rejected and
// message_deleted.
type MessageIDEvent struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"messageId"`
}

type UsersEvent struct {
	Type  EventType `json:"type"`
	Users []User    `json:"users"`
}

type TypingEvent struct {
	Type  EventType    `json:"type"`
	Users []TypingUser `json:"users"`
}

type ConfigEvent struct {
	Type   EventType  `json:"type"`
	Config ChatConfig `json:"config"`
}

type MutedUsersEvent struct {
	Type       EventType   `json:"type"`
	MutedUsers []MutedUser `json:"mutedUsers"`
}

type BlockedWordsEvent struct {
	Type         EventType     `json:"type"`
	BlockedWords []BlockedWord `json:"blockedWords"`
}

// SignalEvent carries no payload (messages_cleared).
type SignalEvent struct {
	Type EventType `json:"type"`
}

type AnimationEvent struct {
	Type EventType `json:"type"`
	Kind string    `json:"kind"`
}

type ExportEvent struct {
	Type     EventType `json:"type"`
	Format   string    `json:"format"`
	Data     string    `json:"data"`
	Filename string    `json:"filename"`
}

type BotReplyEvent struct {
	Type       EventType   `json:"type"`
	ProposalID string      `json:"proposalId,omitempty"`
	Text       string      `json:"text"`
	Actions    []BotAction `json:"actions"`
	Executed   bool        `json:"executed"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

type ActionKind string

const (
	ActionMute              ActionKind = "mute"
	ActionUnmute            ActionKind = "unmute"
	ActionApproveMessage    ActionKind = "approve_message"
	ActionRejectMessage     ActionKind = "reject_message"
	ActionDeleteMessage     ActionKind = "delete_message"
	ActionClearHistory      ActionKind = "clear_history"
	ActionSetEnabled        ActionKind = "set_enabled"
	ActionSetDirectMode     ActionKind = "set_direct_mode"
	ActionSendEvent         ActionKind = "send_event"
	ActionSendWarning       ActionKind = "send_warning"
	ActionAddBlockedWord    ActionKind = "add_blocked_word"
	ActionRemoveBlockedWord ActionKind = "remove_blocked_word"
)

// BotAction is one typed intent proposed by the moderation bot. Only the
// fields relevant to Kind are set.
type BotAction struct {
	Kind      ActionKind `json:"kind"`
	Handle    string     `json:"handle,omitempty"`
	Minutes   int        `json:"minutes,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	Text      string     `json:"text,omitempty"`
	Enabled   *bool      `json:"enabled,omitempty"`
}
