package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/le-tueur/chatvc/internal/database"
	"github.com/le-tueur/chatvc/internal/models"
)

const (
	DefaultSaveDelay = 2 * time.Second
	DefaultTypingTTL = 5 * time.Second
)

// ModerationStore is the authoritative in-memory chat state. Every mutation
// of persisted state schedules a debounced write through the repository;
// a failed write never rolls back memory.
type ModerationStore struct {
	mu        sync.Mutex
	repo      database.StateRepository
	saver     *Saver
	now       func() time.Time
	typingTTL time.Duration

	messages []models.Message
	config   models.ChatConfig
	muted    map[string]int64
	hidden   map[string]bool
	blocked  []models.BlockedWord
	typing   map[string]int64
	users    []models.User
}

type Option func(*ModerationStore)

func WithClock(now func() time.Time) Option {
	return func(s *ModerationStore) { s.now = now }
}

func WithSaveDelay(d time.Duration) Option {
	return func(s *ModerationStore) { s.saver.delay = d }
}

func WithTypingTTL(d time.Duration) Option {
	return func(s *ModerationStore) { s.typingTTL = d }
}

func NewModerationStore(repo database.StateRepository, opts ...Option) *ModerationStore {
	s := &ModerationStore{
		repo:      repo,
		now:       time.Now,
		typingTTL: DefaultTypingTTL,
		config:    models.DefaultChatConfig(),
		muted:     make(map[string]int64),
		hidden:    make(map[string]bool),
		typing:    make(map[string]int64),
	}
	s.saver = NewSaver(DefaultSaveDelay, s.persist)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the persisted part of the state with the repository's
// snapshot. A repository with nothing saved leaves the defaults in place.
func (s *ModerationStore) Load(ctx context.Context) error {
	snap, err := s.repo.LoadState(ctx)
	if errors.Is(err, database.ErrNoSnapshot) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load chat state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append([]models.Message(nil), snap.Messages...)
	s.config = snap.Config
	if s.config.Cooldown < 0 {
		s.config.Cooldown = 0
	}
	s.muted = make(map[string]int64, len(snap.MutedUsers))
	for _, m := range snap.MutedUsers {
		s.muted[m.Username] = m.MutedUntil
	}
	s.blocked = s.blocked[:0]
	for _, w := range snap.BlockedWords {
		s.addBlockedLocked(w.Word, w.AddedAt)
	}
	return nil
}

// Flush writes the current state right away, cancelling any pending write.
func (s *ModerationStore) Flush(ctx context.Context) error {
	return s.saver.Flush(ctx)
}

func (s *ModerationStore) persist(ctx context.Context) error {
	snap := s.Snapshot()
	return s.repo.SaveState(ctx, &snap)
}

func (s *ModerationStore) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.Snapshot{
		Messages:     s.copyMessages(func(models.Message) bool { return true }),
		MutedUsers:   s.mutedListLocked(),
		BlockedWords: append([]models.BlockedWord{}, s.blocked...),
		Config:       copyConfig(s.config),
	}
}

func (s *ModerationStore) nowMillis() int64 {
	return models.Millis(s.now())
}

// Messages

func (s *ModerationStore) AddMessage(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	s.saver.RequestSave()
}

func (s *ModerationStore) Message(id string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.messages[i], true
	}
	return models.Message{}, false
}

// UpdateMessage applies patch to the message with id and returns the
// result. Unknown ids are a no-op.
func (s *ModerationStore) UpdateMessage(id string, patch models.MessagePatch) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Message{}, false
	}
	msg := &s.messages[i]
	if patch.Status != nil {
		msg.Status = *patch.Status
	}
	if patch.ForcePublished != nil {
		msg.ForcePublished = *patch.ForcePublished
	}
	s.saver.RequestSave()
	return *msg, true
}

func (s *ModerationStore) DeleteMessage(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.saver.RequestSave()
	return true
}

func (s *ModerationStore) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.saver.RequestSave()
}

func (s *ModerationStore) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyMessages(func(models.Message) bool { return true })
}

// PendingMessages returns the admin approval queue, oldest first.
func (s *ModerationStore) PendingMessages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyMessages(func(m models.Message) bool {
		return m.Status == models.StatusPending && m.Type == models.TypeNormal
	})
}

// ApprovedMessages returns the public feed, oldest first.
func (s *ModerationStore) ApprovedMessages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyMessages(models.Message.Visible)
}

func (s *ModerationStore) indexOf(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *ModerationStore) copyMessages(keep func(models.Message) bool) []models.Message {
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// Config

func (s *ModerationStore) Config() models.ChatConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyConfig(s.config)
}

// UpdateConfig merges the set fields of patch; everything else keeps its
// previous value.
func (s *ModerationStore) UpdateConfig(patch models.ConfigPatch) models.ChatConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Enabled != nil {
		s.config.Enabled = *patch.Enabled
	}
	if patch.Cooldown != nil && *patch.Cooldown >= 0 {
		s.config.Cooldown = *patch.Cooldown
	}
	if patch.ClearTimer {
		s.config.TimerEndTime = nil
	} else if patch.TimerEndTime != nil {
		end := *patch.TimerEndTime
		s.config.TimerEndTime = &end
	}
	if patch.SimulationMode != nil {
		s.config.SimulationMode = *patch.SimulationMode
	}
	if patch.DirectChatEnabled != nil {
		s.config.DirectChatEnabled = *patch.DirectChatEnabled
	}
	s.saver.RequestSave()
	return copyConfig(s.config)
}

// ResetTimers clears the closure deadline and the cooldown only.
func (s *ModerationStore) ResetTimers() models.ChatConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.TimerEndTime = nil
	s.config.Cooldown = 0
	s.saver.RequestSave()
	return copyConfig(s.config)
}

// CloseIfExpired disables the chat when it is still enabled and its closure
// deadline has passed. It reports true only for the call that performed the
// transition.
func (s *ModerationStore) CloseIfExpired(now time.Time) (models.ChatConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.config.Enabled || s.config.TimerEndTime == nil || *s.config.TimerEndTime > models.Millis(now) {
		return copyConfig(s.config), false
	}
	s.config.Enabled = false
	s.config.TimerEndTime = nil
	s.saver.RequestSave()
	return copyConfig(s.config), true
}

func copyConfig(c models.ChatConfig) models.ChatConfig {
	if c.TimerEndTime != nil {
		end := *c.TimerEndTime
		c.TimerEndTime = &end
	}
	return c
}

// Mutes

func (s *ModerationStore) MuteUser(handle string, until int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.muted[handle] = until
	s.saver.RequestSave()
}

func (s *ModerationStore) UnmuteUser(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.muted[handle]; !ok {
		return false
	}
	delete(s.muted, handle)
	s.saver.RequestSave()
	return true
}

// IsMuted reports whether handle is muted right now. An expired record is
// deleted as it is discovered.
func (s *ModerationStore) IsMuted(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, muted := s.muteLocked(handle)
	return muted
}

func (s *ModerationStore) MutedUsers() []models.MutedUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutedListLocked()
}

func (s *ModerationStore) muteLocked(handle string) (int64, bool) {
	until, ok := s.muted[handle]
	if !ok {
		return 0, false
	}
	if until <= s.nowMillis() {
		delete(s.muted, handle)
		s.saver.RequestSave()
		return 0, false
	}
	return until, true
}

func (s *ModerationStore) mutedListLocked() []models.MutedUser {
	out := make([]models.MutedUser, 0, len(s.muted))
	now := s.nowMillis()
	for handle, until := range s.muted {
		if until <= now {
			delete(s.muted, handle)
			s.saver.RequestSave()
			continue
		}
		out = append(out, models.MutedUser{Username: handle, MutedUntil: until})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Blocked words

func normalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// AddBlockedWord stores the lowercased word. It reports false for an empty
// word or a duplicate.
func (s *ModerationStore) AddBlockedWord(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.addBlockedLocked(word, s.nowMillis()) {
		return false
	}
	s.saver.RequestSave()
	return true
}

func (s *ModerationStore) addBlockedLocked(word string, addedAt int64) bool {
	w := normalizeWord(word)
	if w == "" {
		return false
	}
	for _, b := range s.blocked {
		if b.Word == w {
			return false
		}
	}
	s.blocked = append(s.blocked, models.BlockedWord{Word: w, AddedAt: addedAt})
	return true
}

func (s *ModerationStore) RemoveBlockedWord(word string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := normalizeWord(word)
	for i, b := range s.blocked {
		if b.Word == w {
			s.blocked = append(s.blocked[:i], s.blocked[i+1:]...)
			s.saver.RequestSave()
			return true
		}
	}
	return false
}

func (s *ModerationStore) BlockedWords() []models.BlockedWord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BlockedWord{}, s.blocked...)
}

// ContainsBlockedWord is a case-insensitive substring match against every
// blocked word.
func (s *ModerationStore) ContainsBlockedWord(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.blocked) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, b := range s.blocked {
		if strings.Contains(lower, b.Word) {
			return true
		}
	}
	return false
}

// Typing

func (s *ModerationStore) SetTyping(handle string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if typing {
		s.typing[handle] = s.nowMillis()
		return
	}
	delete(s.typing, handle)
}

// TypingUsers evicts entries older than the typing TTL before answering.
func (s *ModerationStore) TypingUsers() []models.TypingUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	out := make([]models.TypingUser, 0, len(s.typing))
	for handle, ts := range s.typing {
		if now-ts > s.typingTTL.Milliseconds() {
			delete(s.typing, handle)
			continue
		}
		out = append(out, models.TypingUser{Username: handle, Timestamp: ts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Users

// AddUser registers a live session. Mute and hidden state come from the
// handle-keyed records, so a returning user keeps them.
func (s *ModerationStore) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.IsOnline = true
	for i := range s.users {
		if s.users[i].ID == user.ID {
			s.users[i] = user
			return
		}
	}
	s.users = append(s.users, user)
}

func (s *ModerationStore) RemoveUser(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return u, true
		}
	}
	return models.User{}, false
}

// HasSession reports whether handle still has a live session.
func (s *ModerationStore) HasSession(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == handle {
			return true
		}
	}
	return false
}

// Users lists online handles in join order, one entry per handle even
// when it holds several sessions. Hidden users are left out unless
// includeHidden is set.
func (s *ModerationStore) Users(includeHidden bool) []models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.User, 0, len(s.users))
	seen := make(map[string]bool, len(s.users))
	for _, u := range s.users {
		if seen[u.Username] {
			continue
		}
		seen[u.Username] = true
		u.IsHidden = s.hidden[u.Username]
		if u.IsHidden && !includeHidden {
			continue
		}
		u.MutedUntil, u.IsMuted = s.muteLocked(u.Username)
		out = append(out, u)
	}
	return out
}

func (s *ModerationStore) SetHidden(handle string, hidden bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hidden {
		s.hidden[handle] = true
		return
	}
	delete(s.hidden, handle)
}

func (s *ModerationStore) IsHidden(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hidden[handle]
}
