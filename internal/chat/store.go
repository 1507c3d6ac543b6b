package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"imagechat-backend/pkg/api"
)

// DefaultTitle is used for conversations created without an explicit title.
const DefaultTitle = "New Chat"

// titleMaxLen bounds auto-derived conversation titles; longer first messages
// are truncated with an ellipsis.
const titleMaxLen = 30

// Snapshot is the persisted application state: connection settings, all
// conversations and the active conversation reference.
type Snapshot struct {
	APIKey               string             `json:"apiKey"`
	APIBase              string             `json:"apiBase"`
	Conversations        []api.Conversation `json:"conversations"`
	ActiveConversationID string             `json:"activeConversationId,omitempty"`
}

// Persister receives a snapshot after every store mutation. Implementations
// must not fail the caller; persistence errors stay inside the persister.
type Persister interface {
	Save(snap Snapshot)
}

// Store is the single authoritative container for conversation state. All
// mutations go through its methods; operations are total and never fail on
// valid input; unknown ids are silently ignored.
type Store struct {
	mu        sync.Mutex
	persister Persister

	apiKey        string
	apiBase       string
	conversations []api.Conversation
	activeID      string
	loading       bool
}

func NewStore(persister Persister) *Store {
	return &Store{persister: persister}
}

func now() int64 {
	return time.Now().UnixMilli()
}

// Restore replaces the store contents with a previously persisted snapshot.
// If the recorded active conversation no longer resolves, the first
// conversation becomes active.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiKey = snap.APIKey
	s.apiBase = snap.APIBase
	s.conversations = snap.Conversations
	s.activeID = snap.ActiveConversationID

	if len(s.conversations) > 0 && s.findLocked(s.activeID) == nil {
		s.activeID = s.conversations[0].ID
	}
}

func (s *Store) findLocked(id string) *api.Conversation {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return &s.conversations[i]
		}
	}
	return nil
}

func (s *Store) persistLocked() {
	if s.persister != nil {
		s.persister.Save(s.snapshotLocked())
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		APIKey:               s.apiKey,
		APIBase:              s.apiBase,
		Conversations:        copyConversations(s.conversations),
		ActiveConversationID: s.activeID,
	}
}

func copyConversations(convs []api.Conversation) []api.Conversation {
	out := make([]api.Conversation, len(convs))
	for i, conv := range convs {
		out[i] = conv
		out[i].Messages = make([]api.Message, len(conv.Messages))
		for j, msg := range conv.Messages {
			out[i].Messages[j] = msg
			if len(msg.Images) > 0 {
				out[i].Messages[j].Images = append([]api.MessageImage(nil), msg.Images...)
			}
		}
	}
	return out
}

// Snapshot returns a deep copy of the persistable state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) SetAPIKey(apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = apiKey
	s.persistLocked()
}

func (s *Store) SetAPIBase(apiBase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiBase = apiBase
	s.persistLocked()
}

func (s *Store) APIKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey
}

func (s *Store) APIBase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiBase
}

// SetLoading flips the advisory busy flag. The flag is not part of the
// persisted snapshot and nothing is enforced by it.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// CreateConversation creates an empty conversation, makes it active and
// returns its id.
func (s *Store) CreateConversation(title string) string {
	if title == "" {
		title = DefaultTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	conv := api.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []api.Message{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	s.conversations = append(s.conversations, conv)
	s.activeID = conv.ID
	s.persistLocked()

	return conv.ID
}

// SetActiveConversation sets the active conversation unconditionally; callers
// are responsible for passing a valid id.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
	s.persistLocked()
}

func (s *Store) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

func (s *Store) UpdateConversationTitle(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return
	}

	conv.Title = title
	conv.UpdatedAt = now()
	s.persistLocked()
}

// DeleteConversation removes the conversation. If it was active, the first
// remaining conversation becomes active, or none if none remain.
func (s *Store) DeleteConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := s.conversations[:0]
	for _, conv := range s.conversations {
		if conv.ID != id {
			remaining = append(remaining, conv)
		}
	}
	s.conversations = remaining

	if s.activeID == id {
		if len(s.conversations) > 0 {
			s.activeID = s.conversations[0].ID
		} else {
			s.activeID = ""
		}
	}

	s.persistLocked()
}

// AddMessage appends to the active conversation. Without an active
// conversation the call is a no-op. The first user message of a conversation
// also derives its title.
func (s *Store) AddMessage(msg api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(s.activeID)
	if conv == nil {
		return
	}

	if len(conv.Messages) == 0 && msg.Role == api.RoleUser {
		conv.Title = deriveTitle(msg.Content)
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now()
	s.persistLocked()
}

func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return string(runes[:titleMaxLen]) + "..."
}

// SetMessages replaces the conversation's message list. Unknown ids are
// ignored.
func (s *Store) SetMessages(conversationID string, messages []api.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(conversationID)
	if conv == nil {
		return
	}

	conv.Messages = messages
	conv.UpdatedAt = now()
	s.persistLocked()
}

// ClearMessages empties the target conversation, defaulting to the active
// one. A no-op when no target resolves.
func (s *Store) ClearMessages(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversationID == "" {
		conversationID = s.activeID
	}

	conv := s.findLocked(conversationID)
	if conv == nil {
		return
	}

	conv.Messages = []api.Message{}
	conv.UpdatedAt = now()
	s.persistLocked()
}

// Conversations lists all conversations in insertion order.
func (s *Store) Conversations() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyConversations(s.conversations)
}

// Messages returns a conversation's message list, or nil for unknown ids.
func (s *Store) Messages(conversationID string) []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(conversationID)
	if conv == nil {
		return nil
	}
	return append([]api.Message(nil), conv.Messages...)
}

// ActiveConversation returns a copy of the active conversation, or nil.
func (s *Store) ActiveConversation() *api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(s.activeID)
	if conv == nil {
		return nil
	}

	copied := copyConversations([]api.Conversation{*conv})
	return &copied[0]
}

// ActiveMessages returns the active conversation's messages, or an empty
// list when none is active.
func (s *Store) ActiveMessages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(s.activeID)
	if conv == nil {
		return []api.Message{}
	}
	return append([]api.Message(nil), conv.Messages...)
}
