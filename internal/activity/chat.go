package activity

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const chatName = "💬 Chat Room"

// Chat is the plain text chat mode. It has no background loop; it only
// relays lines and keeps a small running summary for late joiners.
type Chat struct {
	roomID string
	m      Messenger
	log    *zerolog.Logger

	mu           sync.Mutex
	users        map[string]struct{}
	messageCount int
	lastMessage  *chatLine
}

type chatLine struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type chatRelay struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type chatEcho struct {
	chatRelay
	OwnMessage bool `json:"own_message"`
}

type chatState struct {
	MessageCount int       `json:"message_count"`
	LastMessage  *chatLine `json:"last_message"`
}

type chatSnapshot struct {
	Type         string    `json:"type"`
	ActivityType string    `json:"activity_type"`
	ActivityName string    `json:"activity_name"`
	State        chatState `json:"state"`
	Users        []string  `json:"users"`
}

// NewChat creates the chat activity for a room.
func NewChat(roomID string, m Messenger, logger *zerolog.Logger) *Chat {
	return &Chat{
		roomID: roomID,
		m:      m,
		log:    logger,
		users:  make(map[string]struct{}),
	}
}

var _ Activity = (*Chat)(nil)

func (c *Chat) Type() string { return TypeChat }
func (c *Chat) Name() string { return chatName }

func (c *Chat) Start() error {
	c.log.Info().Str("room_id", c.roomID).Msg("chat started")
	return nil
}

func (c *Chat) Stop() {
	c.log.Info().Str("room_id", c.roomID).Msg("chat stopped")
}

func (c *Chat) AddMember(user string) {
	c.mu.Lock()
	c.users[user] = struct{}{}
	c.mu.Unlock()
}

func (c *Chat) RemoveMember(user string) {
	c.mu.Lock()
	delete(c.users, user)
	c.mu.Unlock()
}

func (c *Chat) StateFor(user string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chatSnapshot{
		Type:         "activity_state",
		ActivityType: TypeChat,
		ActivityName: chatName,
		State: chatState{
			MessageCount: c.messageCount,
			LastMessage:  c.lastMessage,
		},
		Users: sortedUsers(c.users),
	}
}

func (c *Chat) HandleAction(user, action string, payload json.RawMessage) (Result, error) {
	op := actionName(TypeChat, action)
	if op != "message" {
		return Result{}, validationErr(fmt.Sprintf("Unknown chat action: %s", op))
	}

	var data struct {
		Message string `json:"message"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return Result{}, validationErr("Invalid chat payload")
		}
	}

	line := chatLine{
		User:      user,
		Text:      data.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	c.mu.Lock()
	c.messageCount++
	c.lastMessage = &line
	c.mu.Unlock()

	relay := chatRelay{Type: "message", Username: user, Message: data.Message}
	c.m.Broadcast(relay, user)
	return Result{Reply: chatEcho{chatRelay: relay, OwnMessage: true}}, nil
}

// sortedUsers returns the member set as a deterministic slice.
func sortedUsers(users map[string]struct{}) []string {
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}
