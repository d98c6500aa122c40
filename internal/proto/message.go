package proto

import "encoding/json"

// Envelope is the minimal shape shared by every inbound message. The
// full payload stays in the raw bytes and is decoded per message type.
// Message is a pointer so a bare {"message": "..."} frame without a
// type still routes to chat, while its absence falls through to the
// unknown-type error.
type Envelope struct {
	Type    string  `json:"type"`
	Message *string `json:"message,omitempty"`
}

const (
	InboundTypeChangeActivity = "change_activity"
	InboundTypeGetRoomInfo    = "get_room_info"
	InboundTypeMessage        = "message"

	// Inbound types with an "activity:" prefix are routed to the room's
	// current activity with the prefix stripped.
	ActivityActionPrefix = "activity:"

	OutboundTypeRoleAssigned        = "role_assigned"
	OutboundTypeAvailableActivities = "available_activities"
	OutboundTypeMessage             = "message"
	OutboundTypeUserJoined          = "user_joined"
	OutboundTypeUserLeft            = "user_left"
	OutboundTypeHostChanged         = "host_changed"
	OutboundTypeActivityChanged     = "activity_changed"
	OutboundTypeActivityChangeError = "activity_change_error"
	OutboundTypeRoomInfo            = "room_info"
	OutboundTypeError               = "error"
)

// ChangeActivityData asks the server to swap the room's activity.
// Only the room host may do this.
type ChangeActivityData struct {
	ActivityType string          `json:"activity_type"`
	Config       json.RawMessage `json:"config,omitempty"`
}

// ActivityInfo describes one entry of the activity catalog.
type ActivityInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleAssigned tells a freshly connected client whether it is the host.
type RoleAssigned struct {
	Type   string `json:"type"`
	Role   string `json:"role"`
	IsHost bool   `json:"is_host"`
	Host   string `json:"host"`
}

// AvailableActivities lists the activities a host can switch to.
type AvailableActivities struct {
	Type       string         `json:"type"`
	Activities []ActivityInfo `json:"activities"`
}

// UserJoined announces a new room member to everyone else.
type UserJoined struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// UserLeft announces a departed room member.
type UserLeft struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// HostChanged announces host succession after the host disconnects.
type HostChanged struct {
	Type string `json:"type"`
	Host string `json:"host"`
}

// ActivityChanged announces a successful activity switch.
type ActivityChanged struct {
	Type         string `json:"type"`
	ActivityType string `json:"activity_type"`
	ActivityName string `json:"activity_name"`
	ChangedBy    string `json:"changed_by"`
}

// ActivityChangeError reports a rejected or failed activity switch.
type ActivityChangeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RoomInfo is the reply to a get_room_info request.
type RoomInfo struct {
	Type                string         `json:"type"`
	RoomID              string         `json:"room_id"`
	Host                string         `json:"host"`
	CurrentActivity     string         `json:"current_activity"`
	AvailableActivities []ActivityInfo `json:"available_activities"`
	UserCount           int            `json:"user_count"`
}

// ChatMessage is a plain chat line relayed to the rest of the room.
type ChatMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ChatEcho is the copy of a chat line sent back to its author.
type ChatEcho struct {
	ChatMessage
	OwnMessage bool `json:"own_message"`
}

// ErrorMessage is a generic per-client error reply.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds an ErrorMessage with the outbound type set.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: OutboundTypeError, Message: message}
}
