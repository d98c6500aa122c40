// Package activity implements the pluggable room modes: synchronized
// YouTube playback, the multiplayer snake game and plain chat. An
// activity owns its own state and background loop; the room layer owns
// membership and message delivery.
package activity

import (
	"encoding/json"
	"strings"
)

// Messenger lets an activity push messages to its room outside the
// request/reply cycle. Implementations must be safe for concurrent use
// and must not call back into the activity.
type Messenger interface {
	// Broadcast sends msg to every room member. A non-empty
	// excludeUser is skipped.
	Broadcast(msg any, excludeUser string)
	// SendTo sends msg to a single member if still connected.
	SendTo(user string, msg any)
}

// Result is the outcome of a handled action.
type Result struct {
	// Reply, when non-nil, is sent only to the acting user.
	Reply any
	// StateChanged asks the caller to push a fresh per-user state
	// snapshot to every member after the reply.
	StateChanged bool
}

// Activity is one room mode. Lifecycle: the room constructs it, calls
// Start once, feeds it membership changes and actions, and finally
// calls Stop exactly once. Start/Stop are never called concurrently
// with anything else; the remaining methods may race with the
// activity's own background loop and must synchronize internally.
// AddMember must not send messages; RemoveMember may broadcast.
type Activity interface {
	// Type returns the wire tag, e.g. "youtube".
	Type() string
	// Name returns the display name shown in the catalog.
	Name() string
	Start() error
	Stop()
	AddMember(user string)
	RemoveMember(user string)
	// StateFor builds the full state snapshot tailored to one user.
	StateFor(user string) any
	// HandleAction processes one user action. The action string is the
	// full inbound message type, e.g. "activity:youtube:load_video";
	// the activity strips its own prefix.
	HandleAction(user, action string, payload json.RawMessage) (Result, error)
}

const actionPrefix = "activity:"

// actionName strips the "activity:<type>:" prefix from a full inbound
// message type. A foreign or missing prefix leaves the string intact,
// which routes it to the unknown-action error.
func actionName(typeTag, action string) string {
	return strings.TrimPrefix(action, actionPrefix+typeTag+":")
}
