package activity

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Activity type tags as they appear on the wire.
const (
	TypeSnake   = "snake"
	TypeYouTube = "youtube"
	TypeChat    = "chat"

	// DefaultType is the activity every new room starts with.
	DefaultType = TypeYouTube
)

// Info is one catalog entry.
type Info struct {
	Type        string
	Name        string
	Description string
}

// Catalog lists the built-in activities in display order.
func Catalog() []Info {
	return []Info{
		{Type: TypeSnake, Name: snakeName, Description: "Multiplayer snake game with real-time action"},
		{Type: TypeYouTube, Name: youtubeName, Description: "Synchronized video watching experience"},
		{Type: TypeChat, Name: chatName, Description: "Free-form text chat"},
	}
}

// Valid reports whether typeTag names a built-in activity.
func Valid(typeTag string) bool {
	switch typeTag {
	case TypeSnake, TypeYouTube, TypeChat:
		return true
	}
	return false
}

// New constructs an activity for a room. cfg carries optional
// per-activity settings and may be nil.
func New(typeTag, roomID string, cfg json.RawMessage, m Messenger, logger *zerolog.Logger) (Activity, error) {
	switch typeTag {
	case TypeSnake:
		return NewSnakeGame(roomID, cfg, m, logger)
	case TypeYouTube:
		return NewYouTubeSync(roomID, cfg, m, logger)
	case TypeChat:
		return NewChat(roomID, m, logger), nil
	default:
		return nil, fmt.Errorf("unknown activity type %q", typeTag)
	}
}
