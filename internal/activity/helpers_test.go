package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"parlor-server/internal/log"
)

func testLogger() *zerolog.Logger {
	return log.Nop()
}

// recorder is a Messenger that captures everything an activity sends.
type recorder struct {
	mu         sync.Mutex
	broadcasts []sentMessage
	directs    []sentMessage
}

type sentMessage struct {
	msg     any
	exclude string
	target  string
}

func (r *recorder) Broadcast(msg any, excludeUser string) {
	r.mu.Lock()
	r.broadcasts = append(r.broadcasts, sentMessage{msg: msg, exclude: excludeUser})
	r.mu.Unlock()
}

func (r *recorder) SendTo(user string, msg any) {
	r.mu.Lock()
	r.directs = append(r.directs, sentMessage{msg: msg, target: user})
	r.mu.Unlock()
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.broadcasts = nil
	r.directs = nil
	r.mu.Unlock()
}

func (r *recorder) all() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.broadcasts...)
}

// lastOfType returns the most recent broadcast of the given dynamic
// type T, failing the test when none was sent.
func lastOfType[T any](t *testing.T, r *recorder) (T, string) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.broadcasts) - 1; i >= 0; i-- {
		if msg, ok := r.broadcasts[i].msg.(T); ok {
			return msg, r.broadcasts[i].exclude
		}
	}
	var zero T
	t.Fatalf("no broadcast of type %T recorded", zero)
	return zero, ""
}

func countOfType[T any](r *recorder) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.broadcasts {
		if _, ok := b.msg.(T); ok {
			n++
		}
	}
	return n
}

func newTestYouTube(t *testing.T) (*YouTubeSync, *recorder) {
	t.Helper()
	rec := &recorder{}
	y, err := NewYouTubeSync("room1", nil, rec, testLogger())
	if err != nil {
		t.Fatalf("failed to create youtube activity: %v", err)
	}
	return y, rec
}

func newTestSnake(t *testing.T, cfg []byte) (*SnakeGame, *recorder) {
	t.Helper()
	rec := &recorder{}
	g, err := NewSnakeGame("room1", cfg, rec, testLogger())
	if err != nil {
		t.Fatalf("failed to create snake game: %v", err)
	}
	return g, rec
}

func newTestChat(t *testing.T) (*Chat, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewChat("room1", rec, testLogger()), rec
}

// clearThrottle lets a test repeat an action without waiting out the
// per-user window.
func clearThrottle(y *YouTubeSync) {
	y.mu.Lock()
	y.throttleStamps = make(map[string]time.Time)
	y.mu.Unlock()
}
