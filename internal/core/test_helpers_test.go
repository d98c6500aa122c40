package core

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"parlor-server/internal/activity"
	"parlor-server/internal/log"
)

func testLogger() *zerolog.Logger {
	return log.Nop()
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(testLogger())
	t.Cleanup(reg.Shutdown)
	return reg
}

// fakeConn records everything the registry sends through it.
type fakeConn struct {
	id string

	mu          sync.Mutex
	sent        []any
	failSend    bool
	closed      bool
	closeReason string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("connection gone")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
	return nil
}

func (c *fakeConn) messages() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// breakConn makes every further Send fail.
func (c *fakeConn) breakConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failSend = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// wireType marshals msg and returns its "type" field. Snapshot types
// live inside the activity package, so tests match them on the wire
// shape instead of the Go type.
func wireType(t *testing.T, msg any) string {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal %T: %v", msg, err)
	}
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal %T: %v", msg, err)
	}
	return env.Type
}

// lastOfType returns the newest sent message of type T.
func lastOfType[T any](t *testing.T, c *fakeConn) T {
	t.Helper()
	msgs := c.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(T); ok {
			return m
		}
	}
	var zero T
	t.Fatalf("no message of type %T sent, got %d messages", zero, len(msgs))
	return zero
}

// countWireType counts sent messages whose "type" field equals want.
func countWireType(t *testing.T, c *fakeConn, want string) int {
	t.Helper()
	n := 0
	for _, m := range c.messages() {
		if wireType(t, m) == want {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, desc string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// fakeSnapshot is what fakeActivity.StateFor hands out.
type fakeSnapshot struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// fakeActivity is an injectable activity that records lifecycle calls
// and returns scripted results.
type fakeActivity struct {
	typeTag string

	mu      sync.Mutex
	started int
	stopped int
	members []string
	removed []string
	actions []string

	startErr  error
	result    activity.Result
	actionErr error
	panicOn   string
}

func (f *fakeActivity) Type() string { return f.typeTag }
func (f *fakeActivity) Name() string { return "Fake " + f.typeTag }

func (f *fakeActivity) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeActivity) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeActivity) AddMember(user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = append(f.members, user)
}

func (f *fakeActivity) RemoveMember(user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, user)
}

func (f *fakeActivity) StateFor(user string) any {
	return fakeSnapshot{Type: "activity_state", User: user}
}

func (f *fakeActivity) HandleAction(user, action string, payload json.RawMessage) (activity.Result, error) {
	f.mu.Lock()
	f.actions = append(f.actions, action)
	panicOn := f.panicOn
	res, err := f.result, f.actionErr
	f.mu.Unlock()
	if panicOn != "" && panicOn == action {
		panic("scripted failure")
	}
	return res, err
}

func (f *fakeActivity) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func (f *fakeActivity) memberList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.members...)
}

var _ activity.Activity = (*fakeActivity)(nil)

// withFakeFactory swaps the registry's activity factory for one that
// hands out fakeActivity instances and records them per type tag.
func withFakeFactory(reg *Registry) map[string]*fakeActivity {
	made := make(map[string]*fakeActivity)
	var mu sync.Mutex
	reg.newActivity = func(typeTag, roomID string, cfg json.RawMessage, m activity.Messenger, logger *zerolog.Logger) (activity.Activity, error) {
		mu.Lock()
		defer mu.Unlock()
		f := &fakeActivity{typeTag: typeTag}
		made[typeTag] = f
		return f, nil
	}
	return made
}
