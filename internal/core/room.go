package core

import (
	"sync"

	"parlor-server/internal/activity"
)

// member binds one connection to the display name it joined with.
// Names are not deduplicated; two tabs joining as "alice" are two
// members sharing a name, exactly like two sockets would be.
type member struct {
	user string
	conn Conn
}

// room is the live state behind one room key.
//
// Two locks with distinct jobs: opMu serializes compound room
// operations (join, leave, action dispatch, activity switch) so their
// multi-step effects never interleave; mu guards the plain fields for
// short reads and writes. opMu may wrap mu, never the other way
// around. mu is never held across a network send; opMu is, which is
// what keeps one operation's sends from interleaving with another's.
type room struct {
	key string

	opMu sync.Mutex

	mu      sync.Mutex
	members []*member
	host    string
	act     activity.Activity
	dead    bool
}

func newRoom(key string) *room {
	return &room{key: key}
}

// snapshotMembers copies the member list for iteration outside mu.
func (r *room) snapshotMembers() []*member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*member(nil), r.members...)
}

// activity returns the current activity, which may be nil for a
// heartbeat between teardown and removal.
func (r *room) activity() activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.act
}

// roomMessenger hands a room's delivery capability to its activity.
// It is constructed together with the activity, so the activity never
// needs a reference back into the registry.
type roomMessenger struct {
	reg  *Registry
	room *room
}

func (m *roomMessenger) Broadcast(msg any, excludeUser string) {
	m.reg.deliver(m.room, msg, excludeUser)
}

func (m *roomMessenger) SendTo(user string, msg any) {
	m.reg.deliverTo(m.room, user, msg)
}

var _ activity.Messenger = (*roomMessenger)(nil)
