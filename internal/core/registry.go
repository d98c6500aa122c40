package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"parlor-server/internal/activity"
	"parlor-server/internal/proto"
)

// activityFactory builds an activity for a room. Tests swap it to
// inject instrumented activities.
type activityFactory func(typeTag, roomID string, cfg json.RawMessage, m activity.Messenger, logger *zerolog.Logger) (activity.Activity, error)

// binding remembers which room and name a connection belongs to.
type binding struct {
	room *room
	user string
	conn Conn
}

// Registry owns every room, the connection bookkeeping around them and
// the routing of inbound messages. All mutation of a given room runs
// under that room's opMu; two rooms never contend on the same lock.
type Registry struct {
	log *zerolog.Logger

	newActivity activityFactory

	mu    sync.Mutex
	rooms map[string]*room
	conns map[string]*binding
}

// NewRegistry constructs an empty registry using the built-in
// activity catalog.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		log:         logger,
		newActivity: activity.New,
		rooms:       make(map[string]*room),
		conns:       make(map[string]*binding),
	}
}

// Connect registers conn under roomKey. A novel key creates the room,
// makes user its host and starts the default activity. The welcome
// sequence is then played back to the client: role_assigned, the
// activity snapshot, available_activities, and a user_joined notice to
// everyone else.
//
// Malformed input is rejected by the transport before it gets here, so
// Connect has no error path.
func (g *Registry) Connect(roomKey, user string, conn Conn) {
	for {
		g.mu.Lock()
		rm, ok := g.rooms[roomKey]
		if !ok {
			rm = newRoom(roomKey)
			g.rooms[roomKey] = rm
		}
		g.mu.Unlock()

		rm.opMu.Lock()
		if rm.dead {
			// The last member left while we waited for opMu and the
			// key was deleted. Look it up again.
			rm.opMu.Unlock()
			continue
		}
		g.join(rm, user, conn)
		rm.opMu.Unlock()
		return
	}
}

// join runs under rm.opMu.
func (g *Registry) join(rm *room, user string, conn Conn) {
	if rm.activity() == nil {
		act, err := g.newActivity(activity.DefaultType, rm.key, nil, &roomMessenger{reg: g, room: rm}, g.log)
		if err == nil {
			err = act.Start()
		}
		if err != nil {
			// The default activity takes no config; this only fires
			// with a broken injected factory. The room still works for
			// chat and room_info.
			g.log.Error().Err(err).Str("room", rm.key).Msg("failed to start default activity")
		} else {
			rm.mu.Lock()
			rm.act = act
			rm.mu.Unlock()
		}
	}

	rm.mu.Lock()
	rm.members = append(rm.members, &member{user: user, conn: conn})
	if len(rm.members) == 1 {
		rm.host = user
	}
	host := rm.host
	act := rm.act
	rm.mu.Unlock()

	g.mu.Lock()
	g.conns[conn.ID()] = &binding{room: rm, user: user, conn: conn}
	g.mu.Unlock()

	if act != nil {
		act.AddMember(user)
	}

	role := "participant"
	if host == user {
		role = "host"
	}
	g.sendTo(conn, proto.RoleAssigned{
		Type:   proto.OutboundTypeRoleAssigned,
		Role:   role,
		IsHost: host == user,
		Host:   host,
	})
	if act != nil {
		g.sendTo(conn, act.StateFor(user))
	}
	g.sendTo(conn, proto.AvailableActivities{
		Type:       proto.OutboundTypeAvailableActivities,
		Activities: catalogInfos(),
	})
	g.deliver(rm, proto.UserJoined{
		Type:     proto.OutboundTypeUserJoined,
		Username: user,
		Message:  fmt.Sprintf("%s joined the room", user),
	}, user)

	g.log.Info().Str("room", rm.key).Str("user", user).Str("role", role).Msg("user connected")
}

// Disconnect removes conn entirely: from the connection table, its
// room's member list and the active activity. The last member leaving
// tears the room down; this is the only destruction path for a room.
// A departing host hands off to the longest-connected remaining
// member, announced with host_changed.
//
// Disconnect is silent toward the departing client. The transport
// announces user_left itself so the farewell carries the reason only
// it knows.
func (g *Registry) Disconnect(conn Conn) {
	g.mu.Lock()
	b, ok := g.conns[conn.ID()]
	if ok {
		delete(g.conns, conn.ID())
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	rm := b.room
	rm.opMu.Lock()
	defer rm.opMu.Unlock()

	rm.mu.Lock()
	idx := -1
	for i, m := range rm.members {
		if m.conn.ID() == conn.ID() {
			idx = i
			break
		}
	}
	if idx < 0 {
		rm.mu.Unlock()
		return
	}
	rm.members = append(rm.members[:idx], rm.members[idx+1:]...)
	empty := len(rm.members) == 0
	act := rm.act
	hostChanged := false
	if empty {
		rm.dead = true
		rm.act = nil
		rm.host = ""
	} else if rm.host == b.user {
		rm.host = rm.members[0].user
		hostChanged = true
	}
	host := rm.host
	rm.mu.Unlock()

	if empty {
		g.mu.Lock()
		delete(g.rooms, rm.key)
		g.mu.Unlock()
		if act != nil {
			act.RemoveMember(b.user)
			act.Stop()
		}
		g.log.Info().Str("room", rm.key).Str("user", b.user).Msg("last user left, room closed")
		return
	}

	if act != nil {
		act.RemoveMember(b.user)
	}
	if hostChanged {
		g.deliver(rm, proto.HostChanged{Type: proto.OutboundTypeHostChanged, Host: host}, "")
		g.log.Info().Str("room", rm.key).Str("host", host).Msg("host changed")
	}
	g.log.Info().Str("room", rm.key).Str("user", b.user).Msg("user disconnected")
}

// Broadcast sends msg to every member of roomKey except excludeUser
// when non-empty. Unknown keys are ignored.
func (g *Registry) Broadcast(roomKey string, msg any, excludeUser string) {
	g.mu.Lock()
	rm := g.rooms[roomKey]
	g.mu.Unlock()
	if rm == nil {
		return
	}
	g.deliver(rm, msg, excludeUser)
}

// SendToMember sends msg to the first member of roomKey named user.
func (g *Registry) SendToMember(roomKey, user string, msg any) {
	g.mu.Lock()
	rm := g.rooms[roomKey]
	g.mu.Unlock()
	if rm == nil {
		return
	}
	g.deliverTo(rm, user, msg)
}

// deliver fans msg out to the room's members, skipping excludeUser
// when set. The recipient list is copied under the room lock and the
// writes happen outside it, so one slow peer never blocks membership.
// A failed write drops the peer: the socket is closed and its removal
// runs on its own goroutine because Disconnect needs the room's opMu,
// which the current operation may already hold.
func (g *Registry) deliver(rm *room, msg any, excludeUser string) {
	rm.mu.Lock()
	recipients := make([]*member, 0, len(rm.members))
	for _, m := range rm.members {
		if excludeUser != "" && m.user == excludeUser {
			continue
		}
		recipients = append(recipients, m)
	}
	rm.mu.Unlock()

	for _, m := range recipients {
		if err := m.conn.Send(msg); err != nil {
			g.log.Warn().Err(err).Str("room", rm.key).Str("user", m.user).Msg("dropping broken connection")
			_ = m.conn.Close("write failed")
			go g.Disconnect(m.conn)
		}
	}
}

// deliverTo sends msg to the first member named user, if any.
func (g *Registry) deliverTo(rm *room, user string, msg any) {
	rm.mu.Lock()
	var target Conn
	for _, m := range rm.members {
		if m.user == user {
			target = m.conn
			break
		}
	}
	rm.mu.Unlock()
	if target == nil {
		return
	}
	if err := target.Send(msg); err != nil {
		g.log.Warn().Err(err).Str("room", rm.key).Str("user", user).Msg("dropping broken connection")
		_ = target.Close("write failed")
		go g.Disconnect(target)
	}
}

// sendTo writes a direct reply. Failures are only logged: the peer's
// read loop is about to notice the dead socket and disconnect anyway.
func (g *Registry) sendTo(conn Conn, msg any) {
	if err := conn.Send(msg); err != nil {
		g.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("reply not delivered")
	}
}

// Shutdown stops every activity and closes every connection. The
// registry is unusable afterwards; it exists for process exit.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	rooms := make([]*room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.rooms = make(map[string]*room)
	g.conns = make(map[string]*binding)
	g.mu.Unlock()

	for _, rm := range rooms {
		rm.opMu.Lock()
		rm.mu.Lock()
		rm.dead = true
		act := rm.act
		rm.act = nil
		members := rm.members
		rm.members = nil
		rm.mu.Unlock()
		rm.opMu.Unlock()

		if act != nil {
			act.Stop()
		}
		for _, m := range members {
			_ = m.conn.Close("server shutting down")
		}
	}
	g.log.Info().Int("rooms", len(rooms)).Msg("registry shut down")
}

// RoomCount reports the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// catalogInfos converts the activity catalog to its wire shape.
func catalogInfos() []proto.ActivityInfo {
	catalog := activity.Catalog()
	infos := make([]proto.ActivityInfo, 0, len(catalog))
	for _, in := range catalog {
		infos = append(infos, proto.ActivityInfo{
			Type:        in.Type,
			Name:        in.Name,
			Description: in.Description,
		})
	}
	return infos
}
