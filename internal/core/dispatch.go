package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"parlor-server/internal/activity"
	"parlor-server/internal/proto"
)

// Dispatch routes one raw inbound frame from conn. Frames from
// connections the registry does not know are dropped; the transport
// only calls Dispatch between Connect and Disconnect.
func (g *Registry) Dispatch(conn Conn, raw []byte) {
	g.mu.Lock()
	b := g.conns[conn.ID()]
	g.mu.Unlock()
	if b == nil {
		return
	}

	var env proto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.log.Debug().Err(err).Str("room", b.room.key).Str("user", b.user).Msg("unparseable frame")
		g.sendTo(conn, proto.NewError("invalid message"))
		return
	}

	switch {
	case env.Type == proto.InboundTypeChangeActivity:
		g.handleChangeActivity(b, raw)
	case strings.HasPrefix(env.Type, proto.ActivityActionPrefix):
		g.handleActivityAction(b, env.Type, raw)
	case env.Type == proto.InboundTypeGetRoomInfo:
		g.handleRoomInfo(b)
	case env.Type == proto.InboundTypeMessage || env.Message != nil:
		g.handleChatMessage(b, env)
	default:
		unknown := env.Type
		if unknown == "" {
			unknown = "unknown"
		}
		g.sendTo(conn, proto.NewError(fmt.Sprintf("Unknown message type: %s", unknown)))
	}
}

// handleChangeActivity swaps the room's activity. Host only. The new
// activity is constructed and started before the old one is touched,
// so a failed switch leaves the room on its previous activity instead
// of on none.
func (g *Registry) handleChangeActivity(b *binding, raw []byte) {
	var req proto.ChangeActivityData
	if err := json.Unmarshal(raw, &req); err != nil {
		g.sendTo(b.conn, proto.NewError("invalid message"))
		return
	}
	if !activity.Valid(req.ActivityType) {
		g.sendTo(b.conn, proto.NewError(fmt.Sprintf("Invalid activity type: %s", req.ActivityType)))
		return
	}

	rm := b.room
	rm.opMu.Lock()
	defer rm.opMu.Unlock()

	rm.mu.Lock()
	dead := rm.dead
	isHost := rm.host == b.user
	rm.mu.Unlock()
	if dead {
		return
	}
	if !isHost {
		g.sendTo(b.conn, proto.ActivityChangeError{
			Type:    proto.OutboundTypeActivityChangeError,
			Message: "Only the room host can change activities",
		})
		return
	}

	next, err := g.newActivity(req.ActivityType, rm.key, req.Config, &roomMessenger{reg: g, room: rm}, g.log)
	if err == nil {
		err = next.Start()
	}
	if err != nil {
		g.log.Warn().Err(err).Str("room", rm.key).Str("activity", req.ActivityType).Msg("activity switch failed")
		g.sendTo(b.conn, proto.ActivityChangeError{
			Type:    proto.OutboundTypeActivityChangeError,
			Message: fmt.Sprintf("Failed to change activity: %v", err),
		})
		return
	}

	rm.mu.Lock()
	prev := rm.act
	rm.act = next
	members := append([]*member(nil), rm.members...)
	rm.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	for _, m := range members {
		next.AddMember(m.user)
	}

	g.deliver(rm, proto.ActivityChanged{
		Type:         proto.OutboundTypeActivityChanged,
		ActivityType: req.ActivityType,
		ActivityName: next.Name(),
		ChangedBy:    b.user,
	}, "")
	for _, m := range members {
		g.sendTo(m.conn, next.StateFor(m.user))
	}

	g.log.Info().Str("room", rm.key).Str("activity", req.ActivityType).Str("user", b.user).Msg("activity changed")
}

// handleActivityAction forwards an activity:* frame to the room's
// current activity and relays the outcome: an error reply, a direct
// reply, and for state-changing actions a fresh snapshot to every
// member.
func (g *Registry) handleActivityAction(b *binding, action string, raw []byte) {
	rm := b.room
	rm.opMu.Lock()
	defer rm.opMu.Unlock()

	act := rm.activity()
	if act == nil {
		return
	}

	res, err := g.safeHandle(act, b.user, action, raw)
	if err != nil {
		var aerr *activity.Error
		if errors.As(err, &aerr) {
			g.log.Debug().Str("room", rm.key).Str("user", b.user).Str("action", action).Str("code", aerr.Code).Msg("action rejected")
		} else {
			g.log.Warn().Err(err).Str("room", rm.key).Str("user", b.user).Str("action", action).Msg("action failed")
		}
		g.sendTo(b.conn, proto.NewError(err.Error()))
		return
	}

	if res.Reply != nil {
		g.sendTo(b.conn, res.Reply)
	}
	if res.StateChanged {
		for _, m := range rm.snapshotMembers() {
			g.sendTo(m.conn, act.StateFor(m.user))
		}
	}
}

// safeHandle shields the registry from a panicking activity handler:
// the panic becomes an error reply for the one acting user and the
// room keeps running.
func (g *Registry) safeHandle(act activity.Activity, user, action string, payload []byte) (res activity.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Str("user", user).Str("action", action).Interface("panic", r).Msg("activity handler panicked")
			err = fmt.Errorf("Activity action failed: %v", r)
		}
	}()
	return act.HandleAction(user, action, payload)
}

// handleRoomInfo replies with a point-in-time view of the room. Reads
// only, so it skips the operation lock.
func (g *Registry) handleRoomInfo(b *binding) {
	rm := b.room
	rm.mu.Lock()
	host := rm.host
	count := len(rm.members)
	current := ""
	if rm.act != nil {
		current = rm.act.Type()
	}
	rm.mu.Unlock()

	g.sendTo(b.conn, proto.RoomInfo{
		Type:                proto.OutboundTypeRoomInfo,
		RoomID:              rm.key,
		Host:                host,
		CurrentActivity:     current,
		AvailableActivities: catalogInfos(),
		UserCount:           count,
	})
}

// handleChatMessage relays a plain chat line to the rest of the room
// and echoes it back to the author marked own_message. Chat works the
// same under every activity. Empty lines are dropped without a reply.
func (g *Registry) handleChatMessage(b *binding, env proto.Envelope) {
	text := ""
	if env.Message != nil {
		text = *env.Message
	}
	if text == "" {
		return
	}

	chat := proto.ChatMessage{
		Type:     proto.OutboundTypeMessage,
		Username: b.user,
		Message:  text,
	}
	g.deliver(b.room, chat, b.user)
	g.sendTo(b.conn, proto.ChatEcho{ChatMessage: chat, OwnMessage: true})
}
