package coordinator

import (
	"github.com/adwski/chat-relay/backend/model"
	"github.com/google/uuid"
)

// storedMessage is an in-flight room message plus the set of
// identities that have acknowledged it. Lives for the process
// lifetime, like everything else here.
type storedMessage struct {
	msg    model.Message
	seenBy map[string]struct{}
}

func (co *Coordinator) handleMessage(sess *session, msg model.Message) {
	var out outbox
	co.mu.Lock()
	if sess.isPrivate {
		msg.Room = sess.room
	}
	msg.Seen = false
	msg.Timestamp = co.timestamp()
	co.messages[msg.ID] = &storedMessage{
		msg:    msg,
		seenBy: map[string]struct{}{msg.Username: {}},
	}
	co.emitRoom(&out, msg.Room, uuid.Nil, model.EventMessage, msg)
	co.mu.Unlock()
	co.deliver(out)
}

// handlePrivateMessage forwards a direct message to its target and
// echoes it back to the sender. Nothing is stored; an offline target
// means a silent drop.
func (co *Coordinator) handlePrivateMessage(sess *session, p model.PrivateMessagePayload) {
	var out outbox
	co.mu.Lock()
	if tgt, ok := co.resolve(p.To); ok {
		m := p.Message
		m.Seen = false
		m.Timestamp = co.timestamp()
		m.Type = "private"
		m.From = sess.username
		co.emitSession(&out, tgt, model.EventPrivateMessage, m)
		co.emitSession(&out, sess, model.EventPrivateMessage, m)
	}
	co.mu.Unlock()
	co.deliver(out)
}

// handleSeen records an acknowledgment. Quorum is evaluated against
// the room's current online membership, so a later join raises the bar
// and a leave can satisfy it retroactively (see reviewQuorum).
func (co *Coordinator) handleSeen(sess *session, p model.SeenPayload) {
	var out outbox
	co.mu.Lock()
	if sm, ok := co.messages[p.ID]; ok && sess.username != "" {
		if _, dup := sm.seenBy[sess.username]; !dup {
			sm.seenBy[sess.username] = struct{}{}
			if !sm.msg.Seen && co.quorumMet(p.Room, sm) {
				sm.msg.Seen = true
				co.emitRoom(&out, p.Room, uuid.Nil, model.EventSeenUpdate,
					model.SeenUpdate{ID: p.ID, Seen: true})
			}
		}
	}
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) handleFile(p model.FilePayload) {
	if p.Username == "" || p.Room == "" || p.File == "" || p.Type == "" || p.Name == "" {
		co.logger.Warn().
			Str("username", p.Username).
			Str("room", p.Room).
			Str("name", p.Name).
			Msg("file event with missing fields dropped")
		return
	}
	var out outbox
	co.mu.Lock()
	p.Timestamp = co.timestamp()
	p.Seen = false
	co.emitRoom(&out, p.Room, uuid.Nil, model.EventFile, p)
	co.mu.Unlock()
	co.deliver(out)

	co.logger.Debug().
		Str("username", p.Username).
		Str("room", p.Room).
		Str("name", p.Name).
		Int("size", len(p.File)).
		Msg("file broadcast")
}

// quorumMet reports whether every currently-online member of room has
// acknowledged the message. Private rooms track no presence and never
// reach quorum. Callers hold mu.
func (co *Coordinator) quorumMet(room string, sm *storedMessage) bool {
	members, ok := co.online[room]
	return ok && len(members) > 0 && len(sm.seenBy) >= len(members)
}

// reviewQuorum re-checks pending messages after the room's membership
// shrank: a leave can complete a quorum no new ack will ever trigger.
// Callers hold mu.
func (co *Coordinator) reviewQuorum(out *outbox, room string) {
	for id, sm := range co.messages {
		if sm.msg.Room == room && !sm.msg.Seen && co.quorumMet(room, sm) {
			sm.msg.Seen = true
			co.emitRoom(out, room, uuid.Nil, model.EventSeenUpdate,
				model.SeenUpdate{ID: id, Seen: true})
		}
	}
}
