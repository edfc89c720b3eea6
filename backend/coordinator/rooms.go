package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/google/uuid"
)

const (
	privateRoomPrefix = "private-"
	privateRoomDelim  = "-"
)

// PrivateRoomKey derives the canonical room key for a pair of
// identities. The pair is sorted first, so the key for (a, b) always
// equals the key for (b, a).
func PrivateRoomKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return privateRoomPrefix + strings.Join(pair, privateRoomDelim)
}

// IsPrivateRoomKey reports whether name lives in the private room
// namespace. Public rooms may not use it.
func IsPrivateRoomKey(name string) bool {
	return strings.HasPrefix(name, privateRoomPrefix)
}

func (co *Coordinator) handleJoin(sess *session, p model.JoinPayload) {
	var out outbox
	co.mu.Lock()
	defer func() {
		co.mu.Unlock()
		co.deliver(out)
	}()

	if p.Username == "" {
		co.emitSession(&out, sess, model.EventError, "Username is required")
		return
	}
	if err := co.register(sess, p.Username); err != nil {
		co.emitSession(&out, sess, model.EventError, "Username already taken")
		return
	}
	sess.username = p.Username

	if p.IsPrivate && p.TargetUser != "" {
		key := PrivateRoomKey(p.Username, p.TargetUser)
		co.joinGroup(key, sess)
		sess.room, sess.isPrivate, sess.targetUser = key, true, p.TargetUser

		if tgt, ok := co.resolve(p.TargetUser); ok {
			co.joinGroup(key, tgt)
			co.emitRoom(&out, key, uuid.Nil, model.EventMessage, co.systemMessage(key,
				fmt.Sprintf("Private chat started between %s and %s", p.Username, p.TargetUser)))
		} else {
			co.addPendingPeer(p.TargetUser, key, p.Username)
		}
	} else {
		if p.Room == "" || IsPrivateRoomKey(p.Room) {
			co.emitSession(&out, sess, model.EventError, "Invalid room name")
			return
		}
		co.joinGroup(p.Room, sess)
		sess.room, sess.isPrivate, sess.targetUser = p.Room, false, ""

		members := co.joinPublic(p.Room, p.Username)
		co.emitRoom(&out, p.Room, uuid.Nil, model.EventOnlineUsers, members)
		co.emitRoom(&out, p.Room, uuid.Nil, model.EventMessage,
			co.systemMessage(p.Room, p.Username+" joined the room"))

		if p.Expiry > 0 {
			co.arm(p.Room, time.UnixMilli(p.Expiry))
		}
	}

	co.emitAll(&out, model.EventRoomList, co.catalogSnapshot())

	// Someone may have opened a private room targeting this identity
	// while it was offline. Join it now and announce the reconnection.
	for key := range co.pending[p.Username] {
		co.joinGroup(key, sess)
		co.emitRoom(&out, key, uuid.Nil, model.EventMessage,
			co.systemMessage(key, p.Username+" is now online and joined the private chat"))
	}
	delete(co.pending, p.Username)

	co.logger.Debug().
		Str("username", p.Username).
		Str("room", sess.room).
		Bool("private", sess.isPrivate).
		Msg("user joined room")
}

func (co *Coordinator) handleCreateRoom(sess *session, p model.CreateRoomPayload) {
	var out outbox
	co.mu.Lock()
	if p.Name == "" || IsPrivateRoomKey(p.Name) {
		co.emitSession(&out, sess, model.EventError, "Invalid room name")
	} else if co.catalogAdd(p.Name) {
		co.emitAll(&out, model.EventRoomList, co.catalogSnapshot())
		if p.Expiry > 0 {
			co.arm(p.Name, time.UnixMilli(p.Expiry))
		}
		co.logger.Debug().Str("room", p.Name).Msg("room created")
	}
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) handleTyping(sess *session, name string, p model.TypingPayload) {
	var out outbox
	co.mu.Lock()
	co.emitRoom(&out, p.Room, sess.id, name, p.Username)
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) handleCanvas(p model.CanvasPayload) {
	var out outbox
	co.mu.Lock()
	co.emitRoom(&out, p.Room, uuid.Nil, model.EventCanvasUpdate, model.CanvasPayload{Data: p.Data})
	co.mu.Unlock()
	co.deliver(out)
}

// Transport-level room groups. Private peers are joined individually;
// public members are joined as part of handleJoin. Callers hold mu.

func (co *Coordinator) joinGroup(room string, sess *session) {
	grp, ok := co.groups[room]
	if !ok {
		grp = make(map[uuid.UUID]*session)
		co.groups[room] = grp
	}
	grp[sess.id] = sess
}

func (co *Coordinator) leaveGroups(sess *session) {
	for room, grp := range co.groups {
		delete(grp, sess.id)
		if len(grp) == 0 {
			delete(co.groups, room)
		}
	}
}

// Public presence list, insertion ordered, set semantics.

func (co *Coordinator) joinPublic(room, username string) []string {
	members := co.online[room]
	found := false
	for _, m := range members {
		if m == username {
			found = true
			break
		}
	}
	if !found {
		members = append(members, username)
		co.online[room] = members
	}
	return append([]string(nil), members...)
}

func (co *Coordinator) leavePublic(room, username string) ([]string, bool) {
	members, ok := co.online[room]
	if !ok {
		return nil, false
	}
	kept := members[:0]
	for _, m := range members {
		if m != username {
			kept = append(kept, m)
		}
	}
	co.online[room] = kept
	return append([]string(nil), kept...), true
}

// Pending private pairings: requester opened a private room whose
// target was offline at the time.

func (co *Coordinator) addPendingPeer(target, key, requester string) {
	waiting, ok := co.pending[target]
	if !ok {
		waiting = make(map[string]string)
		co.pending[target] = waiting
	}
	waiting[key] = requester
}

func (co *Coordinator) dropPendingFrom(requester string) {
	for target, waiting := range co.pending {
		for key, from := range waiting {
			if from == requester {
				delete(waiting, key)
			}
		}
		if len(waiting) == 0 {
			delete(co.pending, target)
		}
	}
}

// Catalog of public rooms.

func (co *Coordinator) catalogAdd(name string) bool {
	for _, r := range co.catalog {
		if r == name {
			return false
		}
	}
	co.catalog = append(co.catalog, name)
	return true
}

func (co *Coordinator) catalogRemove(name string) {
	for i, r := range co.catalog {
		if r == name {
			co.catalog = append(co.catalog[:i], co.catalog[i+1:]...)
			return
		}
	}
}

func (co *Coordinator) catalogSnapshot() []string {
	return append([]string(nil), co.catalog...)
}

// Rooms returns the public catalog.
func (co *Coordinator) Rooms() []string {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.catalogSnapshot()
}

// Expiry scheduler. One one-shot timer handle per public room key,
// replaced on re-arm and removed on fire or disarm. Each handle
// carries a generation so a fired timer can tell whether the entry
// under its key is still its own. Callers hold mu.

type roomTimer struct {
	timer *time.Timer
	gen   uint64
}

func (co *Coordinator) arm(room string, at time.Time) {
	co.disarm(room)
	d := at.Sub(co.now())
	if d < 0 {
		d = 0
	}
	co.expiryGen++
	gen := co.expiryGen
	co.expiries[room] = roomTimer{
		timer: time.AfterFunc(d, func() {
			co.expireRoom(room, gen)
		}),
		gen: gen,
	}
	co.logger.Debug().Str("room", room).Time("at", at).Msg("room expiry armed")
}

func (co *Coordinator) disarm(room string) bool {
	rt, ok := co.expiries[room]
	if ok {
		rt.timer.Stop()
		delete(co.expiries, room)
	}
	return ok
}

// expireRoom runs on the timer goroutine and competes for the same
// critical section as connection events.
func (co *Coordinator) expireRoom(room string, gen uint64) {
	var out outbox
	co.mu.Lock()
	if rt, ok := co.expiries[room]; !ok || rt.gen != gen {
		// disarmed or re-armed after this timer fired but before it
		// got the lock; the key no longer belongs to it
		co.mu.Unlock()
		return
	}
	delete(co.expiries, room)

	co.emitRoom(&out, room, uuid.Nil, model.EventRoomExpiry, nil)
	for _, sess := range co.groups[room] {
		if sess.room == room {
			sess.room = ""
		}
	}
	delete(co.groups, room)
	delete(co.online, room)
	co.catalogRemove(room)
	co.emitAll(&out, model.EventRoomList, co.catalogSnapshot())
	co.mu.Unlock()
	co.deliver(out)

	co.logger.Debug().Str("room", room).Msg("room expired")
}
