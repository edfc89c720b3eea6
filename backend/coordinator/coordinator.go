package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultFwdTimeout = time.Second

// session is one attached connection. Identity fields are assigned by
// the join handler and are only touched under the coordinator mutex.
type session struct {
	id   uuid.UUID
	wire model.Wire

	username   string
	room       string
	isPrivate  bool
	targetUser string
}

// Coordinator owns every piece of shared state: the identity registry,
// room membership and catalog, the message store, the friend graph and
// expiry timers. All of it is guarded by one mutex scoped to a single
// logical operation; outbound events are collected under the lock and
// delivered after it is released.
type Coordinator struct {
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	sessions  map[uuid.UUID]*session
	users     map[string]uuid.UUID
	groups    map[string]map[uuid.UUID]*session
	online    map[string][]string
	catalog   []string
	messages  map[int64]*storedMessage
	friends   map[string]map[string]struct{}
	expiries  map[string]roomTimer
	expiryGen uint64
	pending   map[string]map[string]string // target -> private room key -> requester
}

type Config struct {
	Logger *zerolog.Logger
}

func New(cfg Config) *Coordinator {
	return &Coordinator{
		logger:   cfg.Logger.With().Str("component", "coordinator").Logger(),
		now:      time.Now,
		sessions: make(map[uuid.UUID]*session),
		users:    make(map[string]uuid.UUID),
		groups:   make(map[string]map[uuid.UUID]*session),
		online:   make(map[string][]string),
		catalog:  []string{"General", "Tech", "Random"},
		messages: make(map[int64]*storedMessage),
		friends:  make(map[string]map[string]struct{}),
		expiries: make(map[string]roomTimer),
		pending:  make(map[string]map[string]string),
	}
}

// Attach binds a wire to a new session and starts consuming its
// inbound events in arrival order. When ctx is canceled the session is
// torn down atomically; the caller only has to cancel.
func (co *Coordinator) Attach(ctx context.Context, wire model.Wire) {
	sess := &session{
		id:   uuid.New(),
		wire: wire,
	}
	co.mu.Lock()
	co.sessions[sess.id] = sess
	co.mu.Unlock()

	co.logger.Debug().Str("session", sess.id.String()).Msg("session attached")

	go func() {
		co.consume(ctx, sess)
		co.detach(sess)
	}()
}

func (co *Coordinator) consume(ctx context.Context, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sess.wire.RX:
			if !ok {
				return
			}
			co.dispatch(sess, ev)
		}
	}
}

// detach is the disconnect teardown: registry entry, room group
// membership and public presence all go in one critical section, then
// the membership update and a single "left" notice are delivered.
func (co *Coordinator) detach(sess *session) {
	var out outbox
	co.mu.Lock()
	delete(co.sessions, sess.id)
	co.leaveGroups(sess)
	if sess.username != "" {
		co.unregister(sess.username, sess.id)
		co.dropPendingFrom(sess.username)
		if sess.room != "" {
			if !sess.isPrivate {
				members, tracked := co.leavePublic(sess.room, sess.username)
				if tracked {
					co.emitRoom(&out, sess.room, uuid.Nil, model.EventOnlineUsers, members)
				}
			}
			co.emitRoom(&out, sess.room, uuid.Nil, model.EventMessage,
				co.systemMessage(sess.room, sess.username+" left the room"))
			if !sess.isPrivate {
				co.reviewQuorum(&out, sess.room)
			}
		}
	}
	co.mu.Unlock()
	co.deliver(out)

	co.logger.Debug().
		Str("session", sess.id.String()).
		Str("username", sess.username).
		Msg("session detached")
}

func (co *Coordinator) dispatch(sess *session, ev model.Event) {
	if co.logger.GetLevel() <= zerolog.TraceLevel {
		co.logger.Trace().Str("session", sess.id.String()).Msg(spew.Sdump(ev))
	}

	switch ev.Name {
	case model.EventJoin:
		var p model.JoinPayload
		if co.decode(ev, &p) {
			co.handleJoin(sess, p)
		}
	case model.EventMessage:
		var msg model.Message
		if co.decode(ev, &msg) {
			co.handleMessage(sess, msg)
		}
	case model.EventPrivateMessage:
		var p model.PrivateMessagePayload
		if co.decode(ev, &p) {
			co.handlePrivateMessage(sess, p)
		}
	case model.EventAddFriend:
		var p model.AddFriendPayload
		if co.decode(ev, &p) {
			co.handleAddFriend(p)
		}
	case model.EventCreateRoom:
		var p model.CreateRoomPayload
		if co.decode(ev, &p) {
			co.handleCreateRoom(sess, p)
		}
	case model.EventTyping, model.EventStopTyping:
		var p model.TypingPayload
		if co.decode(ev, &p) {
			co.handleTyping(sess, ev.Name, p)
		}
	case model.EventSeen:
		var p model.SeenPayload
		if co.decode(ev, &p) {
			co.handleSeen(sess, p)
		}
	case model.EventFile:
		var p model.FilePayload
		if co.decode(ev, &p) {
			co.handleFile(p)
		}
	case model.EventOffer:
		var p model.OfferPayload
		if co.decode(ev, &p) {
			co.handleOffer(sess, p)
		}
	case model.EventAnswer:
		var p model.AnswerPayload
		if co.decode(ev, &p) {
			co.handleAnswer(p)
		}
	case model.EventCandidate:
		var p model.CandidatePayload
		if co.decode(ev, &p) {
			co.handleCandidate(p)
		}
	case model.EventReaction:
		var p model.ReactionPayload
		if co.decode(ev, &p) {
			co.logger.Info().
				Int64("id", p.ID).
				Str("reaction", p.Reaction).
				Msg("message reaction")
		}
	case model.EventCanvasUpdate:
		var p model.CanvasPayload
		if co.decode(ev, &p) {
			co.handleCanvas(p)
		}
	case model.EventAIQuery:
		var p model.AIQueryPayload
		if co.decode(ev, &p) {
			co.handleAIQuery(sess, p)
		}
	default:
		co.logger.Debug().Str("event", ev.Name).Msg("unknown inbound event")
	}
}

func (co *Coordinator) decode(ev model.Event, dst any) bool {
	if err := json.Unmarshal(ev.Data, dst); err != nil {
		co.logger.Error().Err(err).Str("event", ev.Name).Msg("failed to unmarshal event payload")
		return false
	}
	return true
}

func (co *Coordinator) handleAIQuery(sess *session, p model.AIQueryPayload) {
	var out outbox
	co.mu.Lock()
	resp := fmt.Sprintf("AI response to %q in %s: This is a dummy response.", p.Query, p.Room)
	co.emitSession(&out, sess, model.EventAIResponse, resp)
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) timestamp() string {
	return co.now().Format("3:04:05 PM")
}

func (co *Coordinator) systemMessage(room, text string) model.Message {
	return model.Message{
		ID:        co.now().UnixMilli(),
		Username:  model.SystemUsername,
		Text:      text,
		Timestamp: co.timestamp(),
		Seen:      true,
		Room:      room,
	}
}

type delivery struct {
	dst string
	tx  chan<- model.Event
	ev  model.Event
}

type outbox []delivery

// emit helpers append to the outbox and must be called with mu held.

func (co *Coordinator) emitSession(out *outbox, sess *session, name string, payload any) {
	ev, err := model.NewEvent(name, payload)
	if err != nil {
		co.logger.Error().Err(err).Str("event", name).Msg("failed to marshal outbound event")
		return
	}
	dst := sess.username
	if dst == "" {
		dst = sess.id.String()
	}
	*out = append(*out, delivery{dst: dst, tx: sess.wire.TX, ev: ev})
}

func (co *Coordinator) emitRoom(out *outbox, room string, except uuid.UUID, name string, payload any) {
	for id, sess := range co.groups[room] {
		if id != except {
			co.emitSession(out, sess, name, payload)
		}
	}
}

func (co *Coordinator) emitAll(out *outbox, name string, payload any) {
	for _, sess := range co.sessions {
		co.emitSession(out, sess, name, payload)
	}
}

func (co *Coordinator) emitUser(out *outbox, username, name string, payload any) {
	if sess, ok := co.resolve(username); ok {
		co.emitSession(out, sess, name, payload)
	}
}

// deliver pushes collected events to their wires. The mutex is never
// held here; a wire that stays full past the forward timeout loses the
// event.
func (co *Coordinator) deliver(out outbox) {
	for _, d := range out {
		if !send(d) {
			co.logger.Error().
				Str("dst", d.dst).
				Str("event", d.ev.Name).
				Msg("dead endpoint, outbound event dropped")
		}
	}
}

func send(d delivery) bool {
	var sent bool
	tCh := time.NewTimer(defaultFwdTimeout)
	select {
	case <-tCh.C:
	case d.tx <- d.ev:
		sent = true
	}
	tCh.Stop()
	return sent
}
