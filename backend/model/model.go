package model

import "encoding/json"

// Inbound event names.
const (
	EventJoin           = "join"
	EventMessage        = "message"
	EventPrivateMessage = "privateMessage"
	EventAddFriend      = "addFriend"
	EventCreateRoom     = "createRoom"
	EventTyping         = "typing"
	EventStopTyping     = "stopTyping"
	EventSeen           = "seen"
	EventFile           = "file"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventCandidate      = "candidate"
	EventReaction       = "reaction"
	EventCanvasUpdate   = "canvasUpdate"
	EventAIQuery        = "aiQuery"
)

// Outbound event names.
const (
	EventError         = "error"
	EventOnlineUsers   = "onlineUsers"
	EventRoomList      = "roomList"
	EventRoomExpiry    = "roomExpiry"
	EventFriendsUpdate = "friendsUpdate"
	EventSeenUpdate    = "seenUpdate"
	EventAIResponse    = "aiResponse"
)

// SystemUsername is the sender of server-generated room notices.
const SystemUsername = "System"

// Event is the wire envelope for both directions. Data is kept raw
// so each handler decodes only the payload it expects.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals payload into an outbound envelope.
func NewEvent(name string, payload any) (Event, error) {
	if payload == nil {
		return Event{Name: name}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Data: b}, nil
}

type JoinPayload struct {
	Username   string `json:"username"`
	Room       string `json:"room"`
	Expiry     int64  `json:"expiry,omitempty"` // unix milliseconds
	IsPrivate  bool   `json:"isPrivate,omitempty"`
	TargetUser string `json:"targetUser,omitempty"`
}

// Message is both the room-message payload and the outbound message
// body. Field names match the wire contract exactly.
type Message struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	Text      string `json:"text,omitempty"`
	File      string `json:"file,omitempty"`
	Room      string `json:"room,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Seen      bool   `json:"seen"`
	Type      string `json:"type,omitempty"` // "private" for direct messages
	From      string `json:"from,omitempty"`
}

type PrivateMessagePayload struct {
	To string `json:"to"`
	Message
}

type AddFriendPayload struct {
	Username string `json:"username"`
	Friend   string `json:"friend"`
}

type CreateRoomPayload struct {
	Name   string `json:"name"`
	Expiry int64  `json:"expiry,omitempty"` // unix milliseconds
}

type TypingPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type SeenPayload struct {
	Room string `json:"room"`
	ID   int64  `json:"id"`
}

type SeenUpdate struct {
	ID   int64 `json:"id"`
	Seen bool  `json:"seen"`
}

type FilePayload struct {
	Username  string `json:"username"`
	Room      string `json:"room"`
	File      string `json:"file"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp,omitempty"`
	Seen      bool   `json:"seen"`
}

type OfferPayload struct {
	Offer json.RawMessage `json:"offer"`
	To    string          `json:"to,omitempty"`
	From  string          `json:"from,omitempty"`
	Type  string          `json:"type,omitempty"`
}

type AnswerPayload struct {
	Answer json.RawMessage `json:"answer"`
	To     string          `json:"to,omitempty"`
}

type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	To        string          `json:"to,omitempty"`
}

type ReactionPayload struct {
	ID       int64  `json:"id"`
	Reaction string `json:"reaction"`
}

type CanvasPayload struct {
	Room string          `json:"room,omitempty"`
	Data json.RawMessage `json:"data"`
}

type AIQueryPayload struct {
	Room  string `json:"room"`
	Query string `json:"query"`
}

// Wire connects one websocket session to the coordinator. RX carries
// inbound events from the socket, TX carries outbound events to it.
type Wire struct {
	RX chan Event
	TX chan Event
}

const defaultWireBuffer = 64

func NewWire() Wire {
	return Wire{
		RX: make(chan Event, defaultWireBuffer),
		TX: make(chan Event, defaultWireBuffer),
	}
}
