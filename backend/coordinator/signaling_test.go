package coordinator

import (
	"testing"

	"github.com/adwski/chat-relay/backend/model"
	"github.com/stretchr/testify/assert"
)

func TestOfferForward(t *testing.T) {
	co := newTestCoordinator()

	alice, aw := attachSession(co)
	joinRoom(t, co, alice, "alice", "General")
	bob, bw := attachSession(co)
	joinRoom(t, co, bob, "bob", "General")
	drainWire(aw)
	drainWire(bw)

	co.dispatch(alice, mustEvent(t, model.EventOffer, model.OfferPayload{
		Offer: []byte(`{"sdp":"v=0"}`),
		To:    "bob",
		Type:  "video",
	}))

	got := decodeAs[model.OfferPayload](t, expectEvent(t, bw, model.EventOffer))
	assert.Equal(t, "alice", got.From)
	assert.Equal(t, "video", got.Type)
	assert.Empty(t, got.To)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(got.Offer))
	expectNoEvent(t, aw)
}

func TestAnswerAndCandidateForward(t *testing.T) {
	co := newTestCoordinator()

	alice, aw := attachSession(co)
	joinRoom(t, co, alice, "alice", "General")
	bob, bw := attachSession(co)
	joinRoom(t, co, bob, "bob", "General")
	drainWire(aw)
	drainWire(bw)

	co.dispatch(bob, mustEvent(t, model.EventAnswer, model.AnswerPayload{
		Answer: []byte(`{"sdp":"v=0"}`),
		To:     "alice",
	}))
	got := decodeAs[model.AnswerPayload](t, expectEvent(t, aw, model.EventAnswer))
	assert.Empty(t, got.To)
	assert.JSONEq(t, `{"sdp":"v=0"}`, string(got.Answer))

	co.dispatch(bob, mustEvent(t, model.EventCandidate, model.CandidatePayload{
		Candidate: []byte(`{"candidate":"foo"}`),
		To:        "alice",
	}))
	cand := decodeAs[model.CandidatePayload](t, expectEvent(t, aw, model.EventCandidate))
	assert.JSONEq(t, `{"candidate":"foo"}`, string(cand.Candidate))
}

func TestSignalingOfflineTargetDropped(t *testing.T) {
	co := newTestCoordinator()

	alice, aw := attachSession(co)
	joinRoom(t, co, alice, "alice", "General")
	drainWire(aw)

	co.dispatch(alice, mustEvent(t, model.EventOffer, model.OfferPayload{
		Offer: []byte(`{}`), To: "ghost",
	}))
	co.dispatch(alice, mustEvent(t, model.EventAnswer, model.AnswerPayload{
		Answer: []byte(`{}`), To: "ghost",
	}))
	co.dispatch(alice, mustEvent(t, model.EventCandidate, model.CandidatePayload{
		Candidate: []byte(`{}`), To: "ghost",
	}))
	expectNoEvent(t, aw)
}
