package coordinator

import (
	"github.com/adwski/chat-relay/backend/model"
)

// Stateless one-to-one signaling forwards. The offer carries the
// sender identity and a session type tag so the receiver can tell
// concurrent negotiation attempts apart; answer and candidate carry
// only the payload. An offline target means a silent drop.

func (co *Coordinator) handleOffer(sess *session, p model.OfferPayload) {
	var out outbox
	co.mu.Lock()
	if tgt, ok := co.resolve(p.To); ok {
		co.emitSession(&out, tgt, model.EventOffer, model.OfferPayload{
			Offer: p.Offer,
			From:  sess.username,
			Type:  p.Type,
		})
	} else {
		co.logger.Debug().Str("to", p.To).Msg("offer target not registered, dropped")
	}
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) handleAnswer(p model.AnswerPayload) {
	var out outbox
	co.mu.Lock()
	if tgt, ok := co.resolve(p.To); ok {
		co.emitSession(&out, tgt, model.EventAnswer, model.AnswerPayload{Answer: p.Answer})
	} else {
		co.logger.Debug().Str("to", p.To).Msg("answer target not registered, dropped")
	}
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) handleCandidate(p model.CandidatePayload) {
	var out outbox
	co.mu.Lock()
	if tgt, ok := co.resolve(p.To); ok {
		co.emitSession(&out, tgt, model.EventCandidate, model.CandidatePayload{Candidate: p.Candidate})
	} else {
		co.logger.Debug().Str("to", p.To).Msg("candidate target not registered, dropped")
	}
	co.mu.Unlock()
	co.deliver(out)
}
