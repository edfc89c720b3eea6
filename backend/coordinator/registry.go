package coordinator

import (
	"errors"

	"github.com/google/uuid"
)

var ErrUsernameTaken = errors.New("username already taken")

// register claims username for sess. Rejects only when the name is held
// by a different live session; a rejoin with the same session succeeds.
// Callers hold mu.
func (co *Coordinator) register(sess *session, username string) error {
	if id, ok := co.users[username]; ok && id != sess.id {
		return ErrUsernameTaken
	}
	co.users[username] = sess.id
	return nil
}

func (co *Coordinator) resolve(username string) (*session, bool) {
	id, ok := co.users[username]
	if !ok {
		return nil, false
	}
	sess, ok := co.sessions[id]
	return sess, ok
}

// unregister drops the mapping only if it still points at sessID, so a
// reconnect that re-claimed the name is not torn down by the old
// session's teardown.
func (co *Coordinator) unregister(username string, sessID uuid.UUID) {
	if id, ok := co.users[username]; ok && id == sessID {
		delete(co.users, username)
	}
}
