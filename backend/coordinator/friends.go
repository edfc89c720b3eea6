package coordinator

import (
	"sort"

	"github.com/adwski/chat-relay/backend/model"
)

// handleAddFriend inserts a symmetric edge and pushes the updated
// friend lists to whichever endpoints are online. Idempotent; there is
// no unfriend operation.
func (co *Coordinator) handleAddFriend(p model.AddFriendPayload) {
	if p.Username == "" || p.Friend == "" {
		return
	}
	if p.Username == p.Friend {
		co.logger.Warn().Str("username", p.Username).Msg("self-friend request dropped")
		return
	}
	var out outbox
	co.mu.Lock()
	co.addEdge(p.Username, p.Friend)
	co.addEdge(p.Friend, p.Username)
	co.emitUser(&out, p.Username, model.EventFriendsUpdate, co.friendsOf(p.Username))
	co.emitUser(&out, p.Friend, model.EventFriendsUpdate, co.friendsOf(p.Friend))
	co.mu.Unlock()
	co.deliver(out)
}

func (co *Coordinator) addEdge(from, to string) {
	adj, ok := co.friends[from]
	if !ok {
		adj = make(map[string]struct{})
		co.friends[from] = adj
	}
	adj[to] = struct{}{}
}

func (co *Coordinator) friendsOf(username string) []string {
	list := make([]string, 0, len(co.friends[username]))
	for f := range co.friends[username] {
		list = append(list, f)
	}
	sort.Strings(list)
	return list
}
