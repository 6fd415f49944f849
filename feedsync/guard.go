package feedsync

import "sync"

// OpKind identifies the kind of mutation a busy set tracks.
type OpKind int

const (
	OpLike OpKind = iota
	OpComment
	OpReply
	OpDeleteComment
	OpDeleteReply
	OpDeletePost
)

func (k OpKind) String() string {
	switch k {
	case OpLike:
		return "like"
	case OpComment:
		return "comment"
	case OpReply:
		return "reply"
	case OpDeleteComment:
		return "delete-comment"
	case OpDeleteReply:
		return "delete-reply"
	case OpDeletePost:
		return "delete-post"
	}
	return "unknown"
}

// Guard keeps one busy set per operation kind. An entity id is inserted
// synchronously before any request is dispatched and removed in a deferred
// step whatever the outcome, so a second toggle or delete for the same
// entity can never be in flight alongside the first. UI busy indicators
// read the same sets; there is no second source of truth.
type Guard struct {
	mu   sync.Mutex
	busy map[OpKind]map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{busy: make(map[OpKind]map[string]struct{})}
}

// TryAcquire inserts id into kind's busy set. It returns false without
// modifying anything if the id is already busy under that kind.
func (g *Guard) TryAcquire(kind OpKind, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.busy[kind]
	if !ok {
		set = make(map[string]struct{})
		g.busy[kind] = set
	}
	if _, exists := set[id]; exists {
		return false
	}
	set[id] = struct{}{}
	return true
}

// Release removes id from kind's busy set. Releasing an id that is not
// held is a no-op.
func (g *Guard) Release(kind OpKind, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if set, ok := g.busy[kind]; ok {
		delete(set, id)
	}
}

// IsBusy reports whether a mutation of the given kind is outstanding for id.
func (g *Guard) IsBusy(kind OpKind, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, exists := g.busy[kind][id]
	return exists
}
