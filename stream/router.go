package stream

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/marksim/candlefeed/protocol"
)

// Handler consumes one message. A non-nil error is logged and does not
// stop delivery to handlers registered after it.
type Handler func(protocol.Message) error

// Token cancels a single handler registration.
type Token interface {
	Unsubscribe()
}

// Router dispatches decoded messages to the handlers registered for
// their kind, in registration order. Unknown discriminants are counted
// and dropped.
//
// Dispatch is synchronous: it returns only after every matching handler
// has run, so per-connection ordering holds end to end.
type Router struct {
	mu       sync.Mutex
	handlers map[protocol.Kind][]entry
	nextID   uint64
	unknown  uint64
}

type entry struct {
	id uint64
	fn Handler
}

type routerToken struct {
	r    *Router
	kind protocol.Kind
	id   uint64
}

func (t *routerToken) Unsubscribe() {
	t.r.mu.Lock()
	defer t.r.mu.Unlock()
	list := t.r.handlers[t.kind]
	for i, e := range list {
		if e.id == t.id {
			t.r.handlers[t.kind] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

func NewRouter() *Router {
	return &Router{handlers: make(map[protocol.Kind][]entry)}
}

// Subscribe registers fn for messages of the given kind. Handlers for
// the same kind run in the order they were registered.
func (r *Router) Subscribe(kind protocol.Kind, fn Handler) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.handlers[kind] = append(r.handlers[kind], entry{id: id, fn: fn})
	return &routerToken{r: r, kind: kind, id: id}
}

// Dispatch delivers msg to every handler registered for its kind. A
// failing handler is logged and the remaining handlers still run.
func (r *Router) Dispatch(msg protocol.Message) {
	if u, ok := msg.(*protocol.Unknown); ok {
		r.mu.Lock()
		r.unknown++
		n := r.unknown
		r.mu.Unlock()
		log.Debug().Str("tag", u.Tag).Uint64("total", n).Msg("stream: dropping unknown message")
		return
	}

	// Snapshot under the lock; run handlers outside it.
	r.mu.Lock()
	list := r.handlers[msg.Kind()]
	fns := make([]Handler, len(list))
	for i, e := range list {
		fns[i] = e.fn
	}
	r.mu.Unlock()

	for _, fn := range fns {
		if err := fn(msg); err != nil {
			log.Warn().Err(err).Str("kind", string(msg.Kind())).Msg("stream: handler failed")
		}
	}
}

// UnknownCount reports how many messages were dropped for carrying an
// unrecognized discriminant.
func (r *Router) UnknownCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unknown
}
