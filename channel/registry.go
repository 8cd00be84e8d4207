package channel

import (
	"sync"

	"minute/log"
)

type Handler func(env Envelope)

const typeUnknown = "?"

type registration struct {
	fn Handler
}

// Registry maps a message type to its subscribers and decouples the
// transport from consumers. Handler slices are copy-on-write: a dispatch
// pass iterates the snapshot taken when the message arrived, so handlers
// removed mid-pass still complete that pass and handlers added mid-pass
// only see later messages.
type Registry struct {
	mu       sync.Mutex
	handlers map[string][]*registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string][]*registration)}
}

// Subscribe registers fn for msgType. The returned func removes exactly this
// registration; calling it more than once, or during a dispatch, is safe.
func (r *Registry) Subscribe(msgType string, fn Handler) func() {
	reg := &registration{fn: fn}

	r.mu.Lock()
	cur := r.handlers[msgType]
	next := make([]*registration, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = reg
	r.handlers[msgType] = next
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(msgType, reg) })
	}
}

// SubscribeUnknown registers fn for inbound envelopes whose tag is not in
// the known set and has no typed subscriber.
func (r *Registry) SubscribeUnknown(fn Handler) func() {
	return r.Subscribe(typeUnknown, fn)
}

func (r *Registry) remove(msgType string, reg *registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.handlers[msgType]
	next := make([]*registration, 0, len(cur))
	for _, x := range cur {
		if x != reg {
			next = append(next, x)
		}
	}
	if len(next) == 0 {
		delete(r.handlers, msgType)
	} else {
		r.handlers[msgType] = next
	}
}

// Dispatch invokes every subscriber for env.Type in subscription order.
// Unknown tags with no typed subscriber fall back to the unknown-type
// bucket. A panicking handler is logged and does not stop the pass.
func (r *Registry) Dispatch(env Envelope) {
	r.mu.Lock()
	regs := r.handlers[env.Type]
	if len(regs) == 0 && !KnownType(env.Type) {
		regs = r.handlers[typeUnknown]
	}
	r.mu.Unlock()

	for _, reg := range regs {
		invoke(reg.fn, env)
	}
}

func invoke(fn Handler, env Envelope) {
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("handler panic for %q: %v", env.Type, p)
		}
	}()
	fn(env)
}
