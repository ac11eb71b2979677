package network

import "sync"

// Receiver accepts deliveries from the room service. Implementations must be
// safe to call from any goroutine.
type Receiver interface {
	Deliver(env Envelope)
}

// Inbox 消息收件箱：任意 goroutine 投递，tick 线程统一取出处理
type Inbox struct {
	mu      sync.Mutex
	pending []Envelope
}

func NewInbox() *Inbox {
	return &Inbox{}
}

func (in *Inbox) Deliver(env Envelope) {
	in.mu.Lock()
	in.pending = append(in.pending, env)
	in.mu.Unlock()
}

// Drain returns everything delivered so far in arrival order.
func (in *Inbox) Drain() []Envelope {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := in.pending
	in.pending = nil
	return out
}

func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.pending)
}
