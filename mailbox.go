package synod

import (
	"sync"
)

type envelope struct {
	from int
	msg  Message
}

// mailbox is an unbounded FIFO queue. put never blocks, so a process can
// send to a peer whose serve goroutine is itself busy sending.
type mailbox struct {
	mu     sync.Mutex
	queue  []envelope
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) put(env envelope) {
	m.mu.Lock()
	m.queue = append(m.queue, env)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// take removes and returns everything queued so far.
func (m *mailbox) take() []envelope {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) ready() <-chan struct{} {
	return m.notify
}
