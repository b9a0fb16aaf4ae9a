package synod

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// Network connects processes hosted in the same Go process. Delivery is
// reliable and, with a positive maxDelay, arbitrarily reordered: every
// message is held back for a random duration in [0, maxDelay].
type Network struct {
	mu       sync.Mutex
	procs    []*Process
	maxDelay time.Duration
	rand     *rand.Rand

	sent [KindDecide + 1]int64 // message counts by kind, updated atomically
}

func NewNetwork(maxDelay time.Duration, seed int64) *Network {
	return &Network{
		maxDelay: maxDelay,
		rand:     rand.New(rand.NewSource(seed)),
	}
}

// Attach registers p under its index.
func (nw *Network) Attach(p *Process) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	for len(nw.procs) <= p.Index() {
		nw.procs = append(nw.procs, nil)
	}
	nw.procs[p.Index()] = p
}

// Peers returns one handle per attached process, in index order.
func (nw *Network) Peers() []Peer {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	peers := make([]Peer, len(nw.procs))
	for i := range peers {
		peers[i] = link{nw: nw, to: i}
	}
	return peers
}

type link struct {
	nw *Network
	to int
}

func (l link) Deliver(from int, msg Message) {
	l.nw.deliver(from, l.to, msg)
}

func (nw *Network) deliver(from, to int, msg Message) {
	if k := msg.Kind(); k > KindUnknown && int(k) < len(nw.sent) {
		atomic.AddInt64(&nw.sent[k], 1)
	}

	nw.mu.Lock()
	dst := nw.procs[to]
	var delay time.Duration
	if nw.maxDelay > 0 {
		delay = time.Duration(nw.rand.Int63n(int64(nw.maxDelay) + 1))
	}
	nw.mu.Unlock()

	if dst == nil {
		return
	}
	if delay == 0 {
		dst.Deliver(from, msg)
		return
	}
	time.AfterFunc(delay, func() {
		dst.Deliver(from, msg)
	})
}

// Stats returns the number of messages sent through nw, by kind.
func (nw *Network) Stats() map[Kind]int64 {
	stats := make(map[Kind]int64)
	for k := range nw.sent {
		if n := atomic.LoadInt64(&nw.sent[k]); n > 0 {
			stats[Kind(k)] = n
		}
	}
	return stats
}

// Total is the number of messages sent through nw.
func (nw *Network) Total() int64 {
	var total int64
	for k := range nw.sent {
		total += atomic.LoadInt64(&nw.sent[k])
	}
	return total
}
