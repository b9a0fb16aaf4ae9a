package synod

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Proposer round phases
const (
	phaseIdle int8 = iota
	phaseReading
	phaseImposing
	phaseDecided
)

// Env is what a process needs from the run hosting it.
type Env struct {
	Start          time.Time          // run start, for the elapsed time of decisions
	Logger         logrus.FieldLogger // defaults to a discarding logger
	Observer       Observer           // may be nil
	LaunchInterval time.Duration      // retry period after a Launch; 0 disables retries
	Rand           *rand.Rand         // value draws and crash trials; seeded from the clock if nil
}

type Decision struct {
	Value   Value
	Elapsed time.Duration
}

// ProcessStatus is a snapshot of a process's state.
type ProcessStatus struct {
	Index        int
	Ballot       Ballot
	ReadBallot   Ballot
	ImposeBallot Ballot
	Estimate     Value
	Proposal     Value
	Chosen       Value // the input value drawn on the first Launch, NoValue before
	Hold         bool
	CrashMode    bool
	Silent       bool
	Decided      bool
	Decision     Decision
}

// Process is one participant of the Synod algorithm.
//
// All protocol state is guarded by mu, which Handle holds for the duration
// of one message. Deliver only queues, so peers never contend on mu.
type Process struct {
	mu sync.Mutex

	index    int
	n        int
	alpha    float64
	start    time.Time
	interval time.Duration
	logger   logrus.FieldLogger
	observer Observer
	rand     *rand.Rand

	peers []Peer

	ballot       Ballot
	readBallot   Ballot
	imposeBallot Ballot
	estimate     Value
	proposal     Value
	pending      map[int]accepted
	acks         map[int]struct{}
	phase        int8

	hold      bool
	crashMode bool
	silent    bool
	chosen    Value
	rearm     bool
	decision  *Decision

	inbox     *mailbox
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	stopped   chan struct{}
}

type noObserver struct{}

func (noObserver) Decided(int, Value, time.Duration)  {}
func (noObserver) MajorityReached(int, Ballot, Value) {}

// NewProcess creates process index of a group of n that, once crashed,
// goes silent with probability alpha on each message.
func NewProcess(n, index int, alpha float64, env Env) (*Process, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d processes", ErrInvalidConfig, n)
	}
	if index < 0 || index >= n {
		return nil, fmt.Errorf("%w: index %d out of [0,%d)", ErrInvalidConfig, index, n)
	}
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: crash probability %v out of [0,1]", ErrInvalidConfig, alpha)
	}
	if env.LaunchInterval < 0 {
		return nil, fmt.Errorf("%w: negative launch interval", ErrInvalidConfig)
	}

	p := &Process{
		index:    index,
		n:        n,
		alpha:    alpha,
		start:    env.Start,
		interval: env.LaunchInterval,
		logger:   env.Logger,
		observer: env.Observer,
		rand:     env.Rand,

		ballot:       FirstBallot(index, n) - Ballot(n),
		readBallot:   NoBallot,
		imposeBallot: NoBallot,
		estimate:     NoValue,
		proposal:     NoValue,
		pending:      make(map[int]accepted),
		acks:         make(map[int]struct{}),
		phase:        phaseIdle,
		chosen:       NoValue,

		inbox:   newMailbox(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if p.start.IsZero() {
		p.start = time.Now()
	}
	if p.logger == nil {
		p.logger = discardLogger()
	}
	p.logger = p.logger.WithField("process", index)
	if p.observer == nil {
		p.observer = noObserver{}
	}
	if p.rand == nil {
		p.rand = rand.New(rand.NewSource(time.Now().UnixNano() + int64(index)))
	}

	return p, nil
}

func (p *Process) Index() int {
	return p.index
}

func (p *Process) N() int {
	return p.n
}

// Deliver queues msg from process from (or NoSender) for handling.
// It implements Peer and never blocks.
func (p *Process) Deliver(from int, msg Message) {
	p.inbox.put(envelope{from: from, msg: msg})
}

// Start runs the process on its own goroutine until Stop.
func (p *Process) Start() {
	p.startOnce.Do(func() {
		go p.serve()
	})
}

// Stop ends the serve goroutine and waits for it. Queued messages are
// left unhandled. It is safe to call more than once, and before Start.
func (p *Process) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.startOnce.Do(func() {
		close(p.stopped)
	})
	<-p.stopped
}

// Status returns a snapshot of the process state.
func (p *Process) Status() ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := ProcessStatus{
		Index:        p.index,
		Ballot:       p.ballot,
		ReadBallot:   p.readBallot,
		ImposeBallot: p.imposeBallot,
		Estimate:     p.estimate,
		Proposal:     p.proposal,
		Chosen:       p.chosen,
		Hold:         p.hold,
		CrashMode:    p.crashMode,
		Silent:       p.silent,
	}
	if p.decision != nil {
		s.Decided = true
		s.Decision = *p.decision
	}
	return s
}

func (p *Process) serve() {
	p.logger.Debugf("Serve routine for process %d started", p.index)
	defer p.logger.Debugf("Serve routine for process %d stopped", p.index)
	defer close(p.stopped)

	retry := time.NewTimer(time.Hour)
	stopTimer(retry)
	armed := false

	for {
		select {
		case <-p.stop:
			stopTimer(retry)
			return

		case <-p.inbox.ready():
			for _, env := range p.inbox.take() {
				p.Handle(env.from, env.msg)
			}

		case <-retry.C:
			armed = false
			p.Deliver(p.index, Launch{})
		}

		rearm, keep := p.retryState()
		if !keep && armed {
			stopTimer(retry)
			armed = false
		} else if keep && rearm && p.interval > 0 {
			stopTimer(retry)
			retry.Reset(p.interval)
			armed = true
		}
	}
}

// retryState reports whether a Launch asked for the retry timer to be
// re-armed since the last call, and whether retries are still wanted.
func (p *Process) retryState() (rearm bool, keep bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rearm, p.rearm = p.rearm, false
	return rearm, !p.silent && !p.hold
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// Handle processes one message from process from. The serve goroutine
// calls it for every queued message; it can also be called directly to
// step a process that was never started.
func (p *Process) Handle(from int, msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if msg == nil {
		return
	}
	if from != NoSender && (from < 0 || from >= p.n) {
		p.logger.Warnf("Process %d dropped %s from unknown sender %d", p.index, msg, from)
		return
	}
	if from == NoSender && msg.Kind() >= KindRead {
		p.logger.Warnf("Process %d dropped %s without a sender", p.index, msg)
		return
	}
	if !p.admit(msg) {
		return
	}

	p.logger.Debugf(" Process %d <- %s from %d", p.index, msg, from)

	switch m := msg.(type) {
	case Membership:
		p.handleMembership(m)
	case Launch:
		p.handleLaunch()
	case Crash:
		p.crashMode = true
		p.logger.Infof("Process %d entered fault-prone mode", p.index)
	case Hold:
		p.hold = true
		p.logger.Infof("Process %d is on hold", p.index)

	case Read:
		p.handleRead(from, m)
	case Gather:
		p.handleGather(from, m)
	case Impose:
		p.handleImpose(from, m)
	case Ack:
		p.handleAck(from, m)
	case Abort:
		p.logger.Debugf("Process %d got ABORT for ballot %d from %d", p.index, m.Ballot, from)
	case Decide:
		p.handleDecide(m)

	default:
		p.logger.Warnf("Process %d dropped unknown message %v", p.index, msg)
	}
}

func (p *Process) send(to int, msg Message) {
	p.logger.Debugf(" Process %d -> %s to %d", p.index, msg, to)
	p.peers[to].Deliver(p.index, msg)
}

func (p *Process) broadcast(msg Message, self bool) {
	for i := range p.peers {
		if i != p.index || self {
			p.send(i, msg)
		}
	}
}

func (p *Process) handleMembership(m Membership) {
	if p.peers != nil {
		p.logger.Warnf("Process %d already has a membership, ignoring", p.index)
		return
	}
	if len(m.Peers) != p.n {
		p.logger.Errorf("Process %d got a membership of %d peers, want %d", p.index, len(m.Peers), p.n)
		return
	}
	p.peers = append([]Peer(nil), m.Peers...)
}

func (p *Process) handleLaunch() {
	if p.hold {
		p.logger.Debugf("Process %d is on hold, ignoring LAUNCH", p.index)
		return
	}
	if p.peers == nil {
		p.logger.Warnf("Process %d got LAUNCH before its membership", p.index)
		return
	}

	if p.chosen == NoValue {
		p.chosen = Value(p.rand.Intn(2))
		p.logger.Infof("Process %d picked value %d", p.index, p.chosen)
	}
	p.propose(p.chosen)
	p.rearm = true
}

func (p *Process) propose(v Value) {
	p.proposal = v
	p.ballot = NextBallot(p.ballot, p.n)
	p.pending = make(map[int]accepted)
	p.acks = make(map[int]struct{})
	p.phase = phaseReading

	p.logger.Infof("Process %d proposes %d with ballot %d", p.index, v, p.ballot)

	// Our own promise counts towards the gather majority, under the same
	// rule a Read from a peer would face.
	if p.readBallot <= p.ballot && p.imposeBallot <= p.ballot {
		p.readBallot = p.ballot
		p.pending[p.index] = accepted{ballot: p.imposeBallot, estimate: p.estimate}
	}

	p.broadcast(Read{Ballot: p.ballot}, false)
	p.checkGather()
}

func (p *Process) handleRead(from int, m Read) {
	if p.readBallot > m.Ballot || p.imposeBallot > m.Ballot {
		p.send(from, Abort{Ballot: m.Ballot})
		return
	}

	p.readBallot = m.Ballot
	p.send(from, Gather{Ballot: m.Ballot, ImposeBallot: p.imposeBallot, Estimate: p.estimate})
}

func (p *Process) handleGather(from int, m Gather) {
	if p.phase != phaseReading || m.Ballot != p.ballot {
		p.logger.Debugf("Process %d ignores stale GATHER for ballot %d", p.index, m.Ballot)
		return
	}

	p.pending[from] = accepted{ballot: m.ImposeBallot, estimate: m.Estimate}
	p.checkGather()
}

func (p *Process) checkGather() {
	if p.phase != phaseReading || !IsMajority(len(p.pending), p.n) {
		return
	}

	p.proposal = pickEstimate(p.pending, p.proposal)
	p.pending = make(map[int]accepted)
	p.phase = phaseImposing

	p.logger.Infof("Process %d gathered a majority, imposing %d with ballot %d", p.index, p.proposal, p.ballot)
	p.broadcast(Impose{Ballot: p.ballot, Value: p.proposal}, true)
}

func (p *Process) handleImpose(from int, m Impose) {
	if p.readBallot > m.Ballot || p.imposeBallot > m.Ballot {
		p.send(from, Abort{Ballot: m.Ballot})
		return
	}

	p.estimate = m.Value
	p.imposeBallot = m.Ballot
	p.send(from, Ack{Ballot: m.Ballot})
}

func (p *Process) handleAck(from int, m Ack) {
	if p.phase != phaseImposing || m.Ballot != p.ballot {
		p.logger.Debugf("Process %d ignores stale ACK for ballot %d", p.index, m.Ballot)
		return
	}

	p.acks[from] = struct{}{}
	if !IsMajority(len(p.acks), p.n) {
		return
	}

	p.acks = make(map[int]struct{})
	p.phase = phaseDecided

	p.logger.Infof("Process %d reached an ack majority for %d with ballot %d", p.index, p.proposal, p.ballot)
	p.observer.MajorityReached(p.index, p.ballot, p.proposal)
	p.broadcast(Decide{Value: p.proposal}, true)
}

func (p *Process) handleDecide(m Decide) {
	p.silent = true
	p.decision = &Decision{Value: m.Value, Elapsed: time.Since(p.start)}

	p.logger.Infof("Process %d decided %d after %v", p.index, m.Value, p.decision.Elapsed)
	p.observer.Decided(p.index, m.Value, p.decision.Elapsed)
	p.broadcast(Decide{Value: m.Value}, false)
}
