package synod

import (
	"fmt"
)

// Ballot is a proposal round number. Process i only ever owns ballots ≡ i (mod N).
type Ballot int64

// NoBallot marks a process that has not promised or accepted anything yet.
const NoBallot Ballot = -1

// Value is the binary value the processes agree on.
type Value int8

// NoValue marks an empty estimate.
const NoValue Value = -1

// NoSender is the sender index of messages coming from the driver.
const NoSender = -1

// Synod message kinds
const (
	KindUnknown Kind = iota

	KindMembership
	KindLaunch
	KindCrash
	KindHold

	KindRead
	KindGather
	KindImpose
	KindAck
	KindAbort
	KindDecide
)

// Kind identifies the type of a Message without a type switch.
type Kind int8

var kindNames = [...]string{"UNKNOWN", "MEMBERSHIP", "LAUNCH", "CRASH", "HOLD",
	"READ", "GATHER", "IMPOSE", "ACK", "ABORT", "DECIDE"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Message is one of the fixed set of payloads below. The set is sealed.
type Message interface {
	Kind() Kind
	String() string
	isMessage()
}

// Peer is a handle to a process. Deliver must not block the caller.
type Peer interface {
	Deliver(from int, msg Message)
}

// Membership installs the peer set, ordered by process index.
type Membership struct {
	Peers []Peer
}

// Launch asks a process to pick (or keep) its value and try a round.
type Launch struct{}

// Crash switches a process into fault-prone mode.
type Crash struct{}

// Hold stops a process from starting new rounds.
type Hold struct{}

// Read is the prepare request of a round.
type Read struct {
	Ballot Ballot
}

// Gather answers a Read with the responder's accepted state.
type Gather struct {
	Ballot       Ballot
	ImposeBallot Ballot
	Estimate     Value
}

// Impose asks the responder to accept Value under Ballot.
type Impose struct {
	Ballot Ballot
	Value  Value
}

// Ack acknowledges an Impose.
type Ack struct {
	Ballot Ballot
}

// Abort rejects a stale Read or Impose.
type Abort struct {
	Ballot Ballot
}

// Decide announces the decided value.
type Decide struct {
	Value Value
}

func (Membership) Kind() Kind { return KindMembership }
func (Launch) Kind() Kind     { return KindLaunch }
func (Crash) Kind() Kind      { return KindCrash }
func (Hold) Kind() Kind       { return KindHold }
func (Read) Kind() Kind       { return KindRead }
func (Gather) Kind() Kind     { return KindGather }
func (Impose) Kind() Kind     { return KindImpose }
func (Ack) Kind() Kind        { return KindAck }
func (Abort) Kind() Kind      { return KindAbort }
func (Decide) Kind() Kind     { return KindDecide }

func (Membership) isMessage() {}
func (Launch) isMessage()     {}
func (Crash) isMessage()      {}
func (Hold) isMessage()       {}
func (Read) isMessage()       {}
func (Gather) isMessage()     {}
func (Impose) isMessage()     {}
func (Ack) isMessage()        {}
func (Abort) isMessage()      {}
func (Decide) isMessage()     {}

func (m Membership) String() string {
	return fmt.Sprintf("{CMD: %s, PEERS: %d}", m.Kind(), len(m.Peers))
}

func (m Launch) String() string { return fmt.Sprintf("{CMD: %s}", m.Kind()) }
func (m Crash) String() string  { return fmt.Sprintf("{CMD: %s}", m.Kind()) }
func (m Hold) String() string   { return fmt.Sprintf("{CMD: %s}", m.Kind()) }

func (m Read) String() string {
	return fmt.Sprintf("{CMD: %s, BAL: %d}", m.Kind(), m.Ballot)
}

func (m Gather) String() string {
	return fmt.Sprintf("{CMD: %s, BAL: %d, IMB: %d, EST: %d}",
		m.Kind(), m.Ballot, m.ImposeBallot, m.Estimate)
}

func (m Impose) String() string {
	return fmt.Sprintf("{CMD: %s, BAL: %d, VAL: %d}", m.Kind(), m.Ballot, m.Value)
}

func (m Ack) String() string {
	return fmt.Sprintf("{CMD: %s, BAL: %d}", m.Kind(), m.Ballot)
}

func (m Abort) String() string {
	return fmt.Sprintf("{CMD: %s, BAL: %d}", m.Kind(), m.Ballot)
}

func (m Decide) String() string {
	return fmt.Sprintf("{CMD: %s, VAL: %d}", m.Kind(), m.Value)
}
