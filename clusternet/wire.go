package clusternet

import (
	"encoding/gob"
	"fmt"

	synod "github.com/lucaerba/SLR-210"
)

// wireMsg is the form every message but Membership takes on the cluster.
// Addr is the destination pid while queued and the sender pid on the wire.
type wireMsg struct {
	Kind         synod.Kind
	Addr         int
	Ballot       synod.Ballot
	ImposeBallot synod.Ballot
	Value        synod.Value
}

func init() {
	gob.Register(wireMsg{})
}

func encode(msg synod.Message) (wireMsg, error) {
	w := wireMsg{Kind: msg.Kind(), Ballot: synod.NoBallot, ImposeBallot: synod.NoBallot, Value: synod.NoValue}

	switch m := msg.(type) {
	case synod.Launch, synod.Crash, synod.Hold:
	case synod.Read:
		w.Ballot = m.Ballot
	case synod.Gather:
		w.Ballot, w.ImposeBallot, w.Value = m.Ballot, m.ImposeBallot, m.Estimate
	case synod.Impose:
		w.Ballot, w.Value = m.Ballot, m.Value
	case synod.Ack:
		w.Ballot = m.Ballot
	case synod.Abort:
		w.Ballot = m.Ballot
	case synod.Decide:
		w.Value = m.Value
	default:
		return w, fmt.Errorf("clusternet: %s cannot be sent over the cluster", msg)
	}
	return w, nil
}

func (w wireMsg) decode() (synod.Message, error) {
	switch w.Kind {
	case synod.KindLaunch:
		return synod.Launch{}, nil
	case synod.KindCrash:
		return synod.Crash{}, nil
	case synod.KindHold:
		return synod.Hold{}, nil
	case synod.KindRead:
		return synod.Read{Ballot: w.Ballot}, nil
	case synod.KindGather:
		return synod.Gather{Ballot: w.Ballot, ImposeBallot: w.ImposeBallot, Estimate: w.Value}, nil
	case synod.KindImpose:
		return synod.Impose{Ballot: w.Ballot, Value: w.Value}, nil
	case synod.KindAck:
		return synod.Ack{Ballot: w.Ballot}, nil
	case synod.KindAbort:
		return synod.Abort{Ballot: w.Ballot}, nil
	case synod.KindDecide:
		return synod.Decide{Value: w.Value}, nil
	}
	return nil, fmt.Errorf("clusternet: unknown message kind %d from %d", w.Kind, w.Addr)
}

func (w wireMsg) String() string {
	return fmt.Sprintf("{CMD: %s, ADDR: %d, BAL: %d, IMB: %d, VAL: %d}",
		w.Kind, w.Addr, w.Ballot, w.ImposeBallot, w.Value)
}
