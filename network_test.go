package synod

import (
	"context"
	"testing"
	"time"
)

func Test_NetworkCountsAndDelivers(t *testing.T) {
	for _, delay := range []time.Duration{0, 3 * time.Millisecond} {
		nw := NewNetwork(delay, 42)
		events := NewEventLog()

		procs := make([]*Process, 3)
		for i := range procs {
			p, err := NewProcess(3, i, 0, Env{Observer: events})
			if err != nil {
				t.Fatal(err)
			}
			procs[i] = p
			nw.Attach(p)
		}
		SynodStart(procs)

		peers := nw.Peers()
		if len(peers) != 3 {
			t.Fatalf("Got %d peers, want 3", len(peers))
		}
		for _, p := range procs {
			p.Deliver(NoSender, Membership{Peers: peers})
		}
		procs[0].Deliver(NoSender, Launch{})

		ctx, cancel := context.WithTimeout(context.Background(), LIVE_TIMEOUT)
		if err := events.Wait(ctx, EventDecided, 3); err != nil {
			t.Fatalf("Delay %v: no decision", delay)
		}
		cancel()
		SynodStop(procs)

		// The proposer sends two READs and three IMPOSEs, and every process
		// floods DECIDE once on top of the proposer's own three. Replies are
		// only exact when nothing overtakes them.
		stats := nw.Stats()
		want := map[Kind]int64{KindRead: 2, KindImpose: 3, KindDecide: 9}
		if delay == 0 {
			want[KindGather], want[KindAck] = 2, 3
		}
		for k, n := range want {
			if stats[k] != n {
				t.Errorf("Delay %v: %d %s messages, want %d", delay, stats[k], k, n)
			}
		}
		if stats[KindMembership] != 0 || stats[KindLaunch] != 0 {
			t.Errorf("Delay %v: control messages crossed the network: %v", delay, stats)
		}
		if nw.Total() < 14 {
			t.Errorf("Delay %v: total %d below the protocol's count", delay, nw.Total())
		}
	}
}
