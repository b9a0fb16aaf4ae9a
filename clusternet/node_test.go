package clusternet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	synod "github.com/lucaerba/SLR-210"
)

const BASE_PORT = 47310

/*=======================================< HELPER ROUTINES >=======================================*/

func writeClusterConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "cluster.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func localCluster(t *testing.T, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "{\"Pid\": %d, \"Address\": \"tcp://127.0.0.1:%d\"}\n", 100+i, BASE_PORT+i)
	}
	return writeClusterConfig(t, b.String())
}

func ClusterSetup(t *testing.T, n int, events synod.Observer) []*Node {
	path := localCluster(t, n)

	nodes := make([]*Node, n)
	for i := range nodes {
		node, err := NewNode(100+i, path, 0, synod.Env{
			Observer: events,
			Rand:     rand.New(rand.NewSource(int64(i))),
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := node.Start(); err != nil {
			t.Fatal(err)
		}
		nodes[i] = node
	}
	return nodes
}

func ClusterStop(nodes []*Node) {
	for _, node := range nodes {
		node.Stop()
	}
}

/*========================================< TEST ROUTINES >========================================*/

func Test_ReadPeersSorts(t *testing.T) {
	path := writeClusterConfig(t, `{"Pid": 30, "Address": "tcp://h3:1"}
{"Pid": 10, "Address": "tcp://h1:1"}
{"Pid": 20, "Address": "tcp://h2:1"}
`)

	peers, err := ReadPeers(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(peers) != 3 || peers[0].Pid != 10 || peers[1].Pid != 20 || peers[2].Address != "tcp://h3:1" {
		t.Errorf("Got peers %v", peers)
	}
}

func Test_ReadPeersRejectsBadFiles(t *testing.T) {
	bodies := []string{
		"",
		"{\"Pid\": 1, \"Address\": \"tcp://a:1\"}\n{\"Pid\": 1, \"Address\": \"tcp://b:1\"}\n",
		"{\"Pid\": 1}\n",
		"{\"Pid\": ",
	}
	for _, body := range bodies {
		if _, err := ReadPeers(writeClusterConfig(t, body)); !errors.Is(err, synod.ErrInvalidConfig) {
			t.Errorf("ReadPeers(%q) returned %v", body, err)
		}
	}
}

func Test_NewNodeRejectsStranger(t *testing.T) {
	if _, err := NewNode(7, localCluster(t, 2), 0, synod.Env{}); !errors.Is(err, synod.ErrNotMember) {
		t.Errorf("NewNode for a stranger returned %v", err)
	}
}

func Test_WireCarriesProtocolMessages(t *testing.T) {
	msgs := []synod.Message{
		synod.Launch{}, synod.Crash{}, synod.Hold{},
		synod.Read{Ballot: 4},
		synod.Gather{Ballot: 4, ImposeBallot: 1, Estimate: 1},
		synod.Gather{Ballot: 4, ImposeBallot: synod.NoBallot, Estimate: synod.NoValue},
		synod.Impose{Ballot: 7, Value: 0},
		synod.Ack{Ballot: 7},
		synod.Abort{Ballot: 2},
		synod.Decide{Value: 1},
	}

	for _, msg := range msgs {
		w, err := encode(msg)
		if err != nil {
			t.Fatalf("encode(%s): %v", msg, err)
		}
		w.Addr = 3

		data, err := marshal(w)
		if err != nil {
			t.Fatal(err)
		}
		received, err := unmarshal(data)
		if err != nil || received.Addr != 3 {
			t.Fatalf("Received %v (%v)", received, err)
		}
		back, err := received.decode()
		if err != nil || back != msg {
			t.Errorf("Sent %s, received %v (%v)", msg, back, err)
		}
	}

	if _, err := encode(synod.Membership{}); err == nil {
		t.Errorf("Membership was encoded")
	}
	if _, err := (wireMsg{Kind: synod.KindUnknown}).decode(); err == nil {
		t.Errorf("Unknown kind was decoded")
	}
	if _, err := unmarshal([]byte("garbage")); err == nil {
		t.Errorf("Garbage was decoded")
	}
}

// TEST: A cluster could be brought up and down, and stopped twice.
func Test_ClusterInitialize(t *testing.T) {
	nodes := ClusterSetup(t, 3, nil)
	ClusterStop(nodes)
	ClusterStop(nodes)
}

// TEST: A launch on one member leads every member to the same decision.
func Test_ClusterDecides(t *testing.T) {
	events := synod.NewEventLog()
	nodes := ClusterSetup(t, 3, events)
	defer ClusterStop(nodes)

	if err := nodes[0].Send(nodes[0].Pid(), synod.Launch{}); err != nil {
		t.Fatal(err)
	}
	if err := nodes[0].Send(999, synod.Launch{}); !errors.Is(err, synod.ErrNotMember) {
		t.Errorf("Send to a stranger returned %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := events.Wait(ctx, synod.EventDecided, 3); err != nil {
		t.Fatalf("Only %d members decided", len(events.Decisions()))
	}

	want := nodes[0].Process().Status().Chosen
	for _, d := range events.Decisions() {
		if d.Value != want {
			t.Errorf("Member %d decided %d, want %d", d.Process, d.Value, want)
		}
	}
}
