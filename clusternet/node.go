/*
Package clusternet hosts one synod process per cluster member and carries
the messages between members over ZeroMQ.

The cluster config file is a stream of JSON peer records, one per member:

	{"Pid": 1, "Address": "tcp://127.0.0.1:7001"}
	{"Pid": 2, "Address": "tcp://127.0.0.1:7002"}

Each member binds a PULL socket on its own address and pushes to the
others. Members are indexed by ascending pid.
*/
package clusternet

import (
	zmq "github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	synod "github.com/lucaerba/SLR-210"
)

const (
	OUTBOX_SIZE = 1024

	POLL_INTERVAL = 100 * time.Millisecond
	SEND_TIMEOUT  = time.Second
)

// Peer is one record of the cluster config file.
type Peer struct {
	Pid     int
	Address string
}

type Node struct {
	self    Peer
	index   int
	peers   []Peer      // by index
	indices map[int]int // pid -> index

	logger  logrus.FieldLogger
	process *synod.Process
	outbox  chan wireMsg

	pull *zmq.Socket
	push map[int]*zmq.Socket // by pid, owned by monitorOutbox

	mu       sync.Mutex
	started  bool
	stopped  bool
	done     chan struct{}
	monitors sync.WaitGroup
}

// remote is the Peer handle of a process hosted by another member.
type remote struct {
	node *Node
	pid  int
}

func (r remote) Deliver(from int, msg synod.Message) {
	r.node.queue(r.pid, msg)
}

// NewNode creates the member pid of the cluster described by
// clusterConfigFile and installs its membership.
func NewNode(pid int, clusterConfigFile string, alpha float64, env synod.Env) (*Node, error) {
	peers, err := ReadPeers(clusterConfigFile)
	if err != nil {
		return nil, err
	}

	n := &Node{
		peers:   peers,
		indices: make(map[int]int, len(peers)),
		outbox:  make(chan wireMsg, OUTBOX_SIZE),
		push:    make(map[int]*zmq.Socket),
		done:    make(chan struct{}),
	}
	for i, p := range peers {
		n.indices[p.Pid] = i
	}
	index, ok := n.indices[pid]
	if !ok {
		return nil, fmt.Errorf("%w: pid %d in %s", synod.ErrNotMember, pid, clusterConfigFile)
	}
	n.index, n.self = index, peers[index]

	if env.Logger == nil {
		env.Logger = logrus.StandardLogger()
	}
	n.logger = env.Logger.WithField("pid", pid)
	env.Logger = n.logger

	if n.process, err = synod.NewProcess(len(peers), index, alpha, env); err != nil {
		return nil, err
	}

	handles := make([]synod.Peer, len(peers))
	for i, p := range peers {
		if i == index {
			handles[i] = n.process
		} else {
			handles[i] = remote{node: n, pid: p.Pid}
		}
	}
	n.process.Deliver(synod.NoSender, synod.Membership{Peers: handles})

	n.logger.Infof("Created node %d as process %d of %d", pid, index, len(peers))
	return n, nil
}

// ReadPeers returns the members listed in a cluster config file, sorted
// by pid.
func ReadPeers(clusterConfigFile string) ([]Peer, error) {
	data, err := os.ReadFile(clusterConfigFile)
	if err != nil {
		return nil, err
	}

	var peers []Peer
	seen := make(map[int]bool)
	decoder := json.NewDecoder(bytes.NewReader(data))
	for {
		var p Peer
		if err := decoder.Decode(&p); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", synod.ErrInvalidConfig, clusterConfigFile, err)
		}
		if seen[p.Pid] {
			return nil, fmt.Errorf("%w: %s lists pid %d twice", synod.ErrInvalidConfig, clusterConfigFile, p.Pid)
		}
		if p.Address == "" {
			return nil, fmt.Errorf("%w: %s: pid %d has no address", synod.ErrInvalidConfig, clusterConfigFile, p.Pid)
		}
		seen[p.Pid] = true
		peers = append(peers, p)
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("%w: %s lists no peers", synod.ErrInvalidConfig, clusterConfigFile)
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Pid < peers[j].Pid })
	return peers, nil
}

func (n *Node) Pid() int {
	return n.self.Pid
}

func (n *Node) Process() *synod.Process {
	return n.process
}

// Start binds the node's address, connects to every other member and
// starts the process.
func (n *Node) Start() (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started || n.stopped {
		return nil
	}

	if err = n.openSockets(); err != nil {
		n.closeSockets()
		return fmt.Errorf("clusternet: node %d: %w", n.self.Pid, err)
	}
	n.started = true

	n.monitors.Add(2)
	go n.monitorInbox()
	go n.monitorOutbox()
	n.process.Start()
	return nil
}

func (n *Node) openSockets() (err error) {
	if n.pull, err = zmq.NewSocket(zmq.PULL); err != nil {
		return err
	}
	if err = n.pull.SetLinger(0); err != nil {
		return err
	}
	if err = n.pull.SetRcvtimeo(POLL_INTERVAL); err != nil {
		return err
	}
	if err = n.pull.Bind(n.self.Address); err != nil {
		return err
	}

	for _, p := range n.peers {
		if p.Pid == n.self.Pid {
			continue
		}
		push, err := zmq.NewSocket(zmq.PUSH)
		if err != nil {
			return err
		}
		n.push[p.Pid] = push
		if err = push.SetLinger(0); err != nil {
			return err
		}
		if err = push.SetSndtimeo(SEND_TIMEOUT); err != nil {
			return err
		}
		if err = push.Connect(p.Address); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) closeSockets() {
	if n.pull != nil {
		n.pull.Close()
	}
	for _, push := range n.push {
		push.Close()
	}
}

// Stop shuts the node down. It is safe to call more than once.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return
	}
	n.stopped = true

	n.logger.Infof("Stopping node %d", n.self.Pid)
	defer n.logger.Infof("Node %d has fully stopped", n.self.Pid)

	close(n.done)
	n.process.Stop()
	if n.started {
		n.monitors.Wait()
		n.closeSockets()
	}
}

// Send delivers a message from this node to the member pid. Membership is
// local to each node and cannot be sent.
func (n *Node) Send(pid int, msg synod.Message) error {
	if _, ok := n.indices[pid]; !ok {
		return fmt.Errorf("%w: pid %d", synod.ErrNotMember, pid)
	}
	if _, err := encode(msg); err != nil {
		return err
	}

	if pid == n.self.Pid {
		n.process.Deliver(n.index, msg)
	} else {
		n.queue(pid, msg)
	}
	return nil
}

func (n *Node) queue(pid int, msg synod.Message) {
	w, err := encode(msg)
	if err != nil {
		n.logger.Errorf("Node %d dropped %s to %d: %v", n.self.Pid, msg, pid, err)
		return
	}
	w.Addr = pid

	select {
	case n.outbox <- w:
	case <-n.done:
	}
}

func (n *Node) monitorInbox() {
	n.logger.Debugf("Inbox monitor for node %d started", n.self.Pid)
	defer n.logger.Debugf("Inbox monitor for node %d stopped", n.self.Pid)
	defer n.monitors.Done()

	for {
		select {
		case <-n.done:
			return
		default:
		}

		data, err := n.pull.RecvBytes(0)
		if err != nil {
			// a receive timeout, so done gets checked again
			continue
		}

		w, err := unmarshal(data)
		if err != nil {
			n.logger.Warnf("Node %d dropped an undecodable message: %v", n.self.Pid, err)
			continue
		}
		from, ok := n.indices[w.Addr]
		if !ok {
			n.logger.Warnf("Node %d dropped %s from a non-member", n.self.Pid, w)
			continue
		}
		msg, err := w.decode()
		if err != nil {
			n.logger.Warn(err)
			continue
		}

		n.logger.Debugf(" Node %d <- %s", n.self.Pid, w)
		n.process.Deliver(from, msg)
	}
}

func (n *Node) monitorOutbox() {
	n.logger.Debugf("Outbox monitor for node %d started", n.self.Pid)
	defer n.logger.Debugf("Outbox monitor for node %d stopped", n.self.Pid)
	defer n.monitors.Done()

	for {
		select {
		case w := <-n.outbox:
			n.logger.Debugf(" Node %d -> %s", n.self.Pid, w)
			target := w.Addr
			w.Addr = n.self.Pid

			data, err := marshal(w)
			if err != nil {
				n.logger.Errorf("Node %d could not encode %s: %v", n.self.Pid, w, err)
				continue
			}
			if _, err := n.push[target].SendBytes(data, 0); err != nil {
				n.logger.Warnf("Node %d lost %s to %d: %v", n.self.Pid, w, target, err)
			}

		case <-n.done:
			return
		}
	}
}

// marshal gob-encodes w as an interface value, so the receiver can tell
// it apart from anything else written to its socket.
func marshal(w wireMsg) ([]byte, error) {
	var buf bytes.Buffer
	var msg interface{} = w
	if err := gob.NewEncoder(&buf).Encode(&msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte) (wireMsg, error) {
	var msg interface{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		return wireMsg{}, err
	}
	w, ok := msg.(wireMsg)
	if !ok {
		return wireMsg{}, fmt.Errorf("clusternet: unexpected %T", msg)
	}
	return w, nil
}
