package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	synod "github.com/lucaerba/SLR-210"
	"github.com/lucaerba/SLR-210/clusternet"
)

const nodeUsageStr = `
Usage: synod node -id <pid> -config <cluster file> [arguments]

Hosts the process of cluster member <pid> and launches it. Every member of
the cluster file runs its own node. The node marks itself fault-prone with
-crash, and holds itself after -hold-after unless it is the -survivor.
`

func nodeCommand(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("node", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, nodeUsageStr)
		fs.PrintDefaults()
	}
	def := synod.DefaultConfig()
	pid := fs.Int("id", -1, "pid of this member")
	config := fs.String("config", "cluster.json", "cluster config file")
	alpha := fs.Float64("alpha", def.Alpha, "crash probability per message once fault-prone")
	crash := fs.Bool("crash", false, "make this process fault-prone")
	holdAfter := fs.Int("hold-after", def.Tle, "milliseconds before holding, 0 never holds")
	survivor := fs.Int("survivor", -1, "pid of the member that is never held")
	interval := fs.Int("interval", def.Launch_Interval, "milliseconds between retries")
	timeout := fs.Int("timeout", def.Timeout, "milliseconds to wait for a decision")
	verbose := fs.Bool("v", false, "log every message")
	fs.Parse(args)
	if fs.NArg() != 0 || *pid < 0 {
		usage(nodeUsageStr)
	}

	logger := newLogger(def.Log_Level, *verbose)
	events := synod.NewEventLog()

	node, err := clusternet.NewNode(*pid, *config, *alpha, synod.Env{
		Start:          time.Now(),
		Logger:         logger,
		Observer:       events,
		LaunchInterval: time.Duration(*interval) * time.Millisecond,
		Rand:           rand.New(rand.NewSource(time.Now().UnixNano() + int64(*pid))),
	})
	if err != nil {
		logger.Fatal(err)
	}
	if err := node.Start(); err != nil {
		logger.Fatal(err)
	}
	defer node.Stop()

	self := node.Pid()
	mustSend(logger, node, self, synod.Launch{})
	if *crash {
		mustSend(logger, node, self, synod.Crash{})
	}

	var hold <-chan time.Time
	if *holdAfter > 0 && *survivor != self {
		t := time.NewTimer(time.Duration(*holdAfter) * time.Millisecond)
		defer t.Stop()
		hold = t.C
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(*timeout)*time.Millisecond)
	defer cancel()

	decided := make(chan error, 1)
	go func() {
		decided <- events.Wait(ctx, synod.EventDecided, 1)
	}()

	for {
		select {
		case <-hold:
			hold = nil
			mustSend(logger, node, self, synod.Hold{})

		case err := <-decided:
			if err != nil {
				s := node.Process().Status()
				fmt.Printf("node %d: no decision (ballot %d, silent %v)\n", self, s.Ballot, s.Silent)
				return
			}
			d := events.Decisions()[0]
			fmt.Printf("node %d: decided %d after %v\n", self, d.Value, d.Elapsed)
			return
		}
	}
}

func mustSend(logger logrus.FieldLogger, node *clusternet.Node, pid int, msg synod.Message) {
	if err := node.Send(pid, msg); err != nil {
		logger.Fatal(err)
	}
}
