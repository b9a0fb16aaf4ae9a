package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	synod "github.com/lucaerba/SLR-210"
)

const usageStr = `
The synod command runs experiments with the Synod consensus algorithm.

Usage:

	synod <command> [arguments]

The commands are:

	run	simulate one consensus instance
	sweep	simulate the whole experiment grid and store every run
	report	summarise the runs stored in a results database
	node	host one process of a consensus instance on a cluster

Use "synod <command> -h" for the arguments of a command.
`

func usage(usageString string) {
	fmt.Println(usageString)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage(usageStr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "run":
		runCommand(ctx, os.Args[2:])
	case "sweep":
		sweepCommand(ctx, os.Args[2:])
	case "report":
		reportCommand(ctx, os.Args[2:])
	case "node":
		nodeCommand(ctx, os.Args[2:])
	default:
		usage(usageStr)
	}
}

func newLogger(level string, verbose bool) *logrus.Logger {
	if verbose {
		level = "debug"
	}
	logger, err := synod.NewLogger(level, os.Stderr)
	if err != nil {
		logrus.Fatal(err)
	}
	return logger
}
