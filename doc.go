/*
Package manifold supervises a tree of processes connected by their standard
streams, like a shell pipeline that forks.

One master produces data: either the standard input of the program embedding
manifold, or a spawned command. Every stage below it reads the output of its
parent, so a single producer can feed several consumers, and each consumer can
feed its own. Stages that crash are respawned in place without losing their
position or their consumers; a master that finishes on purpose shuts the whole
tree down, children first.

# Usage

Describe the pipeline in a configuration file:

	input:
	  bin: tail
	  args: ["-F", "/var/log/app.log"]
	outputs:
	  - bin: grep
	    args: ["ERROR"]
	  - bin: gzip
	    keep_alive: false

Then run it:

	package main

	import (
		"context"
		"log"
		"os"
		"os/signal"
		"syscall"

		"github.com/aretw0/manifold"
		"github.com/aretw0/manifold/pkg/config"
	)

	func main() {
		cfg, err := config.Load("pipeline.yaml")
		if err != nil {
			log.Fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code, err := manifold.Run(ctx, cfg)
		if err != nil {
			log.Fatal(err)
		}
		os.Exit(code)
	}

The building blocks live in pkg/: supervisor (the tree), relay (the buffered
fan-out between a producer and its consumers), adapters/process (spawning and
signalling), config, and the observability and adapter packages that Run wires
in from the configuration.
*/
package manifold
