package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// A stage that keeps copying stdin after it closes and refuses SIGINT and
// SIGTERM; only SIGKILL ends it.
func main() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		_, _ = io.Copy(os.Stdout, os.Stdin)
		fmt.Fprintln(os.Stderr, "input closed, staying up")
	}()

	for s := range sigs {
		fmt.Fprintf(os.Stderr, "ignoring signal: %v\n", s)
	}
}
