package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// A stage that echoes stdin and answers SIGTERM by reporting what it
// relayed, then exiting 0.
func main() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	var (
		mu    sync.Mutex
		lines int
	)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			mu.Lock()
			fmt.Println(scanner.Text())
			lines++
			mu.Unlock()
		}
	}()

	select {
	case sig := <-sigs:
		fmt.Fprintf(os.Stderr, "received signal: %s\n", sig)
		mu.Lock()
		fmt.Printf("flushed %d lines\n", lines)
		mu.Unlock()
		os.Exit(0)
	case <-time.After(10 * time.Second):
		os.Exit(3)
	}
}
