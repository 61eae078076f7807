/*
Package relay provides the Buffered Relay: a pausable fan-out of one byte
stream to many consumers.

A Relay starts paused. While paused, everything written to it is kept in
memory and consumers can be attached without missing any of it. Resume
flushes the buffer to every attached consumer and turns the relay into a plain
pass-through for the rest of its life. Close delivers end-of-stream to the
consumers the relay owns.

Each consumer is fed by its own goroutine through a bounded queue. A consumer
that stops reading holds back the producer once its queue is full, but never
the relay's control calls: Attach, Detach, Resume and Close return at once.

	r := relay.New()
	go r.ReadFrom(master.Stdout())         // producer may start right away
	r.Attach(os.Stdout)                    // program output, never closed
	r.Attach(child.Stdin(), relay.Owned()) // closed on r.Close()
	r.Resume()                             // topology complete, let bytes flow
*/
package relay
