package domain

// Field constants shared by the config document and the event payloads.
const (
	// InputStdin is the config sentinel selecting the enclosing program's stdin as input.
	InputStdin = "stdin"

	// DefaultEventStream is the Redis stream lifecycle events are appended to.
	DefaultEventStream = "manifold:events"
)
