package domain

import "errors"

// ErrMasterExists is returned when a second master is registered on the same supervisor.
var ErrMasterExists = errors.New("master process already added")

// ErrUnknownNode is returned when a NodeID does not name a live node in the tree.
var ErrUnknownNode = errors.New("unknown node")

// ErrShuttingDown is returned when new processes are requested after shutdown began.
var ErrShuttingDown = errors.New("supervisor is shutting down")

// ErrNoInput is returned when neither an input command nor the stdin sentinel is configured.
var ErrNoInput = errors.New("no input command or stdin sentinel configured")
