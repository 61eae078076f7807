package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSpawn    EventType = "spawn"
	EventExit     EventType = "exit"
	EventRespawn  EventType = "respawn"
	EventShutdown EventType = "shutdown"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// ProcessEvent describes a spawn, exit or respawn of one node.
type ProcessEvent struct {
	EventBase
	NodeID  NodeID   `json:"node_id"`
	Parent  NodeID   `json:"parent,omitempty"`
	Master  bool     `json:"master,omitempty"`
	PID     int      `json:"pid,omitempty"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`

	// Exit is set for EventExit.
	Exit *ExitStatus `json:"exit,omitempty"`
	// Final is set for EventExit when the node will not be respawned.
	Final bool `json:"final,omitempty"`
	// Restarts is the number of replacements so far, including this one for EventRespawn.
	Restarts int `json:"restarts,omitempty"`
}

// Role is "master" or "child", for labels and log lines.
func (e *ProcessEvent) Role() string {
	if e.Master {
		return "master"
	}
	return "child"
}

// Reason classifies an exit for metrics: "clean", "signal" or "crash".
func (e *ProcessEvent) Reason() string {
	switch {
	case e.Exit == nil:
		return ""
	case e.Exit.Signaled():
		return "signal"
	case e.Exit.Clean():
		return "clean"
	default:
		return "crash"
	}
}

// ShutdownEvent marks the start of a coordinated shutdown.
type ShutdownEvent struct {
	EventBase
	ExitCode int    `json:"exit_code"`
	Cause    string `json:"cause"`
}

// LifecycleHooks defines callbacks for supervisor observability.
// Hooks run synchronously inside the supervisor and must not block or call back into it.
type LifecycleHooks struct {
	OnSpawn    func(context.Context, *ProcessEvent)
	OnExit     func(context.Context, *ProcessEvent)
	OnRespawn  func(context.Context, *ProcessEvent)
	OnShutdown func(context.Context, *ShutdownEvent)
}

// Combine fans every hook out to all given sets, in order.
func Combine(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnSpawn: func(ctx context.Context, e *ProcessEvent) {
			for _, h := range hooks {
				if h.OnSpawn != nil {
					h.OnSpawn(ctx, e)
				}
			}
		},
		OnExit: func(ctx context.Context, e *ProcessEvent) {
			for _, h := range hooks {
				if h.OnExit != nil {
					h.OnExit(ctx, e)
				}
			}
		},
		OnRespawn: func(ctx context.Context, e *ProcessEvent) {
			for _, h := range hooks {
				if h.OnRespawn != nil {
					h.OnRespawn(ctx, e)
				}
			}
		},
		OnShutdown: func(ctx context.Context, e *ShutdownEvent) {
			for _, h := range hooks {
				if h.OnShutdown != nil {
					h.OnShutdown(ctx, e)
				}
			}
		},
	}
}
