package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/manifold/pkg/domain"
)

// LoggingHooks logs every lifecycle event at Debug, as an audit trail of the
// structured events next to the supervisor's own messages.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSpawn: func(ctx context.Context, e *domain.ProcessEvent) {
			logger.DebugContext(ctx, "node_spawn",
				"node_id", e.NodeID,
				"role", e.Role(),
				"pid", e.PID,
				"command", e.Command,
			)
		},
		OnExit: func(ctx context.Context, e *domain.ProcessEvent) {
			logger.DebugContext(ctx, "node_exit",
				"node_id", e.NodeID,
				"role", e.Role(),
				"pid", e.PID,
				"status", e.Exit.String(),
				"final", e.Final,
			)
		},
		OnRespawn: func(ctx context.Context, e *domain.ProcessEvent) {
			logger.DebugContext(ctx, "node_respawn",
				"node_id", e.NodeID,
				"role", e.Role(),
				"pid", e.PID,
				"restarts", e.Restarts,
			)
		},
		OnShutdown: func(ctx context.Context, e *domain.ShutdownEvent) {
			logger.DebugContext(ctx, "shutdown",
				"cause", e.Cause,
				"exit_code", e.ExitCode,
			)
		},
	}
}
