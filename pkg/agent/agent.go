package agent

import (
	"context"

	"supvisors/pkg/types"
)

// Agent is the local supervisor agent's RPC surface, as seen from the
// coordination engine (spec.md §6).
type Agent interface {
	StartProcess(ctx context.Context, namespec, extraArgs string) error
	StopProcess(ctx context.Context, namespec string) error
	GetAllProcessInfo(ctx context.Context) ([]types.ProcessInfo, error)
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
