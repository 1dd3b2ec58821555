package tactile

import "context"

// Executor runs one external tool to completion. A tool that exits non-zero
// is a result, not an error: callers that treat it as a failure go through Run.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)
	Capabilities() ExecutorCapabilities
	Validate(cmd Command) error
}

// AuditedExecutor reports every execution to a callback. The pipeline uses it
// to attach the commands of a run to its history record.
type AuditedExecutor interface {
	Executor
	SetAuditCallback(callback func(AuditEvent))
}
