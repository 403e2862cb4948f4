// Package engine implements the convergence engine: per-resource
// reconcilers, the retry/error-classification layer that shields them
// from transient provider failures, and the orchestrator that sequences
// them in dependency order.
package engine

import (
	"context"

	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// Deps carries run-scoped values resolved by earlier reconcilers and
// the orchestrator: the caller account, the caller identity ARN, and
// the processing role ARN produced by the role reconciler.
type Deps struct {
	AccountID string
	CallerARN string
	RoleARN   string
}

// reconciler converges one resource kind toward its desired sub-state.
type reconciler interface {
	Kind() lake.ResourceKind
	Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error)
}

// failedStatus builds the status recorded when a reconciler errors.
func failedStatus(kind lake.ResourceKind, name string, err error) lake.ResourceStatus {
	return lake.ResourceStatus{Kind: kind, Name: name, Action: lake.ActionFailed, Error: err.Error()}
}

// change is one pending attribute-level difference between live and
// desired state, with the minimal call that closes it.
type change struct {
	name  string
	apply func(context.Context) error
}

// converge is the uniform tail of every reconciler: absent resources
// are created and fully configured, present ones receive only the
// pending changes, and no pending change means skipped. In dry-run mode
// nothing mutates and the planned action is reported instead.
func converge(ctx context.Context, kind lake.ResourceKind, name string, dryRun, exists bool,
	create func(context.Context) error, changes []change) (lake.ResourceStatus, error) {

	status := lake.ResourceStatus{Kind: kind, Name: name}
	log := logFor(kind)

	if !exists {
		if dryRun {
			status.Action = lake.ActionDryRun
			status.Planned = lake.ActionCreated
			return status, nil
		}
		if err := create(ctx); err != nil {
			return status, err
		}
		for _, c := range changes {
			log.Debug("configuring", "resource", name, "change", c.name)
			if err := c.apply(ctx); err != nil {
				return status, err
			}
		}
		status.Action = lake.ActionCreated
		return status, nil
	}

	if len(changes) == 0 {
		status.Action = lake.ActionSkipped
		return status, nil
	}
	if dryRun {
		status.Action = lake.ActionDryRun
		status.Planned = lake.ActionUpdated
		return status, nil
	}
	for _, c := range changes {
		log.Info("updating", "resource", name, "change", c.name)
		if err := c.apply(ctx); err != nil {
			return status, err
		}
	}
	status.Action = lake.ActionUpdated
	return status, nil
}
