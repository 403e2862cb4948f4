package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
	"github.com/lakeforge-io/lakeforge/internal/logging"
	"github.com/lakeforge-io/lakeforge/internal/state"
)

// Store persists deployment records and answers history queries. The
// file-backed implementation lives in internal/state.
type Store interface {
	Persist(record lake.DeploymentRecord) error
	Current() (*lake.DesiredState, error)
	History() ([]lake.DeploymentRecord, error)
	LastSuccessful() (*lake.DeploymentRecord, error)
}

// Orchestrator sequences the reconcilers in dependency order over one
// desired state and persists the outcome.
type Orchestrator struct {
	clients awsapi.Factory
	store   Store

	// Retry overrides the default retry policy when set.
	Retry *RetryPolicy
	// DryRun suppresses every mutation and reports planned actions.
	DryRun bool
}

// New builds an orchestrator over the given client factory and store.
func New(clients awsapi.Factory, store Store) *Orchestrator {
	return &Orchestrator{clients: clients, store: store}
}

// Deploy converges every declared resource kind toward the desired
// state. A required kind failing aborts the run after the record is
// persisted; optional failures are recorded and the run continues
// without affecting overall success. The summary carries exactly one
// status per declared kind on every path.
func (o *Orchestrator) Deploy(ctx context.Context, desired *lake.DesiredState) (*lake.DeploymentSummary, error) {
	log := logging.Logger()

	deps, err := o.resolveIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving caller identity: %w", err)
	}
	log.Info("starting deployment",
		"region", desired.Region,
		"bucket", desired.Bucket.Name,
		"account", deps.AccountID,
		"dry_run", o.DryRun)

	record := lake.DeploymentRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DryRun:    o.DryRun,
		Desired:   *desired,
		Resources: make(map[lake.ResourceKind]lake.ResourceStatus),
		Success:   true,
	}

	kinds := desired.DeclaredKinds()
	for i, kind := range kinds {
		rec, err := o.reconcilerFor(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("building %s reconciler: %w", kind, err)
		}

		status, rerr := rec.Reconcile(ctx, desired, deps)
		record.Resources[kind] = status
		if rerr == nil {
			log.Info("reconciled", "kind", kind, "action", status.Action)
			continue
		}

		// Only required kinds decide overall success. Optional failures
		// are captured in the per-kind status and the run carries on.
		if lake.RequiredKinds[kind] {
			record.Success = false
			log.Error("required resource failed, aborting", "kind", kind, "error", rerr)
			for _, unreached := range kinds[i+1:] {
				record.Resources[unreached] = lake.ResourceStatus{
					Kind:   unreached,
					Name:   declaredName(desired, unreached),
					Action: lake.ActionFailed,
					Error:  fmt.Sprintf("not attempted: %s failed", kind),
				}
			}
			if perr := o.store.Persist(record); perr != nil {
				log.Error("persisting aborted deployment record", "error", perr)
			}
			return summaryOf(record), rerr
		}
		log.Warn("optional resource failed, continuing", "kind", kind, "error", rerr)
	}

	if err := o.store.Persist(record); err != nil {
		return summaryOf(record), fmt.Errorf("persisting deployment record: %w", err)
	}
	return summaryOf(record), nil
}

// DetectDrift compares the supplied state against the last successful
// deployment's snapshot. A missing snapshot reports every field.
func (o *Orchestrator) DetectDrift(desired *lake.DesiredState) (lake.DriftReport, error) {
	current, err := o.store.Current()
	if err != nil {
		return nil, err
	}
	return state.Diff(current, desired), nil
}

// History returns persisted deployment records, most recent first.
func (o *Orchestrator) History() ([]lake.DeploymentRecord, error) {
	return o.store.History()
}

// LastSuccessful returns the most recent successful non-dry-run record,
// or nil when none exists.
func (o *Orchestrator) LastSuccessful() (*lake.DeploymentRecord, error) {
	return o.store.LastSuccessful()
}

// resolveIdentity fetches the caller account and ARN once per run.
func (o *Orchestrator) resolveIdentity(ctx context.Context) (*Deps, error) {
	client, err := o.clients.STS(ctx)
	if err != nil {
		return nil, err
	}
	deps := &Deps{}
	err = execute(ctx, "caller-identity", o.Retry, func() error {
		out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return err
		}
		if out.Account != nil {
			deps.AccountID = *out.Account
		}
		if out.Arn != nil {
			deps.CallerARN = *out.Arn
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deps, nil
}

func (o *Orchestrator) reconcilerFor(ctx context.Context, kind lake.ResourceKind) (reconciler, error) {
	switch kind {
	case lake.KindVpcEndpoints:
		client, err := o.clients.EC2(ctx)
		if err != nil {
			return nil, err
		}
		return &endpointsReconciler{ec2: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindBucket:
		client, err := o.clients.S3(ctx)
		if err != nil {
			return nil, err
		}
		return &bucketReconciler{s3: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindRole:
		client, err := o.clients.IAM(ctx)
		if err != nil {
			return nil, err
		}
		return &roleReconciler{iam: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindFirehose:
		fh, err := o.clients.Firehose(ctx)
		if err != nil {
			return nil, err
		}
		iamClient, err := o.clients.IAM(ctx)
		if err != nil {
			return nil, err
		}
		return &firehoseReconciler{firehose: fh, iam: iamClient, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindDatabase:
		client, err := o.clients.Glue(ctx)
		if err != nil {
			return nil, err
		}
		return &databaseReconciler{glue: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindCrawler:
		client, err := o.clients.Glue(ctx)
		if err != nil {
			return nil, err
		}
		return &crawlerReconciler{glue: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindWorkgroup:
		client, err := o.clients.Athena(ctx)
		if err != nil {
			return nil, err
		}
		return &workgroupReconciler{athena: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindTable:
		client, err := o.clients.Glue(ctx)
		if err != nil {
			return nil, err
		}
		return &tableReconciler{glue: client, policy: o.Retry, dryRun: o.DryRun}, nil
	case lake.KindGrants:
		client, err := o.clients.LakeFormation(ctx)
		if err != nil {
			return nil, err
		}
		return &grantsReconciler{lf: client, policy: o.Retry, dryRun: o.DryRun}, nil
	}
	return nil, fmt.Errorf("unknown resource kind %q", kind)
}

// declaredName resolves the deterministic identifier a kind reconciles,
// for statuses recorded without running the reconciler.
func declaredName(desired *lake.DesiredState, kind lake.ResourceKind) string {
	switch kind {
	case lake.KindVpcEndpoints:
		return desired.VpcEndpoints.VpcID
	case lake.KindBucket:
		return desired.Bucket.Name
	case lake.KindRole:
		return desired.Role.Name
	case lake.KindFirehose:
		return desired.Firehose.StreamName
	case lake.KindDatabase, lake.KindGrants:
		return desired.Database.Name
	case lake.KindCrawler:
		return desired.Crawler.Name
	case lake.KindWorkgroup:
		return desired.Workgroup.Name
	case lake.KindTable:
		return desired.Table.Name
	}
	return ""
}

func summaryOf(record lake.DeploymentRecord) *lake.DeploymentSummary {
	return &lake.DeploymentSummary{Resources: record.Resources, Success: record.Success}
}
