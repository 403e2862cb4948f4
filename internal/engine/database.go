package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// databaseReconciler converges the Glue catalog database. The location
// URI always points at the analytics zone of the lake bucket.
type databaseReconciler struct {
	glue   awsapi.GlueAPI
	policy *RetryPolicy
	dryRun bool
}

func (r *databaseReconciler) Kind() lake.ResourceKind { return lake.KindDatabase }

func (r *databaseReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error) {
	name := desired.Database.Name
	location := databaseLocation(desired)

	var live *glue.GetDatabaseOutput
	err := r.do(ctx, func() error {
		var err error
		live, err = r.glue.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(name)})
		return err
	})
	exists := true
	switch {
	case err != nil && isNotFound(err):
		exists = false
	case err != nil:
		return failedStatus(lake.KindDatabase, name, err), err
	}

	var changes []change
	if exists {
		db := live.Database
		if aws.ToString(db.Description) != desired.Database.Description ||
			aws.ToString(db.LocationUri) != location {
			changes = append(changes, r.updateChange(desired, location))
		}
		tagChange, err := r.pendingTags(ctx, desired, deps)
		if err != nil {
			return failedStatus(lake.KindDatabase, name, err), err
		}
		if tagChange != nil {
			changes = append(changes, *tagChange)
		}
	}

	create := func(ctx context.Context) error {
		logFor(lake.KindDatabase).Info("creating database", "database", name)
		return r.do(ctx, func() error {
			_, err := r.glue.CreateDatabase(ctx, &glue.CreateDatabaseInput{
				DatabaseInput: &types.DatabaseInput{
					Name:        aws.String(name),
					Description: aws.String(desired.Database.Description),
					LocationUri: aws.String(location),
				},
				Tags: desired.Tags,
			})
			return err
		})
	}

	status, err := converge(ctx, lake.KindDatabase, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindDatabase, name, err), err
	}
	return status, nil
}

func (r *databaseReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindDatabase, r.policy, fn)
}

func (r *databaseReconciler) updateChange(desired *lake.DesiredState, location string) change {
	return change{name: "definition", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.glue.UpdateDatabase(ctx, &glue.UpdateDatabaseInput{
				Name: aws.String(desired.Database.Name),
				DatabaseInput: &types.DatabaseInput{
					Name:        aws.String(desired.Database.Name),
					Description: aws.String(desired.Database.Description),
					LocationUri: aws.String(location),
				},
			})
			return err
		})
	}}
}

func (r *databaseReconciler) pendingTags(ctx context.Context, desired *lake.DesiredState, deps *Deps) (*change, error) {
	arn := glueDatabaseARN(desired.Region, deps.AccountID, desired.Database.Name)
	return glueTagChange(ctx, r.glue, lake.KindDatabase, r.policy, arn, desired.Tags)
}

// glueTagChange compares live Glue resource tags to the desired set and
// returns the change that closes the gap, or nil when in sync. Shared
// by the database, crawler and table reconcilers.
func glueTagChange(ctx context.Context, api awsapi.GlueAPI, kind lake.ResourceKind, policy *RetryPolicy, arn string, want map[string]string) (*change, error) {
	var live *glue.GetTagsOutput
	if err := execute(ctx, kind, policy, func() error {
		var err error
		live, err = api.GetTags(ctx, &glue.GetTagsInput{ResourceArn: aws.String(arn)})
		return err
	}); err != nil {
		return nil, err
	}
	set, remove := tagDiff(live.Tags, want)
	if set == nil && remove == nil {
		return nil, nil
	}
	return &change{name: "tags", apply: func(ctx context.Context) error {
		if len(set) > 0 {
			if err := execute(ctx, kind, policy, func() error {
				_, err := api.TagResource(ctx, &glue.TagResourceInput{
					ResourceArn: aws.String(arn),
					TagsToAdd:   set,
				})
				return err
			}); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			return execute(ctx, kind, policy, func() error {
				_, err := api.UntagResource(ctx, &glue.UntagResourceInput{
					ResourceArn:  aws.String(arn),
					TagsToRemove: remove,
				})
				return err
			})
		}
		return nil
	}}, nil
}

func databaseLocation(desired *lake.DesiredState) string {
	return fmt.Sprintf("s3://%s/%s", desired.Bucket.Name, desired.Prefixes.Analytics)
}
