package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation/types"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// grantsReconciler converges Lake Formation governance: the bucket is
// registered as a data location, the admin set is installed with IAM
// default permissions disabled, and each declared grant tuple is applied
// once. Grants already present are left untouched.
type grantsReconciler struct {
	lf     awsapi.LakeFormationAPI
	policy *RetryPolicy
	dryRun bool
}

func (r *grantsReconciler) Kind() lake.ResourceKind { return lake.KindGrants }

func (r *grantsReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error) {
	name := desired.Database.Name
	arn := bucketARN(desired.Bucket.Name)

	registered, err := r.resourceRegistered(ctx, arn)
	if err != nil {
		return failedStatus(lake.KindGrants, name, err), err
	}

	var changes []change
	if !registered {
		changes = append(changes, r.registerChange(arn))
	}

	adminChange, err := r.pendingAdmins(ctx, desired, deps)
	if err != nil {
		return failedStatus(lake.KindGrants, name, err), err
	}
	if adminChange != nil {
		changes = append(changes, *adminChange)
	}

	grantChanges, err := r.pendingGrants(ctx, desired, arn)
	if err != nil {
		return failedStatus(lake.KindGrants, name, err), err
	}
	changes = append(changes, grantChanges...)

	// Governance always "exists"; convergence is purely change-driven.
	status, err := converge(ctx, lake.KindGrants, name, r.dryRun, true, nil, changes)
	if err != nil {
		return failedStatus(lake.KindGrants, name, err), err
	}
	return status, nil
}

func (r *grantsReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindGrants, r.policy, fn)
}

func (r *grantsReconciler) resourceRegistered(ctx context.Context, arn string) (bool, error) {
	err := r.do(ctx, func() error {
		_, err := r.lf.DescribeResource(ctx, &lakeformation.DescribeResourceInput{ResourceArn: aws.String(arn)})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *grantsReconciler) registerChange(arn string) change {
	return change{name: "register " + arn, apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.lf.RegisterResource(ctx, &lakeformation.RegisterResourceInput{
				ResourceArn:          aws.String(arn),
				UseServiceLinkedRole: aws.Bool(true),
			})
			return err
		})
	}}
}

// pendingAdmins compares the installed admin set to the declared one
// (defaulting to the caller identity) and returns the settings update
// when they differ.
func (r *grantsReconciler) pendingAdmins(ctx context.Context, desired *lake.DesiredState, deps *Deps) (*change, error) {
	admins := desired.Grants.Admins
	if len(admins) == 0 {
		admins = []string{deps.CallerARN}
	}

	var out *lakeformation.GetDataLakeSettingsOutput
	if err := r.do(ctx, func() error {
		var err error
		out, err = r.lf.GetDataLakeSettings(ctx, &lakeformation.GetDataLakeSettingsInput{})
		return err
	}); err != nil {
		return nil, err
	}

	liveAdmins := make(map[string]bool)
	if out.DataLakeSettings != nil {
		for _, p := range out.DataLakeSettings.DataLakeAdmins {
			liveAdmins[aws.ToString(p.DataLakePrincipalIdentifier)] = true
		}
	}
	inSync := len(liveAdmins) == len(admins)
	for _, a := range admins {
		if !liveAdmins[a] {
			inSync = false
		}
	}
	defaultsDisabled := out.DataLakeSettings != nil &&
		len(out.DataLakeSettings.CreateDatabaseDefaultPermissions) == 0 &&
		len(out.DataLakeSettings.CreateTableDefaultPermissions) == 0
	if inSync && defaultsDisabled {
		return nil, nil
	}

	principals := make([]types.DataLakePrincipal, 0, len(admins))
	for _, a := range admins {
		principals = append(principals, types.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(a)})
	}
	return &change{name: "admins", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.lf.PutDataLakeSettings(ctx, &lakeformation.PutDataLakeSettingsInput{
				DataLakeSettings: &types.DataLakeSettings{
					DataLakeAdmins:                   principals,
					CreateDatabaseDefaultPermissions: []types.PrincipalPermissions{},
					CreateTableDefaultPermissions:    []types.PrincipalPermissions{},
				},
			})
			return err
		})
	}}, nil
}

// pendingGrants lists existing permissions per tuple and keeps only the
// tuples whose permissions are not yet fully granted.
func (r *grantsReconciler) pendingGrants(ctx context.Context, desired *lake.DesiredState, locationARN string) ([]change, error) {
	var changes []change
	for _, grant := range desired.Grants.Grants {
		grant := grant
		resource, err := grantResource(grant, desired, locationARN)
		if err != nil {
			return nil, err
		}

		var out *lakeformation.ListPermissionsOutput
		if err := r.do(ctx, func() error {
			var err error
			out, err = r.lf.ListPermissions(ctx, &lakeformation.ListPermissionsInput{
				Principal: &types.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(grant.Principal)},
				Resource:  resource,
			})
			return err
		}); err != nil {
			return nil, err
		}

		granted := make(map[types.Permission]bool)
		for _, p := range out.PrincipalResourcePermissions {
			for _, perm := range p.Permissions {
				granted[perm] = true
			}
		}
		var missing []types.Permission
		for _, perm := range grant.Permissions {
			if p := types.Permission(perm); !granted[p] {
				missing = append(missing, p)
			}
		}
		if len(missing) == 0 {
			continue
		}

		changes = append(changes, change{
			name: fmt.Sprintf("grant %s on %s", grant.Principal, grant.Resource),
			apply: func(ctx context.Context) error {
				return r.do(ctx, func() error {
					_, err := r.lf.GrantPermissions(ctx, &lakeformation.GrantPermissionsInput{
						Principal:   &types.DataLakePrincipal{DataLakePrincipalIdentifier: aws.String(grant.Principal)},
						Resource:    resource,
						Permissions: missing,
					})
					return err
				})
			},
		})
	}
	return changes, nil
}

func grantResource(grant lake.Grant, desired *lake.DesiredState, locationARN string) (*types.Resource, error) {
	switch grant.Resource {
	case "database":
		return &types.Resource{Database: &types.DatabaseResource{Name: aws.String(desired.Database.Name)}}, nil
	case "location":
		return &types.Resource{DataLocation: &types.DataLocationResource{ResourceArn: aws.String(locationARN)}}, nil
	default:
		return nil, fmt.Errorf("unknown grant resource %q", grant.Resource)
	}
}
