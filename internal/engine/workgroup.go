package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// workgroupReconciler converges the Athena workgroup. Query results land
// under a dedicated prefix in the analytics zone and workgroup settings
// are enforced so clients cannot override the result location.
type workgroupReconciler struct {
	athena awsapi.AthenaAPI
	policy *RetryPolicy
	dryRun bool
}

func (r *workgroupReconciler) Kind() lake.ResourceKind { return lake.KindWorkgroup }

func (r *workgroupReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error) {
	name := desired.Workgroup.Name
	output := resultLocation(desired)

	var live *athena.GetWorkGroupOutput
	err := r.do(ctx, func() error {
		var err error
		live, err = r.athena.GetWorkGroup(ctx, &athena.GetWorkGroupInput{WorkGroup: aws.String(name)})
		return err
	})
	exists := true
	switch {
	case err != nil && isWorkgroupNotFound(err):
		exists = false
	case err != nil:
		return failedStatus(lake.KindWorkgroup, name, err), err
	}

	var changes []change
	if exists {
		if r.configDrifted(live.WorkGroup, desired, output) {
			changes = append(changes, r.configChange(desired, output))
		}
		tagChange, err := r.pendingTags(ctx, desired, deps)
		if err != nil {
			return failedStatus(lake.KindWorkgroup, name, err), err
		}
		if tagChange != nil {
			changes = append(changes, *tagChange)
		}
	}

	create := func(ctx context.Context) error {
		logFor(lake.KindWorkgroup).Info("creating workgroup", "workgroup", name, "output", output)
		tags := make([]types.Tag, 0, len(desired.Tags))
		for _, k := range sortedKeys(desired.Tags) {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(desired.Tags[k])})
		}
		return r.do(ctx, func() error {
			_, err := r.athena.CreateWorkGroup(ctx, &athena.CreateWorkGroupInput{
				Name: aws.String(name),
				Configuration: &types.WorkGroupConfiguration{
					EnforceWorkGroupConfiguration: aws.Bool(true),
					ResultConfiguration: &types.ResultConfiguration{
						OutputLocation:          aws.String(output),
						EncryptionConfiguration: r.encryption(desired),
					},
				},
				Tags: tags,
			})
			return err
		})
	}

	status, err := converge(ctx, lake.KindWorkgroup, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindWorkgroup, name, err), err
	}
	return status, nil
}

func (r *workgroupReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindWorkgroup, r.policy, fn)
}

func (r *workgroupReconciler) encryption(desired *lake.DesiredState) *types.EncryptionConfiguration {
	if desired.Bucket.KMSKeyID != "" {
		return &types.EncryptionConfiguration{
			EncryptionOption: types.EncryptionOptionSseKms,
			KmsKey:           aws.String(desired.Bucket.KMSKeyID),
		}
	}
	return &types.EncryptionConfiguration{EncryptionOption: types.EncryptionOptionSseS3}
}

func (r *workgroupReconciler) configDrifted(live *types.WorkGroup, desired *lake.DesiredState, output string) bool {
	if live == nil || live.Configuration == nil {
		return true
	}
	cfg := live.Configuration
	if !aws.ToBool(cfg.EnforceWorkGroupConfiguration) {
		return true
	}
	rc := cfg.ResultConfiguration
	if rc == nil || aws.ToString(rc.OutputLocation) != output {
		return true
	}
	want := r.encryption(desired)
	if rc.EncryptionConfiguration == nil ||
		rc.EncryptionConfiguration.EncryptionOption != want.EncryptionOption ||
		aws.ToString(rc.EncryptionConfiguration.KmsKey) != aws.ToString(want.KmsKey) {
		return true
	}
	return false
}

func (r *workgroupReconciler) configChange(desired *lake.DesiredState, output string) change {
	return change{name: "configuration", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.athena.UpdateWorkGroup(ctx, &athena.UpdateWorkGroupInput{
				WorkGroup: aws.String(desired.Workgroup.Name),
				ConfigurationUpdates: &types.WorkGroupConfigurationUpdates{
					EnforceWorkGroupConfiguration: aws.Bool(true),
					ResultConfigurationUpdates: &types.ResultConfigurationUpdates{
						OutputLocation:          aws.String(output),
						EncryptionConfiguration: r.encryption(desired),
					},
				},
			})
			return err
		})
	}}
}

func (r *workgroupReconciler) pendingTags(ctx context.Context, desired *lake.DesiredState, deps *Deps) (*change, error) {
	arn := athenaWorkgroupARN(desired.Region, deps.AccountID, desired.Workgroup.Name)
	var out *athena.ListTagsForResourceOutput
	if err := r.do(ctx, func() error {
		var err error
		out, err = r.athena.ListTagsForResource(ctx, &athena.ListTagsForResourceInput{ResourceARN: aws.String(arn)})
		return err
	}); err != nil {
		return nil, err
	}
	live := make(map[string]string, len(out.Tags))
	for _, t := range out.Tags {
		live[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	set, remove := tagDiff(live, desired.Tags)
	if set == nil && remove == nil {
		return nil, nil
	}
	return &change{name: "tags", apply: func(ctx context.Context) error {
		if len(set) > 0 {
			tags := make([]types.Tag, 0, len(set))
			for _, k := range sortedKeys(set) {
				tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(set[k])})
			}
			if err := r.do(ctx, func() error {
				_, err := r.athena.TagResource(ctx, &athena.TagResourceInput{ResourceARN: aws.String(arn), Tags: tags})
				return err
			}); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			return r.do(ctx, func() error {
				_, err := r.athena.UntagResource(ctx, &athena.UntagResourceInput{ResourceARN: aws.String(arn), TagKeys: remove})
				return err
			})
		}
		return nil
	}}, nil
}

// isWorkgroupNotFound recognizes the Athena idiom for a missing
// workgroup: GetWorkGroup fails with InvalidRequestException whose
// message mentions the workgroup is not found.
func isWorkgroupNotFound(err error) bool {
	if isNotFound(err) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRequestException" {
		return strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "not found")
	}
	return false
}

func resultLocation(desired *lake.DesiredState) string {
	return fmt.Sprintf("s3://%s/%sathena-results/", desired.Bucket.Name, desired.Prefixes.Analytics)
}
