package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/firehose/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// firehoseReconciler converges the direct-put delivery stream feeding
// the raw zone. Destination updates go through UpdateDestination with
// the current version and destination IDs from the describe call.
type firehoseReconciler struct {
	firehose awsapi.FirehoseAPI
	iam      awsapi.IAMAPI
	policy   *RetryPolicy
	dryRun   bool
}

func (r *firehoseReconciler) Kind() lake.ResourceKind { return lake.KindFirehose }

func (r *firehoseReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error) {
	spec := desired.Firehose
	name := spec.StreamName

	roleARN, err := r.resolveRoleARN(ctx, desired, deps)
	if err != nil {
		return failedStatus(lake.KindFirehose, name, err), err
	}

	var live *firehose.DescribeDeliveryStreamOutput
	err = r.do(ctx, func() error {
		var err error
		live, err = r.firehose.DescribeDeliveryStream(ctx, &firehose.DescribeDeliveryStreamInput{
			DeliveryStreamName: aws.String(name),
		})
		return err
	})
	exists := true
	switch {
	case err != nil && isNotFound(err):
		exists = false
	case err != nil:
		return failedStatus(lake.KindFirehose, name, err), err
	}

	var changes []change
	if exists {
		desc := live.DeliveryStreamDescription
		if r.destinationDrifted(desc, desired, roleARN) {
			changes = append(changes, r.destinationChange(desc, desired, roleARN))
		}
		tagChange, err := r.pendingTags(ctx, name, desired.Tags)
		if err != nil {
			return failedStatus(lake.KindFirehose, name, err), err
		}
		if tagChange != nil {
			changes = append(changes, *tagChange)
		}
	}

	create := func(ctx context.Context) error {
		logFor(lake.KindFirehose).Info("creating delivery stream", "stream", name)
		tags := make([]types.Tag, 0, len(desired.Tags))
		for _, k := range sortedKeys(desired.Tags) {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(desired.Tags[k])})
		}
		return r.do(ctx, func() error {
			_, err := r.firehose.CreateDeliveryStream(ctx, &firehose.CreateDeliveryStreamInput{
				DeliveryStreamName: aws.String(name),
				DeliveryStreamType: types.DeliveryStreamTypeDirectPut,
				ExtendedS3DestinationConfiguration: &types.ExtendedS3DestinationConfiguration{
					RoleARN:   aws.String(roleARN),
					BucketARN: aws.String(bucketARN(desired.Bucket.Name)),
					Prefix:    aws.String(streamPrefix(desired)),
					BufferingHints: &types.BufferingHints{
						SizeInMBs:         aws.Int32(spec.BufferingSizeMiB),
						IntervalInSeconds: aws.Int32(spec.BufferingInterval),
					},
					CompressionFormat: types.CompressionFormat(spec.Compression),
				},
				Tags: tags,
			})
			return err
		})
	}

	status, err := converge(ctx, lake.KindFirehose, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindFirehose, name, err), err
	}
	return status, nil
}

func (r *firehoseReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindFirehose, r.policy, fn)
}

// resolveRoleARN prefers the ARN published by the role reconciler in
// this run and falls back to looking the declared role up by name.
func (r *firehoseReconciler) resolveRoleARN(ctx context.Context, desired *lake.DesiredState, deps *Deps) (string, error) {
	if deps.RoleARN != "" {
		return deps.RoleARN, nil
	}
	if !desired.Role.Enabled || desired.Role.Name == "" {
		return "", fmt.Errorf("delivery stream %q requires the processing role, which is not declared", desired.Firehose.StreamName)
	}
	var out *iam.GetRoleOutput
	if err := r.do(ctx, func() error {
		var err error
		out, err = r.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(desired.Role.Name)})
		return err
	}); err != nil {
		return "", err
	}
	return aws.ToString(out.Role.Arn), nil
}

func (r *firehoseReconciler) destinationDrifted(desc *types.DeliveryStreamDescription, desired *lake.DesiredState, roleARN string) bool {
	if desc == nil || len(desc.Destinations) == 0 {
		return true
	}
	s3dest := desc.Destinations[0].ExtendedS3DestinationDescription
	if s3dest == nil {
		return true
	}
	spec := desired.Firehose
	if aws.ToString(s3dest.RoleARN) != roleARN ||
		aws.ToString(s3dest.BucketARN) != bucketARN(desired.Bucket.Name) ||
		aws.ToString(s3dest.Prefix) != streamPrefix(desired) ||
		s3dest.CompressionFormat != types.CompressionFormat(spec.Compression) {
		return true
	}
	hints := s3dest.BufferingHints
	if hints == nil ||
		aws.ToInt32(hints.SizeInMBs) != spec.BufferingSizeMiB ||
		aws.ToInt32(hints.IntervalInSeconds) != spec.BufferingInterval {
		return true
	}
	return false
}

func (r *firehoseReconciler) destinationChange(desc *types.DeliveryStreamDescription, desired *lake.DesiredState, roleARN string) change {
	spec := desired.Firehose
	versionID := aws.ToString(desc.VersionId)
	destinationID := ""
	if len(desc.Destinations) > 0 {
		destinationID = aws.ToString(desc.Destinations[0].DestinationId)
	}
	return change{name: "destination", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.firehose.UpdateDestination(ctx, &firehose.UpdateDestinationInput{
				DeliveryStreamName:             aws.String(spec.StreamName),
				CurrentDeliveryStreamVersionId: aws.String(versionID),
				DestinationId:                  aws.String(destinationID),
				ExtendedS3DestinationUpdate: &types.ExtendedS3DestinationUpdate{
					RoleARN:   aws.String(roleARN),
					BucketARN: aws.String(bucketARN(desired.Bucket.Name)),
					Prefix:    aws.String(streamPrefix(desired)),
					BufferingHints: &types.BufferingHints{
						SizeInMBs:         aws.Int32(spec.BufferingSizeMiB),
						IntervalInSeconds: aws.Int32(spec.BufferingInterval),
					},
					CompressionFormat: types.CompressionFormat(spec.Compression),
				},
			})
			return err
		})
	}}
}

func (r *firehoseReconciler) pendingTags(ctx context.Context, name string, want map[string]string) (*change, error) {
	var out *firehose.ListTagsForDeliveryStreamOutput
	if err := r.do(ctx, func() error {
		var err error
		out, err = r.firehose.ListTagsForDeliveryStream(ctx, &firehose.ListTagsForDeliveryStreamInput{
			DeliveryStreamName: aws.String(name),
		})
		return err
	}); err != nil {
		return nil, err
	}
	live := make(map[string]string, len(out.Tags))
	for _, t := range out.Tags {
		live[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	set, remove := tagDiff(live, want)
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
				_, err := r.firehose.TagDeliveryStream(ctx, &firehose.TagDeliveryStreamInput{
					DeliveryStreamName: aws.String(name),
					Tags:               tags,
				})
				return err
			}); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			return r.do(ctx, func() error {
				_, err := r.firehose.UntagDeliveryStream(ctx, &firehose.UntagDeliveryStreamInput{
					DeliveryStreamName: aws.String(name),
					TagKeys:            remove,
				})
				return err
			})
		}
		return nil
	}}, nil
}

// streamPrefix resolves the destination prefix: the declared prefix,
// or the raw zone.
func streamPrefix(desired *lake.DesiredState) string {
	if desired.Firehose.Prefix != "" {
		return desired.Firehose.Prefix
	}
	return desired.Prefixes.Raw
}
