package engine

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// endpointsReconciler converges the private network endpoint set: a
// gateway endpoint for S3 and interface endpoints for Glue and Athena.
// Endpoint attachments are immutable after creation; existing endpoints
// only have their tags reconciled.
type endpointsReconciler struct {
	ec2    awsapi.EC2API
	policy *RetryPolicy
	dryRun bool
}

func (r *endpointsReconciler) Kind() lake.ResourceKind { return lake.KindVpcEndpoints }

type endpointSpec struct {
	service  string
	kind     types.VpcEndpointType
	describe string // short name used in logs and change names
}

func (r *endpointsReconciler) specs(region string) []endpointSpec {
	return []endpointSpec{
		{service: fmt.Sprintf("com.amazonaws.%s.s3", region), kind: types.VpcEndpointTypeGateway, describe: "s3"},
		{service: fmt.Sprintf("com.amazonaws.%s.glue", region), kind: types.VpcEndpointTypeInterface, describe: "glue"},
		{service: fmt.Sprintf("com.amazonaws.%s.athena", region), kind: types.VpcEndpointTypeInterface, describe: "athena"},
	}
}

func (r *endpointsReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, _ *Deps) (lake.ResourceStatus, error) {
	spec := desired.VpcEndpoints
	name := spec.VpcID

	type liveEndpoint struct {
		id   string
		tags map[string]string
	}
	live := make(map[string]liveEndpoint)
	for _, es := range r.specs(desired.Region) {
		var out *ec2.DescribeVpcEndpointsOutput
		if err := r.do(ctx, func() error {
			var err error
			out, err = r.ec2.DescribeVpcEndpoints(ctx, &ec2.DescribeVpcEndpointsInput{
				Filters: []types.Filter{
					{Name: aws.String("vpc-id"), Values: []string{spec.VpcID}},
					{Name: aws.String("service-name"), Values: []string{es.service}},
				},
			})
			return err
		}); err != nil {
			return failedStatus(lake.KindVpcEndpoints, name, err), err
		}
		for _, ep := range out.VpcEndpoints {
			if ep.State == types.StateDeleted || ep.State == types.StateDeleting {
				continue
			}
			tags := make(map[string]string, len(ep.Tags))
			for _, t := range ep.Tags {
				tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
			live[es.service] = liveEndpoint{id: aws.ToString(ep.VpcEndpointId), tags: tags}
			break
		}
	}

	var missing []endpointSpec
	var changes []change
	for _, es := range r.specs(desired.Region) {
		ep, ok := live[es.service]
		if !ok {
			missing = append(missing, es)
			continue
		}
		if set, remove := tagDiff(ep.tags, desired.Tags); set != nil || remove != nil {
			changes = append(changes, r.tagChange(es.describe, ep.id, set, remove))
		}
	}
	exists := len(missing) == 0

	create := func(ctx context.Context) error {
		for _, es := range missing {
			logFor(lake.KindVpcEndpoints).Info("creating vpc endpoint", "service", es.service, "type", es.kind)
			input := &ec2.CreateVpcEndpointInput{
				VpcId:           aws.String(spec.VpcID),
				ServiceName:     aws.String(es.service),
				VpcEndpointType: es.kind,
			}
			if len(desired.Tags) > 0 {
				tags := make([]types.Tag, 0, len(desired.Tags))
				for _, k := range sortedKeys(desired.Tags) {
					tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(desired.Tags[k])})
				}
				input.TagSpecifications = []types.TagSpecification{{
					ResourceType: types.ResourceTypeVpcEndpoint,
					Tags:         tags,
				}}
			}
			if es.kind == types.VpcEndpointTypeGateway {
				input.RouteTableIds = spec.RouteTableIDs
			} else {
				input.SubnetIds = spec.SubnetIDs
				input.SecurityGroupIds = spec.SecurityGroupIDs
				input.PrivateDnsEnabled = aws.Bool(true)
			}
			if err := r.do(ctx, func() error {
				_, err := r.ec2.CreateVpcEndpoint(ctx, input)
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	}

	status, err := converge(ctx, lake.KindVpcEndpoints, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindVpcEndpoints, name, err), err
	}
	return status, nil
}

func (r *endpointsReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindVpcEndpoints, r.policy, fn)
}

func (r *endpointsReconciler) tagChange(describe, endpointID string, set map[string]string, remove []string) change {
	return change{name: "tags " + describe, apply: func(ctx context.Context) error {
		if len(set) > 0 {
			tags := make([]types.Tag, 0, len(set))
			for _, k := range sortedKeys(set) {
				tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(set[k])})
			}
			if err := r.do(ctx, func() error {
				_, err := r.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
					Resources: []string{endpointID},
					Tags:      tags,
				})
				return err
			}); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			tags := make([]types.Tag, 0, len(remove))
			for _, k := range remove {
				tags = append(tags, types.Tag{Key: aws.String(k)})
			}
			return r.do(ctx, func() error {
				_, err := r.ec2.DeleteTags(ctx, &ec2.DeleteTagsInput{
					Resources: []string{endpointID},
					Tags:      tags,
				})
				return err
			})
		}
		return nil
	}}
}
