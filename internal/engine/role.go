package engine

import (
	"context"
	"encoding/json"
	"net/url"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// roleReconciler converges the processing IAM role: trust policy,
// managed policy attachments (delta only), inline policies, and tags.
// It publishes the role ARN for the crawler and firehose reconcilers.
type roleReconciler struct {
	iam    awsapi.IAMAPI
	policy *RetryPolicy
	dryRun bool
}

func (r *roleReconciler) Kind() lake.ResourceKind { return lake.KindRole }

func (r *roleReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error) {
	spec := desired.Role
	name := spec.Name

	var live *iam.GetRoleOutput
	err := r.do(ctx, func() error {
		var err error
		live, err = r.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(name)})
		return err
	})
	exists := true
	switch {
	case err != nil && isNotFound(err):
		exists = false
	case err != nil:
		return failedStatus(lake.KindRole, name, err), err
	default:
		deps.RoleARN = aws.ToString(live.Role.Arn)
	}
	if !exists && r.dryRun {
		// Nothing will be created, but dependents still need the ARN
		// the role would resolve to.
		deps.RoleARN = roleARN(deps.AccountID, name)
	}

	var changes []change
	if exists {
		changes, err = r.pendingChanges(ctx, spec, live, desired.Tags)
		if err != nil {
			return failedStatus(lake.KindRole, name, err), err
		}
	} else {
		changes = r.policyChanges(spec, nil, nil, desired.Tags)
	}

	create := func(ctx context.Context) error {
		logFor(lake.KindRole).Info("creating role", "role", name)
		return r.do(ctx, func() error {
			out, err := r.iam.CreateRole(ctx, &iam.CreateRoleInput{
				RoleName:                 aws.String(name),
				AssumeRolePolicyDocument: aws.String(trustPolicy(spec.TrustService)),
				Description:              aws.String("Managed by lakeforge"),
			})
			if err == nil {
				deps.RoleARN = aws.ToString(out.Role.Arn)
			}
			return err
		})
	}

	status, err := converge(ctx, lake.KindRole, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindRole, name, err), err
	}
	return status, nil
}

func (r *roleReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindRole, r.policy, fn)
}

// pendingChanges compares the live role against the declared role and
// returns only the deltas.
func (r *roleReconciler) pendingChanges(ctx context.Context, spec lake.RoleSpec, live *iam.GetRoleOutput, tags map[string]string) ([]change, error) {
	name := spec.Name
	var changes []change

	liveTrust, err := url.QueryUnescape(aws.ToString(live.Role.AssumeRolePolicyDocument))
	if err != nil || !jsonEqual(liveTrust, trustPolicy(spec.TrustService)) {
		changes = append(changes, r.trustChange(spec))
	}

	var attached *iam.ListAttachedRolePoliciesOutput
	if err := r.do(ctx, func() error {
		var err error
		attached, err = r.iam.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{RoleName: aws.String(name)})
		return err
	}); err != nil {
		return nil, err
	}
	liveARNs := make(map[string]bool, len(attached.AttachedPolicies))
	for _, p := range attached.AttachedPolicies {
		liveARNs[aws.ToString(p.PolicyArn)] = true
	}

	var inline *iam.ListRolePoliciesOutput
	if err := r.do(ctx, func() error {
		var err error
		inline, err = r.iam.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{RoleName: aws.String(name)})
		return err
	}); err != nil {
		return nil, err
	}
	liveInline := make(map[string]bool, len(inline.PolicyNames))
	for _, p := range inline.PolicyNames {
		liveInline[p] = true
	}

	// Inline documents that already match verbatim do not get re-put.
	sameInline := make(map[string]bool)
	for policyName, document := range spec.InlinePolicies {
		if !liveInline[policyName] {
			continue
		}
		var out *iam.GetRolePolicyOutput
		if err := r.do(ctx, func() error {
			var err error
			out, err = r.iam.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
				RoleName:   aws.String(name),
				PolicyName: aws.String(policyName),
			})
			return err
		}); err != nil {
			return nil, err
		}
		liveDoc, err := url.QueryUnescape(aws.ToString(out.PolicyDocument))
		if err == nil && jsonEqual(liveDoc, document) {
			sameInline[policyName] = true
		}
	}

	var liveTags *iam.ListRoleTagsOutput
	if err := r.do(ctx, func() error {
		var err error
		liveTags, err = r.iam.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: aws.String(name)})
		return err
	}); err != nil {
		return nil, err
	}
	liveTagMap := make(map[string]string, len(liveTags.Tags))
	for _, t := range liveTags.Tags {
		liveTagMap[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}

	changes = append(changes, r.policySetChanges(spec, liveARNs, liveInline, sameInline)...)
	if set, remove := tagDiff(liveTagMap, tags); set != nil || remove != nil {
		changes = append(changes, r.tagChange(name, set, remove))
	}
	return changes, nil
}

// policyChanges is the create-path variant: everything declared is a
// pending change.
func (r *roleReconciler) policyChanges(spec lake.RoleSpec, liveARNs, liveInline map[string]bool, tags map[string]string) []change {
	changes := r.policySetChanges(spec, liveARNs, liveInline, nil)
	if len(tags) > 0 {
		set, _ := tagDiff(nil, tags)
		changes = append(changes, r.tagChange(spec.Name, set, nil))
	}
	return changes
}

func (r *roleReconciler) policySetChanges(spec lake.RoleSpec, liveARNs, liveInline, sameInline map[string]bool) []change {
	name := spec.Name
	var changes []change

	for _, arn := range spec.ManagedPolicyARNs {
		if !liveARNs[arn] {
			arn := arn
			changes = append(changes, change{name: "attach " + arn, apply: func(ctx context.Context) error {
				return r.do(ctx, func() error {
					_, err := r.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
						RoleName:  aws.String(name),
						PolicyArn: aws.String(arn),
					})
					return err
				})
			}})
		}
	}
	declared := make(map[string]bool, len(spec.ManagedPolicyARNs))
	for _, arn := range spec.ManagedPolicyARNs {
		declared[arn] = true
	}
	for arn := range liveARNs {
		if !declared[arn] {
			arn := arn
			changes = append(changes, change{name: "detach " + arn, apply: func(ctx context.Context) error {
				return r.do(ctx, func() error {
					_, err := r.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
						RoleName:  aws.String(name),
						PolicyArn: aws.String(arn),
					})
					return err
				})
			}})
		}
	}

	for policyName, document := range spec.InlinePolicies {
		if sameInline[policyName] {
			continue
		}
		policyName, document := policyName, document
		changes = append(changes, change{name: "inline " + policyName, apply: func(ctx context.Context) error {
			return r.do(ctx, func() error {
				_, err := r.iam.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
					RoleName:       aws.String(name),
					PolicyName:     aws.String(policyName),
					PolicyDocument: aws.String(document),
				})
				return err
			})
		}})
	}
	for policyName := range liveInline {
		if _, ok := spec.InlinePolicies[policyName]; !ok {
			policyName := policyName
			changes = append(changes, change{name: "remove inline " + policyName, apply: func(ctx context.Context) error {
				return r.do(ctx, func() error {
					_, err := r.iam.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
						RoleName:   aws.String(name),
						PolicyName: aws.String(policyName),
					})
					return err
				})
			}})
		}
	}
	return changes
}

func (r *roleReconciler) trustChange(spec lake.RoleSpec) change {
	return change{name: "trust-policy", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.iam.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
				RoleName:       aws.String(spec.Name),
				PolicyDocument: aws.String(trustPolicy(spec.TrustService)),
			})
			return err
		})
	}}
}

func (r *roleReconciler) tagChange(name string, set map[string]string, remove []string) change {
	return change{name: "tags", apply: func(ctx context.Context) error {
		if len(set) > 0 {
			tags := make([]types.Tag, 0, len(set))
			for _, k := range sortedKeys(set) {
				tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(set[k])})
			}
			if err := r.do(ctx, func() error {
				_, err := r.iam.TagRole(ctx, &iam.TagRoleInput{RoleName: aws.String(name), Tags: tags})
				return err
			}); err != nil {
				return err
			}
		}
		if len(remove) > 0 {
			return r.do(ctx, func() error {
				_, err := r.iam.UntagRole(ctx, &iam.UntagRoleInput{RoleName: aws.String(name), TagKeys: remove})
				return err
			})
		}
		return nil
	}}
}

// trustPolicy renders the assume-role document for a service principal.
func trustPolicy(service string) string {
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []any{map[string]any{
			"Effect":    "Allow",
			"Principal": map[string]any{"Service": service},
			"Action":    "sts:AssumeRole",
		}},
	}
	out, _ := json.Marshal(doc)
	return string(out)
}

// jsonEqual compares two policy documents structurally, ignoring key
// order and whitespace.
func jsonEqual(a, b string) bool {
	var av, bv any
	if err := json.Unmarshal([]byte(a), &av); err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(b), &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
