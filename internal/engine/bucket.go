package engine

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// bucketReconciler converges the data lake S3 bucket: existence,
// versioning, public-access block, optional SSE-KMS encryption, access
// logging, the tag set, and a zero-byte marker per declared prefix.
type bucketReconciler struct {
	s3     awsapi.S3API
	policy *RetryPolicy
	dryRun bool
}

func (r *bucketReconciler) Kind() lake.ResourceKind { return lake.KindBucket }

func (r *bucketReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, _ *Deps) (lake.ResourceStatus, error) {
	name := desired.Bucket.Name

	exists, err := r.exists(ctx, name)
	if err != nil {
		return failedStatus(lake.KindBucket, name, err), err
	}

	var changes []change
	if exists {
		changes, err = r.pendingChanges(ctx, desired)
		if err != nil {
			return failedStatus(lake.KindBucket, name, err), err
		}
	} else {
		changes = r.allChanges(desired)
	}

	create := func(ctx context.Context) error {
		input := &s3.CreateBucketInput{Bucket: aws.String(name)}
		if desired.Region != "us-east-1" {
			input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(desired.Region),
			}
		}
		logFor(lake.KindBucket).Info("creating bucket", "bucket", name)
		return r.do(ctx, func() error {
			_, err := r.s3.CreateBucket(ctx, input)
			return err
		})
	}

	status, err := converge(ctx, lake.KindBucket, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindBucket, name, err), err
	}
	return status, nil
}

func (r *bucketReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindBucket, r.policy, fn)
}

func (r *bucketReconciler) exists(ctx context.Context, name string) (bool, error) {
	err := r.do(ctx, func() error {
		_, err := r.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
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

// allChanges returns every configuration step; applied after creation.
func (r *bucketReconciler) allChanges(desired *lake.DesiredState) []change {
	changes := []change{
		r.versioningChange(desired.Bucket.Name),
		r.publicAccessChange(desired.Bucket.Name),
	}
	if desired.Bucket.KMSKeyID != "" {
		changes = append(changes, r.encryptionChange(desired.Bucket))
	}
	if desired.Bucket.LogPrefix != "" {
		changes = append(changes, r.loggingChange(desired.Bucket))
	}
	if len(desired.Tags) > 0 {
		changes = append(changes, r.taggingChange(desired.Bucket.Name, desired.Tags))
	}
	for _, prefix := range desired.Prefixes.All() {
		if prefix != "" {
			changes = append(changes, r.markerChange(desired.Bucket.Name, prefix))
		}
	}
	return changes
}

// pendingChanges describes each live attribute and keeps only the
// steps whose live value differs from the desired one.
func (r *bucketReconciler) pendingChanges(ctx context.Context, desired *lake.DesiredState) ([]change, error) {
	name := desired.Bucket.Name
	var changes []change

	var versioning *s3.GetBucketVersioningOutput
	if err := r.do(ctx, func() error {
		var err error
		versioning, err = r.s3.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(name)})
		return err
	}); err != nil {
		return nil, err
	}
	if versioning.Status != types.BucketVersioningStatusEnabled {
		changes = append(changes, r.versioningChange(name))
	}

	var pab *s3.GetPublicAccessBlockOutput
	err := r.do(ctx, func() error {
		var err error
		pab, err = r.s3.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(name)})
		return err
	})
	switch {
	case err != nil && isNotFound(err):
		changes = append(changes, r.publicAccessChange(name))
	case err != nil:
		return nil, err
	case !publicAccessBlocked(pab.PublicAccessBlockConfiguration):
		changes = append(changes, r.publicAccessChange(name))
	}

	if desired.Bucket.KMSKeyID != "" {
		var enc *s3.GetBucketEncryptionOutput
		err := r.do(ctx, func() error {
			var err error
			enc, err = r.s3.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: aws.String(name)})
			return err
		})
		switch {
		case err != nil && isNotFound(err):
			changes = append(changes, r.encryptionChange(desired.Bucket))
		case err != nil:
			return nil, err
		case !kmsEncrypted(enc.ServerSideEncryptionConfiguration, desired.Bucket.KMSKeyID):
			changes = append(changes, r.encryptionChange(desired.Bucket))
		}
	}

	if desired.Bucket.LogPrefix != "" {
		var logging *s3.GetBucketLoggingOutput
		if err := r.do(ctx, func() error {
			var err error
			logging, err = r.s3.GetBucketLogging(ctx, &s3.GetBucketLoggingInput{Bucket: aws.String(name)})
			return err
		}); err != nil {
			return nil, err
		}
		live := logging.LoggingEnabled
		if live == nil || aws.ToString(live.TargetBucket) != name || aws.ToString(live.TargetPrefix) != desired.Bucket.LogPrefix {
			changes = append(changes, r.loggingChange(desired.Bucket))
		}
	}

	if len(desired.Tags) > 0 {
		var tagging *s3.GetBucketTaggingOutput
		err := r.do(ctx, func() error {
			var err error
			tagging, err = r.s3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)})
			return err
		})
		live := map[string]string{}
		switch {
		case err != nil && isNotFound(err):
			// no tag set yet
		case err != nil:
			return nil, err
		default:
			for _, t := range tagging.TagSet {
				live[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
		}
		if set, remove := tagDiff(live, desired.Tags); set != nil || remove != nil {
			changes = append(changes, r.taggingChange(name, desired.Tags))
		}
	}

	for _, prefix := range desired.Prefixes.All() {
		if prefix == "" {
			continue
		}
		err := r.do(ctx, func() error {
			_, err := r.s3.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(name),
				Key:    aws.String(prefix),
			})
			return err
		})
		switch {
		case err != nil && isNotFound(err):
			changes = append(changes, r.markerChange(name, prefix))
		case err != nil:
			return nil, err
		}
	}

	return changes, nil
}

func (r *bucketReconciler) versioningChange(name string) change {
	return change{name: "versioning", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.s3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
				Bucket: aws.String(name),
				VersioningConfiguration: &types.VersioningConfiguration{
					Status: types.BucketVersioningStatusEnabled,
				},
			})
			return err
		})
	}}
}

func (r *bucketReconciler) publicAccessChange(name string) change {
	return change{name: "public-access-block", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.s3.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
				Bucket: aws.String(name),
				PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
					BlockPublicAcls:       aws.Bool(true),
					IgnorePublicAcls:      aws.Bool(true),
					BlockPublicPolicy:     aws.Bool(true),
					RestrictPublicBuckets: aws.Bool(true),
				},
			})
			return err
		})
	}}
}

func (r *bucketReconciler) encryptionChange(spec lake.BucketSpec) change {
	return change{name: "sse-kms", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.s3.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
				Bucket: aws.String(spec.Name),
				ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
					Rules: []types.ServerSideEncryptionRule{{
						ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{
							SSEAlgorithm:   types.ServerSideEncryptionAwsKms,
							KMSMasterKeyID: aws.String(spec.KMSKeyID),
						},
					}},
				},
			})
			return err
		})
	}}
}

func (r *bucketReconciler) loggingChange(spec lake.BucketSpec) change {
	return change{name: "access-logging", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.s3.PutBucketLogging(ctx, &s3.PutBucketLoggingInput{
				Bucket: aws.String(spec.Name),
				BucketLoggingStatus: &types.BucketLoggingStatus{
					LoggingEnabled: &types.LoggingEnabled{
						TargetBucket: aws.String(spec.Name),
						TargetPrefix: aws.String(spec.LogPrefix),
					},
				},
			})
			return err
		})
	}}
}

func (r *bucketReconciler) taggingChange(name string, tags map[string]string) change {
	return change{name: "tags", apply: func(ctx context.Context) error {
		tagSet := make([]types.Tag, 0, len(tags))
		for _, k := range sortedKeys(tags) {
			tagSet = append(tagSet, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
		}
		return r.do(ctx, func() error {
			_, err := r.s3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
				Bucket:  aws.String(name),
				Tagging: &types.Tagging{TagSet: tagSet},
			})
			return err
		})
	}}
}

func (r *bucketReconciler) markerChange(name, prefix string) change {
	key := strings.TrimSuffix(prefix, "/") + "/"
	return change{name: "prefix " + key, apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.s3.PutObject(ctx, &s3.PutObjectInput{
				Bucket: aws.String(name),
				Key:    aws.String(key),
			})
			return err
		})
	}}
}

func publicAccessBlocked(cfg *types.PublicAccessBlockConfiguration) bool {
	if cfg == nil {
		return false
	}
	return aws.ToBool(cfg.BlockPublicAcls) && aws.ToBool(cfg.IgnorePublicAcls) &&
		aws.ToBool(cfg.BlockPublicPolicy) && aws.ToBool(cfg.RestrictPublicBuckets)
}

func kmsEncrypted(cfg *types.ServerSideEncryptionConfiguration, keyID string) bool {
	if cfg == nil {
		return false
	}
	for _, rule := range cfg.Rules {
		def := rule.ApplyServerSideEncryptionByDefault
		if def != nil && def.SSEAlgorithm == types.ServerSideEncryptionAwsKms &&
			aws.ToString(def.KMSMasterKeyID) == keyID {
			return true
		}
	}
	return false
}
