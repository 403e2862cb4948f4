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

// crawlerReconciler converges the Glue crawler over the raw zone. The
// crawler runs as the processing role published by the role reconciler.
type crawlerReconciler struct {
	glue   awsapi.GlueAPI
	policy *RetryPolicy
	dryRun bool
}

func (r *crawlerReconciler) Kind() lake.ResourceKind { return lake.KindCrawler }

func (r *crawlerReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, deps *Deps) (lake.ResourceStatus, error) {
	spec := desired.Crawler
	name := spec.Name
	target := crawlerTarget(desired)
	roleARN := deps.RoleARN
	if roleARN == "" {
		err := fmt.Errorf("crawler %q requires the processing role, which is not available", name)
		return failedStatus(lake.KindCrawler, name, err), err
	}

	var live *glue.GetCrawlerOutput
	err := r.do(ctx, func() error {
		var err error
		live, err = r.glue.GetCrawler(ctx, &glue.GetCrawlerInput{Name: aws.String(name)})
		return err
	})
	exists := true
	switch {
	case err != nil && isNotFound(err):
		exists = false
	case err != nil:
		return failedStatus(lake.KindCrawler, name, err), err
	}

	var changes []change
	if exists {
		if r.definitionDrifted(live.Crawler, desired, target, roleARN) {
			changes = append(changes, r.updateChange(desired, target, roleARN))
		}
		arn := glueCrawlerARN(desired.Region, deps.AccountID, name)
		tagChange, err := glueTagChange(ctx, r.glue, lake.KindCrawler, r.policy, arn, desired.Tags)
		if err != nil {
			return failedStatus(lake.KindCrawler, name, err), err
		}
		if tagChange != nil {
			changes = append(changes, *tagChange)
		}
	}

	create := func(ctx context.Context) error {
		logFor(lake.KindCrawler).Info("creating crawler", "crawler", name, "target", target)
		return r.do(ctx, func() error {
			_, err := r.glue.CreateCrawler(ctx, &glue.CreateCrawlerInput{
				Name:         aws.String(name),
				Role:         aws.String(roleARN),
				DatabaseName: aws.String(desired.Database.Name),
				Targets: &types.CrawlerTargets{
					S3Targets: []types.S3Target{{Path: aws.String(target)}},
				},
				Schedule: scheduleOrNil(spec.Schedule),
				Tags:     desired.Tags,
			})
			return err
		})
	}

	status, err := converge(ctx, lake.KindCrawler, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindCrawler, name, err), err
	}
	return status, nil
}

func (r *crawlerReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindCrawler, r.policy, fn)
}

func (r *crawlerReconciler) definitionDrifted(live *types.Crawler, desired *lake.DesiredState, target, roleARN string) bool {
	if live == nil {
		return true
	}
	if aws.ToString(live.Role) != roleARN || aws.ToString(live.DatabaseName) != desired.Database.Name {
		return true
	}
	liveSchedule := ""
	if live.Schedule != nil {
		liveSchedule = aws.ToString(live.Schedule.ScheduleExpression)
	}
	if liveSchedule != desired.Crawler.Schedule {
		return true
	}
	if live.Targets == nil || len(live.Targets.S3Targets) != 1 ||
		aws.ToString(live.Targets.S3Targets[0].Path) != target {
		return true
	}
	return false
}

func (r *crawlerReconciler) updateChange(desired *lake.DesiredState, target, roleARN string) change {
	return change{name: "definition", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.glue.UpdateCrawler(ctx, &glue.UpdateCrawlerInput{
				Name:         aws.String(desired.Crawler.Name),
				Role:         aws.String(roleARN),
				DatabaseName: aws.String(desired.Database.Name),
				Targets: &types.CrawlerTargets{
					S3Targets: []types.S3Target{{Path: aws.String(target)}},
				},
				Schedule: scheduleOrNil(desired.Crawler.Schedule),
			})
			return err
		})
	}}
}

// crawlerTarget resolves the crawl path: the declared target, or the
// raw zone of the lake bucket.
func crawlerTarget(desired *lake.DesiredState) string {
	if desired.Crawler.TargetPath != "" {
		return desired.Crawler.TargetPath
	}
	return fmt.Sprintf("s3://%s/%s", desired.Bucket.Name, desired.Prefixes.Raw)
}

func scheduleOrNil(expr string) *string {
	if expr == "" {
		return nil
	}
	return aws.String(expr)
}
