package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
	"github.com/lakeforge-io/lakeforge/internal/lake"
)

const (
	parquetInputFormat  = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	parquetOutputFormat = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"
	parquetSerde        = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
)

// tableReconciler seeds the transactional catalog table in the analytics
// zone. The open table format is recorded in the table parameters so
// query engines pick the right planner.
type tableReconciler struct {
	glue   awsapi.GlueAPI
	policy *RetryPolicy
	dryRun bool
}

func (r *tableReconciler) Kind() lake.ResourceKind { return lake.KindTable }

func (r *tableReconciler) Reconcile(ctx context.Context, desired *lake.DesiredState, _ *Deps) (lake.ResourceStatus, error) {
	spec := desired.Table
	name := spec.Name
	db := desired.Database.Name
	location := tableLocation(desired)

	var live *glue.GetTableOutput
	err := r.do(ctx, func() error {
		var err error
		live, err = r.glue.GetTable(ctx, &glue.GetTableInput{
			DatabaseName: aws.String(db),
			Name:         aws.String(name),
		})
		return err
	})
	exists := true
	switch {
	case err != nil && isNotFound(err):
		exists = false
	case err != nil:
		return failedStatus(lake.KindTable, name, err), err
	}

	var changes []change
	if exists && r.definitionDrifted(live.Table, spec, location) {
		changes = append(changes, r.updateChange(db, spec, location))
	}

	create := func(ctx context.Context) error {
		logFor(lake.KindTable).Info("creating table", "table", name, "format", spec.Format)
		return r.do(ctx, func() error {
			_, err := r.glue.CreateTable(ctx, &glue.CreateTableInput{
				DatabaseName: aws.String(db),
				TableInput:   tableInput(spec, location),
			})
			return err
		})
	}

	status, err := converge(ctx, lake.KindTable, name, r.dryRun, exists, create, changes)
	if err != nil {
		return failedStatus(lake.KindTable, name, err), err
	}
	return status, nil
}

func (r *tableReconciler) do(ctx context.Context, fn func() error) error {
	return execute(ctx, lake.KindTable, r.policy, fn)
}

func (r *tableReconciler) definitionDrifted(live *types.Table, spec lake.TableSpec, location string) bool {
	if live == nil {
		return true
	}
	if live.Parameters["table_type"] != formatParameter(spec.Format) {
		return true
	}
	if live.StorageDescriptor == nil || aws.ToString(live.StorageDescriptor.Location) != location {
		return true
	}
	return false
}

func (r *tableReconciler) updateChange(db string, spec lake.TableSpec, location string) change {
	return change{name: "definition", apply: func(ctx context.Context) error {
		return r.do(ctx, func() error {
			_, err := r.glue.UpdateTable(ctx, &glue.UpdateTableInput{
				DatabaseName: aws.String(db),
				TableInput:   tableInput(spec, location),
			})
			return err
		})
	}}
}

func tableInput(spec lake.TableSpec, location string) *types.TableInput {
	return &types.TableInput{
		Name:      aws.String(spec.Name),
		TableType: aws.String("EXTERNAL_TABLE"),
		Parameters: map[string]string{
			"table_type":     formatParameter(spec.Format),
			"classification": "parquet",
			"EXTERNAL":       "TRUE",
		},
		StorageDescriptor: &types.StorageDescriptor{
			Location:     aws.String(location),
			InputFormat:  aws.String(parquetInputFormat),
			OutputFormat: aws.String(parquetOutputFormat),
			SerdeInfo: &types.SerDeInfo{
				SerializationLibrary: aws.String(parquetSerde),
			},
		},
	}
}

// formatParameter maps the declared open table format to the catalog
// parameter value query engines expect.
func formatParameter(format string) string {
	return strings.ToUpper(format)
}

func tableLocation(desired *lake.DesiredState) string {
	return fmt.Sprintf("s3://%s/%s%s/", desired.Bucket.Name, desired.Prefixes.Analytics, desired.Table.Name)
}
