package lake

// ResourceKind identifies one reconciled resource type.
type ResourceKind string

const (
	KindVpcEndpoints ResourceKind = "vpc-endpoints"
	KindBucket       ResourceKind = "bucket"
	KindRole         ResourceKind = "iam-role"
	KindFirehose     ResourceKind = "firehose-stream"
	KindDatabase     ResourceKind = "glue-database"
	KindCrawler      ResourceKind = "glue-crawler"
	KindWorkgroup    ResourceKind = "athena-workgroup"
	KindTable        ResourceKind = "transactional-table"
	KindGrants       ResourceKind = "lakeformation-grants"
)

// DeployOrder is the fixed convergence order. Endpoints come first so
// later API calls can traverse them; the role precedes the stream and
// crawler that assume it; the bucket precedes the database that points
// at it.
var DeployOrder = []ResourceKind{
	KindVpcEndpoints,
	KindBucket,
	KindRole,
	KindFirehose,
	KindDatabase,
	KindCrawler,
	KindWorkgroup,
	KindTable,
	KindGrants,
}

// RequiredKinds are the kinds whose failure aborts a run. Everything
// else is optional: failures are recorded and the run continues.
var RequiredKinds = map[ResourceKind]bool{
	KindBucket:   true,
	KindDatabase: true,
}

// Action is the outcome of reconciling one resource kind.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionDryRun  Action = "dry-run"
	ActionFailed  Action = "failed"
)

// ResourceStatus is the per-kind outcome reported in a summary.
// Planned carries the action a dry run would have taken.
type ResourceStatus struct {
	Kind    ResourceKind `json:"kind"`
	Name    string       `json:"name"`
	Action  Action       `json:"action"`
	Planned Action       `json:"planned,omitempty"`
	Error   string       `json:"error,omitempty"`
}
