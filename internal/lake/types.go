// Package lake defines the declared configuration and deployment record
// types shared by the engine, state store, and CLI.
package lake

import "time"

// DesiredState is the validated, immutable configuration for one run.
// Resource identity is derived from these fields only, never from
// provider-assigned IDs, so re-submitting the same state always resolves
// to the same AWS resources.
type DesiredState struct {
	Region   string            `json:"region"`
	Bucket   BucketSpec        `json:"bucket"`
	Prefixes PrefixSet         `json:"prefixes"`
	Database DatabaseSpec      `json:"database"`
	Tags     map[string]string `json:"tags,omitempty"`

	Role         RoleSpec         `json:"role"`
	Firehose     FirehoseSpec     `json:"firehose"`
	Crawler      CrawlerSpec      `json:"crawler"`
	Workgroup    WorkgroupSpec    `json:"workgroup"`
	VpcEndpoints VpcEndpointsSpec `json:"vpc_endpoints"`
	Grants       GrantsSpec       `json:"grants"`
	Table        TableSpec        `json:"table"`
}

// BucketSpec describes the data lake S3 bucket.
type BucketSpec struct {
	Name      string `json:"name"`
	KMSKeyID  string `json:"kms_key_id,omitempty"`
	LogPrefix string `json:"log_prefix,omitempty"` // access-log target under the logs prefix
}

// PrefixSet holds the lake zone prefixes. Each ends with a slash.
type PrefixSet struct {
	Raw       string `json:"raw"`
	Processed string `json:"processed"`
	Analytics string `json:"analytics"`
	Logs      string `json:"logs"`
}

// All returns the declared prefixes in a fixed order.
func (p PrefixSet) All() []string {
	return []string{p.Raw, p.Processed, p.Analytics, p.Logs}
}

// DatabaseSpec describes the Glue catalog database.
type DatabaseSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RoleSpec describes the processing IAM role scaffold.
type RoleSpec struct {
	Enabled           bool              `json:"enabled"`
	Name              string            `json:"name,omitempty"`
	TrustService      string            `json:"trust_service,omitempty"` // e.g. firehose.amazonaws.com
	ManagedPolicyARNs []string          `json:"managed_policy_arns,omitempty"`
	InlinePolicies    map[string]string `json:"inline_policies,omitempty"` // name -> JSON document
}

// FirehoseSpec describes the streaming ingest delivery stream.
type FirehoseSpec struct {
	Enabled           bool   `json:"enabled"`
	StreamName        string `json:"stream_name,omitempty"`
	BufferingSizeMiB  int32  `json:"buffering_size_mib,omitempty"`
	BufferingInterval int32  `json:"buffering_interval_seconds,omitempty"`
	Compression       string `json:"compression,omitempty"` // GZIP, Snappy, ZIP, UNCOMPRESSED
	Prefix            string `json:"prefix,omitempty"`      // destination prefix, defaults to raw
}

// CrawlerSpec describes the Glue crawler over the raw zone.
type CrawlerSpec struct {
	Enabled    bool   `json:"enabled"`
	Name       string `json:"name,omitempty"`
	Schedule   string `json:"schedule,omitempty"` // cron expression
	TargetPath string `json:"target_path,omitempty"`
}

// WorkgroupSpec describes the Athena query workgroup.
type WorkgroupSpec struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
}

// VpcEndpointsSpec describes the private network endpoint set.
// Attachment fields are immutable after creation; only tags reconcile.
type VpcEndpointsSpec struct {
	Enabled          bool     `json:"enabled"`
	VpcID            string   `json:"vpc_id,omitempty"`
	RouteTableIDs    []string `json:"route_table_ids,omitempty"`
	SubnetIDs        []string `json:"subnet_ids,omitempty"`
	SecurityGroupIDs []string `json:"security_group_ids,omitempty"`
}

// Grant is one (principal, resource, permissions) Lake Formation tuple.
type Grant struct {
	Principal   string   `json:"principal"`
	Resource    string   `json:"resource"` // "database" or "location"
	Permissions []string `json:"permissions"`
}

// GrantsSpec describes fine-grained Lake Formation permissions.
type GrantsSpec struct {
	Enabled bool     `json:"enabled"`
	Admins  []string `json:"admins,omitempty"` // defaults to the caller identity
	Grants  []Grant  `json:"grants,omitempty"`
}

// TableSpec seeds one transactional catalog table.
type TableSpec struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
	Format  string `json:"format,omitempty"` // iceberg or delta
}

// DeclaredKinds returns every resource kind this state declares, in
// deployment order. Required kinds are always present.
func (d *DesiredState) DeclaredKinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, len(DeployOrder))
	for _, k := range DeployOrder {
		if d.Declares(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Declares reports whether the given kind is enabled in this state.
func (d *DesiredState) Declares(kind ResourceKind) bool {
	switch kind {
	case KindBucket, KindDatabase:
		return true
	case KindVpcEndpoints:
		return d.VpcEndpoints.Enabled
	case KindRole:
		return d.Role.Enabled
	case KindFirehose:
		return d.Firehose.Enabled
	case KindCrawler:
		return d.Crawler.Enabled
	case KindWorkgroup:
		return d.Workgroup.Enabled
	case KindTable:
		return d.Table.Enabled
	case KindGrants:
		return d.Grants.Enabled
	}
	return false
}

// DeploymentRecord captures one completed run.
type DeploymentRecord struct {
	ID        string                          `json:"id"`
	Timestamp time.Time                       `json:"timestamp"`
	DryRun    bool                            `json:"dry_run"`
	Desired   DesiredState                    `json:"desired"`
	Resources map[ResourceKind]ResourceStatus `json:"resources"`
	Success   bool                            `json:"success"`
}

// DeploymentSummary is what Deploy returns to callers.
type DeploymentSummary struct {
	Resources map[ResourceKind]ResourceStatus `json:"resources"`
	Success   bool                            `json:"success"`
}

// FieldDiff is one field-level difference between two desired states.
type FieldDiff struct {
	Path     string `json:"path"`
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

// DriftReport lists field diffs between the persisted and supplied state.
// Empty means no drift.
type DriftReport []FieldDiff
