package state

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// Diff compares the persisted snapshot to the supplied desired state
// field by field. A nil snapshot means nothing has been deployed yet,
// so every populated field of next is reported as drift.
func Diff(prev, next *lake.DesiredState) lake.DriftReport {
	if prev == nil {
		prev = &lake.DesiredState{}
	}

	var report lake.DriftReport
	add := func(path, a, b string) {
		if a != b {
			report = append(report, lake.FieldDiff{Path: path, Previous: a, Next: b})
		}
	}

	add("region", prev.Region, next.Region)
	add("bucket.name", prev.Bucket.Name, next.Bucket.Name)
	add("bucket.kms_key_id", prev.Bucket.KMSKeyID, next.Bucket.KMSKeyID)
	add("bucket.log_prefix", prev.Bucket.LogPrefix, next.Bucket.LogPrefix)

	add("prefixes.raw", prev.Prefixes.Raw, next.Prefixes.Raw)
	add("prefixes.processed", prev.Prefixes.Processed, next.Prefixes.Processed)
	add("prefixes.analytics", prev.Prefixes.Analytics, next.Prefixes.Analytics)
	add("prefixes.logs", prev.Prefixes.Logs, next.Prefixes.Logs)

	add("database.name", prev.Database.Name, next.Database.Name)
	add("database.description", prev.Database.Description, next.Database.Description)

	diffTags(&report, "tags", prev.Tags, next.Tags)

	add("role.enabled", boolStr(prev.Role.Enabled), boolStr(next.Role.Enabled))
	add("role.name", prev.Role.Name, next.Role.Name)
	add("role.trust_service", prev.Role.TrustService, next.Role.TrustService)
	add("role.managed_policy_arns", listStr(prev.Role.ManagedPolicyARNs), listStr(next.Role.ManagedPolicyARNs))
	diffTags(&report, "role.inline_policies", prev.Role.InlinePolicies, next.Role.InlinePolicies)

	add("firehose.enabled", boolStr(prev.Firehose.Enabled), boolStr(next.Firehose.Enabled))
	add("firehose.stream_name", prev.Firehose.StreamName, next.Firehose.StreamName)
	add("firehose.buffering_size_mib", intStr(prev.Firehose.BufferingSizeMiB), intStr(next.Firehose.BufferingSizeMiB))
	add("firehose.buffering_interval_seconds", intStr(prev.Firehose.BufferingInterval), intStr(next.Firehose.BufferingInterval))
	add("firehose.compression", prev.Firehose.Compression, next.Firehose.Compression)
	add("firehose.prefix", prev.Firehose.Prefix, next.Firehose.Prefix)

	add("crawler.enabled", boolStr(prev.Crawler.Enabled), boolStr(next.Crawler.Enabled))
	add("crawler.name", prev.Crawler.Name, next.Crawler.Name)
	add("crawler.schedule", prev.Crawler.Schedule, next.Crawler.Schedule)
	add("crawler.target_path", prev.Crawler.TargetPath, next.Crawler.TargetPath)

	add("workgroup.enabled", boolStr(prev.Workgroup.Enabled), boolStr(next.Workgroup.Enabled))
	add("workgroup.name", prev.Workgroup.Name, next.Workgroup.Name)

	add("vpc_endpoints.enabled", boolStr(prev.VpcEndpoints.Enabled), boolStr(next.VpcEndpoints.Enabled))
	add("vpc_endpoints.vpc_id", prev.VpcEndpoints.VpcID, next.VpcEndpoints.VpcID)
	add("vpc_endpoints.route_table_ids", listStr(prev.VpcEndpoints.RouteTableIDs), listStr(next.VpcEndpoints.RouteTableIDs))
	add("vpc_endpoints.subnet_ids", listStr(prev.VpcEndpoints.SubnetIDs), listStr(next.VpcEndpoints.SubnetIDs))
	add("vpc_endpoints.security_group_ids", listStr(prev.VpcEndpoints.SecurityGroupIDs), listStr(next.VpcEndpoints.SecurityGroupIDs))

	add("grants.enabled", boolStr(prev.Grants.Enabled), boolStr(next.Grants.Enabled))
	add("grants.admins", listStr(prev.Grants.Admins), listStr(next.Grants.Admins))
	diffGrants(&report, prev.Grants.Grants, next.Grants.Grants)

	add("table.enabled", boolStr(prev.Table.Enabled), boolStr(next.Table.Enabled))
	add("table.name", prev.Table.Name, next.Table.Name)
	add("table.format", prev.Table.Format, next.Table.Format)

	return report
}

func diffTags(report *lake.DriftReport, path string, prev, next map[string]string) {
	keys := make(map[string]bool, len(prev)+len(next))
	for k := range prev {
		keys[k] = true
	}
	for k := range next {
		keys[k] = true
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		if prev[k] != next[k] {
			*report = append(*report, lake.FieldDiff{
				Path:     path + "." + k,
				Previous: prev[k],
				Next:     next[k],
			})
		}
	}
}

func diffGrants(report *lake.DriftReport, prev, next []lake.Grant) {
	a, b := grantStrings(prev), grantStrings(next)
	if a != b {
		*report = append(*report, lake.FieldDiff{Path: "grants.grants", Previous: a, Next: b})
	}
}

func grantStrings(grants []lake.Grant) string {
	parts := make([]string, 0, len(grants))
	for _, g := range grants {
		perms := append([]string(nil), g.Permissions...)
		sort.Strings(perms)
		parts = append(parts, fmt.Sprintf("%s:%s:%s", g.Principal, g.Resource, strings.Join(perms, "+")))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intStr(v int32) string { return fmt.Sprintf("%d", v) }

func listStr(items []string) string { return strings.Join(items, ",") }
