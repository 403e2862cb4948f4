package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/lakeforge-io/lakeforge/internal/lake"
	"github.com/lakeforge-io/lakeforge/internal/logging"
)

func logFor(kind lake.ResourceKind) *slog.Logger {
	return logging.ForKind(kind)
}

// tagDiff computes the minimal delta from live to want: pairs to set
// (missing or differing) and keys to remove (present live but not
// declared). Keys are returned sorted for deterministic calls.
func tagDiff(live, want map[string]string) (set map[string]string, remove []string) {
	set = make(map[string]string)
	for k, v := range want {
		if lv, ok := live[k]; !ok || lv != v {
			set[k] = v
		}
	}
	for k := range live {
		if _, ok := want[k]; !ok {
			remove = append(remove, k)
		}
	}
	sort.Strings(remove)
	if len(set) == 0 {
		set = nil
	}
	return set, remove
}

// sortedKeys returns map keys in sorted order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ARN builders. Resource identity is always derived from the desired
// state, never from provider-assigned IDs.

func bucketARN(bucket string) string {
	return fmt.Sprintf("arn:aws:s3:::%s", bucket)
}

func roleARN(account, name string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", account, name)
}

func glueDatabaseARN(region, account, name string) string {
	return fmt.Sprintf("arn:aws:glue:%s:%s:database/%s", region, account, name)
}

func glueCrawlerARN(region, account, name string) string {
	return fmt.Sprintf("arn:aws:glue:%s:%s:crawler/%s", region, account, name)
}

func athenaWorkgroupARN(region, account, name string) string {
	return fmt.Sprintf("arn:aws:athena:%s:%s:workgroup/%s", region, account, name)
}
