// Package config loads and validates the declarative lake configuration
// from a TOML file. Validation failures surface as lake.ValidationError
// before any provider call is made.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/lakeforge-io/lakeforge/internal/lake"
)

// file is the top-level TOML document; everything lives under the
// [datalake] table.
type file struct {
	Datalake root `toml:"datalake"`
}

type root struct {
	Region      string            `toml:"region" validate:"required,awsregion"`
	Bucket      string            `toml:"bucket" validate:"required,bucketname"`
	KMSKeyID    string            `toml:"kms_key_id" validate:"omitempty,awsarn"`
	LogPrefix   string            `toml:"log_prefix"`
	Database    string            `toml:"database" validate:"required,gluename"`
	Description string            `toml:"description"`
	Tags        map[string]string `toml:"tags"`

	Prefixes     prefixes     `toml:"prefixes"`
	Role         role         `toml:"role"`
	Firehose     firehoseCfg  `toml:"firehose"`
	Crawler      crawlerCfg   `toml:"crawler"`
	Workgroup    workgroupCfg `toml:"workgroup"`
	VpcEndpoints endpointsCfg `toml:"vpc_endpoints"`
	Grants       grantsCfg    `toml:"grants"`
	Table        tableCfg     `toml:"table"`
}

type prefixes struct {
	Raw       string `toml:"raw" validate:"required,lakeprefix"`
	Processed string `toml:"processed" validate:"required,lakeprefix"`
	Analytics string `toml:"analytics" validate:"required,lakeprefix"`
	Logs      string `toml:"logs" validate:"required,lakeprefix"`
}

type role struct {
	Enabled           bool              `toml:"enabled"`
	Name              string            `toml:"name" validate:"required_if=Enabled true"`
	TrustService      string            `toml:"trust_service" validate:"required_if=Enabled true"`
	ManagedPolicyARNs []string          `toml:"managed_policy_arns" validate:"dive,awsarn"`
	InlinePolicies    map[string]string `toml:"inline_policies"`
}

type firehoseCfg struct {
	Enabled           bool   `toml:"enabled"`
	StreamName        string `toml:"stream_name" validate:"required_if=Enabled true"`
	BufferingSizeMiB  int32  `toml:"buffering_size_mib" validate:"omitempty,min=1,max=128"`
	BufferingInterval int32  `toml:"buffering_interval_seconds" validate:"omitempty,min=60,max=900"`
	Compression       string `toml:"compression" validate:"omitempty,oneof=GZIP Snappy ZIP UNCOMPRESSED"`
	Prefix            string `toml:"prefix"`
}

type crawlerCfg struct {
	Enabled    bool   `toml:"enabled"`
	Name       string `toml:"name" validate:"required_if=Enabled true"`
	Schedule   string `toml:"schedule"`
	TargetPath string `toml:"target_path"`
}

type workgroupCfg struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name"`
}

type endpointsCfg struct {
	Enabled          bool     `toml:"enabled"`
	VpcID            string   `toml:"vpc_id" validate:"required_if=Enabled true"`
	RouteTableIDs    []string `toml:"route_table_ids"`
	SubnetIDs        []string `toml:"subnet_ids"`
	SecurityGroupIDs []string `toml:"security_group_ids"`
}

type grantCfg struct {
	Principal   string   `toml:"principal" validate:"required,awsarn"`
	Resource    string   `toml:"resource" validate:"required,oneof=database location"`
	Permissions []string `toml:"permissions" validate:"required,min=1"`
}

type grantsCfg struct {
	Enabled bool       `toml:"enabled"`
	Admins  []string   `toml:"admins" validate:"dive,awsarn"`
	Grants  []grantCfg `toml:"grants" validate:"dive"`
}

type tableCfg struct {
	Enabled bool   `toml:"enabled"`
	Name    string `toml:"name" validate:"required_if=Enabled true,omitempty,gluename"`
	Format  string `toml:"format" validate:"required_if=Enabled true,omitempty,oneof=iceberg delta"`
}

var (
	regionRe   = regexp.MustCompile(`^[a-z]{2}-[a-z]+-\d$`)
	glueNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{1,255}$`)
	bucketRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
	arnRe      = regexp.MustCompile(`^arn:aws[a-zA-Z-]*:`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("awsregion", func(fl validator.FieldLevel) bool {
		return regionRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("gluename", func(fl validator.FieldLevel) bool {
		return glueNameRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("awsarn", func(fl validator.FieldLevel) bool {
		return arnRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("bucketname", func(fl validator.FieldLevel) bool {
		return validBucketName(fl.Field().String())
	})
	v.RegisterValidation("lakeprefix", func(fl validator.FieldLevel) bool {
		p := fl.Field().String()
		return p != "" && !strings.HasPrefix(p, "/")
	})
	return v
}

// validBucketName applies the S3 naming rules: length, character set,
// no dot runs or dot-dash adjacency, and not shaped like an IP address.
func validBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if !bucketRe.MatchString(name) {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, ".-") || strings.Contains(name, "-.") {
		return false
	}
	if net.ParseIP(name) != nil {
		return false
	}
	return true
}

// Load reads, defaults, validates, and normalizes the configuration
// file into a DesiredState.
func Load(path string) (*lake.DesiredState, error) {
	var f file
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, &lake.ValidationError{
			Field:  undecoded[0].String(),
			Reason: "unknown configuration key",
		}
	}
	return build(&f.Datalake)
}

func build(cfg *root) (*lake.DesiredState, error) {
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return toDesired(cfg), nil
}

func applyDefaults(cfg *root) {
	if cfg.Prefixes.Raw == "" {
		cfg.Prefixes.Raw = "raw/"
	}
	if cfg.Prefixes.Processed == "" {
		cfg.Prefixes.Processed = "processed/"
	}
	if cfg.Prefixes.Analytics == "" {
		cfg.Prefixes.Analytics = "analytics/"
	}
	if cfg.Prefixes.Logs == "" {
		cfg.Prefixes.Logs = "logs/"
	}
	cfg.Prefixes.Raw = normalizePrefix(cfg.Prefixes.Raw)
	cfg.Prefixes.Processed = normalizePrefix(cfg.Prefixes.Processed)
	cfg.Prefixes.Analytics = normalizePrefix(cfg.Prefixes.Analytics)
	cfg.Prefixes.Logs = normalizePrefix(cfg.Prefixes.Logs)

	if cfg.Firehose.Enabled {
		if cfg.Firehose.BufferingSizeMiB == 0 {
			cfg.Firehose.BufferingSizeMiB = 5
		}
		if cfg.Firehose.BufferingInterval == 0 {
			cfg.Firehose.BufferingInterval = 300
		}
		if cfg.Firehose.Compression == "" {
			cfg.Firehose.Compression = "GZIP"
		}
	}
	if cfg.Workgroup.Enabled && cfg.Workgroup.Name == "" {
		cfg.Workgroup.Name = cfg.Database + "-workgroup"
	}
}

func normalizePrefix(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

func validate(cfg *root) error {
	v := newValidator()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			first := verrs[0]
			return &lake.ValidationError{
				Field:  strings.TrimPrefix(first.Namespace(), "root."),
				Reason: fmt.Sprintf("failed %q constraint", first.Tag()),
			}
		}
		return err
	}

	for k, val := range cfg.Tags {
		if k == "" || len(k) > 128 {
			return &lake.ValidationError{Field: "tags", Reason: fmt.Sprintf("tag key %q must be 1-128 characters", k)}
		}
		if len(val) > 256 {
			return &lake.ValidationError{Field: "tags", Reason: fmt.Sprintf("tag value for %q exceeds 256 characters", k)}
		}
	}

	// The stream and crawler assume the processing role; requiring it
	// here keeps the failure out of the provider calls.
	if cfg.Firehose.Enabled && !cfg.Role.Enabled {
		return &lake.ValidationError{Field: "firehose", Reason: "requires the role section to be enabled"}
	}
	if cfg.Crawler.Enabled && !cfg.Role.Enabled {
		return &lake.ValidationError{Field: "crawler", Reason: "requires the role section to be enabled"}
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func toDesired(cfg *root) *lake.DesiredState {
	ds := &lake.DesiredState{
		Region: cfg.Region,
		Bucket: lake.BucketSpec{
			Name:      cfg.Bucket,
			KMSKeyID:  cfg.KMSKeyID,
			LogPrefix: cfg.LogPrefix,
		},
		Prefixes: lake.PrefixSet{
			Raw:       cfg.Prefixes.Raw,
			Processed: cfg.Prefixes.Processed,
			Analytics: cfg.Prefixes.Analytics,
			Logs:      cfg.Prefixes.Logs,
		},
		Database: lake.DatabaseSpec{Name: cfg.Database, Description: cfg.Description},
		Tags:     cfg.Tags,
		Role: lake.RoleSpec{
			Enabled:           cfg.Role.Enabled,
			Name:              cfg.Role.Name,
			TrustService:      cfg.Role.TrustService,
			ManagedPolicyARNs: cfg.Role.ManagedPolicyARNs,
			InlinePolicies:    cfg.Role.InlinePolicies,
		},
		Firehose: lake.FirehoseSpec{
			Enabled:           cfg.Firehose.Enabled,
			StreamName:        cfg.Firehose.StreamName,
			BufferingSizeMiB:  cfg.Firehose.BufferingSizeMiB,
			BufferingInterval: cfg.Firehose.BufferingInterval,
			Compression:       cfg.Firehose.Compression,
			Prefix:            cfg.Firehose.Prefix,
		},
		Crawler: lake.CrawlerSpec{
			Enabled:    cfg.Crawler.Enabled,
			Name:       cfg.Crawler.Name,
			Schedule:   cfg.Crawler.Schedule,
			TargetPath: cfg.Crawler.TargetPath,
		},
		Workgroup: lake.WorkgroupSpec{Enabled: cfg.Workgroup.Enabled, Name: cfg.Workgroup.Name},
		VpcEndpoints: lake.VpcEndpointsSpec{
			Enabled:          cfg.VpcEndpoints.Enabled,
			VpcID:            cfg.VpcEndpoints.VpcID,
			RouteTableIDs:    cfg.VpcEndpoints.RouteTableIDs,
			SubnetIDs:        cfg.VpcEndpoints.SubnetIDs,
			SecurityGroupIDs: cfg.VpcEndpoints.SecurityGroupIDs,
		},
		Grants: lake.GrantsSpec{
			Enabled: cfg.Grants.Enabled,
			Admins:  cfg.Grants.Admins,
		},
		Table: lake.TableSpec{Enabled: cfg.Table.Enabled, Name: cfg.Table.Name, Format: cfg.Table.Format},
	}
	for _, g := range cfg.Grants.Grants {
		ds.Grants.Grants = append(ds.Grants.Grants, lake.Grant{
			Principal:   g.Principal,
			Resource:    g.Resource,
			Permissions: g.Permissions,
		})
	}
	return ds
}
