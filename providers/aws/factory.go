// Package aws builds the real AWS service clients backing the engine's
// awsapi interfaces.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
)

// Factory produces cached service clients for one region. It is scoped
// to a single run and passed into the orchestrator at construction;
// there is no process-wide singleton.
type Factory struct {
	region string

	mu  sync.Mutex
	cfg *aws.Config

	s3Client       *s3.Client
	glueClient     *glue.Client
	iamClient      *iam.Client
	firehoseClient *firehose.Client
	athenaClient   *athena.Client
	ec2Client      *ec2.Client
	lfClient       *lakeformation.Client
	stsClient      *sts.Client
}

var _ awsapi.Factory = (*Factory)(nil)

// NewFactory returns a factory for the given region. Credentials come
// from the default chain (env, shared config, instance role).
func NewFactory(region string) *Factory {
	return &Factory{region: region}
}

func (f *Factory) load(ctx context.Context) (aws.Config, error) {
	if f.cfg != nil {
		return *f.cfg, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(f.region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	f.cfg = &cfg
	return cfg, nil
}

func (f *Factory) S3(ctx context.Context) (awsapi.S3API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3Client == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.s3Client = s3.NewFromConfig(cfg)
	}
	return f.s3Client, nil
}

func (f *Factory) Glue(ctx context.Context) (awsapi.GlueAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.glueClient == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.glueClient = glue.NewFromConfig(cfg)
	}
	return f.glueClient, nil
}

func (f *Factory) IAM(ctx context.Context) (awsapi.IAMAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.iamClient == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.iamClient = iam.NewFromConfig(cfg)
	}
	return f.iamClient, nil
}

func (f *Factory) Firehose(ctx context.Context) (awsapi.FirehoseAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.firehoseClient == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.firehoseClient = firehose.NewFromConfig(cfg)
	}
	return f.firehoseClient, nil
}

func (f *Factory) Athena(ctx context.Context) (awsapi.AthenaAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.athenaClient == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.athenaClient = athena.NewFromConfig(cfg)
	}
	return f.athenaClient, nil
}

func (f *Factory) EC2(ctx context.Context) (awsapi.EC2API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ec2Client == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.ec2Client = ec2.NewFromConfig(cfg)
	}
	return f.ec2Client, nil
}

func (f *Factory) LakeFormation(ctx context.Context) (awsapi.LakeFormationAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lfClient == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.lfClient = lakeformation.NewFromConfig(cfg)
	}
	return f.lfClient, nil
}

func (f *Factory) STS(ctx context.Context) (awsapi.STSAPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stsClient == nil {
		cfg, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		f.stsClient = sts.NewFromConfig(cfg)
	}
	return f.stsClient, nil
}
