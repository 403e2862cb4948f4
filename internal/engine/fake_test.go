package engine

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	firehosetypes "github.com/aws/aws-sdk-go-v2/service/firehose/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lakeformation"
	lftypes "github.com/aws/aws-sdk-go-v2/service/lakeformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/lakeforge-io/lakeforge/internal/awsapi"
)

const (
	testAccount   = "123456789012"
	testCallerARN = "arn:aws:iam::123456789012:user/tester"
)

func notFoundErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "does not exist"}
}

// recorder tracks every call against the fakes. Mutations are recorded
// separately so tests can assert dry-run purity and idempotence.
type recorder struct {
	mu        sync.Mutex
	calls     []string
	mutations []string
	failures  map[string]error
}

func newRecorder() *recorder {
	return &recorder{failures: make(map[string]error)}
}

func (r *recorder) failOn(call string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[call] = err
}

func (r *recorder) observe(call string, mutation bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	if err := r.failures[call]; err != nil {
		return err
	}
	if mutation {
		r.mutations = append(r.mutations, call)
	}
	return nil
}

func (r *recorder) mutationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mutations)
}

func (r *recorder) called(call string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == call {
			return true
		}
	}
	return false
}

// fakeFactory wires one in-memory cloud shared by all fake clients.
type fakeFactory struct {
	rec      *recorder
	s3       *fakeS3
	glue     *fakeGlue
	iam      *fakeIAM
	firehose *fakeFirehose
	athena   *fakeAthena
	ec2      *fakeEC2
	lf       *fakeLakeFormation
	sts      *fakeSTS
}

func newFakeFactory() *fakeFactory {
	rec := newRecorder()
	return &fakeFactory{
		rec:      rec,
		s3:       &fakeS3{rec: rec, buckets: make(map[string]*fakeBucket)},
		glue:     &fakeGlue{rec: rec, databases: make(map[string]*gluetypes.Database), crawlers: make(map[string]*gluetypes.Crawler), tables: make(map[string]*gluetypes.Table), tags: make(map[string]map[string]string)},
		iam:      &fakeIAM{rec: rec, roles: make(map[string]*fakeRole)},
		firehose: &fakeFirehose{rec: rec, streams: make(map[string]*fakeStream)},
		athena:   &fakeAthena{rec: rec, workgroups: make(map[string]*athenatypes.WorkGroup), tags: make(map[string]map[string]string)},
		ec2:      &fakeEC2{rec: rec},
		lf:       &fakeLakeFormation{rec: rec, registered: make(map[string]bool), permissions: make(map[string][]lftypes.Permission)},
		sts:      &fakeSTS{rec: rec},
	}
}

func (f *fakeFactory) S3(context.Context) (awsapi.S3API, error)             { return f.s3, nil }
func (f *fakeFactory) Glue(context.Context) (awsapi.GlueAPI, error)         { return f.glue, nil }
func (f *fakeFactory) IAM(context.Context) (awsapi.IAMAPI, error)           { return f.iam, nil }
func (f *fakeFactory) Firehose(context.Context) (awsapi.FirehoseAPI, error) { return f.firehose, nil }
func (f *fakeFactory) Athena(context.Context) (awsapi.AthenaAPI, error)     { return f.athena, nil }
func (f *fakeFactory) EC2(context.Context) (awsapi.EC2API, error)           { return f.ec2, nil }
func (f *fakeFactory) LakeFormation(context.Context) (awsapi.LakeFormationAPI, error) {
	return f.lf, nil
}
func (f *fakeFactory) STS(context.Context) (awsapi.STSAPI, error) { return f.sts, nil }

// --- S3 ---

type fakeBucket struct {
	versioning bool
	pabSet     bool
	encryption string
	logTarget  string
	logPrefix  string
	tags       map[string]string
	objects    map[string]bool
}

type fakeS3 struct {
	rec     *recorder
	buckets map[string]*fakeBucket
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if err := f.rec.observe("s3.HeadBucket", false); err != nil {
		return nil, err
	}
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, notFoundErr("NotFound")
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if err := f.rec.observe("s3.CreateBucket", true); err != nil {
		return nil, err
	}
	f.buckets[aws.ToString(in.Bucket)] = &fakeBucket{tags: map[string]string{}, objects: map[string]bool{}}
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3) GetBucketVersioning(_ context.Context, in *s3.GetBucketVersioningInput, _ ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
	if err := f.rec.observe("s3.GetBucketVersioning", false); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	out := &s3.GetBucketVersioningOutput{}
	if b != nil && b.versioning {
		out.Status = s3types.BucketVersioningStatusEnabled
	}
	return out, nil
}

func (f *fakeS3) PutBucketVersioning(_ context.Context, in *s3.PutBucketVersioningInput, _ ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error) {
	if err := f.rec.observe("s3.PutBucketVersioning", true); err != nil {
		return nil, err
	}
	f.buckets[aws.ToString(in.Bucket)].versioning = true
	return &s3.PutBucketVersioningOutput{}, nil
}

func (f *fakeS3) GetPublicAccessBlock(_ context.Context, in *s3.GetPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error) {
	if err := f.rec.observe("s3.GetPublicAccessBlock", false); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	if b == nil || !b.pabSet {
		return nil, notFoundErr("NoSuchPublicAccessBlockConfiguration")
	}
	return &s3.GetPublicAccessBlockOutput{
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	}, nil
}

func (f *fakeS3) PutPublicAccessBlock(_ context.Context, in *s3.PutPublicAccessBlockInput, _ ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error) {
	if err := f.rec.observe("s3.PutPublicAccessBlock", true); err != nil {
		return nil, err
	}
	f.buckets[aws.ToString(in.Bucket)].pabSet = true
	return &s3.PutPublicAccessBlockOutput{}, nil
}

func (f *fakeS3) GetBucketEncryption(_ context.Context, in *s3.GetBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error) {
	if err := f.rec.observe("s3.GetBucketEncryption", false); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	if b == nil || b.encryption == "" {
		return nil, notFoundErr("ServerSideEncryptionConfigurationNotFoundError")
	}
	return &s3.GetBucketEncryptionOutput{
		ServerSideEncryptionConfiguration: &s3types.ServerSideEncryptionConfiguration{
			Rules: []s3types.ServerSideEncryptionRule{{
				ApplyServerSideEncryptionByDefault: &s3types.ServerSideEncryptionByDefault{
					SSEAlgorithm:   s3types.ServerSideEncryptionAwsKms,
					KMSMasterKeyID: aws.String(b.encryption),
				},
			}},
		},
	}, nil
}

func (f *fakeS3) PutBucketEncryption(_ context.Context, in *s3.PutBucketEncryptionInput, _ ...func(*s3.Options)) (*s3.PutBucketEncryptionOutput, error) {
	if err := f.rec.observe("s3.PutBucketEncryption", true); err != nil {
		return nil, err
	}
	rule := in.ServerSideEncryptionConfiguration.Rules[0]
	f.buckets[aws.ToString(in.Bucket)].encryption = aws.ToString(rule.ApplyServerSideEncryptionByDefault.KMSMasterKeyID)
	return &s3.PutBucketEncryptionOutput{}, nil
}

func (f *fakeS3) GetBucketTagging(_ context.Context, in *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
	if err := f.rec.observe("s3.GetBucketTagging", false); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	if b == nil || len(b.tags) == 0 {
		return nil, notFoundErr("NoSuchTagSet")
	}
	out := &s3.GetBucketTaggingOutput{}
	for k, v := range b.tags {
		out.TagSet = append(out.TagSet, s3types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

func (f *fakeS3) PutBucketTagging(_ context.Context, in *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	if err := f.rec.observe("s3.PutBucketTagging", true); err != nil {
		return nil, err
	}
	tags := map[string]string{}
	for _, t := range in.Tagging.TagSet {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	f.buckets[aws.ToString(in.Bucket)].tags = tags
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *fakeS3) GetBucketLogging(_ context.Context, in *s3.GetBucketLoggingInput, _ ...func(*s3.Options)) (*s3.GetBucketLoggingOutput, error) {
	if err := f.rec.observe("s3.GetBucketLogging", false); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	out := &s3.GetBucketLoggingOutput{}
	if b != nil && b.logTarget != "" {
		out.LoggingEnabled = &s3types.LoggingEnabled{
			TargetBucket: aws.String(b.logTarget),
			TargetPrefix: aws.String(b.logPrefix),
		}
	}
	return out, nil
}

func (f *fakeS3) PutBucketLogging(_ context.Context, in *s3.PutBucketLoggingInput, _ ...func(*s3.Options)) (*s3.PutBucketLoggingOutput, error) {
	if err := f.rec.observe("s3.PutBucketLogging", true); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	b.logTarget = aws.ToString(in.BucketLoggingStatus.LoggingEnabled.TargetBucket)
	b.logPrefix = aws.ToString(in.BucketLoggingStatus.LoggingEnabled.TargetPrefix)
	return &s3.PutBucketLoggingOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err := f.rec.observe("s3.HeadObject", false); err != nil {
		return nil, err
	}
	b := f.buckets[aws.ToString(in.Bucket)]
	if b == nil || !b.objects[aws.ToString(in.Key)] {
		return nil, notFoundErr("NotFound")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if err := f.rec.observe("s3.PutObject", true); err != nil {
		return nil, err
	}
	f.buckets[aws.ToString(in.Bucket)].objects[aws.ToString(in.Key)] = true
	return &s3.PutObjectOutput{}, nil
}

// --- Glue ---

type fakeGlue struct {
	rec       *recorder
	databases map[string]*gluetypes.Database
	crawlers  map[string]*gluetypes.Crawler
	tables    map[string]*gluetypes.Table
	tags      map[string]map[string]string
}

func (f *fakeGlue) GetDatabase(_ context.Context, in *glue.GetDatabaseInput, _ ...func(*glue.Options)) (*glue.GetDatabaseOutput, error) {
	if err := f.rec.observe("glue.GetDatabase", false); err != nil {
		return nil, err
	}
	db, ok := f.databases[aws.ToString(in.Name)]
	if !ok {
		return nil, notFoundErr("EntityNotFoundException")
	}
	return &glue.GetDatabaseOutput{Database: db}, nil
}

func (f *fakeGlue) CreateDatabase(_ context.Context, in *glue.CreateDatabaseInput, _ ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error) {
	if err := f.rec.observe("glue.CreateDatabase", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.DatabaseInput.Name)
	f.databases[name] = &gluetypes.Database{
		Name:        in.DatabaseInput.Name,
		Description: in.DatabaseInput.Description,
		LocationUri: in.DatabaseInput.LocationUri,
	}
	f.tags[glueDatabaseARN("eu-west-2", testAccount, name)] = copyTags(in.Tags)
	return &glue.CreateDatabaseOutput{}, nil
}

func (f *fakeGlue) UpdateDatabase(_ context.Context, in *glue.UpdateDatabaseInput, _ ...func(*glue.Options)) (*glue.UpdateDatabaseOutput, error) {
	if err := f.rec.observe("glue.UpdateDatabase", true); err != nil {
		return nil, err
	}
	f.databases[aws.ToString(in.Name)] = &gluetypes.Database{
		Name:        in.DatabaseInput.Name,
		Description: in.DatabaseInput.Description,
		LocationUri: in.DatabaseInput.LocationUri,
	}
	return &glue.UpdateDatabaseOutput{}, nil
}

func (f *fakeGlue) GetCrawler(_ context.Context, in *glue.GetCrawlerInput, _ ...func(*glue.Options)) (*glue.GetCrawlerOutput, error) {
	if err := f.rec.observe("glue.GetCrawler", false); err != nil {
		return nil, err
	}
	c, ok := f.crawlers[aws.ToString(in.Name)]
	if !ok {
		return nil, notFoundErr("EntityNotFoundException")
	}
	return &glue.GetCrawlerOutput{Crawler: c}, nil
}

func (f *fakeGlue) CreateCrawler(_ context.Context, in *glue.CreateCrawlerInput, _ ...func(*glue.Options)) (*glue.CreateCrawlerOutput, error) {
	if err := f.rec.observe("glue.CreateCrawler", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.Name)
	crawler := &gluetypes.Crawler{
		Name:         in.Name,
		Role:         in.Role,
		DatabaseName: in.DatabaseName,
		Targets:      in.Targets,
	}
	if in.Schedule != nil {
		crawler.Schedule = &gluetypes.Schedule{ScheduleExpression: in.Schedule}
	}
	f.crawlers[name] = crawler
	f.tags[glueCrawlerARN("eu-west-2", testAccount, name)] = copyTags(in.Tags)
	return &glue.CreateCrawlerOutput{}, nil
}

func (f *fakeGlue) UpdateCrawler(_ context.Context, in *glue.UpdateCrawlerInput, _ ...func(*glue.Options)) (*glue.UpdateCrawlerOutput, error) {
	if err := f.rec.observe("glue.UpdateCrawler", true); err != nil {
		return nil, err
	}
	crawler := &gluetypes.Crawler{
		Name:         in.Name,
		Role:         in.Role,
		DatabaseName: in.DatabaseName,
		Targets:      in.Targets,
	}
	if in.Schedule != nil {
		crawler.Schedule = &gluetypes.Schedule{ScheduleExpression: in.Schedule}
	}
	f.crawlers[aws.ToString(in.Name)] = crawler
	return &glue.UpdateCrawlerOutput{}, nil
}

func (f *fakeGlue) GetTable(_ context.Context, in *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	if err := f.rec.observe("glue.GetTable", false); err != nil {
		return nil, err
	}
	t, ok := f.tables[aws.ToString(in.Name)]
	if !ok {
		return nil, notFoundErr("EntityNotFoundException")
	}
	return &glue.GetTableOutput{Table: t}, nil
}

func (f *fakeGlue) CreateTable(_ context.Context, in *glue.CreateTableInput, _ ...func(*glue.Options)) (*glue.CreateTableOutput, error) {
	if err := f.rec.observe("glue.CreateTable", true); err != nil {
		return nil, err
	}
	f.tables[aws.ToString(in.TableInput.Name)] = tableFromInput(in.TableInput)
	return &glue.CreateTableOutput{}, nil
}

func (f *fakeGlue) UpdateTable(_ context.Context, in *glue.UpdateTableInput, _ ...func(*glue.Options)) (*glue.UpdateTableOutput, error) {
	if err := f.rec.observe("glue.UpdateTable", true); err != nil {
		return nil, err
	}
	f.tables[aws.ToString(in.TableInput.Name)] = tableFromInput(in.TableInput)
	return &glue.UpdateTableOutput{}, nil
}

func tableFromInput(in *gluetypes.TableInput) *gluetypes.Table {
	return &gluetypes.Table{
		Name:              in.Name,
		TableType:         in.TableType,
		Parameters:        in.Parameters,
		StorageDescriptor: in.StorageDescriptor,
	}
}

func (f *fakeGlue) GetTags(_ context.Context, in *glue.GetTagsInput, _ ...func(*glue.Options)) (*glue.GetTagsOutput, error) {
	if err := f.rec.observe("glue.GetTags", false); err != nil {
		return nil, err
	}
	return &glue.GetTagsOutput{Tags: f.tags[aws.ToString(in.ResourceArn)]}, nil
}

func (f *fakeGlue) TagResource(_ context.Context, in *glue.TagResourceInput, _ ...func(*glue.Options)) (*glue.TagResourceOutput, error) {
	if err := f.rec.observe("glue.TagResource", true); err != nil {
		return nil, err
	}
	arn := aws.ToString(in.ResourceArn)
	if f.tags[arn] == nil {
		f.tags[arn] = map[string]string{}
	}
	for k, v := range in.TagsToAdd {
		f.tags[arn][k] = v
	}
	return &glue.TagResourceOutput{}, nil
}

func (f *fakeGlue) UntagResource(_ context.Context, in *glue.UntagResourceInput, _ ...func(*glue.Options)) (*glue.UntagResourceOutput, error) {
	if err := f.rec.observe("glue.UntagResource", true); err != nil {
		return nil, err
	}
	for _, k := range in.TagsToRemove {
		delete(f.tags[aws.ToString(in.ResourceArn)], k)
	}
	return &glue.UntagResourceOutput{}, nil
}

func copyTags(tags map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// --- IAM ---

type fakeRole struct {
	arn      string
	trustDoc string
	managed  map[string]bool
	inline   map[string]string
	tags     map[string]string
}

type fakeIAM struct {
	rec   *recorder
	roles map[string]*fakeRole
}

func (f *fakeIAM) GetRole(_ context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	if err := f.rec.observe("iam.GetRole", false); err != nil {
		return nil, err
	}
	role, ok := f.roles[aws.ToString(in.RoleName)]
	if !ok {
		return nil, notFoundErr("NoSuchEntity")
	}
	return &iam.GetRoleOutput{Role: &iamtypes.Role{
		RoleName:                 in.RoleName,
		Arn:                      aws.String(role.arn),
		AssumeRolePolicyDocument: aws.String(role.trustDoc),
	}}, nil
}

func (f *fakeIAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	if err := f.rec.observe("iam.CreateRole", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.RoleName)
	role := &fakeRole{
		arn:      "arn:aws:iam::" + testAccount + ":role/" + name,
		trustDoc: aws.ToString(in.AssumeRolePolicyDocument),
		managed:  map[string]bool{},
		inline:   map[string]string{},
		tags:     map[string]string{},
	}
	f.roles[name] = role
	return &iam.CreateRoleOutput{Role: &iamtypes.Role{RoleName: in.RoleName, Arn: aws.String(role.arn)}}, nil
}

func (f *fakeIAM) UpdateAssumeRolePolicy(_ context.Context, in *iam.UpdateAssumeRolePolicyInput, _ ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	if err := f.rec.observe("iam.UpdateAssumeRolePolicy", true); err != nil {
		return nil, err
	}
	f.roles[aws.ToString(in.RoleName)].trustDoc = aws.ToString(in.PolicyDocument)
	return &iam.UpdateAssumeRolePolicyOutput{}, nil
}

func (f *fakeIAM) ListAttachedRolePolicies(_ context.Context, in *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	if err := f.rec.observe("iam.ListAttachedRolePolicies", false); err != nil {
		return nil, err
	}
	out := &iam.ListAttachedRolePoliciesOutput{}
	for arn := range f.roles[aws.ToString(in.RoleName)].managed {
		out.AttachedPolicies = append(out.AttachedPolicies, iamtypes.AttachedPolicy{PolicyArn: aws.String(arn)})
	}
	return out, nil
}

func (f *fakeIAM) AttachRolePolicy(_ context.Context, in *iam.AttachRolePolicyInput, _ ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	if err := f.rec.observe("iam.AttachRolePolicy", true); err != nil {
		return nil, err
	}
	f.roles[aws.ToString(in.RoleName)].managed[aws.ToString(in.PolicyArn)] = true
	return &iam.AttachRolePolicyOutput{}, nil
}

func (f *fakeIAM) DetachRolePolicy(_ context.Context, in *iam.DetachRolePolicyInput, _ ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	if err := f.rec.observe("iam.DetachRolePolicy", true); err != nil {
		return nil, err
	}
	delete(f.roles[aws.ToString(in.RoleName)].managed, aws.ToString(in.PolicyArn))
	return &iam.DetachRolePolicyOutput{}, nil
}

func (f *fakeIAM) ListRolePolicies(_ context.Context, in *iam.ListRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListRolePoliciesOutput, error) {
	if err := f.rec.observe("iam.ListRolePolicies", false); err != nil {
		return nil, err
	}
	out := &iam.ListRolePoliciesOutput{}
	for name := range f.roles[aws.ToString(in.RoleName)].inline {
		out.PolicyNames = append(out.PolicyNames, name)
	}
	return out, nil
}

func (f *fakeIAM) GetRolePolicy(_ context.Context, in *iam.GetRolePolicyInput, _ ...func(*iam.Options)) (*iam.GetRolePolicyOutput, error) {
	if err := f.rec.observe("iam.GetRolePolicy", false); err != nil {
		return nil, err
	}
	doc, ok := f.roles[aws.ToString(in.RoleName)].inline[aws.ToString(in.PolicyName)]
	if !ok {
		return nil, notFoundErr("NoSuchEntity")
	}
	return &iam.GetRolePolicyOutput{
		RoleName:       in.RoleName,
		PolicyName:     in.PolicyName,
		PolicyDocument: aws.String(doc),
	}, nil
}

func (f *fakeIAM) PutRolePolicy(_ context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	if err := f.rec.observe("iam.PutRolePolicy", true); err != nil {
		return nil, err
	}
	f.roles[aws.ToString(in.RoleName)].inline[aws.ToString(in.PolicyName)] = aws.ToString(in.PolicyDocument)
	return &iam.PutRolePolicyOutput{}, nil
}

func (f *fakeIAM) DeleteRolePolicy(_ context.Context, in *iam.DeleteRolePolicyInput, _ ...func(*iam.Options)) (*iam.DeleteRolePolicyOutput, error) {
	if err := f.rec.observe("iam.DeleteRolePolicy", true); err != nil {
		return nil, err
	}
	delete(f.roles[aws.ToString(in.RoleName)].inline, aws.ToString(in.PolicyName))
	return &iam.DeleteRolePolicyOutput{}, nil
}

func (f *fakeIAM) ListRoleTags(_ context.Context, in *iam.ListRoleTagsInput, _ ...func(*iam.Options)) (*iam.ListRoleTagsOutput, error) {
	if err := f.rec.observe("iam.ListRoleTags", false); err != nil {
		return nil, err
	}
	out := &iam.ListRoleTagsOutput{}
	for k, v := range f.roles[aws.ToString(in.RoleName)].tags {
		out.Tags = append(out.Tags, iamtypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

func (f *fakeIAM) TagRole(_ context.Context, in *iam.TagRoleInput, _ ...func(*iam.Options)) (*iam.TagRoleOutput, error) {
	if err := f.rec.observe("iam.TagRole", true); err != nil {
		return nil, err
	}
	role := f.roles[aws.ToString(in.RoleName)]
	for _, t := range in.Tags {
		role.tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return &iam.TagRoleOutput{}, nil
}

func (f *fakeIAM) UntagRole(_ context.Context, in *iam.UntagRoleInput, _ ...func(*iam.Options)) (*iam.UntagRoleOutput, error) {
	if err := f.rec.observe("iam.UntagRole", true); err != nil {
		return nil, err
	}
	for _, k := range in.TagKeys {
		delete(f.roles[aws.ToString(in.RoleName)].tags, k)
	}
	return &iam.UntagRoleOutput{}, nil
}

// --- Firehose ---

type fakeStream struct {
	version string
	destID  string
	dest    *firehosetypes.ExtendedS3DestinationDescription
	tags    map[string]string
}

type fakeFirehose struct {
	rec     *recorder
	streams map[string]*fakeStream
}

func (f *fakeFirehose) DescribeDeliveryStream(_ context.Context, in *firehose.DescribeDeliveryStreamInput, _ ...func(*firehose.Options)) (*firehose.DescribeDeliveryStreamOutput, error) {
	if err := f.rec.observe("firehose.DescribeDeliveryStream", false); err != nil {
		return nil, err
	}
	s, ok := f.streams[aws.ToString(in.DeliveryStreamName)]
	if !ok {
		return nil, notFoundErr("ResourceNotFoundException")
	}
	return &firehose.DescribeDeliveryStreamOutput{
		DeliveryStreamDescription: &firehosetypes.DeliveryStreamDescription{
			DeliveryStreamName: in.DeliveryStreamName,
			VersionId:          aws.String(s.version),
			Destinations: []firehosetypes.DestinationDescription{{
				DestinationId:                    aws.String(s.destID),
				ExtendedS3DestinationDescription: s.dest,
			}},
		},
	}, nil
}

func (f *fakeFirehose) CreateDeliveryStream(_ context.Context, in *firehose.CreateDeliveryStreamInput, _ ...func(*firehose.Options)) (*firehose.CreateDeliveryStreamOutput, error) {
	if err := f.rec.observe("firehose.CreateDeliveryStream", true); err != nil {
		return nil, err
	}
	cfg := in.ExtendedS3DestinationConfiguration
	tags := map[string]string{}
	for _, t := range in.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	f.streams[aws.ToString(in.DeliveryStreamName)] = &fakeStream{
		version: "1",
		destID:  "destinationId-000000000001",
		dest: &firehosetypes.ExtendedS3DestinationDescription{
			RoleARN:           cfg.RoleARN,
			BucketARN:         cfg.BucketARN,
			Prefix:            cfg.Prefix,
			BufferingHints:    cfg.BufferingHints,
			CompressionFormat: cfg.CompressionFormat,
		},
		tags: tags,
	}
	return &firehose.CreateDeliveryStreamOutput{}, nil
}

func (f *fakeFirehose) UpdateDestination(_ context.Context, in *firehose.UpdateDestinationInput, _ ...func(*firehose.Options)) (*firehose.UpdateDestinationOutput, error) {
	if err := f.rec.observe("firehose.UpdateDestination", true); err != nil {
		return nil, err
	}
	s := f.streams[aws.ToString(in.DeliveryStreamName)]
	upd := in.ExtendedS3DestinationUpdate
	s.dest = &firehosetypes.ExtendedS3DestinationDescription{
		RoleARN:           upd.RoleARN,
		BucketARN:         upd.BucketARN,
		Prefix:            upd.Prefix,
		BufferingHints:    upd.BufferingHints,
		CompressionFormat: upd.CompressionFormat,
	}
	return &firehose.UpdateDestinationOutput{}, nil
}

func (f *fakeFirehose) ListTagsForDeliveryStream(_ context.Context, in *firehose.ListTagsForDeliveryStreamInput, _ ...func(*firehose.Options)) (*firehose.ListTagsForDeliveryStreamOutput, error) {
	if err := f.rec.observe("firehose.ListTagsForDeliveryStream", false); err != nil {
		return nil, err
	}
	out := &firehose.ListTagsForDeliveryStreamOutput{}
	for k, v := range f.streams[aws.ToString(in.DeliveryStreamName)].tags {
		out.Tags = append(out.Tags, firehosetypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

func (f *fakeFirehose) TagDeliveryStream(_ context.Context, in *firehose.TagDeliveryStreamInput, _ ...func(*firehose.Options)) (*firehose.TagDeliveryStreamOutput, error) {
	if err := f.rec.observe("firehose.TagDeliveryStream", true); err != nil {
		return nil, err
	}
	s := f.streams[aws.ToString(in.DeliveryStreamName)]
	for _, t := range in.Tags {
		s.tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return &firehose.TagDeliveryStreamOutput{}, nil
}

func (f *fakeFirehose) UntagDeliveryStream(_ context.Context, in *firehose.UntagDeliveryStreamInput, _ ...func(*firehose.Options)) (*firehose.UntagDeliveryStreamOutput, error) {
	if err := f.rec.observe("firehose.UntagDeliveryStream", true); err != nil {
		return nil, err
	}
	s := f.streams[aws.ToString(in.DeliveryStreamName)]
	for _, k := range in.TagKeys {
		delete(s.tags, k)
	}
	return &firehose.UntagDeliveryStreamOutput{}, nil
}

// --- Athena ---

type fakeAthena struct {
	rec        *recorder
	workgroups map[string]*athenatypes.WorkGroup
	tags       map[string]map[string]string
}

func (f *fakeAthena) GetWorkGroup(_ context.Context, in *athena.GetWorkGroupInput, _ ...func(*athena.Options)) (*athena.GetWorkGroupOutput, error) {
	if err := f.rec.observe("athena.GetWorkGroup", false); err != nil {
		return nil, err
	}
	wg, ok := f.workgroups[aws.ToString(in.WorkGroup)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidRequestException", Message: "WorkGroup is not found"}
	}
	return &athena.GetWorkGroupOutput{WorkGroup: wg}, nil
}

func (f *fakeAthena) CreateWorkGroup(_ context.Context, in *athena.CreateWorkGroupInput, _ ...func(*athena.Options)) (*athena.CreateWorkGroupOutput, error) {
	if err := f.rec.observe("athena.CreateWorkGroup", true); err != nil {
		return nil, err
	}
	name := aws.ToString(in.Name)
	f.workgroups[name] = &athenatypes.WorkGroup{Name: in.Name, Configuration: in.Configuration}
	tags := map[string]string{}
	for _, t := range in.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	f.tags[athenaWorkgroupARN("eu-west-2", testAccount, name)] = tags
	return &athena.CreateWorkGroupOutput{}, nil
}

func (f *fakeAthena) UpdateWorkGroup(_ context.Context, in *athena.UpdateWorkGroupInput, _ ...func(*athena.Options)) (*athena.UpdateWorkGroupOutput, error) {
	if err := f.rec.observe("athena.UpdateWorkGroup", true); err != nil {
		return nil, err
	}
	upd := in.ConfigurationUpdates
	f.workgroups[aws.ToString(in.WorkGroup)] = &athenatypes.WorkGroup{
		Name: in.WorkGroup,
		Configuration: &athenatypes.WorkGroupConfiguration{
			EnforceWorkGroupConfiguration: upd.EnforceWorkGroupConfiguration,
			ResultConfiguration: &athenatypes.ResultConfiguration{
				OutputLocation:          upd.ResultConfigurationUpdates.OutputLocation,
				EncryptionConfiguration: upd.ResultConfigurationUpdates.EncryptionConfiguration,
			},
		},
	}
	return &athena.UpdateWorkGroupOutput{}, nil
}

func (f *fakeAthena) ListTagsForResource(_ context.Context, in *athena.ListTagsForResourceInput, _ ...func(*athena.Options)) (*athena.ListTagsForResourceOutput, error) {
	if err := f.rec.observe("athena.ListTagsForResource", false); err != nil {
		return nil, err
	}
	out := &athena.ListTagsForResourceOutput{}
	for k, v := range f.tags[aws.ToString(in.ResourceARN)] {
		out.Tags = append(out.Tags, athenatypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

func (f *fakeAthena) TagResource(_ context.Context, in *athena.TagResourceInput, _ ...func(*athena.Options)) (*athena.TagResourceOutput, error) {
	if err := f.rec.observe("athena.TagResource", true); err != nil {
		return nil, err
	}
	arn := aws.ToString(in.ResourceARN)
	if f.tags[arn] == nil {
		f.tags[arn] = map[string]string{}
	}
	for _, t := range in.Tags {
		f.tags[arn][aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return &athena.TagResourceOutput{}, nil
}

func (f *fakeAthena) UntagResource(_ context.Context, in *athena.UntagResourceInput, _ ...func(*athena.Options)) (*athena.UntagResourceOutput, error) {
	if err := f.rec.observe("athena.UntagResource", true); err != nil {
		return nil, err
	}
	for _, k := range in.TagKeys {
		delete(f.tags[aws.ToString(in.ResourceARN)], k)
	}
	return &athena.UntagResourceOutput{}, nil
}

// --- EC2 ---

type fakeEndpoint struct {
	id      string
	vpc     string
	service string
	tags    map[string]string
}

type fakeEC2 struct {
	rec       *recorder
	endpoints []*fakeEndpoint
}

func (f *fakeEC2) DescribeVpcEndpoints(_ context.Context, in *ec2.DescribeVpcEndpointsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcEndpointsOutput, error) {
	if err := f.rec.observe("ec2.DescribeVpcEndpoints", false); err != nil {
		return nil, err
	}
	var vpc, service string
	for _, filter := range in.Filters {
		switch aws.ToString(filter.Name) {
		case "vpc-id":
			vpc = filter.Values[0]
		case "service-name":
			service = filter.Values[0]
		}
	}
	out := &ec2.DescribeVpcEndpointsOutput{}
	for _, ep := range f.endpoints {
		if ep.vpc != vpc || ep.service != service {
			continue
		}
		var tags []ec2types.Tag
		for k, v := range ep.tags {
			tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		out.VpcEndpoints = append(out.VpcEndpoints, ec2types.VpcEndpoint{
			VpcEndpointId: aws.String(ep.id),
			State:         ec2types.StateAvailable,
			Tags:          tags,
		})
	}
	return out, nil
}

func (f *fakeEC2) CreateVpcEndpoint(_ context.Context, in *ec2.CreateVpcEndpointInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcEndpointOutput, error) {
	if err := f.rec.observe("ec2.CreateVpcEndpoint", true); err != nil {
		return nil, err
	}
	tags := map[string]string{}
	for _, spec := range in.TagSpecifications {
		for _, t := range spec.Tags {
			tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
		}
	}
	f.endpoints = append(f.endpoints, &fakeEndpoint{
		id:      "vpce-" + aws.ToString(in.ServiceName),
		vpc:     aws.ToString(in.VpcId),
		service: aws.ToString(in.ServiceName),
		tags:    tags,
	})
	return &ec2.CreateVpcEndpointOutput{}, nil
}

func (f *fakeEC2) CreateTags(_ context.Context, in *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	if err := f.rec.observe("ec2.CreateTags", true); err != nil {
		return nil, err
	}
	for _, ep := range f.endpoints {
		if ep.id == in.Resources[0] {
			for _, t := range in.Tags {
				ep.tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
			}
		}
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (f *fakeEC2) DeleteTags(_ context.Context, in *ec2.DeleteTagsInput, _ ...func(*ec2.Options)) (*ec2.DeleteTagsOutput, error) {
	if err := f.rec.observe("ec2.DeleteTags", true); err != nil {
		return nil, err
	}
	for _, ep := range f.endpoints {
		if ep.id == in.Resources[0] {
			for _, t := range in.Tags {
				delete(ep.tags, aws.ToString(t.Key))
			}
		}
	}
	return &ec2.DeleteTagsOutput{}, nil
}

// --- Lake Formation ---

type fakeLakeFormation struct {
	rec         *recorder
	registered  map[string]bool
	admins      []string
	adminsSet   bool
	permissions map[string][]lftypes.Permission
}

func permKey(principal string, resource *lftypes.Resource) string {
	key := principal + "|"
	if resource.Database != nil {
		key += "db:" + aws.ToString(resource.Database.Name)
	}
	if resource.DataLocation != nil {
		key += "loc:" + aws.ToString(resource.DataLocation.ResourceArn)
	}
	return key
}

func (f *fakeLakeFormation) DescribeResource(_ context.Context, in *lakeformation.DescribeResourceInput, _ ...func(*lakeformation.Options)) (*lakeformation.DescribeResourceOutput, error) {
	if err := f.rec.observe("lakeformation.DescribeResource", false); err != nil {
		return nil, err
	}
	if !f.registered[aws.ToString(in.ResourceArn)] {
		return nil, notFoundErr("EntityNotFoundException")
	}
	return &lakeformation.DescribeResourceOutput{}, nil
}

func (f *fakeLakeFormation) RegisterResource(_ context.Context, in *lakeformation.RegisterResourceInput, _ ...func(*lakeformation.Options)) (*lakeformation.RegisterResourceOutput, error) {
	if err := f.rec.observe("lakeformation.RegisterResource", true); err != nil {
		return nil, err
	}
	f.registered[aws.ToString(in.ResourceArn)] = true
	return &lakeformation.RegisterResourceOutput{}, nil
}

func (f *fakeLakeFormation) GetDataLakeSettings(_ context.Context, _ *lakeformation.GetDataLakeSettingsInput, _ ...func(*lakeformation.Options)) (*lakeformation.GetDataLakeSettingsOutput, error) {
	if err := f.rec.observe("lakeformation.GetDataLakeSettings", false); err != nil {
		return nil, err
	}
	settings := &lftypes.DataLakeSettings{}
	if !f.adminsSet {
		// Fresh accounts carry IAM-compatible default permissions.
		settings.CreateDatabaseDefaultPermissions = []lftypes.PrincipalPermissions{{}}
		settings.CreateTableDefaultPermissions = []lftypes.PrincipalPermissions{{}}
	}
	for _, admin := range f.admins {
		settings.DataLakeAdmins = append(settings.DataLakeAdmins, lftypes.DataLakePrincipal{
			DataLakePrincipalIdentifier: aws.String(admin),
		})
	}
	return &lakeformation.GetDataLakeSettingsOutput{DataLakeSettings: settings}, nil
}

func (f *fakeLakeFormation) PutDataLakeSettings(_ context.Context, in *lakeformation.PutDataLakeSettingsInput, _ ...func(*lakeformation.Options)) (*lakeformation.PutDataLakeSettingsOutput, error) {
	if err := f.rec.observe("lakeformation.PutDataLakeSettings", true); err != nil {
		return nil, err
	}
	f.admins = nil
	for _, p := range in.DataLakeSettings.DataLakeAdmins {
		f.admins = append(f.admins, aws.ToString(p.DataLakePrincipalIdentifier))
	}
	f.adminsSet = true
	return &lakeformation.PutDataLakeSettingsOutput{}, nil
}

func (f *fakeLakeFormation) ListPermissions(_ context.Context, in *lakeformation.ListPermissionsInput, _ ...func(*lakeformation.Options)) (*lakeformation.ListPermissionsOutput, error) {
	if err := f.rec.observe("lakeformation.ListPermissions", false); err != nil {
		return nil, err
	}
	key := permKey(aws.ToString(in.Principal.DataLakePrincipalIdentifier), in.Resource)
	perms := f.permissions[key]
	out := &lakeformation.ListPermissionsOutput{}
	if len(perms) > 0 {
		out.PrincipalResourcePermissions = []lftypes.PrincipalResourcePermissions{{
			Principal:   in.Principal,
			Resource:    in.Resource,
			Permissions: perms,
		}}
	}
	return out, nil
}

func (f *fakeLakeFormation) GrantPermissions(_ context.Context, in *lakeformation.GrantPermissionsInput, _ ...func(*lakeformation.Options)) (*lakeformation.GrantPermissionsOutput, error) {
	if err := f.rec.observe("lakeformation.GrantPermissions", true); err != nil {
		return nil, err
	}
	key := permKey(aws.ToString(in.Principal.DataLakePrincipalIdentifier), in.Resource)
	f.permissions[key] = append(f.permissions[key], in.Permissions...)
	return &lakeformation.GrantPermissionsOutput{}, nil
}

// --- STS ---

type fakeSTS struct {
	rec *recorder
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if err := f.rec.observe("sts.GetCallerIdentity", false); err != nil {
		return nil, err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(testAccount),
		Arn:     aws.String(testCallerARN),
	}, nil
}
