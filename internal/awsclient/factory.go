// Package awsclient builds AWS service clients for each configured target.
package awsclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/sirupsen/logrus"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/config"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
)

// roleSessionName identifies sync runs in CloudTrail when a target role is assumed.
const roleSessionName = "github-hooks-prefix-list-sync"

// Factory creates one EC2 client per (region, role) pair and reuses it for the
// lifetime of the process, so warm Lambda invocations skip credential setup.
type Factory struct {
	base aws.Config

	mu  sync.Mutex
	ec2 map[clientKey]*ec2.Client
}

type clientKey struct {
	region  string
	roleARN string
}

// Load resolves the default AWS configuration (environment, shared config,
// instance or task role) once.
func Load(ctx context.Context) (*Factory, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return New(cfg), nil
}

// New returns a Factory deriving every client from base.
func New(base aws.Config) *Factory {
	return &Factory{base: base, ec2: make(map[clientKey]*ec2.Client)}
}

// EC2 returns the client used to manage target's prefix lists.
func (f *Factory) EC2(ctx context.Context, target config.Target) (prefixlist.EC2API, error) {
	if target.Region == "" {
		return nil, fmt.Errorf("target has no region")
	}
	key := clientKey{region: target.Region, roleARN: target.RoleARN}

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.ec2[key]; ok {
		return c, nil
	}

	cfg := f.forRegion(target.Region, target.RoleARN)
	logrus.WithFields(logrus.Fields{
		"region":   target.Region,
		"role_arn": target.RoleARN,
	}).Debug("Created EC2 client")

	c := ec2.NewFromConfig(cfg)
	f.ec2[key] = c
	return c, nil
}

// CloudFront returns the clients used by the KeyValueStore mirror.
func (f *Factory) CloudFront(region string) (*cloudfront.Client, *cloudfrontkeyvaluestore.Client) {
	cfg := f.forRegion(region, "")
	return cloudfront.NewFromConfig(cfg), cloudfrontkeyvaluestore.NewFromConfig(cfg)
}

func (f *Factory) forRegion(region, roleARN string) aws.Config {
	cfg := f.base.Copy()
	if region != "" {
		cfg.Region = region
	}
	if roleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), roleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = roleSessionName
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	return cfg
}
