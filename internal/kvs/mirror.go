package kvs

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
)

// Mirror keeps a named CloudFront KeyValueStore holding the same CIDRs as the
// managed prefix lists.
type Mirror struct {
	Resolver ARNResolver
	Client   KVSClient
	Name     string
	DryRun   bool

	arn string
}

// Apply writes ipv4 and ipv6 into the store, deleting keys that are no longer wanted.
func (m *Mirror) Apply(ctx context.Context, ipv4, ipv6 prefixlist.Set) (*SyncPlan, error) {
	desired := FromSets(ipv4, ipv6)
	if verrs := desired.Validate(); len(verrs) > 0 {
		errs := make([]error, 0, len(verrs))
		for _, e := range verrs {
			errs = append(errs, e)
		}
		return nil, fmt.Errorf("validating KVS data: %w", errors.Join(errs...))
	}

	if m.arn == "" {
		arn, err := ResolveARN(ctx, m.Resolver, m.Name)
		if err != nil {
			return nil, fmt.Errorf("resolving KVS %s: %w", m.Name, err)
		}
		m.arn = arn
	}
	log := logrus.WithField("kvs", m.arn)

	existing, etag, err := FetchExistingKeys(ctx, m.Client, m.arn)
	if err != nil {
		return nil, err
	}
	plan := ComputeSyncPlan(desired, existing)
	stats := desired.Stats()
	fields := logrus.Fields{
		"puts":    len(plan.Puts),
		"deletes": len(plan.Deletes),
		"keys":    stats.NumKeys,
		"bytes":   stats.TotalBytes,
	}

	if plan.Empty() {
		log.WithFields(fields).Info("No changes to KVS")
		return plan, nil
	}
	if m.DryRun {
		log.WithFields(fields).Info("Dry run: would update KVS")
		return plan, nil
	}
	if err := Sync(ctx, m.Client, m.arn, etag, plan); err != nil {
		return nil, err
	}
	log.WithFields(fields).Info("Updated KVS")
	return plan, nil
}
