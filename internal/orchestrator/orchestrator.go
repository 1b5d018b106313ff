// Package orchestrator runs one sync pass: fetch GitHub's webhook ranges once,
// then reconcile every configured prefix list in order.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/sirupsen/logrus"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/config"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/kvs"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/source"
)

// Fetcher returns the current source CIDRs.
type Fetcher interface {
	Fetch(ctx context.Context) ([]string, error)
}

// ClientFactory returns the EC2 client for a target.
type ClientFactory interface {
	EC2(ctx context.Context, target config.Target) (prefixlist.EC2API, error)
}

// Mirror receives the partitioned CIDRs after every prefix list has been reconciled.
type Mirror interface {
	Apply(ctx context.Context, ipv4, ipv6 prefixlist.Set) (*kvs.SyncPlan, error)
}

// Options configures an Orchestrator.
type Options struct {
	Targets []config.Target
	Fetcher Fetcher
	Clients ClientFactory
	Mirror  Mirror // Optional

	OnFetchError     string // config.OnFetchError*; empty means reconcile-empty
	EntryDescription string
	DryRun           bool

	// Waiter settings applied to each list's resize wait.
	Clock        clock.Clock
	PollInterval time.Duration
	MaxAttempts  int
}

// Orchestrator holds the immutable configuration of a sync run.
type Orchestrator struct {
	opts    Options
	targets []config.Target
}

// New copies opts.Targets so later changes by the caller have no effect.
func New(opts Options) *Orchestrator {
	targets := make([]config.Target, len(opts.Targets))
	copy(targets, opts.Targets)
	if opts.Clock == nil {
		opts.Clock = clock.NewClock()
	}
	if opts.OnFetchError == "" {
		opts.OnFetchError = config.OnFetchErrorReconcileEmpty
	}
	return &Orchestrator{opts: opts, targets: targets}
}

// ListReport is the outcome for one prefix list.
type ListReport struct {
	Region string
	Family string // "ipv4" or "ipv6"
	*prefixlist.Result
}

// Report summarizes a run.
type Report struct {
	Skipped    bool
	FetchError error // Set when the fetch failed, whatever the policy
	Rejected   []string
	Lists      []ListReport
	Mirror     *kvs.SyncPlan // Nil when no mirror is configured
}

// Run fetches the source once and reconciles every target sequentially,
// IPv4 list before IPv6 list. The first error aborts the run; lists already
// reconciled stay reconciled.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	cidrs, err := o.opts.Fetcher.Fetch(ctx)
	if err != nil {
		report.FetchError = err
		if o.opts.OnFetchError == config.OnFetchErrorSkip {
			logrus.WithError(err).Warn("Source unavailable, leaving prefix lists unchanged")
			report.Skipped = true
			return report, nil
		}
		logrus.WithError(err).Warn("Source unavailable, reconciling against an empty range list")
		cidrs = nil
	}

	parts := source.Partition(cidrs)
	report.Rejected = parts.Rejected
	logrus.WithFields(logrus.Fields{
		"ipv4":     parts.IPv4.Cardinality(),
		"ipv6":     parts.IPv6.Cardinality(),
		"rejected": len(parts.Rejected),
	}).Info("Fetched source ranges")

	for _, target := range o.targets {
		lists, err := o.reconcileTarget(ctx, target, parts)
		report.Lists = append(report.Lists, lists...)
		if err != nil {
			return report, err
		}
	}

	if o.opts.Mirror != nil {
		plan, err := o.opts.Mirror.Apply(ctx, parts.IPv4, parts.IPv6)
		if err != nil {
			return report, fmt.Errorf("mirroring to KVS: %w", err)
		}
		report.Mirror = plan
	}
	return report, nil
}

func (o *Orchestrator) reconcileTarget(ctx context.Context, target config.Target, parts source.Partitioned) ([]ListReport, error) {
	client, err := o.opts.Clients.EC2(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("creating EC2 client for %s: %w", target.Region, err)
	}

	r := &prefixlist.Reconciler{
		Client: client,
		Waiter: &prefixlist.Waiter{
			Client:      client,
			Clock:       o.opts.Clock,
			Interval:    o.opts.PollInterval,
			MaxAttempts: o.opts.MaxAttempts,
		},
		Description: o.opts.EntryDescription,
		DryRun:      o.opts.DryRun,
	}

	var reports []ListReport
	for _, l := range []struct {
		family  string
		id      string
		desired prefixlist.Set
	}{
		{"ipv4", target.IPv4ListID, parts.IPv4},
		{"ipv6", target.IPv6ListID, parts.IPv6},
	} {
		if l.id == "" {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"region":      target.Region,
			"prefix_list": l.id,
			"family":      l.family,
			"desired":     l.desired.Cardinality(),
		}).Info("Reconciling prefix list")

		res, err := r.Reconcile(ctx, l.id, l.desired)
		if err != nil {
			return reports, fmt.Errorf("reconciling %s prefix list %s in %s: %w", l.family, l.id, target.Region, err)
		}
		reports = append(reports, ListReport{Region: target.Region, Family: l.family, Result: res})
	}
	return reports, nil
}
