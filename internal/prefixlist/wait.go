package prefixlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval is the fixed delay between state checks.
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxAttempts bounds the wait to five minutes at the default interval.
	DefaultMaxAttempts = 60
)

var (
	// ErrWaitTimeout is returned when a prefix list is still modifying after MaxAttempts polls.
	ErrWaitTimeout = errors.New("timed out waiting for prefix list modification")

	// ErrModificationFailed is returned when AWS reports a failed state for the prefix list.
	ErrModificationFailed = errors.New("prefix list modification failed")
)

// Waiter polls a prefix list until a pending modification settles.
type Waiter struct {
	Client DescribeAPI
	Clock  clock.Clock

	// Interval between polls. Zero means DefaultPollInterval.
	Interval time.Duration

	// MaxAttempts is the number of polls before giving up. Zero means poll forever.
	MaxAttempts int
}

// NewWaiter returns a Waiter with the default interval and attempt limit.
func NewWaiter(client DescribeAPI) *Waiter {
	return &Waiter{
		Client:      client,
		Clock:       clock.NewClock(),
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// AwaitStable blocks until the prefix list reports modify-complete and returns
// the settled metadata. Every attempt sleeps for the interval before describing.
func (w *Waiter) AwaitStable(ctx context.Context, prefixListID string) (*Snapshot, error) {
	return w.poll(ctx, prefixListID, func(state ec2types.PrefixListState) bool {
		return state == ec2types.PrefixListStateModifyComplete
	})
}

// AwaitSettled blocks until the prefix list leaves any in-progress state,
// accepting create-complete and restore-complete as well as modify-complete.
func (w *Waiter) AwaitSettled(ctx context.Context, prefixListID string) (*Snapshot, error) {
	return w.poll(ctx, prefixListID, isCompleteState)
}

func (w *Waiter) poll(ctx context.Context, prefixListID string, done func(ec2types.PrefixListState) bool) (*Snapshot, error) {
	clk := w.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	log := logrus.WithField("prefix_list", prefixListID)
	for attempt := 1; w.MaxAttempts <= 0 || attempt <= w.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-clk.After(interval):
		}

		snap, err := DescribeList(ctx, w.Client, prefixListID)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"state":   snap.State,
			"attempt": attempt,
		}).Info("Polled prefix list state")

		switch {
		case done(snap.State):
			return snap, nil
		case isFailedState(snap.State):
			return nil, fmt.Errorf("%w: %s is %s: %s", ErrModificationFailed, prefixListID, snap.State, snap.StateMessage)
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrWaitTimeout, prefixListID, w.MaxAttempts)
}

func isFailedState(state ec2types.PrefixListState) bool {
	switch state {
	case ec2types.PrefixListStateModifyFailed,
		ec2types.PrefixListStateCreateFailed,
		ec2types.PrefixListStateRestoreFailed,
		ec2types.PrefixListStateDeleteFailed:
		return true
	}
	return false
}

func isPendingState(state ec2types.PrefixListState) bool {
	switch state {
	case ec2types.PrefixListStateCreateInProgress,
		ec2types.PrefixListStateModifyInProgress,
		ec2types.PrefixListStateRestoreInProgress:
		return true
	}
	return false
}

func isCompleteState(state ec2types.PrefixListState) bool {
	switch state {
	case ec2types.PrefixListStateCreateComplete,
		ec2types.PrefixListStateModifyComplete,
		ec2types.PrefixListStateRestoreComplete:
		return true
	}
	return false
}
