package prefixlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// Reconciler brings a single prefix list in line with a desired set of CIDRs.
type Reconciler struct {
	Client EC2API
	Waiter *Waiter

	// Description is attached to added entries. Empty means DefaultDescription.
	Description string

	// DryRun computes and logs the delta without resizing or modifying anything.
	DryRun bool
}

// NewReconciler returns a Reconciler using a default Waiter on the same client.
func NewReconciler(client EC2API) *Reconciler {
	return &Reconciler{
		Client:      client,
		Waiter:      NewWaiter(client),
		Description: DefaultDescription,
	}
}

// Reconcile reads the prefix list, grows its capacity if desired does not fit,
// and applies the add/remove delta in one modify call carrying the version read
// up front. A concurrent change to the list surfaces as an error from AWS.
func (r *Reconciler) Reconcile(ctx context.Context, prefixListID string, desired Set) (*Result, error) {
	if desired == nil {
		desired = NewSet()
	}
	log := logrus.WithField("prefix_list", prefixListID)

	snap, err := Describe(ctx, r.Client, prefixListID)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"version":     snap.Version,
		"max_entries": snap.MaxEntries,
		"state":       snap.State,
		"entries":     snap.Entries.Cardinality(),
	}).Debug("Read prefix list")

	if isPendingState(snap.State) && !r.DryRun {
		log.WithField("state", snap.State).Info("Prefix list is busy, waiting before reconciling")
		if _, err := r.waiter().AwaitSettled(ctx, prefixListID); err != nil {
			return nil, err
		}
		if snap, err = Describe(ctx, r.Client, prefixListID); err != nil {
			return nil, err
		}
	}

	result := &Result{PrefixListID: prefixListID, DryRun: r.DryRun}

	if want := int32(desired.Cardinality()); want > snap.MaxEntries {
		result.ResizedTo = want
		if r.DryRun {
			log.WithField("max_entries", want).Info("Dry run: would grow prefix list capacity")
		} else {
			if err := Resize(ctx, r.Client, prefixListID, want); err != nil {
				return nil, err
			}
			if _, err := r.waiter().AwaitStable(ctx, prefixListID); err != nil {
				return nil, err
			}
		}
	}

	description := r.Description
	if description == "" {
		description = DefaultDescription
	}
	delta := ComputeDelta(desired, snap.Entries, description)
	result.Added = CIDRs(delta.Add)
	result.Removed = CIDRs(delta.Remove)

	if delta.Empty() {
		log.Info("No changes to prefix list")
		result.NoOp = true
		return result, nil
	}

	fields := logrus.Fields{"add": result.Added, "remove": result.Removed}
	if r.DryRun {
		log.WithFields(fields).Info("Dry run: would modify prefix list entries")
		return result, nil
	}

	if err := r.apply(ctx, snap, delta); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			fields["aws_error_code"] = apiErr.ErrorCode()
		}
		log.WithFields(fields).WithError(err).Error("Failed to modify prefix list entries")
		return nil, err
	}
	log.WithFields(fields).Info("Updated prefix list")
	return result, nil
}

func (r *Reconciler) waiter() *Waiter {
	if r.Waiter == nil {
		r.Waiter = NewWaiter(r.Client)
	}
	return r.Waiter
}

func (r *Reconciler) apply(ctx context.Context, snap *Snapshot, delta Delta) error {
	input := &ec2.ModifyManagedPrefixListInput{
		PrefixListId:   aws.String(snap.ID),
		CurrentVersion: aws.Int64(snap.Version),
	}
	for _, e := range delta.Add {
		input.AddEntries = append(input.AddEntries, ec2types.AddPrefixListEntry{
			Cidr:        aws.String(e.CIDR),
			Description: aws.String(e.Description),
		})
	}
	for _, e := range delta.Remove {
		input.RemoveEntries = append(input.RemoveEntries, ec2types.RemovePrefixListEntry{
			Cidr: aws.String(e.CIDR),
		})
	}

	if _, err := r.Client.ModifyManagedPrefixList(ctx, input); err != nil {
		return fmt.Errorf("modifying entries of prefix list %s at version %d (%d adds, %d removes): %w",
			snap.ID, snap.Version, len(delta.Add), len(delta.Remove), err)
	}
	return nil
}
