package prefixlist

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/sirupsen/logrus"
)

// Resize grows the capacity of a prefix list to newMaxEntries.
// It only submits the change; use a Waiter to block until AWS has applied it.
func Resize(ctx context.Context, client ModifyAPI, prefixListID string, newMaxEntries int32) error {
	logrus.WithFields(logrus.Fields{
		"prefix_list": prefixListID,
		"max_entries": newMaxEntries,
	}).Info("Growing prefix list capacity")

	_, err := client.ModifyManagedPrefixList(ctx, &ec2.ModifyManagedPrefixListInput{
		PrefixListId: aws.String(prefixListID),
		MaxEntries:   aws.Int32(newMaxEntries),
	})
	if err != nil {
		return fmt.Errorf("resizing prefix list %s to %d entries: %w", prefixListID, newMaxEntries, err)
	}
	return nil
}
