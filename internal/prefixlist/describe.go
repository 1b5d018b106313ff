package prefixlist

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// ErrNotFound is returned when DescribeManagedPrefixLists does not return the requested list.
var ErrNotFound = errors.New("prefix list not found")

// entriesPageSize is the largest page GetManagedPrefixListEntries accepts.
const entriesPageSize = 100

// Canonical returns the canonical text form of a CIDR with host bits cleared.
// Strings that do not parse are returned unchanged.
func Canonical(cidr string) string {
	p, err := netip.ParsePrefix(cidr)
	if err != nil {
		return cidr
	}
	return p.Masked().String()
}

// DescribeList reads the metadata of a prefix list (version, capacity, state)
// without its entries.
func DescribeList(ctx context.Context, client DescribeAPI, prefixListID string) (*Snapshot, error) {
	resp, err := client.DescribeManagedPrefixLists(ctx, &ec2.DescribeManagedPrefixListsInput{
		PrefixListIds: []string{prefixListID},
	})
	if err != nil {
		return nil, fmt.Errorf("describing prefix list %s: %w", prefixListID, err)
	}
	for _, pl := range resp.PrefixLists {
		if aws.ToString(pl.PrefixListId) != prefixListID {
			continue
		}
		return &Snapshot{
			ID:            prefixListID,
			Name:          aws.ToString(pl.PrefixListName),
			AddressFamily: aws.ToString(pl.AddressFamily),
			Version:       aws.ToInt64(pl.Version),
			MaxEntries:    aws.ToInt32(pl.MaxEntries),
			State:         pl.State,
			StateMessage:  aws.ToString(pl.StateMessage),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, prefixListID)
}

// FetchEntries retrieves every current entry of a prefix list.
func FetchEntries(ctx context.Context, client DescribeAPI, prefixListID string) (Set, error) {
	entries := NewSet()
	paginator := ec2.NewGetManagedPrefixListEntriesPaginator(client, &ec2.GetManagedPrefixListEntriesInput{
		PrefixListId: aws.String(prefixListID),
		MaxResults:   aws.Int32(entriesPageSize),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing entries of prefix list %s: %w", prefixListID, err)
		}
		for _, e := range page.Entries {
			if e.Cidr == nil {
				continue
			}
			entries.Add(Canonical(*e.Cidr))
		}
	}
	return entries, nil
}

// Describe reads a full snapshot of a prefix list: metadata and entries.
func Describe(ctx context.Context, client DescribeAPI, prefixListID string) (*Snapshot, error) {
	snap, err := DescribeList(ctx, client, prefixListID)
	if err != nil {
		return nil, err
	}
	entries, err := FetchEntries(ctx, client, prefixListID)
	if err != nil {
		return nil, err
	}
	snap.Entries = entries
	return snap, nil
}
