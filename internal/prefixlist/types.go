package prefixlist

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	mapset "github.com/deckarep/golang-set/v2"
)

// DescribeAPI is the read side of the EC2 managed prefix list API.
type DescribeAPI interface {
	DescribeManagedPrefixLists(ctx context.Context, params *ec2.DescribeManagedPrefixListsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeManagedPrefixListsOutput, error)
	GetManagedPrefixListEntries(ctx context.Context, params *ec2.GetManagedPrefixListEntriesInput, optFns ...func(*ec2.Options)) (*ec2.GetManagedPrefixListEntriesOutput, error)
}

// ModifyAPI is the write side of the EC2 managed prefix list API.
type ModifyAPI interface {
	ModifyManagedPrefixList(ctx context.Context, params *ec2.ModifyManagedPrefixListInput, optFns ...func(*ec2.Options)) (*ec2.ModifyManagedPrefixListOutput, error)
}

// EC2API abstracts the subset of the EC2 API used to manage prefix lists.
type EC2API interface {
	DescribeAPI
	ModifyAPI
}

var _ EC2API = (*ec2.Client)(nil)

// Set is an unordered set of canonical CIDR strings.
type Set = mapset.Set[string]

// NewSet returns a Set holding cidrs.
func NewSet(cidrs ...string) Set {
	return mapset.NewThreadUnsafeSet(cidrs...)
}

// Sorted returns the members of s in lexical order.
func Sorted(s Set) []string {
	if s == nil {
		return nil
	}
	out := s.ToSlice()
	sort.Strings(out)
	return out
}

// Snapshot is a point-in-time read of a managed prefix list.
// Version is the optimistic concurrency token required by ModifyManagedPrefixList.
type Snapshot struct {
	ID            string
	Name          string
	AddressFamily string
	Version       int64
	MaxEntries    int32
	State         ec2types.PrefixListState
	StateMessage  string
	Entries       Set
}

// Entry is a single prefix list entry.
type Entry struct {
	CIDR        string
	Description string
}

// Delta describes the entry changes needed to bring a prefix list to its desired contents.
type Delta struct {
	Add    []Entry // Entries to create
	Remove []Entry // Entries to delete; Description is unused
}

// Empty reports whether the delta carries no changes.
func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Result summarizes one reconciliation pass over a single prefix list.
type Result struct {
	PrefixListID string
	Added        []string
	Removed      []string
	ResizedTo    int32 // Zero when no resize was needed
	NoOp         bool
	DryRun       bool
}
