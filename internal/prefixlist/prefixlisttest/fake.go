// Package prefixlisttest provides an in-memory EC2 managed prefix list API for tests.
package prefixlisttest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// List is the server-side state of one fake prefix list.
type List struct {
	Name       string
	Version    int64
	MaxEntries int32
	State      ec2types.PrefixListState
	Entries    []string

	// ResizeStates is the sequence of states reported by describes while the
	// list is in progress. Once exhausted the list reports the matching
	// complete state (modify-complete after a resize).
	ResizeStates []ec2types.PrefixListState
}

var settlesTo = map[ec2types.PrefixListState]ec2types.PrefixListState{
	ec2types.PrefixListStateCreateInProgress:  ec2types.PrefixListStateCreateComplete,
	ec2types.PrefixListStateModifyInProgress:  ec2types.PrefixListStateModifyComplete,
	ec2types.PrefixListStateRestoreInProgress: ec2types.PrefixListStateRestoreComplete,
}

// Call records one API call against the fake.
type Call struct {
	Op           string // "describe", "entries", "resize", "modify"
	PrefixListID string
	Version      int64 // CurrentVersion on modify
	MaxEntries   int32 // MaxEntries on resize
	Add          []string
	Remove       []string
	State        ec2types.PrefixListState // State observed by the caller before this call
}

// EC2 is a fake of the prefix list subset of the EC2 API.
type EC2 struct {
	mu    sync.Mutex
	Lists map[string]*List
	Calls []Call

	// PageSize limits entries returned per GetManagedPrefixListEntries page.
	PageSize int

	// Err, when set, is returned by every call whose Op is a key.
	Err map[string]error
}

// New returns a fake holding lists.
func New(lists map[string]*List) *EC2 {
	if lists == nil {
		lists = map[string]*List{}
	}
	return &EC2{Lists: lists, Err: map[string]error{}}
}

// Ops returns the Op of every recorded call, in order.
func (f *EC2) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// CallsOf returns the recorded calls with the given Op.
func (f *EC2) CallsOf(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// SortedEntries returns the current entries of a list in lexical order.
func (f *EC2) SortedEntries(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.Lists[id]
	if !ok {
		return nil
	}
	out := append([]string(nil), l.Entries...)
	sort.Strings(out)
	return out
}

func (f *EC2) DescribeManagedPrefixLists(ctx context.Context, params *ec2.DescribeManagedPrefixListsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeManagedPrefixListsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := ""
	if len(params.PrefixListIds) > 0 {
		id = params.PrefixListIds[0]
	}
	f.Calls = append(f.Calls, Call{Op: "describe", PrefixListID: id})
	if err := f.Err["describe"]; err != nil {
		return nil, err
	}

	out := &ec2.DescribeManagedPrefixListsOutput{}
	for _, want := range params.PrefixListIds {
		l, ok := f.Lists[want]
		if !ok {
			return nil, &smithy.GenericAPIError{Code: "InvalidPrefixListID.NotFound", Message: "The prefix list ID '" + want + "' does not exist"}
		}
		if complete, ok := settlesTo[l.State]; ok {
			if len(l.ResizeStates) > 0 {
				l.State = l.ResizeStates[0]
				l.ResizeStates = l.ResizeStates[1:]
			} else {
				l.State = complete
			}
		}
		out.PrefixLists = append(out.PrefixLists, ec2types.ManagedPrefixList{
			PrefixListId:   aws.String(want),
			PrefixListName: aws.String(l.Name),
			AddressFamily:  aws.String("IPv4"),
			Version:        aws.Int64(l.Version),
			MaxEntries:     aws.Int32(l.MaxEntries),
			State:          l.State,
		})
	}
	return out, nil
}

func (f *EC2) GetManagedPrefixListEntries(ctx context.Context, params *ec2.GetManagedPrefixListEntriesInput, optFns ...func(*ec2.Options)) (*ec2.GetManagedPrefixListEntriesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(params.PrefixListId)
	f.Calls = append(f.Calls, Call{Op: "entries", PrefixListID: id})
	if err := f.Err["entries"]; err != nil {
		return nil, err
	}
	l, ok := f.Lists[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidPrefixListID.NotFound", Message: "The prefix list ID '" + id + "' does not exist"}
	}

	start := 0
	if params.NextToken != nil {
		n, err := strconv.Atoi(*params.NextToken)
		if err != nil {
			return nil, fmt.Errorf("bad next token %q", *params.NextToken)
		}
		start = n
	}
	end := len(l.Entries)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &ec2.GetManagedPrefixListEntriesOutput{}
	for _, cidr := range l.Entries[start:end] {
		out.Entries = append(out.Entries, ec2types.PrefixListEntry{
			Cidr:        aws.String(cidr),
			Description: aws.String("existing"),
		})
	}
	if end < len(l.Entries) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *EC2) ModifyManagedPrefixList(ctx context.Context, params *ec2.ModifyManagedPrefixListInput, optFns ...func(*ec2.Options)) (*ec2.ModifyManagedPrefixListOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(params.PrefixListId)
	l, ok := f.Lists[id]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "InvalidPrefixListID.NotFound", Message: "The prefix list ID '" + id + "' does not exist"}
	}

	if params.MaxEntries != nil {
		f.Calls = append(f.Calls, Call{Op: "resize", PrefixListID: id, MaxEntries: *params.MaxEntries, State: l.State})
		if err := f.Err["resize"]; err != nil {
			return nil, err
		}
		l.MaxEntries = *params.MaxEntries
		l.State = ec2types.PrefixListStateModifyInProgress
		return &ec2.ModifyManagedPrefixListOutput{}, nil
	}

	call := Call{Op: "modify", PrefixListID: id, Version: aws.ToInt64(params.CurrentVersion), State: l.State}
	for _, e := range params.AddEntries {
		call.Add = append(call.Add, aws.ToString(e.Cidr))
	}
	for _, e := range params.RemoveEntries {
		call.Remove = append(call.Remove, aws.ToString(e.Cidr))
	}
	f.Calls = append(f.Calls, call)
	if err := f.Err["modify"]; err != nil {
		return nil, err
	}
	if _, busy := settlesTo[l.State]; busy {
		return nil, &smithy.GenericAPIError{Code: "IncorrectState", Message: "The prefix list is in state " + string(l.State)}
	}
	if call.Version != l.Version {
		return nil, &smithy.GenericAPIError{Code: "PrefixListVersionMismatch", Message: fmt.Sprintf("The prefix list has version %d", l.Version)}
	}

	remove := make(map[string]bool, len(call.Remove))
	for _, c := range call.Remove {
		remove[c] = true
	}
	var entries []string
	for _, c := range l.Entries {
		if !remove[c] {
			entries = append(entries, c)
		}
	}
	entries = append(entries, call.Add...)
	if int32(len(entries)) > l.MaxEntries {
		return nil, &smithy.GenericAPIError{Code: "PrefixListMaxEntriesExceeded", Message: "The prefix list has too many entries"}
	}
	l.Entries = entries
	l.Version++
	l.State = ec2types.PrefixListStateModifyComplete
	return &ec2.ModifyManagedPrefixListOutput{}, nil
}
