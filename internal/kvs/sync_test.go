package kvs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore"
	cfkvstypes "github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore/types"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
)

// fakeKVS is an in-memory KeyValueStore that enforces ETag matching.
type fakeKVS struct {
	items    map[string]string
	etag     int
	pageSize int
	updates  []*cloudfrontkeyvaluestore.UpdateKeysInput
	failWith error
}

func newFakeKVS(items map[string]string) *fakeKVS {
	if items == nil {
		items = map[string]string{}
	}
	return &fakeKVS{items: items, etag: 1}
}

func (f *fakeKVS) DescribeKeyValueStore(ctx context.Context, params *cloudfrontkeyvaluestore.DescribeKeyValueStoreInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.DescribeKeyValueStoreOutput, error) {
	return &cloudfrontkeyvaluestore.DescribeKeyValueStoreOutput{ETag: aws.String(strconv.Itoa(f.etag))}, nil
}

func (f *fakeKVS) ListKeys(ctx context.Context, params *cloudfrontkeyvaluestore.ListKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.ListKeysOutput, error) {
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if params.NextToken != nil {
		start, _ = strconv.Atoi(*params.NextToken)
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}
	out := &cloudfrontkeyvaluestore.ListKeysOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, cfkvstypes.ListKeysResponseListItem{Key: aws.String(k), Value: aws.String(f.items[k])})
	}
	if end < len(keys) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (f *fakeKVS) UpdateKeys(ctx context.Context, params *cloudfrontkeyvaluestore.UpdateKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.UpdateKeysOutput, error) {
	f.updates = append(f.updates, params)
	if f.failWith != nil {
		return nil, f.failWith
	}
	if aws.ToString(params.IfMatch) != strconv.Itoa(f.etag) {
		return nil, fmt.Errorf("etag mismatch: got %s, have %d", aws.ToString(params.IfMatch), f.etag)
	}
	if n := len(params.Puts) + len(params.Deletes); n > maxKeysPerBatch {
		return nil, fmt.Errorf("batch of %d exceeds limit", n)
	}
	for _, p := range params.Puts {
		f.items[*p.Key] = *p.Value
	}
	for _, d := range params.Deletes {
		delete(f.items, *d.Key)
	}
	f.etag++
	return &cloudfrontkeyvaluestore.UpdateKeysOutput{ETag: aws.String(strconv.Itoa(f.etag))}, nil
}

type fakeResolver struct {
	pages [][]cftypes.KeyValueStore
}

func (f *fakeResolver) ListKeyValueStores(ctx context.Context, params *cloudfront.ListKeyValueStoresInput, optFns ...func(*cloudfront.Options)) (*cloudfront.ListKeyValueStoresOutput, error) {
	page := 0
	if params.Marker != nil {
		page, _ = strconv.Atoi(*params.Marker)
	}
	list := &cftypes.KeyValueStoreList{Items: f.pages[page]}
	if page+1 < len(f.pages) {
		list.NextMarker = aws.String(strconv.Itoa(page + 1))
	}
	return &cloudfront.ListKeyValueStoresOutput{KeyValueStoreList: list}, nil
}

func TestFromSets(t *testing.T) {
	d := FromSets(prefixlist.NewSet("192.30.252.0/22", "140.82.112.0/20"), prefixlist.NewSet("2a0a:a440::/29"))
	want := []Entry{
		{Key: "140.82.112.0/20", Value: FamilyIPv4},
		{Key: "192.30.252.0/22", Value: FamilyIPv4},
		{Key: "2a0a:a440::/29", Value: FamilyIPv6},
	}
	if len(d.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(d.Entries))
	}
	for i := range want {
		if d.Entries[i] != want[i] {
			t.Errorf("entry %d: expected %v, got %v", i, want[i], d.Entries[i])
		}
	}
}

func TestComputeSyncPlan_NewKeys(t *testing.T) {
	desired := &Data{
		Entries: []Entry{
			{Key: "192.30.252.0/22", Value: FamilyIPv4},
			{Key: "2a0a:a440::/29", Value: FamilyIPv6},
		},
	}
	existing := map[string]string{}

	plan := ComputeSyncPlan(desired, existing)
	if len(plan.Puts) != 2 {
		t.Errorf("expected 2 puts, got %d", len(plan.Puts))
	}
	if len(plan.Deletes) != 0 {
		t.Errorf("expected 0 deletes, got %d", len(plan.Deletes))
	}
}

func TestComputeSyncPlan_DeleteOldKeys(t *testing.T) {
	desired := &Data{
		Entries: []Entry{
			{Key: "192.30.252.0/22", Value: FamilyIPv4},
		},
	}
	existing := map[string]string{
		"192.30.252.0/22": FamilyIPv4,
		"10.0.0.0/8":      FamilyIPv4,
		"2001:db8::/32":   FamilyIPv6,
	}

	plan := ComputeSyncPlan(desired, existing)
	if len(plan.Puts) != 0 {
		t.Errorf("expected 0 puts (unchanged), got %d", len(plan.Puts))
	}
	if len(plan.Deletes) != 2 {
		t.Fatalf("expected 2 deletes, got %d", len(plan.Deletes))
	}
	if plan.Deletes[0] != "10.0.0.0/8" || plan.Deletes[1] != "2001:db8::/32" {
		t.Errorf("expected 10.0.0.0/8 and 2001:db8::/32 deletes, got %v", plan.Deletes)
	}
}

func TestComputeSyncPlan_UpdateChangedValues(t *testing.T) {
	desired := &Data{
		Entries: []Entry{
			{Key: "192.30.252.0/22", Value: FamilyIPv4},
		},
	}
	existing := map[string]string{
		"192.30.252.0/22": "stale",
	}

	plan := ComputeSyncPlan(desired, existing)
	if len(plan.Puts) != 1 {
		t.Errorf("expected 1 put for changed value, got %d", len(plan.Puts))
	}
	if len(plan.Deletes) != 0 {
		t.Errorf("expected 0 deletes, got %d", len(plan.Deletes))
	}
}

func TestComputeSyncPlan_NoChanges(t *testing.T) {
	desired := &Data{
		Entries: []Entry{
			{Key: "192.30.252.0/22", Value: FamilyIPv4},
		},
	}
	existing := map[string]string{
		"192.30.252.0/22": FamilyIPv4,
	}

	plan := ComputeSyncPlan(desired, existing)
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %d puts and %d deletes", len(plan.Puts), len(plan.Deletes))
	}
}

func TestFetchExistingKeys_Paginates(t *testing.T) {
	fake := newFakeKVS(map[string]string{
		"1.0.0.0/8": FamilyIPv4,
		"2.0.0.0/8": FamilyIPv4,
		"3.0.0.0/8": FamilyIPv4,
	})
	fake.pageSize = 2

	existing, etag, err := FetchExistingKeys(context.Background(), fake, "arn:kvs")
	if err != nil {
		t.Fatal(err)
	}
	if etag != "1" {
		t.Errorf("expected etag 1, got %s", etag)
	}
	if len(existing) != 3 {
		t.Errorf("expected 3 keys, got %d", len(existing))
	}
}

func TestSync_BatchesAndChainsETag(t *testing.T) {
	fake := newFakeKVS(nil)
	plan := &SyncPlan{}
	for i := 0; i < 120; i++ {
		plan.Puts = append(plan.Puts, Entry{Key: fmt.Sprintf("10.0.%d.0/24", i), Value: FamilyIPv4})
	}

	if err := Sync(context.Background(), fake, "arn:kvs", "1", plan); err != nil {
		t.Fatal(err)
	}
	if len(fake.updates) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(fake.updates))
	}
	if len(fake.items) != 120 {
		t.Errorf("expected 120 keys, got %d", len(fake.items))
	}
}

func TestSync_EmptyPlanMakesNoCalls(t *testing.T) {
	fake := newFakeKVS(nil)
	if err := Sync(context.Background(), fake, "arn:kvs", "1", &SyncPlan{}); err != nil {
		t.Fatal(err)
	}
	if len(fake.updates) != 0 {
		t.Errorf("expected no UpdateKeys calls, got %d", len(fake.updates))
	}
}

func TestSync_Error(t *testing.T) {
	fake := newFakeKVS(nil)
	fake.failWith = errors.New("throttled")
	plan := &SyncPlan{Deletes: []string{"10.0.0.0/8"}}

	err := Sync(context.Background(), fake, "arn:kvs", "1", plan)
	if err == nil || !errors.Is(err, fake.failWith) {
		t.Fatalf("expected wrapped throttled error, got %v", err)
	}
}

func TestResolveARN(t *testing.T) {
	resolver := &fakeResolver{pages: [][]cftypes.KeyValueStore{
		{{Name: aws.String("other"), ARN: aws.String("arn:other")}},
		{{Name: aws.String("github-hooks"), ARN: aws.String("arn:hooks")}},
	}}

	arn, err := ResolveARN(context.Background(), resolver, "github-hooks")
	if err != nil {
		t.Fatal(err)
	}
	if arn != "arn:hooks" {
		t.Errorf("expected arn:hooks, got %s", arn)
	}

	if _, err := ResolveARN(context.Background(), resolver, "missing"); err == nil {
		t.Error("expected error for unknown store")
	}
}

func TestMirror_Apply(t *testing.T) {
	fake := newFakeKVS(map[string]string{
		"1.1.1.1/32": FamilyIPv4,
		"2.2.2.2/32": FamilyIPv4,
	})
	m := &Mirror{
		Resolver: &fakeResolver{pages: [][]cftypes.KeyValueStore{{{Name: aws.String("hooks"), ARN: aws.String("arn:hooks")}}}},
		Client:   fake,
		Name:     "hooks",
	}

	plan, err := m.Apply(context.Background(), prefixlist.NewSet("2.2.2.2/32", "3.3.3.3/32"), prefixlist.NewSet("2001:db8::/32"))
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Puts) != 2 || len(plan.Deletes) != 1 {
		t.Errorf("expected 2 puts and 1 delete, got %d and %d", len(plan.Puts), len(plan.Deletes))
	}
	want := map[string]string{
		"2.2.2.2/32":    FamilyIPv4,
		"3.3.3.3/32":    FamilyIPv4,
		"2001:db8::/32": FamilyIPv6,
	}
	if len(fake.items) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), fake.items)
	}
	for k, v := range want {
		if fake.items[k] != v {
			t.Errorf("%s: expected %s, got %s", k, v, fake.items[k])
		}
	}

	// A second pass has nothing to write.
	if _, err := m.Apply(context.Background(), prefixlist.NewSet("2.2.2.2/32", "3.3.3.3/32"), prefixlist.NewSet("2001:db8::/32")); err != nil {
		t.Fatal(err)
	}
	if len(fake.updates) != 1 {
		t.Errorf("expected 1 UpdateKeys call in total, got %d", len(fake.updates))
	}
}

func TestMirror_DryRun(t *testing.T) {
	fake := newFakeKVS(nil)
	m := &Mirror{
		Resolver: &fakeResolver{pages: [][]cftypes.KeyValueStore{{{Name: aws.String("hooks"), ARN: aws.String("arn:hooks")}}}},
		Client:   fake,
		Name:     "hooks",
		DryRun:   true,
	}
	plan, err := m.Apply(context.Background(), prefixlist.NewSet("1.1.1.1/32"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Puts) != 1 {
		t.Errorf("expected 1 planned put, got %d", len(plan.Puts))
	}
	if len(fake.updates) != 0 {
		t.Errorf("dry run must not call UpdateKeys, got %d calls", len(fake.updates))
	}
}
