package kvs

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore"
	cfkvstypes "github.com/aws/aws-sdk-go-v2/service/cloudfrontkeyvaluestore/types"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
)

// KVSClient abstracts the CloudFront KeyValueStore API.
type KVSClient interface {
	DescribeKeyValueStore(ctx context.Context, params *cloudfrontkeyvaluestore.DescribeKeyValueStoreInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.DescribeKeyValueStoreOutput, error)
	ListKeys(ctx context.Context, params *cloudfrontkeyvaluestore.ListKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.ListKeysOutput, error)
	UpdateKeys(ctx context.Context, params *cloudfrontkeyvaluestore.UpdateKeysInput, optFns ...func(*cloudfrontkeyvaluestore.Options)) (*cloudfrontkeyvaluestore.UpdateKeysOutput, error)
}

// FromSets builds the desired KVS contents from partitioned CIDR sets.
func FromSets(ipv4, ipv6 prefixlist.Set) *Data {
	d := &Data{}
	for _, cidr := range prefixlist.Sorted(ipv4) {
		d.Entries = append(d.Entries, Entry{Key: cidr, Value: FamilyIPv4})
	}
	for _, cidr := range prefixlist.Sorted(ipv6) {
		d.Entries = append(d.Entries, Entry{Key: cidr, Value: FamilyIPv6})
	}
	return d
}

// ComputeSyncPlan compares desired state against existing KVS state.
// existingKeys maps key -> value for all current KVS entries.
func ComputeSyncPlan(desired *Data, existingKeys map[string]string) *SyncPlan {
	plan := &SyncPlan{}

	desiredMap := make(map[string]string, len(desired.Entries))
	for _, e := range desired.Entries {
		desiredMap[e.Key] = e.Value
	}

	for _, e := range desired.Entries {
		existing, ok := existingKeys[e.Key]
		if !ok || existing != e.Value {
			plan.Puts = append(plan.Puts, e)
		}
	}

	for key := range existingKeys {
		if _, ok := desiredMap[key]; !ok {
			plan.Deletes = append(plan.Deletes, key)
		}
	}
	sort.Strings(plan.Deletes)

	return plan
}

// FetchExistingKeys retrieves all current keys and values from a KVS along
// with the ETag that guards the next update.
func FetchExistingKeys(ctx context.Context, client KVSClient, kvsARN string) (map[string]string, string, error) {
	desc, err := client.DescribeKeyValueStore(ctx, &cloudfrontkeyvaluestore.DescribeKeyValueStoreInput{
		KvsARN: aws.String(kvsARN),
	})
	if err != nil {
		return nil, "", fmt.Errorf("describing KVS: %w", err)
	}
	etag := aws.ToString(desc.ETag)

	existing := make(map[string]string)
	var nextToken *string
	for {
		resp, err := client.ListKeys(ctx, &cloudfrontkeyvaluestore.ListKeysInput{
			KvsARN:    aws.String(kvsARN),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, "", fmt.Errorf("listing KVS keys: %w", err)
		}
		for _, item := range resp.Items {
			existing[aws.ToString(item.Key)] = aws.ToString(item.Value)
		}
		nextToken = resp.NextToken
		if nextToken == nil {
			break
		}
	}

	return existing, etag, nil
}

// maxKeysPerBatch is the AWS CloudFront KVS limit for UpdateKeys API.
// See: https://docs.aws.amazon.com/AmazonCloudFront/latest/DeveloperGuide/cloudfront-limits.html
const maxKeysPerBatch = 50

// Sync applies a SyncPlan to a CloudFront KVS using the batch UpdateKeys API.
// Each batch carries the ETag returned by the previous one.
func Sync(ctx context.Context, client KVSClient, kvsARN string, etag string, plan *SyncPlan) error {
	if plan.Empty() {
		return nil
	}

	var ops []op
	for _, e := range plan.Puts {
		ops = append(ops, op{put: &cfkvstypes.PutKeyRequestListItem{Key: aws.String(e.Key), Value: aws.String(e.Value)}})
	}
	for _, key := range plan.Deletes {
		ops = append(ops, op{del: &cfkvstypes.DeleteKeyRequestListItem{Key: aws.String(key)}})
	}

	currentETag := etag
	for start := 0; start < len(ops); start += maxKeysPerBatch {
		end := min(start+maxKeysPerBatch, len(ops))

		input := &cloudfrontkeyvaluestore.UpdateKeysInput{
			KvsARN:  aws.String(kvsARN),
			IfMatch: aws.String(currentETag),
		}
		for _, o := range ops[start:end] {
			if o.put != nil {
				input.Puts = append(input.Puts, *o.put)
			} else {
				input.Deletes = append(input.Deletes, *o.del)
			}
		}

		resp, err := client.UpdateKeys(ctx, input)
		if err != nil {
			return fmt.Errorf("updating KVS keys (operations %d-%d of %d): %w", start+1, end, len(ops), err)
		}
		if resp.ETag != nil {
			currentETag = *resp.ETag
		}
	}

	return nil
}

// op is one put or delete queued for an UpdateKeys batch.
type op struct {
	put *cfkvstypes.PutKeyRequestListItem
	del *cfkvstypes.DeleteKeyRequestListItem
}
