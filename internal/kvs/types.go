// Package kvs mirrors the synced CIDR set into a CloudFront KeyValueStore.
package kvs

// Entry is a single key-value pair destined for CloudFront KVS.
// Keys are CIDRs; values name the address family.
type Entry struct {
	Key   string
	Value string
}

// Data holds all entries for a single KVS.
type Data struct {
	Entries []Entry
}

// SyncPlan describes what operations are needed to bring KVS to desired state.
type SyncPlan struct {
	Puts    []Entry  // Keys to add or update
	Deletes []string // Keys to remove
}

// Empty reports whether the plan has nothing to do.
func (p *SyncPlan) Empty() bool {
	return len(p.Puts) == 0 && len(p.Deletes) == 0
}

// Family values stored for each CIDR key.
const (
	FamilyIPv4 = "ipv4"
	FamilyIPv6 = "ipv6"
)
