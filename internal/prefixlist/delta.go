package prefixlist

// DefaultDescription is attached to every entry the reconciler adds.
const DefaultDescription = "GitHub Webhook IP"

// ComputeDelta compares the desired entries against the current ones.
// Entries in desired but not current are added with description;
// entries in current but not desired are removed.
func ComputeDelta(desired, current Set, description string) Delta {
	if desired == nil {
		desired = NewSet()
	}
	if current == nil {
		current = NewSet()
	}

	var delta Delta
	for _, cidr := range Sorted(desired.Difference(current)) {
		delta.Add = append(delta.Add, Entry{CIDR: cidr, Description: description})
	}
	for _, cidr := range Sorted(current.Difference(desired)) {
		delta.Remove = append(delta.Remove, Entry{CIDR: cidr})
	}
	return delta
}

// CIDRs returns the CIDR of every entry, in order.
func CIDRs(entries []Entry) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.CIDR)
	}
	return out
}
