package source

import (
	"fmt"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"pgregory.net/rapid"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
)

func TestPartition(t *testing.T) {
	p := Partition([]string{
		"192.30.252.0/22",
		"2a0a:a440::/29",
		"185.199.108.0/22",
		"2606:50c0::/32",
		"140.82.112.1",
		"not-a-cidr",
		"300.1.1.1/32",
	})

	assert.DeepEqual(t, prefixlist.Sorted(p.IPv4), []string{"140.82.112.1/32", "185.199.108.0/22", "192.30.252.0/22"})
	assert.DeepEqual(t, prefixlist.Sorted(p.IPv6), []string{"2606:50c0::/32", "2a0a:a440::/29"})
	assert.DeepEqual(t, p.Rejected, []string{"not-a-cidr", "300.1.1.1/32"})
}

func TestPartition_MasksHostBits(t *testing.T) {
	p := Partition([]string{"192.30.252.1/22", "192.30.252.0/22", "2a0a:a440::1/29"})

	assert.DeepEqual(t, prefixlist.Sorted(p.IPv4), []string{"192.30.252.0/22"})
	assert.DeepEqual(t, prefixlist.Sorted(p.IPv6), []string{"2a0a:a440::/29"})
	assert.Check(t, is.Len(p.Rejected, 0))
}

func TestPartition_Empty(t *testing.T) {
	p := Partition(nil)
	assert.Equal(t, p.IPv4.Cardinality(), 0)
	assert.Equal(t, p.IPv6.Cardinality(), 0)
}

func TestPartition_Dedupes(t *testing.T) {
	p := Partition([]string{"10.0.0.0/8", "10.0.0.0/8", "2001:DB8::/32", "2001:db8::/32"})
	assert.Equal(t, p.IPv4.Cardinality(), 1)
	assert.Equal(t, p.IPv6.Cardinality(), 1)
}

func TestPartition_ColonMeansIPv6(t *testing.T) {
	v4 := rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("%d.%d.%d.0/24",
			rapid.IntRange(1, 223).Draw(t, "a"),
			rapid.IntRange(0, 255).Draw(t, "b"),
			rapid.IntRange(0, 255).Draw(t, "c"))
	})
	v6 := rapid.Custom(func(t *rapid.T) string {
		return fmt.Sprintf("2001:db8:%x::/48", rapid.IntRange(1, 0xffff).Draw(t, "group"))
	})

	rapid.Check(t, func(t *rapid.T) {
		input := rapid.SliceOf(rapid.OneOf(v4, v6)).Draw(t, "cidrs")
		p := Partition(input)

		for _, c := range input {
			if strings.Contains(c, ":") {
				if !p.IPv6.Contains(c) || p.IPv4.Contains(c) {
					t.Fatalf("%s should be in the IPv6 subset only", c)
				}
			} else if !p.IPv4.Contains(c) || p.IPv6.Contains(c) {
				t.Fatalf("%s should be in the IPv4 subset only", c)
			}
		}
		if len(p.Rejected) != 0 {
			t.Fatalf("unexpected rejects: %v", p.Rejected)
		}
	})
}
