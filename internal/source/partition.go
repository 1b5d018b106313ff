package source

import (
	"net/netip"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ArticSeths/github-hooks-cidr-aws-prefix-list/internal/prefixlist"
)

// Partitioned holds fetched CIDRs split by address family.
type Partitioned struct {
	IPv4     prefixlist.Set
	IPv6     prefixlist.Set
	Rejected []string // Entries that are not valid CIDR prefixes
}

// Partition parses each CIDR and routes it by address family.
// Bare addresses are accepted as host prefixes (/32 or /128) and host bits
// are cleared, so 192.30.252.1/22 becomes 192.30.252.0/22.
// Anything else that does not parse is rejected and logged.
func Partition(cidrs []string) Partitioned {
	p := Partitioned{
		IPv4: prefixlist.NewSet(),
		IPv6: prefixlist.NewSet(),
	}
	for _, raw := range cidrs {
		prefix, err := parsePrefix(strings.TrimSpace(raw))
		if err != nil {
			logrus.WithField("cidr", raw).WithError(err).Warn("Ignoring invalid CIDR from source")
			p.Rejected = append(p.Rejected, raw)
			continue
		}
		cidr := prefix.Masked().String()
		if prefix.Addr().Is4() {
			p.IPv4.Add(cidr)
		} else {
			p.IPv6.Add(cidr)
		}
	}
	return p
}

func parsePrefix(s string) (netip.Prefix, error) {
	if !strings.Contains(s, "/") {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	return netip.ParsePrefix(s)
}
