// Package fetchpolicy decides how the next fetch of a logical query is
// satisfied: from the cache, from the network, or both.
package fetchpolicy

import (
	"fmt"
	"strings"
)

type Policy int

const (
	NetworkOnly Policy = iota + 1
	CacheFirst
	CacheOnly
	CacheAndNetwork
)

var policyNames = map[Policy]string{
	NetworkOnly:     "network-only",
	CacheFirst:      "cache-first",
	CacheOnly:       "cache-only",
	CacheAndNetwork: "cache-and-network",
}

// All lists every valid policy in declaration order.
func All() []Policy {
	return []Policy{NetworkOnly, CacheFirst, CacheOnly, CacheAndNetwork}
}

func (p Policy) Valid() bool {
	_, ok := policyNames[p]
	return ok
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ReadsCache reports whether the policy consults the cache before the network.
func (p Policy) ReadsCache() bool {
	return p == CacheFirst || p == CacheOnly || p == CacheAndNetwork
}

func (p Policy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid fetch policy %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePolicy accepts the hyphenated names and tolerates case and underscores.
func ParsePolicy(s string) (Policy, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for p, name := range policyNames {
		if name == n {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown fetch policy %q", s)
}
