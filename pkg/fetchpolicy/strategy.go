package fetchpolicy

import (
	"fmt"
	"strings"
)

const (
	StrategyPassThrough       = "pass-through"
	StrategyNarrowAfterChange = "narrow-after-change"
	StrategyPinPrefix         = "pin:"
	strategyCustom            = "custom"
)

// ParseStrategy resolves a strategy name such as "pass-through",
// "narrow-after-change" or "pin:cache-only".
func ParseStrategy(s string) (Decider, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	switch n {
	case StrategyPassThrough, "passthrough", "":
		return PassThrough(), nil
	case StrategyNarrowAfterChange:
		return NarrowAfterChange(), nil
	}
	if rest, ok := strings.CutPrefix(n, StrategyPinPrefix); ok {
		p, err := ParsePolicy(rest)
		if err != nil {
			return nil, fmt.Errorf("pin strategy: %w", err)
		}
		return Pin(p), nil
	}
	return nil, fmt.Errorf("unknown next-fetch strategy %q", s)
}

// StrategyName names d for diagnostics; caller-supplied deciders report "custom".
func StrategyName(d Decider) string {
	if d == nil {
		return "none"
	}
	if s, ok := d.(fmt.Stringer); ok {
		return s.String()
	}
	return strategyCustom
}
