// Package keys derives cache keys for GraphQL responses.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
)

const prefix = "gql"

var canonical = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

// Key identifies one logical query result: the operation, the document text
// (whitespace-insensitive) and the variables (key-order-insensitive).
func Key(operation, document string, vars map[string]any) string {
	docSum := xxhash.Sum64String(collapseWhitespace(document))
	return fmt.Sprintf("%s:%s:d=%016x:v=%016x", prefix, opSegment(operation), docSum, VarsHash(vars))
}

// VarsHash hashes the canonical JSON form of vars. Nil and empty maps hash
// the same.
func VarsHash(vars map[string]any) uint64 {
	if len(vars) == 0 {
		return xxhash.Sum64String("{}")
	}
	b, err := canonical.Marshal(vars)
	if err != nil {
		b = fmt.Appendf(nil, "%v", vars)
	}
	return xxhash.Sum64(b)
}

// OperationPrefix matches every key of one operation, for bulk eviction.
func OperationPrefix(operation string) string {
	return prefix + ":" + opSegment(operation) + ":"
}

const maxOpLen = 64

// opSegment is the operation part of a key. Names longer than maxOpLen are
// cut and suffixed with a hash of the full name so they stay distinct.
func opSegment(operation string) string {
	op := sanitize(strings.TrimSpace(operation))
	if op == "" {
		return "anonymous"
	}
	if len(op) <= maxOpLen {
		return op
	}
	return fmt.Sprintf("%s-%016x", op[:maxOpLen-17], xxhash.Sum64String(op))
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

// converts any run of whitespace or commas to a single space.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	wasWS := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == ',' {
			if !wasWS {
				b.WriteByte(' ')
				wasWS = true
			}
			continue
		}
		b.WriteRune(r)
		wasWS = false
	}
	return strings.TrimSpace(b.String())
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
