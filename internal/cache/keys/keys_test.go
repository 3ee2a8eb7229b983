package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

const dogDoc = `query dog($breed: String!) { dog(breed: $breed) { id displayImage } }`

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	k1 := Key("dog", dogDoc, map[string]any{"breed": "bulldog"})
	k2 := Key("dog", dogDoc, map[string]any{"breed": "bulldog"})
	if k1 != k2 {
		t.Fatalf("determinism failed:\n k1=%s\n k2=%s", k1, k2)
	}
	if !strings.HasPrefix(k1, "gql:dog:") {
		t.Fatalf("unexpected prefix: %s", k1)
	}
}

func TestNormalization_WhitespaceAndVariableOrder(t *testing.T) {
	spaced := "query dog($breed: String!) {\n  dog(breed: $breed) {\n    id\n    displayImage\n  }\n}\n"
	k1 := Key(" dog ", dogDoc, map[string]any{"breed": "husky", "size": 2})
	k2 := Key("dog", spaced, map[string]any{"size": 2, "breed": "husky"})
	if k1 != k2 {
		t.Fatalf("normalized keys differ:\n k1=%s\n k2=%s", k1, k2)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_=\-]+$`).MatchString(k1) {
		t.Fatalf("key contains disallowed characters: %s", k1)
	}
}

func TestDifference_VariablesAndDocuments(t *testing.T) {
	a := Key("dog", dogDoc, map[string]any{"breed": "husky"})
	b := Key("dog", dogDoc, map[string]any{"breed": "poodle"})
	if a == b {
		t.Fatalf("different variables must produce different keys")
	}
	c := Key("dog", `query dog($breed: String!) { dog(breed: $breed) { id } }`, map[string]any{"breed": "husky"})
	if a == c {
		t.Fatalf("different documents must produce different keys")
	}
}

func TestEmptyVars_NilEqualsEmpty(t *testing.T) {
	if Key("dogs", "{ dogs { id breed } }", nil) != Key("dogs", "{ dogs { id breed } }", map[string]any{}) {
		t.Fatalf("nil and empty vars should share a key")
	}
}

func TestAnonymousAndUnicodeOperation(t *testing.T) {
	k := Key("", "{ dogs { id } }", nil)
	if !strings.HasPrefix(k, OperationPrefix("")) {
		t.Fatalf("anonymous key %s lacks prefix %s", k, OperationPrefix(""))
	}
	k = Key("hunde größe", "{ dogs { id } }", nil)
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
}

func TestLongOperation_PrefixMatchesKey(t *testing.T) {
	long := "q" + strings.Repeat("x", 80)
	k := Key(long, "{ dogs { id } }", nil)
	if !strings.HasPrefix(k, OperationPrefix(long)) {
		t.Fatalf("key %s lacks prefix %s", k, OperationPrefix(long))
	}
	if seg := strings.Split(k, ":")[1]; len(seg) > maxOpLen {
		t.Fatalf("operation segment too long: %d", len(seg))
	}

	other := long + "y"
	if OperationPrefix(long) == OperationPrefix(other) {
		t.Fatalf("operations sharing a long head must not share a prefix")
	}
	if strings.HasPrefix(Key(other, "{ dogs { id } }", nil), OperationPrefix(long)) {
		t.Fatalf("prefix of %q matches a key of %q", long, other)
	}
}
