package idgen

import (
	"sort"
	"strings"
	"testing"
)

func TestNanoID_LengthAndAlphabet(t *testing.T) {
	for _, length := range []int{8, 12, 24} {
		id := NanoID(length)()
		if len(id) != length {
			t.Fatalf("NanoID(%d): got length %d", length, len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("NanoID: unexpected character %q in %q", c, id)
			}
		}
	}
}

func TestCorrelation_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := Correlation()
		if !strings.HasPrefix(id, "msg_") {
			t.Fatalf("Correlation: missing prefix in %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("Correlation: duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestTab_Prefix(t *testing.T) {
	id := Tab()
	if !strings.HasPrefix(id, "tab_") || len(id) != 4+8 {
		t.Fatalf("Tab: got %q", id)
	}
}

func TestNew_SortsByCreation(t *testing.T) {
	ids := make([]string, 50)
	for i := range ids {
		ids[i] = New()
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatal("UUIDv7 ids should sort in generation order")
	}
	if _, err := Parse(ids[0]); err != nil {
		t.Fatalf("New: not a valid UUID: %v", err)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("Parse: expected error for invalid UUID")
	}
}
