package idgen

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	gen := Short(10)
	seen := make(map[string]bool, 500)
	for range 500 {
		id := gen()
		if len(id) != 10 {
			t.Fatalf("length: got %d", len(id))
		}
		for _, c := range id {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
				t.Fatalf("unexpected character %q in %q", c, id)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestUUIDv7Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for range 50 {
		id := gen()
		if len(id) != 36 {
			t.Fatalf("length: got %d in %q", len(id), id)
		}
		if id <= prev {
			t.Fatalf("not increasing: %q after %q", id, prev)
		}
		prev = id
	}
}

func TestEntityPrefixes(t *testing.T) {
	cases := map[string]Generator{"usr_": User, "prj_": Project, "gen_": Generation, "dpl_": Deployment, "evt_": Event}
	for prefix, gen := range cases {
		id := gen()
		if !strings.HasPrefix(id, prefix) {
			t.Errorf("%s: got %q", prefix, id)
		}
		if _, err := Parse(id); err != nil {
			t.Errorf("Parse(%q): %v", id, err)
		}
	}
}

func TestParse(t *testing.T) {
	if _, err := Parse("prj_not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
	id := New()
	got, err := Parse(id)
	if err != nil || got != id {
		t.Fatalf("Parse(%q) = %q, %v", id, got, err)
	}
}
