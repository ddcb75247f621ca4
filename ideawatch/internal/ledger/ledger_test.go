package ledger

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/shahar42/competotor-agent/dbopen"
	"github.com/shahar42/competotor-agent/ideawatch/internal/store"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"HTTPS://WWW.Example.com/Item/1/":                       "https://example.com/Item/1",
		"https://example.com/p?b=2&a=1#reviews":                 "https://example.com/p?a=1&b=2",
		"https://example.com/p?utm_source=x&ref=y&gclid=z&id=7": "https://example.com/p?id=7",
		"https://example.com/p?fbclid=abc":                      "https://example.com/p",
		"  not a url/  ":                                        "not a url",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	// WHAT: Equivalent URLs share a fixed-length fingerprint; different pages do not.
	// WHY: The ledger is keyed by fingerprint.
	a := Fingerprint("https://www.example.com/item/1?utm_medium=email")
	b := Fingerprint("https://example.com/item/1/")
	c := Fingerprint("https://example.com/item/2")
	if len(a) != 16 {
		t.Fatalf("len = %d, want 16", len(a))
	}
	if a != b {
		t.Fatalf("equivalent urls differ: %s vs %s", a, b)
	}
	if a == c {
		t.Fatal("different urls collide")
	}
}

func TestLedger_HasSeenRecord(t *testing.T) {
	// WHAT: RecordWithCompetitor makes HasSeen true for the same idea only; re-recording keeps one row.
	// WHY: At most one ledger entry per (idea, fingerprint).
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	s := store.NewStore(db)
	ctx := context.Background()
	u, _ := s.EnsureUser(ctx, "usr-1", "a@example.com")
	for _, id := range []string{"i1", "i2"} {
		if err := s.InsertIdea(ctx, &store.Idea{ID: id, UserID: u.ID, Description: "d"}); err != nil {
			t.Fatal(err)
		}
	}
	l := New(s)

	seen, err := l.HasSeen(ctx, "i1", "https://example.com/p")
	if err != nil || seen {
		t.Fatalf("fresh ledger: seen=%v err=%v", seen, err)
	}
	if ok, err := l.RecordWithCompetitor(ctx, "i1", "https://example.com/p", false, nil); err != nil || !ok {
		t.Fatalf("first record: ok=%v err=%v", ok, err)
	}
	if ok, err := l.RecordWithCompetitor(ctx, "i1", "https://www.example.com/p/", true, nil); err != nil || ok {
		t.Fatalf("same fingerprint should not record twice: ok=%v err=%v", ok, err)
	}
	if seen, _ := l.HasSeen(ctx, "i1", "https://example.com/p"); !seen {
		t.Fatal("should be seen for i1")
	}
	if seen, _ := l.HasSeen(ctx, "i2", "https://example.com/p"); seen {
		t.Fatal("should not be seen for i2")
	}
	if n, _ := s.CountSeen(ctx, "i1"); n != 1 {
		t.Fatalf("rows = %d, want 1", n)
	}
	if err := l.Touch(ctx, "i1", "https://example.com/p"); err != nil {
		t.Fatal(err)
	}
}
