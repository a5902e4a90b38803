package receipt

import (
	"strings"
	"testing"
)

func TestIssueAssignsNumberAndDetaches(t *testing.T) {
	s := NewStore("RC")
	d := Recompute(Draft{
		CustomerName: "张三便利店",
		Items:        []LineItem{{ProductName: "可口可乐", Quantity: 10, UnitPrice: 3.5}},
	})

	rec := s.Issue(d)
	if !strings.HasPrefix(rec.No, "RC") {
		t.Fatalf("expected RC prefix, got %q", rec.No)
	}
	if rec.IssuedAt.IsZero() {
		t.Fatalf("issued_at not set")
	}

	// Stored copy must not alias the caller's draft.
	d.Items[0].Quantity = 99
	if got := s.List()[0].Draft.Items[0].Quantity; got != 10 {
		t.Fatalf("stored draft aliases caller storage: %d", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := NewStore("")
	s.Issue(Draft{CustomerName: "a"})
	s.Issue(Draft{CustomerName: "b"})

	list := s.List()
	if len(list) != 2 || s.Count() != 2 {
		t.Fatalf("expected 2 receipts, got %d", len(list))
	}
	if list[0].Draft.CustomerName != "b" || list[1].Draft.CustomerName != "a" {
		t.Fatalf("expected newest first: %+v", list)
	}
	if !strings.HasPrefix(list[0].No, "RC") {
		t.Fatalf("empty prefix should fall back to RC, got %q", list[0].No)
	}
}
