package textutil

import "testing"

func TestCompactStringMap(t *testing.T) {
	got := CompactStringMap(map[string]string{
		" orderId ":   " GRO-1 ",
		"":            "ignored",
		"empty":       "   ",
		"instruction": "leave at the door please",
	}, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %#v", got)
	}
	if got["orderId"] != "GRO-1" {
		t.Fatalf("expected trimmed value, got %q", got["orderId"])
	}
	if got["instruction"] != "leave at t" {
		t.Fatalf("expected truncated value, got %q", got["instruction"])
	}
}

func TestCompactStringMapEmpty(t *testing.T) {
	if CompactStringMap(nil, 0) != nil {
		t.Fatalf("expected nil for nil input")
	}
	if CompactStringMap(map[string]string{"a": " "}, 0) != nil {
		t.Fatalf("expected nil when every value is empty")
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("expected rune-aware truncation, got %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("expected unchanged value, got %q", got)
	}
}

func TestCleanText(t *testing.T) {
	cases := map[string]string{
		"  ring the bell ":                      "ring the bell",
		"<script>alert(1)</script>gate code 42": "gate code 42",
		"<b>Tom & Jerry</b>":                    "Tom & Jerry",
		"cafe\u0301":                            "caf\u00e9",
	}
	for in, want := range cases {
		if got := CleanText(in); got != want {
			t.Errorf("CleanText(%q) = %q, want %q", in, got, want)
		}
	}
}
