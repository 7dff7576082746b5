package observability

import "testing"

func TestMaskEmail(t *testing.T) {
	if got := MaskEmail("jane.doe@example.com"); got != "j***@example.com" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskEmail("nobody"); got != "******" {
		t.Fatalf("unexpected mask for malformed email %q", got)
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("+1 (555) 010-9999"); got != "*******9999" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskPhone(""); got != "" {
		t.Fatalf("expected empty mask, got %q", got)
	}
}

func TestSanitizeRouteStripsControlCharacters(t *testing.T) {
	if got := SanitizeRoute("/orders\n/evil"); got != "/orders/evil" {
		t.Fatalf("unexpected route %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected root route, got %q", got)
	}
}
