package mailaddr

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Address
		ok       bool
	}{
		{"named", `Jane Doe <Jane@Example.com>`, Address{Name: "Jane Doe", Email: "jane@example.com"}, true},
		{"quoted name", `"Doe, Jane" <jane@example.com>`, Address{Name: "Doe, Jane", Email: "jane@example.com"}, true},
		{"bare", ` JANE@example.com `, Address{Email: "jane@example.com"}, true},
		{"angle only", `<jane@example.com>`, Address{Email: "jane@example.com"}, true},
		{"empty", "", Address{}, false},
		{"garbage", "not an address", Address{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if got != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestFormatList(t *testing.T) {
	formatted := FormatList([]Address{
		{Name: "Agent", Email: "agent@leadestate.com"},
		{},
		{Email: "buyer@example.com"},
	})
	if len(formatted) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(formatted))
	}
	if formatted[0] != "Agent <agent@leadestate.com>" {
		t.Errorf("expected %q, got %q", "Agent <agent@leadestate.com>", formatted[0])
	}
	if formatted[1] != "buyer@example.com" {
		t.Errorf("expected %q, got %q", "buyer@example.com", formatted[1])
	}
}

func TestSameMailbox(t *testing.T) {
	if !SameMailbox("Agent@LeadEstate.com", " agent@leadestate.com") {
		t.Error("expected case-insensitive match")
	}
	if SameMailbox("", "") {
		t.Error("empty addresses must not match")
	}
	if SameMailbox("a@example.com", "b@example.com") {
		t.Error("different addresses must not match")
	}
}
