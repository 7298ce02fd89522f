package validation

import "testing"

func TestIsValidAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   bool
	}{
		{"100", true},
		{"9800.50", true},
		{"0.01", true},
		{"0", false},
		{"0.00", false},
		{"-5", false},
		{"1.234", false},
		{"abc", false},
		{"", false},
		{"1e3", false},
		{"1234567890123", false}, // too many integer digits
	}
	for _, tt := range tests {
		if got := IsValidAmount(tt.amount); got != tt.want {
			t.Errorf("IsValidAmount(%q) = %v, want %v", tt.amount, got, tt.want)
		}
	}
}

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"usr_8f2k1", true},
		{"alice-7", true},
		{"ab", false},
		{"", false},
		{"has space", false},
		{"p@yload", false},
	}
	for _, tt := range tests {
		if got := IsValidUserID(tt.id); got != tt.want {
			t.Errorf("IsValidUserID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestIsValidIP(t *testing.T) {
	if !IsValidIP("203.0.113.9") {
		t.Error("IsValidIP(203.0.113.9) = false, want true")
	}
	if !IsValidIP("2001:db8::1") {
		t.Error("IsValidIP(2001:db8::1) = false, want true")
	}
	if IsValidIP("999.1.1.1") {
		t.Error("IsValidIP(999.1.1.1) = true, want false")
	}
	if IsValidIP("") {
		t.Error("IsValidIP(\"\") = true, want false")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	errs := Validate(
		Required("actor_id", ""),
		ValidAmount("amount", "nope"),
		ValidIP("source_ip", "300.300.300.300"),
	)
	if len(errs) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(errs), errs)
	}
	if errs.Error() == "" {
		t.Error("Error() should summarize the first failure")
	}
}

func TestSanitizeString(t *testing.T) {
	got := SanitizeString("  hello\x00world  ", 8)
	if got != "hellowo" {
		t.Errorf("SanitizeString = %q, want %q", got, "hellowo")
	}
}
