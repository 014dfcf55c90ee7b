package service

import (
	"regexp"
	"testing"
)

func TestRandomCodeFormat(t *testing.T) {
	sixDigits := regexp.MustCompile(`^[0-9]{6}$`)

	// leading zeros must be preserved, so every draw is exactly six chars
	for i := 0; i < 200; i++ {
		code, err := randomCode(6)
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("randomCode = %q, want six digits", code)
		}
	}
}

func TestRandomCodeVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := randomCode(6)
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		seen[code] = true
	}
	// 50 draws from a million-value space colliding down to one or two
	// distinct codes would mean the generator is broken
	if len(seen) < 10 {
		t.Fatalf("only %d distinct codes in 50 draws", len(seen))
	}
}

func TestMaskPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"9999999999", "******9999"},
		{"1234567890", "******7890"},
		{"123", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		if got := maskPhone(tt.in); got != tt.want {
			t.Errorf("maskPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
