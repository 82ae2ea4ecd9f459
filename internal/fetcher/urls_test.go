package fetcher

import "testing"

func TestParsePostID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
		wantOK bool
	}{
		{"twitter.com status", "https://twitter.com/someuser/status/1234567890123456789", "1234567890123456789", true},
		{"x.com status", "https://x.com/someuser/status/1234567890123456789", "1234567890123456789", true},
		{"no scheme", "twitter.com/someuser/status/987654321", "987654321", true},
		{"status with query", "https://x.com/a_b_c/status/555?s=20", "555", true},
		{"other host status path", "https://nitter.example/user/status/111222333", "111222333", true},
		{"bare 19-digit id", "1234567890123456789", "1234567890123456789", true},
		{"bare short id", "12345", "", false},
		{"profile url", "https://twitter.com/someuser", "", false},
		{"empty", "", "", false},
		{"garbage", "not a url at all", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ParsePostID(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParsePostID(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("ParsePostID(%q) = %q, want %q", tt.input, id, tt.wantID)
			}
		})
	}
}
