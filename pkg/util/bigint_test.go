package util

import "testing"

func TestParseBig(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"353055033641", "353055033641"},
		{" -13 ", "-13"},
		{"1_000_000", "1000000"},
		{"1e12", "1000000000000"},
		{"-5E3", "-5000"},
		{"10^12", "1000000000000"},
		{"2^64", "18446744073709551616"},
		{"-2^2", "-4"},
		{"-3^3", "-27"},
		{"+2^3", "8"},
	}
	for _, tc := range cases {
		got, err := ParseBig(tc.in)
		if err != nil {
			t.Fatalf("ParseBig(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseBig(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseBigRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1.5", "1e", "e5", "1e-3", "2^99999", "12x", "--2^2", "-^2", "+-1e3"} {
		if _, err := ParseBig(in); err == nil {
			t.Fatalf("ParseBig(%q): expected error", in)
		}
	}
}
