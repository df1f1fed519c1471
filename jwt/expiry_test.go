package jwt

import (
	"testing"
	"time"
)

func TestExpiryToSeconds(t *testing.T) {
	cases := map[string]int64{
		"15m":  900,
		"2h":   7200,
		"7d":   604800,
		"1m":   60,
		"":     900,
		"15":   900,
		"15s":  900,
		"1w":   900,
		"0m":   900,
		"-5m":  900,
		"abc":  900,
		" 15m": 900,

		"200000d":               900,
		"9223372036854775807m":  900,
		"99999999999999999999h": 900,
	}
	for in, want := range cases {
		if got := ExpiryToSeconds(in); got != want {
			t.Fatalf("ExpiryToSeconds(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseExpiry(t *testing.T) {
	d, ok := ParseExpiry("7d")
	if !ok || d != 7*24*time.Hour {
		t.Fatalf("unexpected parse: %v %v", d, ok)
	}
	if _, ok := ParseExpiry("soon"); ok {
		t.Fatal("expected unrecognized format to fail")
	}
	for _, in := range []string{"200000d", "2562048h", "153722868m", "9223372036854775807m"} {
		if d, ok := ParseExpiry(in); ok {
			t.Fatalf("ParseExpiry(%q) = %v, want overflow rejected", in, d)
		}
	}
	d, ok = ParseExpiry("106751d")
	if !ok || d <= 0 {
		t.Fatalf("largest day count should parse: %v %v", d, ok)
	}
}
