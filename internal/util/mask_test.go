package util

import "testing"

func TestMaskEmail(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"ada@example.com": "a…@e….com",
		"a@example.com":   "a@e….com",
		"":                "",
		"abc":             "***",
		"not-an-email":    "n…l",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskToken(t *testing.T) {
	t.Parallel()
	if got := MaskToken("ya29.A0ARrdaM9"); got != "ya29.A…" {
		t.Errorf("MaskToken long = %q", got)
	}
	if got := MaskToken("short"); got != "***" {
		t.Errorf("MaskToken short = %q", got)
	}
}
