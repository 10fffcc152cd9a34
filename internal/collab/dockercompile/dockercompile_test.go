package dockercompile

import "testing"

func TestSafeNameSanitizesSpecialCharacters(t *testing.T) {
	cases := map[string]string{
		"handleRequest":    "handleRequest",
		"handle-request_2": "handle-request_2",
		"pkg.Func()":       "pkg_Func__",
		"":                 "fn",
		"a/b\\c":           "a_b_c",
	}
	for in, want := range cases {
		if got := safeName(in); got != want {
			t.Errorf("safeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHashBytesIsDeterministicAndContentAddressed(t *testing.T) {
	a := hashBytes([]byte("package main"))
	b := hashBytes([]byte("package main"))
	c := hashBytes([]byte("package other"))

	if a != b {
		t.Fatalf("expected identical input to hash identically, got %q and %q", a, b)
	}
	if a == c {
		t.Fatal("expected different input to hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected a 64-char hex SHA-256 digest, got %d chars", len(a))
	}
}
