package accesskey

import (
	"strings"
	"testing"
)

func TestNewKeyLengthAndCharset(t *testing.T) {
	key, err := NewKey(12)
	if err != nil {
		t.Fatalf("NewKey failed: %v", err)
	}
	if len(key) != 12 {
		t.Errorf("expected 12 characters, got %d", len(key))
	}
	for _, c := range key {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("unexpected character %q in key %s", c, key)
		}
	}
}

func TestNewKeyRejectsShortLength(t *testing.T) {
	if _, err := NewKey(8); err == nil {
		t.Error("expected error for length below minimum")
	}
}

func TestNewTokenSatisfiesRules(t *testing.T) {
	for i := 0; i < 50; i++ {
		token, err := NewToken(16)
		if err != nil {
			t.Fatalf("NewToken failed: %v", err)
		}
		if !ValidToken(token) {
			t.Fatalf("generated token fails its own validation: %s", token)
		}
	}
}

func TestNewTokenRejectsShortLength(t *testing.T) {
	if _, err := NewToken(10); err == nil {
		t.Error("expected error for length below minimum")
	}
}

func TestValidToken(t *testing.T) {
	cases := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", "K7P2M9XQ4WRTZH5J", true},
		{"too short", "K7P2M9XQ4WRT", false},
		{"lowercase", "k7p2m9xq4wrtzh5j", false},
		{"consecutive run", "KABCM9XQ4WRTZH5J", false},
		{"consecutive digits", "K7M9XQ4WRTZH1235", false},
		{"too few distinct", "AAAABBBBAAAABBBB", false},
	}
	for _, tc := range cases {
		if got := ValidToken(tc.token); got != tc.want {
			t.Errorf("%s: ValidToken(%q) = %v, want %v", tc.name, tc.token, got, tc.want)
		}
	}
}

func TestKeysAreNotRepeatedInSmallSample(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := NewKey(12)
		if err != nil {
			t.Fatalf("NewKey failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key generated: %s", key)
		}
		seen[key] = true
	}
}
