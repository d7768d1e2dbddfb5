package horosafe

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret([]byte("short")); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("short secret: got %v", err)
	}
	if err := ValidateSecret(bytes.Repeat([]byte("k"), MinSecretLen)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSafePath(t *testing.T) {
	base := filepath.Join(t.TempDir(), "site")
	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"index.html", false},
		{"assets/css/style.css", false},
		{"../outside.html", true},
		{"a/../../b", true},
		{"", true},
		{"a\x00b", true},
	}
	for _, tt := range tests {
		got, err := SafePath(base, tt.rel)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q) error=%v, wantErr=%v", tt.rel, err, tt.wantErr)
			continue
		}
		if err == nil && !strings.HasPrefix(got, base) {
			t.Errorf("SafePath(%q) = %q, outside %q", tt.rel, got, base)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("at limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("over limit: got %v", err)
	}
}
