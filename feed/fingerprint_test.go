package feed

import (
	"strings"
	"testing"
)

func TestFingerprintPrefersPermalinkID(t *testing.T) {
	got := Fingerprint("Jane", "whatever", "https://example.com/groups/g/permalink/123456/")
	if got != "123456" {
		t.Fatalf("expected the platform post id, got %q", got)
	}
	got = Fingerprint("Jane", "whatever", "https://example.com/user/posts/pfbid0abc")
	if got != "pfbid0abc" {
		t.Fatalf("expected the platform post id, got %q", got)
	}
}

func TestFingerprintStableAcrossVolatileFields(t *testing.T) {
	a := Fingerprint("Jane Doe", "Selling a bike", "")
	b := Fingerprint("Jane Doe", "Selling  a\nbike", "")
	if a != b {
		t.Fatal("expected whitespace differences not to change the fingerprint")
	}
	c := Fingerprint("John Doe", "Selling a bike", "")
	if a == c {
		t.Fatal("expected a different author to change the fingerprint")
	}
}

func TestFingerprintIgnoresContentTail(t *testing.T) {
	prefix := strings.Repeat("x", 150)
	a := Fingerprint("Jane", prefix+" tail one", "")
	b := Fingerprint("Jane", prefix+" another tail entirely", "")
	if a != b {
		t.Fatal("expected edits beyond the prefix not to change the fingerprint")
	}
}
