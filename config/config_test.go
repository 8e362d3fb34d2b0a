package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `target_url: https://example.com/groups/test-group/
max_posts: 5
fast_mode: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	c, err := NewConfig(path)
	if err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if c.TargetURL != "https://example.com/groups/test-group/" {
		t.Fatalf("unexpected target url %q", c.TargetURL)
	}
	if c.MaxPosts != 5 {
		t.Fatalf("expected max_posts 5, got %d", c.MaxPosts)
	}
	if !c.FastMode {
		t.Fatal("expected fast mode")
	}
	if c.DBPath != "feedsnap.db" {
		t.Fatalf("expected default db path, got %q", c.DBPath)
	}
}

func TestValidate(t *testing.T) {
	c := &Config{}
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for a missing target url")
	}
	c.TargetURL = "not-a-url"
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for a relative target url")
	}
	c.TargetURL = "https://example.com/groups/g/"
	if err := c.Validate(); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if c.MaxPosts != 20 {
		t.Fatalf("expected max_posts fallback of 20, got %d", c.MaxPosts)
	}
}

func TestProfileFor(t *testing.T) {
	c := &Config{}
	if got := c.ProfileFor(); got != DefaultProfile() {
		t.Fatalf("expected the default profile, got %+v", got)
	}
	c.FastMode = true
	fast := c.ProfileFor()
	if fast != FastProfile() {
		t.Fatalf("expected the fast profile, got %+v", fast)
	}
	if fast.SettleWait >= DefaultProfile().SettleWait {
		t.Fatal("expected fast mode to shrink the settle wait")
	}
}

func TestJitter(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := Jitter(base)
		if d < 750*time.Millisecond || d >= 1250*time.Millisecond {
			t.Fatalf("jittered duration %v out of range", d)
		}
	}
	if Jitter(0) != 0 {
		t.Fatal("expected zero to stay zero")
	}
}
