package identity

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Hunga9k50doker/spheron/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		userAgent string
		want      Platform
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5_1 like Mac OS X)", PlatformIOS},
		{"Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X)", PlatformIOS},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8)", PlatformAndroid},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", PlatformUnknown},
		{"", PlatformUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.userAgent); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.userAgent, got, tt.want)
		}
	}
}

func TestHeadersCarryIdentity(t *testing.T) {
	id := New("Mozilla/5.0 (Linux; Android 14; Pixel 8)")

	headers := id.Headers()
	if headers["User-Agent"] != id.UserAgent {
		t.Errorf("expected User-Agent %q, got %q", id.UserAgent, headers["User-Agent"])
	}
	if headers["sec-ch-ua-platform"] != string(PlatformAndroid) {
		t.Errorf("expected platform header %q, got %q", PlatformAndroid, headers["sec-ch-ua-platform"])
	}
}

func TestManagerAssignsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identities.json")

	table, err := store.NewFileTable(path)
	if err != nil {
		t.Fatalf("NewFileTable() returned error: %v", err)
	}

	manager := NewManager(table)
	first, err := manager.Identity(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Identity() returned error: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := manager.Identity(ctx, "user@example.com")
		if err != nil {
			t.Fatalf("Identity() returned error: %v", err)
		}
		if again.UserAgent != first.UserAgent {
			t.Fatalf("identity drifted: %q then %q", first.UserAgent, again.UserAgent)
		}
	}
}

func TestManagerAssignmentSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identities.json")

	table, err := store.NewFileTable(path)
	if err != nil {
		t.Fatalf("NewFileTable() returned error: %v", err)
	}
	first, err := NewManager(table).Identity(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Identity() returned error: %v", err)
	}

	// A fresh manager over the same file must see the persisted assignment.
	reopened, err := store.NewFileTable(path)
	if err != nil {
		t.Fatalf("NewFileTable() returned error: %v", err)
	}
	second, err := NewManager(reopened).Identity(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("Identity() returned error: %v", err)
	}

	if second.UserAgent != first.UserAgent {
		t.Errorf("identity changed across restart: %q then %q", first.UserAgent, second.UserAgent)
	}
}

func TestManagerDistinctKeysMayDiffer(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "identities.json")

	table, err := store.NewFileTable(path)
	if err != nil {
		t.Fatalf("NewFileTable() returned error: %v", err)
	}

	manager := NewManager(table)
	picks := []string{"ua-one", "ua-two"}
	i := 0
	manager.pick = func() string {
		ua := picks[i%len(picks)]
		i++
		return ua
	}

	a, err := manager.Identity(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("Identity() returned error: %v", err)
	}
	b, err := manager.Identity(ctx, "b@example.com")
	if err != nil {
		t.Fatalf("Identity() returned error: %v", err)
	}

	if a.UserAgent != "ua-one" || b.UserAgent != "ua-two" {
		t.Errorf("expected pool picks in order, got %q and %q", a.UserAgent, b.UserAgent)
	}
}
