package firmware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/printhost/marlineeprom/internal/cache"
	"github.com/printhost/marlineeprom/internal/ratelimit"
	"github.com/printhost/marlineeprom/internal/testutil"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Release notes from Marlin</title>
  <entry>
    <title>Marlin 2.1.2</title>
    <link href="https://github.com/MarlinFirmware/Marlin/releases/tag/2.1.2"/>
    <updated>2023-01-01T00:00:00Z</updated>
  </entry>
  <entry>
    <title>Marlin 2.1.1</title>
    <link href="https://github.com/MarlinFirmware/Marlin/releases/tag/2.1.1"/>
    <updated>2022-06-01T00:00:00Z</updated>
  </entry>
</feed>`

func newTestWatcher(t *testing.T) (*Watcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeed))
	}))
	t.Cleanup(srv.Close)

	c := cache.NewMemory(time.Minute)
	t.Cleanup(c.Stop)

	w := NewWatcher(srv.URL, 5*time.Second, ratelimit.New(time.Millisecond), c, testutil.NullLogger())
	return w, srv
}

func TestNewWatcher_Timeout(t *testing.T) {
	c := cache.NewMemory(time.Minute)
	t.Cleanup(c.Stop)
	limiter := ratelimit.New(time.Millisecond)

	w := NewWatcher("", 3*time.Second, limiter, c, testutil.NullLogger())
	if w.timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", w.timeout)
	}

	w = NewWatcher("", 0, limiter, c, testutil.NullLogger())
	if w.timeout != 15*time.Second {
		t.Errorf("zero timeout = %v, want the 15s default", w.timeout)
	}
}

func TestLatest(t *testing.T) {
	w, _ := newTestWatcher(t)

	rel, err := w.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if rel.Version != "2.1.2" {
		t.Errorf("Latest().Version = %q, want 2.1.2", rel.Version)
	}
	if rel.URL == "" {
		t.Error("Latest().URL should be set")
	}
	if rel.PublishedAt.IsZero() {
		t.Error("Latest().PublishedAt should be set")
	}
}

func TestLatest_Cached(t *testing.T) {
	w, srv := newTestWatcher(t)

	if _, err := w.Latest(context.Background()); err != nil {
		t.Fatalf("Latest() error: %v", err)
	}

	// A second call must be served from cache, not the feed.
	srv.Close()
	rel, err := w.Latest(context.Background())
	if err != nil {
		t.Fatalf("cached Latest() error: %v", err)
	}
	if rel.Version != "2.1.2" {
		t.Errorf("cached Latest().Version = %q, want 2.1.2", rel.Version)
	}
}

func TestCheck(t *testing.T) {
	w, _ := newTestWatcher(t)
	ctx := context.Background()

	tests := []struct {
		current    string
		upToDate   bool
		comparable bool
	}{
		{"2.1.2", true, true},
		{"2.1.3", true, true},
		{"2.0.6", false, true},
		{"1.1.9", false, true},
		{"bugfix-2.0.x", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		status, err := w.Check(ctx, tt.current)
		if err != nil {
			t.Fatalf("Check(%q) error: %v", tt.current, err)
		}
		if status.UpToDate != tt.upToDate {
			t.Errorf("Check(%q).UpToDate = %v, want %v", tt.current, status.UpToDate, tt.upToDate)
		}
		if status.Comparable != tt.comparable {
			t.Errorf("Check(%q).Comparable = %v, want %v", tt.current, status.Comparable, tt.comparable)
		}
		if status.LatestVersion != "2.1.2" {
			t.Errorf("Check(%q).LatestVersion = %q, want 2.1.2", tt.current, status.LatestVersion)
		}
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int // sign only
	}{
		{"2.1.2", "2.1.2", 0},
		{"2.1.2", "2.1.1", 1},
		{"2.0.9", "2.1.0", -1},
		{"1.1.9", "2.1.2", -1},
		{"2.1", "2.1.0", 0},
		{"2.1.2.1", "2.1.2", 1},
	}
	for _, tt := range tests {
		got := CompareVersions(tt.a, tt.b)
		switch {
		case tt.want == 0 && got != 0:
			t.Errorf("CompareVersions(%q, %q) = %d, want 0", tt.a, tt.b, got)
		case tt.want > 0 && got <= 0:
			t.Errorf("CompareVersions(%q, %q) = %d, want > 0", tt.a, tt.b, got)
		case tt.want < 0 && got >= 0:
			t.Errorf("CompareVersions(%q, %q) = %d, want < 0", tt.a, tt.b, got)
		}
	}
}
