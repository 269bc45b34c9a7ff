// Package firmware polls the Marlin releases Atom feed and compares the
// connected controller's firmware version against the newest published tag.
package firmware

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/printhost/marlineeprom/internal/cache"
	"github.com/printhost/marlineeprom/internal/logging"
	"github.com/printhost/marlineeprom/internal/ratelimit"
)

// DefaultFeedURL is the upstream Marlin release feed.
const DefaultFeedURL = "https://github.com/MarlinFirmware/Marlin/releases.atom"

const latestCacheKey = "firmware:latest-release"

// Release is one published firmware release.
type Release struct {
	Version     string    `json:"version"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Status is the verdict for a connected controller.
type Status struct {
	CurrentVersion string `json:"currentVersion"`
	LatestVersion  string `json:"latestVersion"`
	UpToDate       bool   `json:"upToDate"`
	// Comparable is false for channel builds like "bugfix-2.0.x" whose
	// version token carries no release ordering.
	Comparable bool `json:"comparable"`
}

// Watcher fetches and caches the newest release.
type Watcher struct {
	feedURL string
	parser  *gofeed.Parser
	limiter *ratelimit.Limiter
	cache   cache.Cache
	logger  *logging.Logger
	timeout time.Duration
}

// NewWatcher creates a release watcher. Pass an empty feedURL for the default
// feed and a zero timeout for the default fetch timeout.
func NewWatcher(feedURL string, timeout time.Duration, limiter *ratelimit.Limiter, c cache.Cache, logger *logging.Logger) *Watcher {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Watcher{
		feedURL: feedURL,
		parser:  gofeed.NewParser(),
		limiter: limiter,
		cache:   c,
		logger:  logger,
		timeout: timeout,
	}
}

var versionToken = regexp.MustCompile(`\d+(?:\.\d+)+`)

// Latest returns the newest release from the feed, served from cache when a
// recent fetch is available.
func (w *Watcher) Latest(ctx context.Context) (*Release, error) {
	if cached, ok := w.cache.Get(latestCacheKey); ok {
		if rel := releaseFromCache(cached); rel != nil {
			return rel, nil
		}
	}

	if host := feedHost(w.feedURL); host != "" {
		w.limiter.Wait(host)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	feed, err := w.parser.ParseURLWithContext(w.feedURL, ctxWithTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse release feed %s: %w", w.feedURL, err)
	}
	if len(feed.Items) == 0 {
		return nil, fmt.Errorf("release feed %s is empty", w.feedURL)
	}

	item := feed.Items[0]
	rel := &Release{
		Version: versionToken.FindString(item.Title),
		Title:   item.Title,
		URL:     item.Link,
	}
	if item.PublishedParsed != nil {
		rel.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		rel.PublishedAt = *item.UpdatedParsed
	}

	if rel.Version == "" {
		return nil, fmt.Errorf("could not find a version token in release title %q", item.Title)
	}

	w.logger.Debug("Fetched latest firmware release", logging.WithField("version", rel.Version))
	w.cache.Set(latestCacheKey, map[string]interface{}{
		"version":     rel.Version,
		"title":       rel.Title,
		"url":         rel.URL,
		"publishedAt": rel.PublishedAt.Format(time.RFC3339),
	})
	return rel, nil
}

// Check compares the controller's version token against the newest release.
func (w *Watcher) Check(ctx context.Context, current string) (Status, error) {
	latest, err := w.Latest(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		CurrentVersion: current,
		LatestVersion:  latest.Version,
	}

	token := versionToken.FindString(current)
	if token == "" || strings.Contains(current, "bugfix") {
		return status, nil
	}

	status.Comparable = true
	status.UpToDate = CompareVersions(token, latest.Version) >= 0
	return status, nil
}

// CompareVersions orders dotted numeric version tokens: negative when a is
// older than b, zero when equal, positive when newer. Missing components
// count as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}

func feedHost(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return ""
	}
	return u.Host
}

func releaseFromCache(v interface{}) *Release {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	version, _ := m["version"].(string)
	if version == "" {
		return nil
	}
	rel := &Release{Version: version}
	rel.Title, _ = m["title"].(string)
	rel.URL, _ = m["url"].(string)
	if ts, ok := m["publishedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rel.PublishedAt = t
		}
	}
	return rel
}
