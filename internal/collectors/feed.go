package collectors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/egress"
	"frameworks/crowsnest/pkg/logging"
)

// FeedConfig configures the RSS/Atom poller.
type FeedConfig struct {
	URLs     []string
	MaxItems int
	Pause    time.Duration
}

func (c FeedConfig) withDefaults() FeedConfig {
	if c.MaxItems <= 0 {
		c.MaxItems = 50
	}
	return c
}

// FeedCollector polls syndicated feeds. Feed entries expose no engagement
// numbers, so items carry FeedMetrics and score on relevance and
// credibility alone.
type FeedCollector struct {
	executor *egress.Executor
	detector *Detector
	parser   *gofeed.Parser
	cfg      FeedConfig
	seen     *seenSet
	logger   logging.Logger
}

// NewFeedCollector builds a collector over the configured feed URLs.
func NewFeedCollector(executor *egress.Executor, detector *Detector, cfg FeedConfig, logger logging.Logger) *FeedCollector {
	return &FeedCollector{
		executor: executor,
		detector: detector,
		parser:   gofeed.NewParser(),
		cfg:      cfg.withDefaults(),
		seen:     newSeenSet(0),
		logger:   logger,
	}
}

func (c *FeedCollector) Name() string { return "feeds" }

// Scan fetches each feed, skipping entry GUIDs observed on earlier calls. A
// failing feed is logged and skipped; Scan only errors when every feed
// failed.
func (c *FeedCollector) Scan(ctx context.Context) ([]content.Item, error) {
	var items []content.Item
	var errs []error

	for i, feedURL := range c.cfg.URLs {
		if i > 0 && c.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(c.cfg.Pause):
			}
		}

		fetched, err := c.scanFeed(ctx, feedURL)
		if err != nil {
			c.logger.WithFields(logging.Fields{
				"feed":  feedURL,
				"error": err,
			}).Warn("Feed scan failed")
			errs = append(errs, err)
			continue
		}
		items = append(items, fetched...)
	}

	if len(items) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

func (c *FeedCollector) scanFeed(ctx context.Context, feedURL string) ([]content.Item, error) {
	resp, err := c.executor.Get(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", feedURL, err)
	}
	feed, err := c.parser.ParseString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	count := len(feed.Items)
	if count > c.cfg.MaxItems {
		count = c.cfg.MaxItems
	}

	var items []content.Item
	for _, entry := range feed.Items[:count] {
		id := entry.GUID
		if id == "" {
			id = entry.Link
		}
		if id == "" || c.seen.Observe(id) {
			continue
		}

		author := feed.Title
		if entry.Author != nil && entry.Author.Name != "" {
			author = entry.Author.Name
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		body := strings.TrimSpace(entry.Title)
		if summary = strings.TrimSpace(summary); summary != "" {
			body += "\n\n" + summary
		}

		createdAt := time.Now().UTC()
		if entry.PublishedParsed != nil {
			createdAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			createdAt = *entry.UpdatedParsed
		}

		item := content.Item{
			ID:        id,
			Platform:  content.PlatformRSS,
			Author:    author,
			Body:      body,
			Kind:      content.KindPost,
			Metrics:   content.FeedMetrics{},
			CreatedAt: createdAt,
			Metadata: map[string]any{
				"feed": feedURL,
				"link": entry.Link,
			},
		}
		items = append(items, item)
		items = append(items, c.detector.Detect(item)...)
	}
	return items, nil
}
