package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"frameworks/crowsnest/internal/content"
	"frameworks/crowsnest/internal/egress"
	"frameworks/crowsnest/pkg/logging"
)

const maxResponseBytes = 4 << 20

// RedditConfig configures the subreddit poller.
type RedditConfig struct {
	BaseURL    string
	Subreddits []string
	Limit      int
	Pause      time.Duration
}

func (c RedditConfig) withDefaults() RedditConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.reddit.com"
	}
	if c.Limit <= 0 {
		c.Limit = 25
	}
	return c
}

// RedditCollector polls subreddit listings for fresh posts.
type RedditCollector struct {
	executor *egress.Executor
	detector *Detector
	cfg      RedditConfig
	seen     *seenSet
	logger   logging.Logger
}

// NewRedditCollector builds a collector over the configured subreddits.
func NewRedditCollector(executor *egress.Executor, detector *Detector, cfg RedditConfig, logger logging.Logger) *RedditCollector {
	return &RedditCollector{
		executor: executor,
		detector: detector,
		cfg:      cfg.withDefaults(),
		seen:     newSeenSet(0),
		logger:   logger,
	}
}

func (c *RedditCollector) Name() string { return "reddit" }

// Scan fetches each subreddit's newest posts, skipping post IDs observed on
// earlier calls. A failing subreddit is logged and skipped; Scan only errors
// when every subreddit failed.
func (c *RedditCollector) Scan(ctx context.Context) ([]content.Item, error) {
	var items []content.Item
	var errs []error

	for i, sub := range c.cfg.Subreddits {
		if i > 0 && c.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(c.cfg.Pause):
			}
		}

		fetched, err := c.scanSubreddit(ctx, sub)
		if err != nil {
			c.logger.WithFields(logging.Fields{
				"subreddit": sub,
				"error":     err,
			}).Warn("Subreddit scan failed")
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

func (c *RedditCollector) scanSubreddit(ctx context.Context, sub string) ([]content.Item, error) {
	endpoint := fmt.Sprintf("%s/r/%s/new.json?limit=%d", strings.TrimRight(c.cfg.BaseURL, "/"), sub, c.cfg.Limit)
	resp, err := c.executor.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listing redditListing
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode subreddit %s: %w", sub, err)
	}

	var items []content.Item
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.ID == "" || c.seen.Observe(post.ID) {
			continue
		}

		body := strings.TrimSpace(post.Title)
		if text := strings.TrimSpace(post.SelfText); text != "" {
			body += "\n\n" + text
		}

		item := content.Item{
			ID:       post.ID,
			Platform: content.PlatformReddit,
			Author:   post.Author,
			Body:     body,
			Kind:     content.KindPost,
			Metrics: content.RedditMetrics{
				Score:       post.Score,
				Comments:    post.NumComments,
				UpvoteRatio: post.UpvoteRatio,
			},
			CreatedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Metadata: map[string]any{
				"subreddit": post.Subreddit,
				"permalink": post.Permalink,
			},
		}
		items = append(items, item)
		items = append(items, c.detector.Detect(item)...)
	}
	return items, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	SelfText    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	UpvoteRatio float64 `json:"upvote_ratio"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
}

// TwitterConfig configures the recent-search poller.
type TwitterConfig struct {
	BaseURL    string
	Queries    []string
	MaxResults int
	Pause      time.Duration
}

func (c TwitterConfig) withDefaults() TwitterConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.twitter.com"
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 50
	}
	return c
}

// TwitterCollector polls the recent-search endpoint for each configured
// query. Author metrics come from the expanded user objects.
type TwitterCollector struct {
	executor *egress.Executor
	detector *Detector
	cfg      TwitterConfig
	seen     *seenSet
	logger   logging.Logger
}

// NewTwitterCollector builds a collector over the configured search queries.
func NewTwitterCollector(executor *egress.Executor, detector *Detector, cfg TwitterConfig, logger logging.Logger) *TwitterCollector {
	return &TwitterCollector{
		executor: executor,
		detector: detector,
		cfg:      cfg.withDefaults(),
		seen:     newSeenSet(0),
		logger:   logger,
	}
}

func (c *TwitterCollector) Name() string { return "twitter" }

// Scan runs each configured query, skipping tweet IDs observed on earlier
// calls. A failing query is logged and skipped; Scan only errors when every
// query failed.
func (c *TwitterCollector) Scan(ctx context.Context) ([]content.Item, error) {
	var items []content.Item
	var errs []error

	for i, query := range c.cfg.Queries {
		if i > 0 && c.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(c.cfg.Pause):
			}
		}

		fetched, err := c.scanQuery(ctx, query)
		if err != nil {
			c.logger.WithFields(logging.Fields{
				"query": query,
				"error": err,
			}).Warn("Tweet search failed")
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

func (c *TwitterCollector) scanQuery(ctx context.Context, query string) ([]content.Item, error) {
	params := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(c.cfg.MaxResults)},
		"tweet.fields": {"public_metrics,created_at,author_id"},
		"expansions":   {"author_id"},
		"user.fields":  {"public_metrics,verified,username"},
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/2/tweets/search/recent?" + params.Encode()

	resp, err := c.executor.Get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var search twitterResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&search); err != nil {
		return nil, fmt.Errorf("decode tweet search %q: %w", query, err)
	}

	users := make(map[string]twitterUser, len(search.Includes.Users))
	for _, u := range search.Includes.Users {
		users[u.ID] = u
	}

	var items []content.Item
	for _, tweet := range search.Data {
		if tweet.ID == "" || c.seen.Observe(tweet.ID) {
			continue
		}

		author := users[tweet.AuthorID]
		name := author.Username
		if name == "" {
			name = tweet.AuthorID
		}

		item := content.Item{
			ID:       tweet.ID,
			Platform: content.PlatformTwitter,
			Author:   name,
			Body:     tweet.Text,
			Kind:     content.KindPost,
			Metrics: content.TwitterMetrics{
				Likes:     tweet.PublicMetrics.LikeCount,
				Retweets:  tweet.PublicMetrics.RetweetCount,
				Followers: author.PublicMetrics.FollowersCount,
				Verified:  author.Verified,
			},
			CreatedAt: tweet.CreatedAt,
			Metadata: map[string]any{
				"query": query,
			},
		}
		items = append(items, item)
		items = append(items, c.detector.Detect(item)...)
	}
	return items, nil
}

type twitterResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
}

type twitterTweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
	} `json:"public_metrics"`
}

type twitterUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Verified      bool   `json:"verified"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}
