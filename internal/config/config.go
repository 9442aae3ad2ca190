package config

import (
	"strings"
	"time"

	"frameworks/crowsnest/internal/egress"
	"frameworks/crowsnest/pkg/config"
	"frameworks/crowsnest/pkg/llm"
	"frameworks/crowsnest/pkg/version"
)

// Config stores environment configuration for Crowsnest.
type Config struct {
	Port         string
	ServiceToken string

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	LLM llm.Config

	Identities     []egress.Identity
	MaxAttempts    int
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	RequestTimeout time.Duration

	RedditBaseURL  string
	Subreddits     []string
	RedditLimit    int
	TwitterBaseURL string
	TwitterQueries []string
	TwitterResults int
	FeedURLs       []string
	FeedMaxItems   int
	CollectorPause time.Duration

	WatchKeywords    []string
	VerifiedAuthors  []string
	KnownGoodAuthors []string
	KnownSpamAuthors []string

	DedupRetention      time.Duration
	AggregationInterval time.Duration
	MemoryWindow        time.Duration

	ScanInterval      time.Duration
	MinScanInterval   time.Duration
	MaxScanInterval   time.Duration
	ActivityThreshold int
}

// LoadConfig loads the Crowsnest configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:         config.GetEnv("PORT", "18095"),
		ServiceToken: config.GetEnv("SERVICE_TOKEN", ""),

		DatabaseURL:  config.GetEnv("DATABASE_URL", ""),
		RedisURL:     config.GetEnv("REDIS_URL", ""),
		KafkaBrokers: parseList(config.GetEnv("KAFKA_BROKERS", "")),

		LLM: llm.LoadConfig(),

		Identities:     parseIdentities(config.GetEnv("IDENTITIES", "")),
		MaxAttempts:    config.GetEnvInt("MAX_ATTEMPTS", 3),
		BackoffMin:     config.GetEnvDuration("BACKOFF_MIN", 5*time.Second),
		BackoffMax:     config.GetEnvDuration("BACKOFF_MAX", 15*time.Second),
		RequestTimeout: config.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),

		RedditBaseURL:  config.GetEnv("REDDIT_BASE_URL", "https://www.reddit.com"),
		Subreddits:     parseList(config.GetEnv("REDDIT_SUBREDDITS", "cryptocurrency,defi,ethereum")),
		RedditLimit:    config.GetEnvInt("REDDIT_LIMIT", 25),
		TwitterBaseURL: config.GetEnv("TWITTER_BASE_URL", "https://api.twitter.com"),
		TwitterQueries: parseList(config.GetEnv("TWITTER_QUERIES", "")),
		TwitterResults: config.GetEnvInt("TWITTER_MAX_RESULTS", 50),
		FeedURLs:       parseList(config.GetEnv("RSS_FEEDS", "")),
		FeedMaxItems:   config.GetEnvInt("FEED_MAX_ITEMS", 50),
		CollectorPause: config.GetEnvDuration("COLLECTOR_PAUSE", 2*time.Second),

		WatchKeywords:    parseList(config.GetEnv("WATCH_KEYWORDS", "airdrop,exploit,mainnet")),
		VerifiedAuthors:  parseList(config.GetEnv("VERIFIED_AUTHORS", "")),
		KnownGoodAuthors: parseList(config.GetEnv("KNOWN_GOOD_AUTHORS", "")),
		KnownSpamAuthors: parseList(config.GetEnv("KNOWN_SPAM_AUTHORS", "")),

		DedupRetention:      config.GetEnvDuration("DEDUP_RETENTION", 24*time.Hour),
		AggregationInterval: config.GetEnvDuration("AGGREGATION_INTERVAL", time.Hour),
		MemoryWindow:        config.GetEnvDuration("MEMORY_WINDOW", 24*time.Hour),

		ScanInterval:      config.GetEnvDuration("SCAN_INTERVAL", 60*time.Second),
		MinScanInterval:   config.GetEnvDuration("MIN_SCAN_INTERVAL", 30*time.Second),
		MaxScanInterval:   config.GetEnvDuration("MAX_SCAN_INTERVAL", 300*time.Second),
		ActivityThreshold: config.GetEnvInt("ACTIVITY_THRESHOLD", 10),
	}
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

// parseIdentities reads the identity pool from a comma separated list of
// pipe separated records: name|user_agent|token|proxy_url. Token and proxy
// may be omitted. An empty value yields a single default identity so the
// rotator always has a pool.
func parseIdentities(raw string) []egress.Identity {
	var pool []egress.Identity
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		id := egress.Identity{Name: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			id.UserAgent = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			id.Token = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			id.ProxyURL = strings.TrimSpace(parts[3])
		}
		if id.Name == "" {
			continue
		}
		if id.UserAgent == "" {
			id.UserAgent = defaultUserAgent()
		}
		pool = append(pool, id)
	}
	if len(pool) == 0 {
		pool = append(pool, egress.Identity{Name: "default", UserAgent: defaultUserAgent()})
	}
	return pool
}

func defaultUserAgent() string {
	return "crowsnest/" + version.Version
}
