package content

import "time"

// Platform tags carried on items and used for dedup identity.
const (
	PlatformReddit  = "reddit"
	PlatformTwitter = "twitter"
	PlatformRSS     = "rss"
)

// Kind classifies what an item represents. Collectors emit plain posts plus
// typed signal items for watch-keyword and contract-address detections.
type Kind string

const (
	KindPost              Kind = "post"
	KindKeywordAlert      Kind = "keyword_alert"
	KindContractDetection Kind = "contract_detection"
)

// Item is a single piece of collected content. Immutable once produced by a
// collector; the pipeline reads it, never mutates it.
type Item struct {
	ID        string
	Platform  string
	Author    string
	Body      string
	Kind      Kind
	Metrics   Metrics
	CreatedAt time.Time
	Metadata  map[string]any
}

// Metrics is the closed set of platform engagement shapes. The variant is
// chosen once at item construction; scoring dispatches through it instead of
// re-inspecting platform tags.
type Metrics interface {
	// Engagement returns the 0..5 engagement sub-score for an item of the
	// given age.
	Engagement(age time.Duration) float64
	// Reputation returns the 0..5 author reputation contribution.
	Reputation() float64
}

const engagementCap = 5.0

// RedditMetrics carries point-based engagement numbers.
type RedditMetrics struct {
	Score       int
	Comments    int
	UpvoteRatio float64
	AuthorKarma int
}

// Engagement combines magnitude, approval, and a linear 24h age decay.
func (m RedditMetrics) Engagement(age time.Duration) float64 {
	magnitude := minf(float64(m.Score)/100, 3)
	discussion := minf(float64(m.Comments)/50, 1)
	approval := clampf(m.UpvoteRatio, 0, 1)

	raw := magnitude + discussion + approval
	return clampf(raw*ageDecay(age), 0, engagementCap)
}

// Reputation scales author karma, capped at 5.
func (m RedditMetrics) Reputation() float64 {
	return clampf(float64(m.AuthorKarma)/2000, 0, 5)
}

// TwitterMetrics carries follow-graph engagement numbers.
type TwitterMetrics struct {
	Likes     int
	Retweets  int
	Followers int
	Verified  bool
}

// Engagement combines audience-relative rate, absolute volume, a verified
// bonus, and a viral bonus when reshares exceed 40% of likes.
func (m TwitterMetrics) Engagement(age time.Duration) float64 {
	total := float64(m.Likes + m.Retweets)
	followers := float64(m.Followers)
	if followers < 1 {
		followers = 1
	}

	rate := minf(total/followers*100, 2)
	volume := minf(total/1000, 2)

	score := rate + volume
	if m.Verified {
		score += 0.5
	}
	if float64(m.Retweets) > 0.4*float64(m.Likes) {
		score += 0.5
	}
	return clampf(score, 0, engagementCap)
}

// Reputation scales follower count, capped at 5.
func (m TwitterMetrics) Reputation() float64 {
	return clampf(float64(m.Followers)/20000, 0, 5)
}

// FeedMetrics is the variant for syndicated sources that expose no
// engagement numbers. Such items score on relevance and credibility alone.
type FeedMetrics struct{}

func (FeedMetrics) Engagement(age time.Duration) float64 { return 0 }

func (FeedMetrics) Reputation() float64 { return 0 }

// ageDecay fades linearly from 1 to 0 over 24 hours.
func ageDecay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	const window = 24 * time.Hour
	if age >= window {
		return 0
	}
	return 1 - float64(age)/float64(window)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
