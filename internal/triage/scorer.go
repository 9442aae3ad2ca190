package triage

import (
	"regexp"
	"strings"
	"time"

	"frameworks/crowsnest/internal/content"
)

// Scoring policy. These weights and thresholds are load-bearing constants
// shared with downstream consumers; changing them changes tier routing.
const (
	engagementWeight  = 0.3
	relevanceWeight   = 0.4
	credibilityWeight = 0.3

	processThreshold = 6.0

	verifiedAuthorBonus = 5.0
	knownGoodBonus      = 7.0
	knownSpamPenalty    = -10.0

	highKeywordBonus   = 4.0
	mediumKeywordBonus = 2.0
	contractMatchBonus = 3.0
)

var (
	highPriorityKeywords   = []string{"announcement", "launch", "vulnerability", "hack", "protocol", "update"}
	mediumPriorityKeywords = []string{"defi", "blockchain", "crypto", "web3", "token"}

	contractPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
)

// ScoreResult is the derived actionability breakdown for one item.
type ScoreResult struct {
	Engagement    float64 `json:"engagement"`
	Relevance     float64 `json:"relevance"`
	Credibility   float64 `json:"credibility"`
	Combined      float64 `json:"combined"`
	ShouldProcess bool    `json:"should_process"`
}

// Scorer computes actionability scores from engagement, relevance, and
// credibility. Scoring is a pure function of the item and the evaluation
// time; the author reputation sets are fixed at construction.
type Scorer struct {
	verified  map[string]bool
	knownGood map[string]bool
	knownSpam map[string]bool
}

// NewScorer builds a scorer over three disjoint author reputation sets.
func NewScorer(verified, knownGood, knownSpam []string) *Scorer {
	return &Scorer{
		verified:  authorSet(verified),
		knownGood: authorSet(knownGood),
		knownSpam: authorSet(knownSpam),
	}
}

// Score evaluates one item at the given time.
func (s *Scorer) Score(item content.Item, now time.Time) ScoreResult {
	engagement := 0.0
	if item.Metrics != nil {
		engagement = clamp(item.Metrics.Engagement(now.Sub(item.CreatedAt)), 0, 10)
	}
	relevance := s.relevance(item.Body)
	credibility := s.credibility(item)

	combined := clamp(
		engagementWeight*engagement+relevanceWeight*relevance+credibilityWeight*credibility,
		0, 10,
	)

	return ScoreResult{
		Engagement:    engagement,
		Relevance:     relevance,
		Credibility:   credibility,
		Combined:      combined,
		ShouldProcess: combined >= processThreshold,
	}
}

// relevance scores the body text against the keyword policy. The three
// bonuses are independently triggerable and additive.
func (s *Scorer) relevance(body string) float64 {
	lower := strings.ToLower(body)

	score := 0.0
	if containsAny(lower, highPriorityKeywords) {
		score += highKeywordBonus
	}
	if containsAny(lower, mediumPriorityKeywords) {
		score += mediumKeywordBonus
	}
	if contractPattern.MatchString(body) {
		score += contractMatchBonus
	}
	return clamp(score, 0, 10)
}

// credibility combines the static author sets with the platform reputation
// metric. The spam penalty can drive the sum negative before the final
// clamp floors it at zero.
func (s *Scorer) credibility(item content.Item) float64 {
	author := strings.ToLower(strings.TrimSpace(item.Author))

	score := 0.0
	if s.verified[author] {
		score += verifiedAuthorBonus
	}
	if s.knownGood[author] {
		score += knownGoodBonus
	}
	if s.knownSpam[author] {
		score += knownSpamPenalty
	}
	if item.Metrics != nil {
		score += item.Metrics.Reputation()
	}
	return clamp(score, 0, 10)
}

func authorSet(authors []string) map[string]bool {
	set := make(map[string]bool, len(authors))
	for _, a := range authors {
		set[strings.ToLower(strings.TrimSpace(a))] = true
	}
	return set
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
