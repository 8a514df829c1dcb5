package engine

import (
	"regexp"
	"strings"

	"github.com/signalsift/signalsift/internal/model"
)

// CategoryGeneral is the classification fallback when no category
// signal fires.
const CategoryGeneral = "general"

// categorySignals maps each category to the phrases whose presence
// votes for it. Classification picks the category with the most votes.
var categorySignals = map[string][]string{
	"pain_point": {
		"struggling", "frustrated", "can't", "cannot", "wish",
		"problem", "issue", "bug", "broken", "doesn't work", "not working",
	},
	"success_story": {
		"increased", "case study", "success", "achieved", "finally",
		"breakthrough", "doubled", "tripled", "results",
	},
	"tool_comparison": {
		"vs", "versus", "compared", "comparison", "switched",
		"better than", "alternative", "instead of",
	},
	"technique": {
		"strategy", "method", "approach", "how to", "tutorial",
		"guide", "step by step", "walkthrough",
	},
	"industry_news": {
		"update", "algorithm", "announcement", "change", "news",
		"released", "launched", "rollout",
	},
}

// Urgency levels, ordered. Only pattern hits escalate beyond low.
const (
	UrgencyLow      = "low"
	UrgencyMedium   = "medium"
	UrgencyHigh     = "high"
	UrgencyCritical = "critical"
)

var urgencyPatterns = []struct {
	level string
	re    *regexp.Regexp
}{
	{UrgencyCritical, regexp.MustCompile(`\b(emergency|urgent|asap|immediately|critical|desperate)\b|\bplease\s+help\b`)},
	{UrgencyHigh, regexp.MustCompile(`\b(frustrated|struggling|stuck|blocked|confused|need\s+help|any\s+advice|dropped|tanked|crashed|plummeted|deadline)\b`)},
	{UrgencyMedium, regexp.MustCompile(`\b(wondering|curious|trying\s+to|want\s+to|planning\s+to|issue|problem|challenge|slow|inconsistent|unreliable)\b`)},
}

var positiveWords = []string{
	"good", "great", "excellent", "amazing", "love", "best",
	"helpful", "useful", "recommend", "success", "improved",
	"increased", "working", "easy", "simple", "effective",
}

var negativeWords = []string{
	"bad", "terrible", "worst", "hate", "awful", "useless",
	"broken", "frustrated", "struggling", "failed", "dropped",
	"lost", "difficult", "expensive", "slow", "buggy",
}

// Annotate classifies item text for report organization: the dominant
// content category, a wordlist-based sentiment polarity in [-1, 1] and
// an urgency level. It is deterministic and purely lexical, so an
// unavailable embedder never degrades it.
func Annotate(text string) model.Annotation {
	lower := strings.ToLower(text)
	return model.Annotation{
		Category: classifyCategory(lower),
		Polarity: polarity(lower),
		Urgency:  urgency(lower),
	}
}

// classifyCategory votes each category by the number of its signals
// present and returns the winner, general when nothing fires. Map
// iteration order must not leak into the result, so ties break
// alphabetically.
func classifyCategory(lower string) string {
	best, bestVotes := CategoryGeneral, 0
	for category, signals := range categorySignals {
		votes := 0
		for _, sig := range signals {
			if containsSignal(lower, sig) {
				votes++
			}
		}
		if votes > bestVotes || (votes == bestVotes && votes > 0 && category < best) {
			best, bestVotes = category, votes
		}
	}
	return best
}

// containsSignal requires word boundaries for short signals so "vs"
// does not fire inside "investors".
func containsSignal(lower, sig string) bool {
	if len(sig) > 3 || strings.Contains(sig, " ") {
		return strings.Contains(lower, sig)
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(sig) + `\b`)
	return re.MatchString(lower)
}

func polarity(lower string) float64 {
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if containsSignal(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if containsSignal(lower, w) {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func urgency(lower string) string {
	for _, up := range urgencyPatterns {
		if up.re.MatchString(lower) {
			return up.level
		}
	}
	return UrgencyLow
}
