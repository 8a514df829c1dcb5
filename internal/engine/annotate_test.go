package engine

import "testing"

func TestAnnotate_Category(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"pain point", "Frustrated that my sitemap plugin is broken again", "pain_point"},
		{"success story", "Case study: how we doubled organic traffic in 3 months", "success_story"},
		{"comparison", "Ahrefs vs Semrush: which one should I keep?", "tool_comparison"},
		{"technique", "A step by step guide to log file analysis", "technique"},
		{"news", "Google announcement: new ranking update launched today", "industry_news"},
		{"nothing fires", "Morning walk photos from the weekend", CategoryGeneral},
		{"short signal needs boundary", "Investors are watching the market", CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Annotate(tt.text)
			if got.Category != tt.want {
				t.Errorf("category = %q, want %q", got.Category, tt.want)
			}
		})
	}
}

func TestAnnotate_Polarity(t *testing.T) {
	pos := Annotate("This tool is excellent, simple and effective, I recommend it")
	if pos.Polarity <= 0 {
		t.Errorf("positive text polarity = %v", pos.Polarity)
	}
	neg := Annotate("Terrible release, broken and buggy, traffic dropped")
	if neg.Polarity >= 0 {
		t.Errorf("negative text polarity = %v", neg.Polarity)
	}
	neutral := Annotate("Quarterly report published on schedule")
	if neutral.Polarity != 0 {
		t.Errorf("neutral text polarity = %v", neutral.Polarity)
	}
	if pos.Polarity > 1 || neg.Polarity < -1 {
		t.Errorf("polarity out of range: %v, %v", pos.Polarity, neg.Polarity)
	}
}

func TestAnnotate_Urgency(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Please help, rankings gone overnight", UrgencyCritical},
		{"Completely stuck on this migration, need help", UrgencyHigh},
		{"Wondering whether schema markup still matters", UrgencyMedium},
		{"Weekly roundup of interesting reads", UrgencyLow},
	}
	for _, tt := range tests {
		if got := Annotate(tt.text).Urgency; got != tt.want {
			t.Errorf("urgency(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestAnnotate_Deterministic(t *testing.T) {
	// Fires one pain_point and one success_story signal; the winner
	// must not depend on map iteration order.
	text := "Finally solved the problem"
	first := Annotate(text)
	for i := 0; i < 20; i++ {
		if got := Annotate(text); got != first {
			t.Fatalf("annotation changed between calls: %+v vs %+v", got, first)
		}
	}
}
