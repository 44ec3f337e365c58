package pipeline

import (
	"fmt"
	"strings"
)

var platformCharLimits = map[string]int{
	"twitter":   280,
	"linkedin":  3000,
	"instagram": 2200,
	"tiktok":    2200,
	"facebook":  63206,
	"youtube":   5000,
}

var platformRules = map[string][]string{
	"twitter": {
		"Keep it punchy and conversational",
		"Use 1-3 relevant hashtags max",
	},
	"linkedin": {
		"Professional but human, avoid corporate jargon",
		"Open with a hook line that stops the scroll",
		"Use line breaks for readability",
		"End with a question or call to action",
	},
	"instagram": {
		"Visual-first, describe the ideal image or carousel if relevant",
		"Use 5-15 relevant hashtags at the end",
		"Include a clear CTA (save, share, comment)",
	},
	"tiktok": {
		"Script format for video with hook, body and CTA",
		"Keep it authentic and unpolished",
	},
	"youtube": {
		"Include title, description and tags",
		"SEO-optimized description with keywords",
	},
	"facebook": {
		"Community-oriented and conversation-starting",
		"Questions and polls perform well",
	},
}

func charLimit(platform string) int {
	if n, ok := platformCharLimits[platform]; ok {
		return n
	}
	return 2200
}

func tone(st State) string {
	if st.Tone == "" {
		return "professional"
	}
	return st.Tone
}

func plannerPrompts(st State) (string, string) {
	system := "You are a social media strategist. Produce a short numbered content plan " +
		"(hook, key message, supporting points, call to action) that a copywriter can turn into posts."
	user := fmt.Sprintf("Topic: %s\nPlatforms: %s\nTone: %s",
		st.Topic, strings.Join(st.Platforms, ", "), tone(st))
	return system, user
}

func creatorPrompts(st State, platform string) (string, string) {
	name := strings.ToUpper(platform[:1]) + platform[1:]

	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert social media content creator for %s.\n\n", name)
	fmt.Fprintf(&b, "PLATFORM RULES for %s:\n- Character limit: %d\n", name, charLimit(platform))
	for _, r := range platformRules[platform] {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	fmt.Fprintf(&b, "- Tone: %s\n", tone(st))
	b.WriteString("\nRESPOND WITH ONLY THE POST CONTENT. No explanations, no meta-commentary.")

	user := fmt.Sprintf("Create a post about: %s\n\nContent plan:\n%s", st.Topic, st.Plan)
	return b.String(), user
}

func reviewPrompts(st State) (string, string) {
	system := "You are a brand-safety and quality reviewer for social media posts. " +
		"Score the drafts from 0 to 1 for clarity, tone fit and platform fit. " +
		`Respond with JSON only: {"score": <number>, "feedback": "<one paragraph>", "approved": <bool>}`

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nRequested tone: %s\n\n", st.Topic, tone(st))
	for _, d := range st.Drafts {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", d.Platform, d.Content)
	}
	return system, b.String()
}
