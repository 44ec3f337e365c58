package pipeline

import (
	"errors"
	"fmt"
	"slices"
)

// State keys. A node may only write the keys it owns.
const (
	KeyTopic           = "topic"
	KeyPlatforms       = "platforms"
	KeyTone            = "tone"
	KeyCampaignID      = "campaign_id"
	KeyRequireApproval = "require_approval"
	KeyPlan            = "plan"
	KeyDrafts          = "drafts"
	KeyAssessment      = "assessment"
	KeyReviewResult    = "review_result"
)

var ErrUnownedKey = errors.New("pipeline: node wrote a key it does not own")

type Draft struct {
	Platform string   `json:"platform"`
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// Assessment is the model's opinion of the drafts, produced at the review
// boundary.
type Assessment struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Approved bool    `json:"approved"`
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRevise  Action = "revise"
)

// Decision resolves the suspension point, either from a human reviewer or
// from the automatic review rule.
type Decision struct {
	Action   Action `json:"action"`
	Reviewer string `json:"reviewer"`
	Feedback string `json:"feedback,omitempty"`
	Auto     bool   `json:"auto"`
}

type ReviewResult struct {
	Approved bool     `json:"approved"`
	Score    *float64 `json:"score,omitempty"`
	Feedback string   `json:"feedback,omitempty"`
	Reviewer string   `json:"reviewer"`
	Auto     bool     `json:"auto"`
}

type State struct {
	Topic           string        `json:"topic"`
	Platforms       []string      `json:"platforms"`
	Tone            string        `json:"tone,omitempty"`
	CampaignID      string        `json:"campaign_id,omitempty"`
	RequireApproval bool          `json:"require_approval,omitempty"`
	Plan            string        `json:"plan,omitempty"`
	Drafts          []Draft       `json:"drafts"`
	Assessment      *Assessment   `json:"assessment,omitempty"`
	ReviewResult    *ReviewResult `json:"review_result,omitempty"`
	// Decision is set by the graph when the suspension point is resolved.
	Decision *Decision `json:"decision,omitempty"`
}

// Update is a partial state. Nil fields are left untouched by Apply.
type Update struct {
	Topic        *string
	Platforms    []string
	Tone         *string
	Plan         *string
	Drafts       []Draft
	Assessment   *Assessment
	ReviewResult *ReviewResult
}

// Keys lists the state keys u sets.
func (u Update) Keys() []string {
	var keys []string
	if u.Topic != nil {
		keys = append(keys, KeyTopic)
	}
	if u.Platforms != nil {
		keys = append(keys, KeyPlatforms)
	}
	if u.Tone != nil {
		keys = append(keys, KeyTone)
	}
	if u.Plan != nil {
		keys = append(keys, KeyPlan)
	}
	if u.Drafts != nil {
		keys = append(keys, KeyDrafts)
	}
	if u.Assessment != nil {
		keys = append(keys, KeyAssessment)
	}
	if u.ReviewResult != nil {
		keys = append(keys, KeyReviewResult)
	}
	return keys
}

// Apply merges u into a copy of s. Every key u sets must appear in owned.
func (s State) Apply(u Update, owned []string) (State, error) {
	for _, k := range u.Keys() {
		if !slices.Contains(owned, k) {
			return s, fmt.Errorf("%w: %q", ErrUnownedKey, k)
		}
	}

	out := s.Clone()
	if u.Topic != nil {
		out.Topic = *u.Topic
	}
	if u.Platforms != nil {
		out.Platforms = slices.Clone(u.Platforms)
	}
	if u.Tone != nil {
		out.Tone = *u.Tone
	}
	if u.Plan != nil {
		out.Plan = *u.Plan
	}
	if u.Drafts != nil {
		out.Drafts = cloneDrafts(u.Drafts)
	}
	if u.Assessment != nil {
		a := *u.Assessment
		out.Assessment = &a
	}
	if u.ReviewResult != nil {
		r := *u.ReviewResult
		out.ReviewResult = &r
	}
	return out, nil
}

// Clone returns a deep copy so node goroutines never share slices.
func (s State) Clone() State {
	out := s
	out.Platforms = slices.Clone(s.Platforms)
	out.Drafts = cloneDrafts(s.Drafts)
	if s.Assessment != nil {
		a := *s.Assessment
		out.Assessment = &a
	}
	if s.ReviewResult != nil {
		r := *s.ReviewResult
		out.ReviewResult = &r
	}
	if s.Decision != nil {
		d := *s.Decision
		out.Decision = &d
	}
	return out
}

func cloneDrafts(in []Draft) []Draft {
	if in == nil {
		return nil
	}
	out := make([]Draft, len(in))
	for i, d := range in {
		d.Hashtags = slices.Clone(d.Hashtags)
		out[i] = d
	}
	return out
}
