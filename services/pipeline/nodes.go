package pipeline

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"openpaws/services/llm"

	"golang.org/x/sync/errgroup"
)

const (
	NodePlanner  = "planner"
	NodeCreator  = "creator"
	NodeReviewer = "reviewer"
)

type planner struct {
	llm llm.Client
}

func NewPlanner(client llm.Client) Node { return &planner{llm: client} }

func (p *planner) Name() string   { return NodePlanner }
func (p *planner) Owns() []string { return []string{KeyPlan} }

func (p *planner) Run(ctx context.Context, st State) (Update, error) {
	system, user := plannerPrompts(st)
	resp, err := p.llm.Complete(ctx, llm.Request{Operation: NodePlanner, System: system, User: user})
	if err != nil {
		return Update{}, err
	}
	plan := strings.TrimSpace(resp.Content)
	return Update{Plan: &plan}, nil
}

type creator struct {
	llm llm.Client
}

func NewCreator(client llm.Client) Node { return &creator{llm: client} }

func (c *creator) Name() string   { return NodeCreator }
func (c *creator) Owns() []string { return []string{KeyDrafts} }

// Run drafts one post per platform concurrently. Drafts keep the order of
// st.Platforms.
func (c *creator) Run(ctx context.Context, st State) (Update, error) {
	drafts := make([]Draft, len(st.Platforms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, platform := range st.Platforms {
		g.Go(func() error {
			system, user := creatorPrompts(st, platform)
			resp, err := c.llm.Complete(gctx, llm.Request{Operation: NodeCreator, System: system, User: user})
			if err != nil {
				return err
			}
			content := truncate(strings.TrimSpace(resp.Content), charLimit(platform))
			drafts[i] = Draft{Platform: platform, Content: content, Hashtags: hashtags(content)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Update{}, err
	}
	return Update{Drafts: drafts}, nil
}

type reviewer struct{}

// NewReviewer commits the review decision taken at the suspension point.
func NewReviewer() Node { return reviewer{} }

func (reviewer) Name() string   { return NodeReviewer }
func (reviewer) Owns() []string { return []string{KeyReviewResult} }

func (reviewer) Run(ctx context.Context, st State) (Update, error) {
	d := st.Decision
	if d == nil {
		d = &Decision{Action: ActionApprove}
	}
	res := ReviewResult{
		Approved: d.Action == ActionApprove,
		Feedback: d.Feedback,
		Reviewer: d.Reviewer,
		Auto:     d.Auto,
	}
	if st.Assessment != nil {
		score := st.Assessment.Score
		res.Score = &score
		if res.Feedback == "" {
			res.Feedback = st.Assessment.Feedback
		}
	}
	return Update{ReviewResult: &res}, nil
}

var hashtagRe = regexp.MustCompile(`#[\p{L}\p{N}_]+`)

func hashtags(content string) []string {
	found := hashtagRe.FindAllString(content, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(found))
	out := make([]string, 0, len(found))
	for _, h := range found {
		key := strings.ToLower(h)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
