package analytics

import "math"

// Engagement counts every interaction with a post.
func Engagement(likes, comments, shares, clicks int64) int64 {
	return likes + comments + shares + clicks
}

// EngagementRate is engagement over impressions, rounded to six decimal
// places. It is zero when there were no impressions.
func EngagementRate(engagement, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return math.Round(float64(engagement)/float64(impressions)*1e6) / 1e6
}

func (t *Totals) finish() {
	t.Engagement = Engagement(t.Likes, t.Comments, t.Shares, t.Clicks)
	t.EngagementRate = EngagementRate(t.Engagement, t.Impressions)
}
