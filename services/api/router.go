// Package api mounts every service handler under /api/v1 behind the
// identity guard.
package api

import (
	"openpaws/pkg/authz"
	"openpaws/services/agentrun"
	"openpaws/services/analytics"
	"openpaws/services/approval"
	"openpaws/services/calendar"
	"openpaws/services/campaign"
	"openpaws/services/identity"
	"openpaws/services/media"
	"openpaws/services/organization"
	"openpaws/services/post"
	"openpaws/services/socialaccount"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("api",
	fx.Invoke(RegisterRoutes),
)

type Handlers struct {
	fx.In
	Users          *identity.Handler
	Organizations  *organization.Handler
	AgentRuns      *agentrun.Handler
	Approvals      *approval.Handler
	Campaigns      *campaign.Handler
	Posts          *post.Handler
	Calendar       *calendar.Handler
	SocialAccounts *socialaccount.Handler
	Analytics      *analytics.Handler
	Media          *media.Handler
}

func RegisterRoutes(r *gin.Engine, guard *identity.Guard, h Handlers) {
	Mount(r.Group("/api/v1"), guard, h)
}

// Mount registers the versioned routes on g. Every route requires a
// verified caller; all but the caller's profile and organization creation
// and listing also require an organization the caller belongs to.
func Mount(g *gin.RouterGroup, guard *identity.Guard, h Handlers) {
	g.Use(guard.Authenticate())

	g.GET("/users/me", h.Users.Me)
	g.PATCH("/users/me", h.Users.UpdateMe)

	g.POST("/organizations", h.Organizations.Create)
	g.GET("/organizations", h.Organizations.ListMine)

	org := g.Group("", guard.Organization())
	can := guard.Authorize

	orgs := org.Group("/organizations")
	{
		orgs.GET("/current", h.Organizations.Current)
		orgs.GET("/members", h.Organizations.ListMembers)
		orgs.POST("/members", can(authz.ResourceMembers, authz.ActionManage), h.Organizations.AddMember)
		orgs.PATCH("/members/:user_id", can(authz.ResourceMembers, authz.ActionManage), h.Organizations.UpdateMember)
		orgs.DELETE("/members/:user_id", can(authz.ResourceMembers, authz.ActionManage), h.Organizations.RemoveMember)
	}

	runs := org.Group("/agents/runs")
	{
		runs.POST("", can(authz.ResourceAgentRuns, authz.ActionWrite), h.AgentRuns.Trigger)
		runs.GET("", can(authz.ResourceAgentRuns, authz.ActionRead), h.AgentRuns.List)
		runs.GET("/:id", can(authz.ResourceAgentRuns, authz.ActionRead), h.AgentRuns.Get)
		runs.POST("/:id/approve", can(authz.ResourceAgentRuns, authz.ActionApprove), h.AgentRuns.Approve)
		runs.POST("/:id/reject", can(authz.ResourceAgentRuns, authz.ActionApprove), h.AgentRuns.Reject)
		runs.POST("/:id/request-revision", can(authz.ResourceAgentRuns, authz.ActionApprove), h.AgentRuns.RequestRevision)
		runs.POST("/:id/cancel", can(authz.ResourceAgentRuns, authz.ActionWrite), h.AgentRuns.Cancel)
	}

	posts := org.Group("/posts")
	{
		posts.POST("", can(authz.ResourcePosts, authz.ActionWrite), h.Posts.Create)
		posts.GET("", can(authz.ResourcePosts, authz.ActionRead), h.Posts.List)
		posts.GET("/:id", can(authz.ResourcePosts, authz.ActionRead), h.Posts.Get)
		posts.PATCH("/:id", can(authz.ResourcePosts, authz.ActionWrite), h.Posts.Update)
		posts.DELETE("/:id", can(authz.ResourcePosts, authz.ActionWrite), h.Posts.Delete)
		posts.POST("/:id/submit", can(authz.ResourcePosts, authz.ActionWrite), h.Posts.Submit)
		posts.POST("/:id/approve", can(authz.ResourcePosts, authz.ActionApprove), h.Posts.Approve)
		posts.POST("/:id/reject", can(authz.ResourcePosts, authz.ActionApprove), h.Posts.Reject)
		posts.POST("/:id/schedule", can(authz.ResourcePosts, authz.ActionApprove), h.Posts.Schedule)
	}

	campaigns := org.Group("/campaigns")
	{
		campaigns.POST("", can(authz.ResourceCampaigns, authz.ActionWrite), h.Campaigns.Create)
		campaigns.GET("", can(authz.ResourceCampaigns, authz.ActionRead), h.Campaigns.List)
		campaigns.GET("/:id", can(authz.ResourceCampaigns, authz.ActionRead), h.Campaigns.Get)
		campaigns.PATCH("/:id", can(authz.ResourceCampaigns, authz.ActionWrite), h.Campaigns.Update)
		campaigns.DELETE("/:id", can(authz.ResourceCampaigns, authz.ActionWrite), h.Campaigns.Delete)
		campaigns.POST("/:id/clone", can(authz.ResourceCampaigns, authz.ActionWrite), h.Campaigns.Clone)
	}

	entries := org.Group("/calendar")
	{
		entries.POST("", can(authz.ResourceCalendar, authz.ActionWrite), h.Calendar.Create)
		entries.GET("", can(authz.ResourceCalendar, authz.ActionRead), h.Calendar.List)
		entries.GET("/:id", can(authz.ResourceCalendar, authz.ActionRead), h.Calendar.Get)
		entries.PATCH("/:id", can(authz.ResourceCalendar, authz.ActionWrite), h.Calendar.Update)
		entries.DELETE("/:id", can(authz.ResourceCalendar, authz.ActionWrite), h.Calendar.Delete)
	}

	accounts := org.Group("/social-accounts")
	{
		accounts.GET("", can(authz.ResourceSocialAccounts, authz.ActionRead), h.SocialAccounts.List)
		accounts.GET("/:id", can(authz.ResourceSocialAccounts, authz.ActionRead), h.SocialAccounts.Get)
		accounts.DELETE("/:id", can(authz.ResourceSocialAccounts, authz.ActionWrite), h.SocialAccounts.Disconnect)
		accounts.GET("/connect/:platform", can(authz.ResourceSocialAccounts, authz.ActionWrite), h.SocialAccounts.Connect)
		accounts.POST("/connect/:platform/callback", can(authz.ResourceSocialAccounts, authz.ActionWrite), h.SocialAccounts.Callback)
	}

	stats := org.Group("/analytics")
	{
		stats.GET("/summary", can(authz.ResourceAnalytics, authz.ActionRead), h.Analytics.Summary)
		stats.GET("/posts/:post_id", can(authz.ResourceAnalytics, authz.ActionRead), h.Analytics.ForPost)
		stats.PUT("/posts/:post_id", can(authz.ResourceAnalytics, authz.ActionWrite), h.Analytics.Record)
	}

	approvals := org.Group("/approvals")
	{
		approvals.GET("", can(authz.ResourceApprovals, authz.ActionRead), h.Approvals.List)
		approvals.GET("/:id", can(authz.ResourceApprovals, authz.ActionRead), h.Approvals.Get)
		approvals.POST("/:id/review", can(authz.ResourceApprovals, authz.ActionApprove), h.Approvals.Review)
	}

	org.POST("/media/uploads", can(authz.ResourceMedia, authz.ActionWrite), h.Media.CreateUpload)
}
