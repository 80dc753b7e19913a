package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/newsdocket/docket/pkg/dates"
	"github.com/newsdocket/docket/pkg/models"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// pageParams reads limit and offset query parameters with bounds applied.
func pageParams(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxPageSize)
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func notFoundOr500(c *gin.Context, err error, what string) {
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// listArticles handles GET /api/v1/articles. With ?q= the full-text search
// path is used instead of plain pagination.
func (s *Server) listArticles(c *gin.Context) {
	ctx := c.Request.Context()
	limit, offset := pageParams(c)

	if q := c.Query("q"); q != "" {
		articles, err := s.store.Articles.Search(ctx, q, limit, nil, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"articles": articles})
		return
	}

	articles, err := s.store.Articles.List(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.store.Articles.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "total": total, "limit": limit, "offset": offset})
}

// getArticle handles GET /api/v1/articles/:id.
func (s *Server) getArticle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a, err := s.store.Articles.GetByID(c.Request.Context(), id)
	if err != nil {
		notFoundOr500(c, err, "article")
		return
	}
	c.JSON(http.StatusOK, a)
}

// listArticleClaims handles GET /api/v1/articles/:id/claims.
func (s *Server) listArticleClaims(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	claims, err := s.store.Claims.ListByArticle(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

// listClaims handles GET /api/v1/claims. The ?article_id= filter is
// required; claims are only meaningful in their article's context.
func (s *Server) listClaims(c *gin.Context) {
	articleID, err := uuid.Parse(c.Query("article_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "article_id is required"})
		return
	}
	claims, err := s.store.Claims.ListByArticle(c.Request.Context(), articleID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

// getClaim handles GET /api/v1/claims/:id.
func (s *Server) getClaim(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	claim, err := s.store.Claims.GetByID(c.Request.Context(), id)
	if err != nil {
		notFoundOr500(c, err, "claim")
		return
	}
	c.JSON(http.StatusOK, claim)
}

// listClaimUpdates handles GET /api/v1/claims/:id/updates.
func (s *Server) listClaimUpdates(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	updates, err := s.store.Updates.ListByClaim(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updates": updates})
}

// listClaimFollowUps handles GET /api/v1/claims/:id/followups.
func (s *Server) listClaimFollowUps(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	followUps, err := s.store.FollowUps.ListByClaim(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"followups": followUps})
}

// listDueFollowUps handles GET /api/v1/followups. ?due=YYYY-MM-DD selects the
// as-of date; the default is the pipeline date.
func (s *Server) listDueFollowUps(c *gin.Context) {
	due := dates.PipelineToday()
	if v := c.Query("due"); v != "" {
		parsed, err := dates.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due date"})
			return
		}
		due = parsed
	}
	followUps, err := s.store.FollowUps.DueOn(c.Request.Context(), due)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"due": due, "followups": followUps})
}

// listRoundups handles GET /api/v1/roundups with an optional ?kind= filter.
func (s *Server) listRoundups(c *gin.Context) {
	kind := models.RoundupKind(c.Query("kind"))
	switch kind {
	case "", models.RoundupDaily, models.RoundupWeekly, models.RoundupMonthly, models.RoundupYearly:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid roundup kind"})
		return
	}
	limit, _ := pageParams(c)
	roundups, err := s.store.Roundups.List(c.Request.Context(), kind, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"roundups": roundups})
}

// getRoundup handles GET /api/v1/roundups/:slug.
func (s *Server) getRoundup(c *gin.Context) {
	ru, err := s.store.Roundups.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		notFoundOr500(c, err, "roundup")
		return
	}
	c.JSON(http.StatusOK, ru)
}

// listSubscriptions handles GET /api/v1/subscriptions with an optional
// ?locale= filter. Only active subscriptions are returned.
func (s *Server) listSubscriptions(c *gin.Context) {
	locale := c.Query("locale")
	subs, err := s.store.Subscriptions.List(c.Request.Context(), locale)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := s.store.Subscriptions.Count(c.Request.Context(), locale)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "total": total})
}

// dailyUsage handles GET /api/v1/usage/daily. ?date=YYYY-MM-DD selects the
// day; the default is the pipeline date.
func (s *Server) dailyUsage(c *gin.Context) {
	day := dates.PipelineToday()
	if v := c.Query("date"); v != "" {
		parsed, err := dates.ParseDate(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
			return
		}
		day = parsed
	}
	rows, err := s.store.LMLogs.UsageForDate(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day, "usage": rows})
}
