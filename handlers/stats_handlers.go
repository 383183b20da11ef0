// api/handlers/stats_handlers.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitepulse/api/middleware"
	"sitepulse/api/models"
	"sitepulse/api/utils"
)

// StatsReader serves the dashboard aggregates for one owner.
type StatsReader interface {
	GetEventCountsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time, eventKindFilter string) ([]models.EventCountByTime, error)
	GetUniqueVisitorsOverTime(ctx context.Context, ownerID, interval string, start, end time.Time) ([]models.EventCountByTime, error)
	GetTopNPagePaths(ctx context.Context, ownerID string, start, end time.Time, limit uint64) ([]models.TopPathResult, error)
	GetContentTypeBreakdown(ctx context.Context, ownerID string, start, end time.Time) ([]models.ContentTypeCount, error)
	GetRevenue(ctx context.Context, ownerID string, start, end time.Time) ([]models.RevenueSummary, error)
}

type StatsHandlers struct {
	Stats  StatsReader
	logger *zap.Logger
}

func NewStatsHandlers(s StatsReader, logger *zap.Logger) *StatsHandlers {
	return &StatsHandlers{
		Stats:  s,
		logger: logger,
	}
}

// statsRequest holds the parameters shared by every stats endpoint.
type statsRequest struct {
	ownerID    string
	start, end time.Time
}

func (h *StatsHandlers) parseRequest(c *gin.Context) (statsRequest, bool) {
	ownerID := c.GetString(middleware.ContextUserID)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return statsRequest{}, false
	}
	start, end, err := utils.ParseTimeRange(c.Query("start"), c.Query("end"), time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return statsRequest{}, false
	}
	return statsRequest{ownerID: ownerID, start: start, end: end}, true
}

// intervalParam accepts "day" as well as "Day".
func intervalParam(c *gin.Context) (string, bool) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval query parameter is required (e.g., 'Day', 'Hour')"})
		return "", false
	}
	interval = strings.ToUpper(interval[:1]) + strings.ToLower(interval[1:])
	if !utils.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interval. Use Minute, Hour, Day, Week, Month, Quarter or Year"})
		return "", false
	}
	return interval, true
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}
	interval, ok := intervalParam(c)
	if !ok {
		return
	}

	var kind string
	if raw := c.Query("eventKind"); raw != "" {
		table, allowed := models.ParseTable(raw)
		if !allowed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid eventKind. Use pageviews, initiate_checkouts or purchases"})
			return
		}
		kind = string(table)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetEventCountsOverTime(ctx, req.ownerID, interval, req.start, req.end, kind)
	if err != nil {
		h.logger.Error("Error getting event counts over time", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve event statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetUniqueVisitorsOverTime(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}
	interval, ok := intervalParam(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetUniqueVisitorsOverTime(ctx, req.ownerID, interval, req.start, req.end)
	if err != nil {
		h.logger.Error("Error getting unique visitors over time", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve unique visitor statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetTopNPagePaths(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	var limit uint64 = 10
	if limitParam := c.Query("limit"); limitParam != "" {
		parsed, err := strconv.ParseUint(limitParam, 10, 64)
		if err != nil || parsed == 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter. Must be between 1 and 1000"})
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetTopNPagePaths(ctx, req.ownerID, req.start, req.end, limit)
	if err != nil {
		h.logger.Error("Error getting top page paths", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve top page paths"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetContentTypeBreakdown(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetContentTypeBreakdown(ctx, req.ownerID, req.start, req.end)
	if err != nil {
		h.logger.Error("Error getting content type breakdown", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve content type statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetRevenue(c *gin.Context) {
	req, ok := h.parseRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Stats.GetRevenue(ctx, req.ownerID, req.start, req.end)
	if err != nil {
		h.logger.Error("Error getting revenue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve revenue statistics"})
		return
	}
	c.JSON(http.StatusOK, results)
}
