package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/rewards"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 200
)

// GetSystemHealth returns the latest stored snapshot, probing once if none exists.
func (r *Router) GetSystemHealth(c *gin.Context) {
	snapshot, err := r.probe.Latest(c.Request.Context())
	if err != nil {
		r.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": snapshot})
}

func (r *Router) RunHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": r.probe.Check(c.Request.Context())})
}

// RetryReward moves a failed reward back to pending and schedules delivery.
func (r *Router) RetryReward(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(c, "invalid reward id")
		return
	}

	item, err := r.rewardSvc.Requeue(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, reward.ErrRewardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "reward_not_found"})
		case errors.Is(err, rewards.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "not_retryable", "message": err.Error()})
		default:
			r.respondInternal(c, err)
		}
		return
	}

	// Left pending when the queue is full; the orphan poll picks it up.
	enqueued := true
	if err := r.dispatcher.Enqueue(c.Request.Context(), item); err != nil {
		enqueued = false
		r.logger.Warn("retry_enqueue_failed", zap.Int64("reward_id", id), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": item, "enqueued": enqueued})
}

func (r *Router) ListEvents(c *gin.Context) {
	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondBadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxEventLimit)
	}

	events, err := r.events.Recent(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		r.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": events})
}
