package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ozanardine/phanteon-rewards/internal/auth"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/reconciler"
	"github.com/ozanardine/phanteon-rewards/internal/usecase/claim"
	"go.uber.org/zap"
)

type claimRequest struct {
	Day int `json:"day" binding:"required,min=1,max=7"`
}

// ClaimReward accepts a daily reward claim for the authenticated player.
func (r *Router) ClaimReward(c *gin.Context) {
	discordID, ok := auth.DiscordID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, bindingMessage(err))
		return
	}

	res, err := r.claimUC.Claim(c.Request.Context(), discordID, req.Day)
	if err != nil {
		var cooldown *claim.CooldownError
		switch {
		case errors.As(err, &cooldown):
			c.JSON(http.StatusBadRequest, gin.H{
				"success":       false,
				"error":         "cooldown_active",
				"message":       fmt.Sprintf("You can claim again in %d hour(s)", cooldown.HoursToWait),
				"hoursToWait":   cooldown.HoursToWait,
				"nextClaimTime": cooldown.NextClaimTime,
			})
		case errors.Is(err, reward.ErrInvalidDay):
			respondBadRequest(c, err.Error())
		case errors.Is(err, claim.ErrSteamIDMissing):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "steam_id_missing", "message": "link your Steam account before claiming"})
		case errors.Is(err, claim.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "user_not_found"})
		default:
			r.respondInternal(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"rewardId":      strconv.FormatInt(res.Reward.ID, 10),
		"claimTime":     res.ClaimTime,
		"nextClaimTime": res.NextClaimTime,
	})
}

// ListPendingRewards returns the caller's undelivered rewards, newest first.
func (r *Router) ListPendingRewards(c *gin.Context) {
	discordID, ok := auth.DiscordID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	items, err := r.claimUC.PendingRewards(c.Request.Context(), discordID)
	if err != nil {
		if errors.Is(err, claim.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "user_not_found"})
			return
		}
		r.respondInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "rewards": items})
}

func (r *Router) GetDailyStatus(c *gin.Context) {
	discordID, ok := auth.DiscordID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}

	status, err := r.claimUC.DailyStatus(c.Request.Context(), discordID)
	if err != nil {
		if errors.Is(err, claim.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "user_not_found"})
			return
		}
		r.respondInternal(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": status})
}

// Reconcile runs one reconciliation sweep on behalf of the external scheduler. The sweep
// is cut short at the request budget and the partial tally is returned; the next
// trigger picks up where it stopped.
func (r *Router) Reconcile(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), r.reconcileBudget)
	defer cancel()

	res, err := r.reconciler.Sweep(ctx)
	if err != nil {
		if errors.Is(err, reconciler.ErrSystemCritical) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "system_critical", "message": err.Error()})
			return
		}
		if errors.Is(err, reconciler.ErrSweepInProgress) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "error": "reconcile_in_progress", "message": err.Error()})
			return
		}
		r.respondInternal(c, err)
		return
	}

	r.logger.Info("reconcile_triggered",
		zap.Int("fixed", res.Fixed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Bool("partial", res.Partial),
	)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"fixed":   res.Fixed,
		"failed":  res.Failed,
		"skipped": res.Skipped,
		"partial": res.Partial,
	})
}
