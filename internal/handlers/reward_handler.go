package handlers

import (
	"net/http"

	"predictpix/internal/services"

	"github.com/gin-gonic/gin"
)

type RewardHandler struct {
	rewards *services.RewardService
}

func NewRewardHandler(rewards *services.RewardService) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

// GetMyRewards returns the authenticated user's rewards
func (h *RewardHandler) GetMyRewards(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, offset := paginationParams(c)

	rewards, err := h.rewards.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rewards,
		"count":   len(rewards),
	})
}

// GetMarketRewards returns all rewards issued for a settled market
func (h *RewardHandler) GetMarketRewards(c *gin.Context) {
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	rewards, err := h.rewards.ListByMarket(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    rewards,
		"count":   len(rewards),
	})
}
