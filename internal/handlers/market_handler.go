package handlers

import (
	"net/http"
	"time"

	"predictpix/internal/models"
	"predictpix/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type MarketHandler struct {
	markets     *services.MarketService
	predictions *services.PredictionService
	settlement  *services.SettlementService
}

func NewMarketHandler(
	markets *services.MarketService,
	predictions *services.PredictionService,
	settlement *services.SettlementService,
) *MarketHandler {
	return &MarketHandler{
		markets:     markets,
		predictions: predictions,
		settlement:  settlement,
	}
}

// GetMarkets returns markets with optional status filtering
func (h *MarketHandler) GetMarkets(c *gin.Context) {
	limit, offset := paginationParams(c)

	var status *models.MarketStatus
	if s := c.Query("status"); s != "" {
		ms := models.MarketStatus(s)
		status = &ms
	}

	markets, err := h.markets.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    markets,
		"count":   len(markets),
	})
}

// GetMarketByID returns a specific market with its current odds
func (h *MarketHandler) GetMarketByID(c *gin.Context) {
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	market, err := h.markets.Get(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	odds := services.CalculateOdds(market.YesPool, market.NoPool)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    market,
		"odds":    odds,
	})
}

// CreateMarket creates a new market pending admin approval
func (h *MarketHandler) CreateMarket(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Title                 string           `json:"title" binding:"required"`
		Description           string           `json:"description"`
		EndTime               time.Time        `json:"end_time" binding:"required"`
		ResolutionTime        time.Time        `json:"resolution_time" binding:"required"`
		CreatorFeePercentage  *decimal.Decimal `json:"creator_fee_percentage"`
		PlatformFeePercentage *decimal.Decimal `json:"platform_fee_percentage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market, err := h.markets.Create(c.Request.Context(), userID, services.CreateMarketInput{
		Title:                 req.Title,
		Description:           req.Description,
		EndTime:               req.EndTime,
		ResolutionTime:        req.ResolutionTime,
		CreatorFeePercentage:  req.CreatorFeePercentage,
		PlatformFeePercentage: req.PlatformFeePercentage,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    market,
	})
}

// PlacePrediction stakes an amount on one side of a market
func (h *MarketHandler) PlacePrediction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		PredictedOutcome string          `json:"predicted_outcome" binding:"required"`
		Amount           decimal.Decimal `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	prediction, err := h.predictions.Place(c.Request.Context(), userID, marketID,
		models.Outcome(req.PredictedOutcome), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    prediction,
	})
}

// ResolveMarket records the correct outcome on a CLOSED market (admin only)
func (h *MarketHandler) ResolveMarket(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		CorrectOutcome string `json:"correct_outcome" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market, err := h.markets.Resolve(c.Request.Context(), adminID, marketID, models.Outcome(req.CorrectOutcome))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    market,
	})
}

// SettleMarket settles a CLOSED, resolved market immediately (admin only)
func (h *MarketHandler) SettleMarket(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.settlement.SettleByAdmin(c.Request.Context(), adminID, marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// ApproveMarket approves a PENDING market (admin only)
func (h *MarketHandler) ApproveMarket(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.markets.Approve(c.Request.Context(), adminID, marketID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RejectMarket rejects a PENDING market, refunding any stakes (admin only)
func (h *MarketHandler) RejectMarket(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.markets.Reject(c.Request.Context(), adminID, marketID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CancelMarket cancels an ACTIVE market, refunding all stakes (admin only)
func (h *MarketHandler) CancelMarket(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.markets.CancelActive(c.Request.Context(), adminID, marketID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetMarketOdds returns the current odds snapshot for a market
func (h *MarketHandler) GetMarketOdds(c *gin.Context) {
	marketID, ok := pathID(c, "id")
	if !ok {
		return
	}

	odds, err := h.markets.Odds(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    odds,
	})
}
