package handlers

import (
	"net/http"

	"predictpix/internal/services"

	"github.com/gin-gonic/gin"
)

type PredictionHandler struct {
	predictions *services.PredictionService
}

func NewPredictionHandler(predictions *services.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictions: predictions}
}

// GetMyPredictions returns the authenticated user's predictions
func (h *PredictionHandler) GetMyPredictions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	limit, offset := paginationParams(c)

	predictions, err := h.predictions.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    predictions,
		"count":   len(predictions),
	})
}

// GetPredictionByID returns one of the user's predictions
func (h *PredictionHandler) GetPredictionByID(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	predictionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	prediction, err := h.predictions.GetByID(c.Request.Context(), userID, predictionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    prediction,
	})
}

// CancelPrediction refunds a still-open prediction before the market closes
func (h *PredictionHandler) CancelPrediction(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	predictionID, ok := pathID(c, "id")
	if !ok {
		return
	}

	prediction, err := h.predictions.Cancel(c.Request.Context(), userID, predictionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    prediction,
	})
}
