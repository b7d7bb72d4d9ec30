package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/wasteloop/internal/inference"
	"github.com/smallbiznis/wasteloop/internal/ingestion"
)

type usageEventRequest struct {
	UserID    string   `json:"userId"`
	ItemName  string   `json:"itemName"`
	Category  string   `json:"category"`
	Quantity  *float64 `json:"quantity"`
	Unit      *string  `json:"unit"`
	DedupeKey string   `json:"dedupeKey"`
}

// IngestUsageEvent queues a usage signal from the surrounding product. The
// pipeline runs asynchronously; the caller only learns that it was accepted.
func (s *Server) IngestUsageEvent(c *gin.Context) {
	var req usageEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := parseOptionalSnowflakeID(req.UserID)
	if err != nil || userID == nil {
		AbortWithError(c, newValidationError("userId", "invalid_user_id", "invalid userId"))
		return
	}
	if req.Quantity == nil {
		AbortWithError(c, newValidationError("quantity", "required", "quantity is required"))
		return
	}

	receipt, err := s.usage.Submit(c.Request.Context(), ingestion.Submission{
		Event: inference.UsageEvent{
			UserID:   *userID,
			ItemName: strings.TrimSpace(req.ItemName),
			Category: strings.TrimSpace(req.Category),
			Quantity: *req.Quantity,
			Unit:     trimmedOrNil(req.Unit),
		},
		DedupeKey: strings.TrimSpace(req.DedupeKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": receipt})
}
