package engine

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradeflow-api/pkg/response"
)

// GinHandlers contains HTTP handlers for engine status and the broker
// passthrough endpoints.
type GinHandlers struct {
	processor *Processor
}

// NewGinHandlers creates a new set of HTTP handlers for the engine
func NewGinHandlers(processor *Processor) *GinHandlers {
	return &GinHandlers{
		processor: processor,
	}
}

// StatusHandler handles GET requests for the engine status.
func (h *GinHandlers) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.processor.Status())
	}
}

// AccountHandler handles GET requests for the live account snapshot.
func (h *GinHandlers) AccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := h.processor.broker.GetAccount()
		response.Handle(c, account, err)
	}
}

// PositionsHandler handles GET requests for the live position book.
func (h *GinHandlers) PositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := h.processor.broker.GetPositions()
		response.Handle(c, positions, err)
	}
}

// SnapshotsHandler handles GET requests for the daily account snapshots.
// Query parameter: limit
func (h *GinHandlers) SnapshotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 30
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		snapshots, err := h.processor.db.ListSnapshots(limit)
		response.Handle(c, snapshots, err)
	}
}
