// Package journal is the engine's persistent audit trail. Every order
// submission, rejection, cancellation and reconciliation anomaly is
// appended as a TradeLog row and mirrored to the process logger.
package journal

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/ksred/tradeflow-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Log levels stored in the trade_logs table.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Service writes and queries the audit trail.
type Service struct {
	db     *Database
	logger zerolog.Logger
}

// NewService creates a journal service on the given database connection.
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		logger: log.With().Str("service", "journal").Logger(),
	}
}

// Info appends an informational audit entry.
func (s *Service) Info(message string, context map[string]interface{}) {
	s.append(LevelInfo, message, context)
}

// Warning appends a warning audit entry.
func (s *Service) Warning(message string, context map[string]interface{}) {
	s.append(LevelWarning, message, context)
}

// Error appends an error audit entry.
func (s *Service) Error(message string, context map[string]interface{}) {
	s.append(LevelError, message, context)
}

// append persists the entry and mirrors it to the process log. A storage
// failure must never take down the operation being journalled, so it is
// only logged.
func (s *Service) append(level, message string, context map[string]interface{}) {
	entry := &types.TradeLog{
		Level:   level,
		Message: message,
	}
	if len(context) > 0 {
		if data, err := json.Marshal(context); err == nil {
			entry.Context = string(data)
		}
	}

	if err := s.db.CreateLog(entry); err != nil {
		s.logger.Error().Err(err).Str("message", message).Msg("failed to persist trade log")
	}

	var event *zerolog.Event
	switch level {
	case LevelError:
		event = s.logger.Error()
	case LevelWarning:
		event = s.logger.Warn()
	default:
		event = s.logger.Info()
	}
	event.Fields(context).Msg(message)
}

// ListLogs returns the most recent audit entries, optionally filtered by
// level.
func (s *Service) ListLogs(level string, limit int) ([]types.TradeLog, error) {
	return s.db.ListLogs(level, limit)
}

// GinHandlers contains HTTP handlers for the journal endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the journal
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListLogsHandler handles GET requests for the audit trail.
// Query parameters: level (INFO/WARNING/ERROR), limit
func (h *GinHandlers) ListLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

		logs, err := h.service.ListLogs(c.Query("level"), limit)
		response.Handle(c, logs, err)
	}
}
