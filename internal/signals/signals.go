// Package signals is the intake side of the engine: it pulls signal
// batches from the configured provider, persists them idempotently and
// exposes the pending backlog the executor consumes.
package signals

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/tradeflow-api/internal/feed"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/ksred/tradeflow-api/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var ErrNoProvider = errors.New("no signal provider configured")

// Service manages signal intake and the pending backlog.
type Service struct {
	db       *Database
	provider feed.Provider
	logger   zerolog.Logger
}

// NewService creates the intake service. provider may be nil when the
// deployment only accepts manually injected signals.
func NewService(gormDB *gorm.DB, provider feed.Provider) *Service {
	return &Service{
		db:       NewDatabase(gormDB),
		provider: provider,
		logger:   log.With().Str("service", "signals").Logger(),
	}
}

// FetchSignals pulls the current batch from the provider and persists
// it. The provider is connected lazily on first use. An empty batch is a
// normal outcome.
func (s *Service) FetchSignals() ([]types.Signal, error) {
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	if !s.provider.IsConnected() {
		if err := s.provider.Connect(); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("provider", s.provider.Name()).Msg("fetching signals")

	fetched, err := s.provider.Fetch()
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		s.logger.Info().Msg("no new signals")
		return nil, nil
	}

	signals := s.normalize(fetched)

	saved, err := s.db.SaveBatch(signals)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("fetched", len(fetched)).
		Int("saved", saved).
		Msg("signal batch persisted")
	return signals, nil
}

// normalize drops invalid records and mints ids for signals the provider
// delivered without one.
func (s *Service) normalize(fetched []types.Signal) []types.Signal {
	signals := make([]types.Signal, 0, len(fetched))
	for i := range fetched {
		signal := fetched[i]
		if signal.SignalID == "" {
			signal.SignalID = "SIG_" + uuid.New().String()
		}
		if signal.Source == "" && s.provider != nil {
			signal.Source = s.provider.Name()
		}
		if err := signal.Validate(); err != nil {
			s.logger.Warn().
				Err(err).
				Str("signal_id", signal.SignalID).
				Str("symbol", signal.Symbol).
				Msg("dropping invalid signal")
			continue
		}
		signals = append(signals, signal)
	}
	return signals
}

// CreateSignal persists a manually injected signal.
func (s *Service) CreateSignal(signal *types.Signal) error {
	if signal.SignalID == "" {
		signal.SignalID = "SIG_" + uuid.New().String()
	}
	if signal.Source == "" {
		signal.Source = "manual"
	}
	if err := signal.Validate(); err != nil {
		return err
	}
	return s.db.SaveSignal(signal)
}

// SaveSignal persists a mutation of an existing signal, typically the
// executed-order link written after execution.
func (s *Service) SaveSignal(signal *types.Signal) error {
	return s.db.SaveSignal(signal)
}

// GetSignal retrieves a signal by its business id.
func (s *Service) GetSignal(signalID string) (*types.Signal, error) {
	return s.db.GetSignal(signalID)
}

// GetPendingSignals returns the not-yet-executed backlog.
func (s *Service) GetPendingSignals() ([]types.Signal, error) {
	return s.db.GetPendingSignals()
}

// CountPendingSignals returns the backlog size.
func (s *Service) CountPendingSignals() (int64, error) {
	return s.db.CountPendingSignals()
}

// ListSignals returns the most recent signals with optional filters.
func (s *Service) ListSignals(source string, executed *bool, limit int) ([]types.Signal, error) {
	return s.db.ListSignals(source, executed, limit)
}

// GinHandlers contains HTTP handlers for signal endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for signal endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListSignalsHandler handles GET requests for stored signals.
// Query parameters: source, executed (true/false), limit
func (h *GinHandlers) ListSignalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var executed *bool
		if v := c.Query("executed"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				response.BadRequest(c, "executed must be true or false")
				return
			}
			executed = &b
		}

		limit := 100
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		list, err := h.service.ListSignals(c.Query("source"), executed, limit)
		response.Handle(c, list, err)
	}
}

// CreateSignalHandler handles POST requests injecting a signal manually.
func (h *GinHandlers) CreateSignalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var signal types.Signal
		if err := c.ShouldBindJSON(&signal); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.CreateSignal(&signal); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, signal)
	}
}

// FetchSignalsHandler handles POST requests triggering an on-demand
// provider fetch outside the scheduled window.
func (h *GinHandlers) FetchSignalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fetched, err := h.service.FetchSignals()
		if errors.Is(err, ErrNoProvider) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, gin.H{"fetched": len(fetched), "signals": fetched}, err)
	}
}
