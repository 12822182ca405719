package feed

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FileProvider reads signals from a local JSON file. Useful for dry runs
// and development; the idempotent batch save makes repeated fetches of
// the same file harmless.
type FileProvider struct {
	cfg       config.FileFeedConfig
	logger    zerolog.Logger
	connected bool
}

func NewFileProvider(cfg config.FileFeedConfig) *FileProvider {
	return &FileProvider{
		cfg:    cfg,
		logger: log.With().Str("service", "file_feed").Logger(),
	}
}

func (p *FileProvider) Name() string      { return "file" }
func (p *FileProvider) IsConnected() bool { return p.connected }

// Connect verifies the file exists.
func (p *FileProvider) Connect() error {
	if _, err := os.Stat(p.cfg.Path); err != nil {
		return fmt.Errorf("signal file: %w", err)
	}
	p.connected = true
	return nil
}

// Fetch reads the full file. A missing file after Connect is an error; an
// empty array is a normal empty batch.
func (p *FileProvider) Fetch() ([]types.Signal, error) {
	data, err := os.ReadFile(p.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read signal file: %w", err)
	}

	var signals []types.Signal
	if err := json.Unmarshal(data, &signals); err != nil {
		return nil, fmt.Errorf("parse signal file: %w", err)
	}

	p.logger.Debug().Int("count", len(signals)).Str("path", p.cfg.Path).Msg("signals read from file")
	return signals, nil
}

func (p *FileProvider) Close() error {
	p.connected = false
	return nil
}
