package feed

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HTTPProvider polls a signal service over HTTP. The endpoint returns a
// JSON array of signals; an empty array means no new signals.
type HTTPProvider struct {
	cfg       config.HTTPFeedConfig
	client    *http.Client
	logger    zerolog.Logger
	connected bool
}

// NewHTTPProvider builds the HTTP signal source. No request is made until
// Connect.
func NewHTTPProvider(cfg config.HTTPFeedConfig) *HTTPProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.With().Str("service", "http_feed").Logger(),
	}
}

func (p *HTTPProvider) Name() string      { return "http" }
func (p *HTTPProvider) IsConnected() bool { return p.connected }

// Connect probes the signal endpoint with a HEAD request to verify
// reachability.
func (p *HTTPProvider) Connect() error {
	req, err := http.NewRequest(http.MethodHead, p.cfg.URL, nil)
	if err != nil {
		return err
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to signal service: %w", err)
	}
	resp.Body.Close()

	p.connected = true
	p.logger.Info().Str("url", p.cfg.URL).Msg("connected to signal service")
	return nil
}

// Fetch pulls the current signal batch.
func (p *HTTPProvider) Fetch() ([]types.Signal, error) {
	req, err := http.NewRequest(http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signals: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read signal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("signal service returned status %d: %s", resp.StatusCode, string(body))
	}

	var signals []types.Signal
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, fmt.Errorf("decode signal response: %w", err)
	}
	return signals, nil
}

func (p *HTTPProvider) Close() error {
	p.connected = false
	p.client.CloseIdleConnections()
	return nil
}

func (p *HTTPProvider) authorize(req *http.Request) {
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}
}
