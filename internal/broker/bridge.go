package broker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errBridgeNotFound = errors.New("bridge: not found")

// Bridge talks to an external execution gateway over HTTP. The gateway
// speaks the standard response envelope, authenticated with a bearer
// key.
type Bridge struct {
	cfg    config.BridgeBrokerConfig
	client *http.Client
	logger zerolog.Logger

	mu        sync.Mutex
	connected bool
}

// NewBridge builds the gateway adapter. No connection is attempted until
// Connect.
func NewBridge(cfg config.BridgeBrokerConfig) *Bridge {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.With().Str("service", "bridge_broker").Logger(),
	}
}

func (b *Bridge) Name() string       { return "bridge" }
func (b *Bridge) IsSimulation() bool { return false }

func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Connect probes the gateway's account endpoint to verify reachability
// and credentials.
func (b *Bridge) Connect() error {
	var account types.Account
	if err := b.doRequest(http.MethodGet, "/api/v1/account", nil, &account); err != nil {
		return fmt.Errorf("connect to gateway: %w", err)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	b.logger.Info().Str("account_id", account.AccountID).Msg("connected to execution gateway")
	return nil
}

func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	b.client.CloseIdleConnections()
	b.logger.Info().Msg("disconnected from execution gateway")
	return nil
}

func (b *Bridge) SubmitOrder(order *types.Order) (*SubmitResult, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}

	var result SubmitResult
	if err := b.doRequest(http.MethodPost, "/api/v1/orders", order, &result); err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	return &result, nil
}

func (b *Bridge) CancelOrder(brokerOrderID string) (bool, error) {
	if !b.IsConnected() {
		return false, ErrNotConnected
	}

	var result struct {
		Cancelled bool `json:"cancelled"`
	}
	err := b.doRequest(http.MethodDelete, "/api/v1/orders/"+brokerOrderID, nil, &result)
	if errors.Is(err, errBridgeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return result.Cancelled, nil
}

func (b *Bridge) QueryOrder(brokerOrderID string) (*OrderSnapshot, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}

	var snapshot OrderSnapshot
	err := b.doRequest(http.MethodGet, "/api/v1/orders/"+brokerOrderID, nil, &snapshot)
	if errors.Is(err, errBridgeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &snapshot, nil
}

func (b *Bridge) GetPositions() ([]types.Position, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}

	var positions []types.Position
	if err := b.doRequest(http.MethodGet, "/api/v1/positions", nil, &positions); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return positions, nil
}

func (b *Bridge) GetAccount() (*types.Account, error) {
	if !b.IsConnected() {
		return nil, ErrNotConnected
	}

	var account types.Account
	if err := b.doRequest(http.MethodGet, "/api/v1/account", nil, &account); err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &account, nil
}

// doRequest performs one gateway call and decodes the response envelope
// into out.
func (b *Bridge) doRequest(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, b.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", b.cfg.APIKey))
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.New().String())
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return errBridgeNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	if !envelope.Success {
		return fmt.Errorf("gateway error: %s", envelope.Error)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}
