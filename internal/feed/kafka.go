package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// KafkaProvider drains a signal topic. Each Fetch reads whatever is
// currently buffered, up to the configured batch size; an idle topic
// yields an empty batch.
type KafkaProvider struct {
	cfg    config.KafkaFeedConfig
	reader *kafka.Reader
	logger zerolog.Logger
}

// NewKafkaProvider builds the Kafka signal source. The reader is created
// on Connect.
func NewKafkaProvider(cfg config.KafkaFeedConfig) *KafkaProvider {
	return &KafkaProvider{
		cfg:    cfg,
		logger: log.With().Str("service", "kafka_feed").Logger(),
	}
}

func (p *KafkaProvider) Name() string      { return "kafka" }
func (p *KafkaProvider) IsConnected() bool { return p.reader != nil }

func (p *KafkaProvider) Connect() error {
	if p.reader != nil {
		return nil
	}

	p.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:  p.cfg.Brokers,
		Topic:    p.cfg.Topic,
		GroupID:  p.cfg.GroupID,
		MinBytes: p.cfg.MinBytes,
		MaxBytes: p.cfg.MaxBytes,
		MaxWait:  time.Duration(p.cfg.WaitMs) * time.Millisecond,
	})

	p.logger.Info().
		Strs("brokers", p.cfg.Brokers).
		Str("topic", p.cfg.Topic).
		Msg("connected to signal topic")
	return nil
}

// Fetch drains up to MaxBatch messages. The read window closes after
// WaitMs of silence, so a quiet topic returns quickly and empty.
func (p *KafkaProvider) Fetch() ([]types.Signal, error) {
	if p.reader == nil {
		return nil, errors.New("kafka feed not connected")
	}

	maxBatch := p.cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 100
	}
	wait := time.Duration(p.cfg.WaitMs) * time.Millisecond
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	var signals []types.Signal
	for len(signals) < maxBatch {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		m, err := p.reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, err
		}

		var signal types.Signal
		if err := json.Unmarshal(m.Value, &signal); err != nil {
			p.logger.Warn().Err(err).Int64("offset", m.Offset).Msg("bad signal message, skipping")
			continue
		}
		signals = append(signals, signal)
	}

	return signals, nil
}

func (p *KafkaProvider) Close() error {
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}
