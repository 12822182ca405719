// Package feed supplies trading signals from an external source. The
// intake service consumes the Provider contract; the concrete transport
// (HTTP poll, Kafka topic, local file) is selected by configuration.
package feed

import (
	"errors"
	"fmt"

	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/types"
)

var ErrUnknownDriver = errors.New("unknown feed driver")

// Provider is the capability set signal intake requires from a source.
// Fetch returning an empty batch is a normal outcome, not an error.
type Provider interface {
	Name() string
	IsConnected() bool
	Connect() error
	Fetch() ([]types.Signal, error)
	Close() error
}

// New builds the provider selected by cfg.Driver.
func New(cfg config.FeedConfig) (Provider, error) {
	switch cfg.Driver {
	case "http":
		return NewHTTPProvider(cfg.HTTP), nil
	case "kafka":
		return NewKafkaProvider(cfg.Kafka), nil
	case "file":
		return NewFileProvider(cfg.File), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
