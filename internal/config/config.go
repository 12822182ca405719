package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration for the engine and API server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Broker   BrokerConfig   `yaml:"broker"`
	Feed     FeedConfig     `yaml:"feed"`
	Risk     RiskConfig     `yaml:"risk"`
	Trading  TradingConfig  `yaml:"trading"`
	Engine   EngineConfig   `yaml:"engine"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // overridden by JWT_SECRET
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

type BrokerConfig struct {
	Driver string             `yaml:"driver"` // "sim" or "bridge"
	Sim    SimBrokerConfig    `yaml:"sim"`
	Bridge BridgeBrokerConfig `yaml:"bridge"`
}

type SimBrokerConfig struct {
	InitialCash     float64 `yaml:"initial_cash"`
	MinLatencyMs    int     `yaml:"min_latency_ms"`
	MaxLatencyMs    int     `yaml:"max_latency_ms"`
	SuccessRate     float64 `yaml:"success_rate"`
	PartialFillRate float64 `yaml:"partial_fill_rate"`
}

type BridgeBrokerConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"` // overridden by BRIDGE_API_KEY
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type FeedConfig struct {
	Driver string          `yaml:"driver"` // "http", "kafka" or "file"
	HTTP   HTTPFeedConfig  `yaml:"http"`
	Kafka  KafkaFeedConfig `yaml:"kafka"`
	File   FileFeedConfig  `yaml:"file"`
}

type HTTPFeedConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"` // overridden by FEED_TOKEN
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type KafkaFeedConfig struct {
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	GroupID   string   `yaml:"group_id"`
	MaxBatch  int      `yaml:"max_batch"`
	WaitMs    int      `yaml:"wait_ms"`
	MinBytes  int      `yaml:"min_bytes"`
	MaxBytes  int      `yaml:"max_bytes"`
}

type FileFeedConfig struct {
	Path string `yaml:"path"`
}

type RiskConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MaxOrderAmount    float64 `yaml:"max_order_amount"`
	MaxPositionRatio  float64 `yaml:"max_position_ratio"`
	MaxDailyLossRatio float64 `yaml:"max_daily_loss_ratio"`
	StopLossRatio     float64 `yaml:"stop_loss_ratio"`
	TakeProfitRatio   float64 `yaml:"take_profit_ratio"`
	MaxHoldings       int     `yaml:"max_holdings"`
}

type TradingConfig struct {
	Morning     SessionConfig `yaml:"morning"`
	Afternoon   SessionConfig `yaml:"afternoon"`
	FetchTime   string        `yaml:"fetch_time"`   // "HH:MM"
	ExecuteTime string        `yaml:"execute_time"` // "HH:MM"
}

type SessionConfig struct {
	Start string `yaml:"start"` // "HH:MM"
	End   string `yaml:"end"`   // "HH:MM"
}

type EngineConfig struct {
	TickIntervalSeconds int `yaml:"tick_interval_seconds"`
	SyncIntervalSeconds int `yaml:"sync_interval_seconds"`
}

// Default returns a configuration with sensible defaults: a simulated
// broker, mainland-market session windows and conservative risk limits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
		},
		Database: DatabaseConfig{
			Path: "tradeflow.db",
		},
		Auth: AuthConfig{
			JWTSecret: "development-secret",
			Username:  "operator",
			Password:  "operator",
		},
		Broker: BrokerConfig{
			Driver: "sim",
			Sim: SimBrokerConfig{
				InitialCash:     1000000,
				MinLatencyMs:    50,
				MaxLatencyMs:    200,
				SuccessRate:     0.95,
				PartialFillRate: 0.1,
			},
			Bridge: BridgeBrokerConfig{
				TimeoutSeconds: 10,
			},
		},
		Feed: FeedConfig{
			Driver: "file",
			File: FileFeedConfig{
				Path: "signals.json",
			},
			HTTP: HTTPFeedConfig{
				TimeoutSeconds: 10,
			},
			Kafka: KafkaFeedConfig{
				MaxBatch: 100,
				WaitMs:   500,
				MinBytes: 1,
				MaxBytes: 10e6,
			},
		},
		Risk: RiskConfig{
			Enabled:           true,
			MaxOrderAmount:    100000,
			MaxPositionRatio:  0.2,
			MaxDailyLossRatio: 0.05,
			StopLossRatio:     0.08,
			TakeProfitRatio:   0.20,
			MaxHoldings:       10,
		},
		Trading: TradingConfig{
			Morning:     SessionConfig{Start: "09:30", End: "11:30"},
			Afternoon:   SessionConfig{Start: "13:00", End: "15:00"},
			FetchTime:   "09:00",
			ExecuteTime: "09:35",
		},
		Engine: EngineConfig{
			TickIntervalSeconds: 10,
			SyncIntervalSeconds: 30,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("BRIDGE_API_KEY"); v != "" {
		c.Broker.Bridge.APIKey = v
	}
	if v := os.Getenv("FEED_TOKEN"); v != "" {
		c.Feed.HTTP.Token = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Broker.Driver != "sim" && c.Broker.Driver != "bridge" {
		return fmt.Errorf("broker.driver must be 'sim' or 'bridge'")
	}
	if c.Broker.Driver == "bridge" && c.Broker.Bridge.BaseURL == "" {
		return fmt.Errorf("broker.bridge.base_url required for bridge driver")
	}
	if c.Broker.Sim.SuccessRate < 0 || c.Broker.Sim.SuccessRate > 1 {
		return fmt.Errorf("broker.sim.success_rate must be between 0 and 1")
	}
	switch c.Feed.Driver {
	case "http":
		if c.Feed.HTTP.URL == "" {
			return fmt.Errorf("feed.http.url required for http driver")
		}
	case "kafka":
		if len(c.Feed.Kafka.Brokers) == 0 || c.Feed.Kafka.Topic == "" {
			return fmt.Errorf("feed.kafka.brokers and feed.kafka.topic required for kafka driver")
		}
	case "file":
		if c.Feed.File.Path == "" {
			return fmt.Errorf("feed.file.path required for file driver")
		}
	case "":
	default:
		return fmt.Errorf("feed.driver must be 'http', 'kafka' or 'file'")
	}
	if c.Risk.MaxOrderAmount < 0 {
		return fmt.Errorf("risk.max_order_amount must not be negative")
	}
	if c.Risk.MaxPositionRatio < 0 || c.Risk.MaxPositionRatio > 1 {
		return fmt.Errorf("risk.max_position_ratio must be between 0 and 1")
	}
	if c.Risk.MaxDailyLossRatio < 0 || c.Risk.MaxDailyLossRatio > 1 {
		return fmt.Errorf("risk.max_daily_loss_ratio must be between 0 and 1")
	}
	if c.Risk.MaxHoldings < 0 {
		return fmt.Errorf("risk.max_holdings must not be negative")
	}
	for _, s := range []struct {
		name    string
		session SessionConfig
	}{
		{"trading.morning", c.Trading.Morning},
		{"trading.afternoon", c.Trading.Afternoon},
	} {
		start, err := parseClock(s.session.Start)
		if err != nil {
			return fmt.Errorf("%s.start %q: %w", s.name, s.session.Start, err)
		}
		end, err := parseClock(s.session.End)
		if err != nil {
			return fmt.Errorf("%s.end %q: %w", s.name, s.session.End, err)
		}
		if !end.After(start) {
			return fmt.Errorf("%s.end %q must be after start %q", s.name, s.session.End, s.session.Start)
		}
	}
	if _, err := parseClock(c.Trading.FetchTime); err != nil {
		return fmt.Errorf("trading.fetch_time %q: %w", c.Trading.FetchTime, err)
	}
	if _, err := parseClock(c.Trading.ExecuteTime); err != nil {
		return fmt.Errorf("trading.execute_time %q: %w", c.Trading.ExecuteTime, err)
	}
	if c.Engine.TickIntervalSeconds <= 0 {
		return fmt.Errorf("engine.tick_interval_seconds must be positive")
	}
	if c.Engine.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("engine.sync_interval_seconds must be positive")
	}
	return nil
}

func parseClock(s string) (time.Time, error) {
	return time.Parse("15:04", s)
}
