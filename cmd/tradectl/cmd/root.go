package cmd

import (
	"os"
	"time"

	"github.com/ksred/tradeflow-api/internal/broker"
	"github.com/ksred/tradeflow-api/internal/config"
	"github.com/ksred/tradeflow-api/internal/database"
	"github.com/ksred/tradeflow-api/internal/executor"
	"github.com/ksred/tradeflow-api/internal/feed"
	"github.com/ksred/tradeflow-api/internal/journal"
	"github.com/ksred/tradeflow-api/internal/risk"
	"github.com/ksred/tradeflow-api/internal/scheduler"
	"github.com/ksred/tradeflow-api/internal/signals"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tradectl",
	Short: "Operator CLI for the trading engine",
	Long: `tradectl drives the trading engine directly, without the API server.

It provides commands for:
  - Inspecting engine, account and position state
  - Fetching and listing trading signals
  - Listing, cancelling and reconciling orders
  - Running the risk inspection pass
  - Initialising the local database`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()

		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// app bundles the wired services a subcommand works against.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	broker    broker.Broker
	scheduler *scheduler.Scheduler
	journal   *journal.Service
	risk      *risk.Manager
	signals   *signals.Service
	executor  *executor.Service
}

// newApp loads configuration and wires the service graph the same way
// the server does.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	b, err := broker.New(cfg.Broker)
	if err != nil {
		return nil, err
	}

	provider, err := feed.New(cfg.Feed)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(cfg.Trading)
	if err != nil {
		return nil, err
	}

	journalService := journal.NewService(db)
	riskManager := risk.NewManager(cfg.Risk)

	return &app{
		cfg:       cfg,
		db:        db,
		broker:    b,
		scheduler: sched,
		journal:   journalService,
		risk:      riskManager,
		signals:   signals.NewService(db, provider),
		executor:  executor.NewService(db, b, riskManager, journalService),
	}, nil
}

// connect brings the broker up for subcommands that need live state.
func (a *app) connect() error {
	if a.broker.IsConnected() {
		return nil
	}
	return a.broker.Connect()
}
