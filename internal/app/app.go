// -----------------------------------------------------------------------
// App - dependency wiring for the alert service
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/calendar"
	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/services/alerts"
	"github.com/ternarybob/rangealert/internal/services/broker"
	"github.com/ternarybob/rangealert/internal/services/contracts"
	"github.com/ternarybob/rangealert/internal/services/extractor"
	"github.com/ternarybob/rangealert/internal/services/imap"
	"github.com/ternarybob/rangealert/internal/services/mailer"
	"github.com/ternarybob/rangealert/internal/services/notifier"
	"github.com/ternarybob/rangealert/internal/services/ocr"
	"github.com/ternarybob/rangealert/internal/services/parser"
	"github.com/ternarybob/rangealert/internal/services/scheduler"
	badgerstorage "github.com/ternarybob/rangealert/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	Calendar       *calendar.MarketCalendar

	Source    interfaces.NewsletterSource
	OCR       interfaces.OCRService
	Extractor interfaces.ExtractorService
	Resolver  interfaces.ContractResolver
	Gateway   *broker.Client
	Fetcher   interfaces.PriceFetcher
	Evaluator interfaces.AlertEvaluator
	Notifier  interfaces.NotifierService
	Scheduler interfaces.SchedulerService
}

// NewApp wires the full dependency graph from a validated config.
func NewApp(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}

	cal := calendar.New(config.Location())

	source := imap.NewService(&config.Source, logger)

	ocrService, err := ocr.NewService(ctx, &config.OCR, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("ocr init: %w", err)
	}

	parsers := parser.NewRegistry(ocrService, &config.OCR, logger)
	extractorService := extractor.NewService(&config.Source, source, parsers, storageManager.Stocks(), logger)

	resolver := contracts.NewResolver(storageManager.Stocks(), logger)
	gateway := broker.NewClient(config.Broker.Host, config.Broker.Port, config.Broker.ClientID,
		broker.WithLogger(logger),
		broker.WithSpacing(config.BrokerSpacing()),
		broker.WithTimeout(config.Broker.Timeout))
	fetcher := broker.NewFetcher(&config.Broker, config.Runtime.Parallelism, gateway, resolver, storageManager.Stocks(), logger)

	evaluator := alerts.NewEvaluator(logger)
	sender := mailer.NewService(&config.Mail, logger)
	notifierService := notifier.NewService(sender, config.Location(), logger)

	schedulerService := scheduler.NewService(config, extractorService, fetcher, evaluator, notifierService, storageManager, cal, logger)

	return &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		Calendar:       cal,
		Source:         source,
		OCR:            ocrService,
		Extractor:      extractorService,
		Resolver:       resolver,
		Gateway:        gateway,
		Fetcher:        fetcher,
		Evaluator:      evaluator,
		Notifier:       notifierService,
		Scheduler:      schedulerService,
	}, nil
}

// Close releases external resources in reverse dependency order.
func (a *App) Close() {
	if a.Scheduler != nil && a.Scheduler.IsRunning() {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if a.Gateway != nil {
		if err := a.Gateway.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Gateway close failed")
		}
	}
	if a.Source != nil {
		if err := a.Source.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Mailbox close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
}
