// -----------------------------------------------------------------------
// Scheduler Service - cron-driven extraction and alert workflows
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/calendar"
	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/interfaces"
	"github.com/ternarybob/rangealert/internal/models"
)

// jobEntry tracks one registered workflow job.
type jobEntry struct {
	name      string
	schedule  string
	handler   func() error
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
}

// Service wires the three market-time workflows onto cron. Jobs never
// overlap: a global mutex serializes execution, and each run carries
// its own deadline.
type Service struct {
	config    *common.Config
	extractor interfaces.ExtractorService
	fetcher   interfaces.PriceFetcher
	evaluator interfaces.AlertEvaluator
	notifier  interfaces.NotifierService
	storage   interfaces.StorageManager
	cal       *calendar.MarketCalendar
	cron      *cron.Cron
	logger    arbor.ILogger
	now       func() time.Time

	jobMu    sync.Mutex // protects jobs map
	globalMu sync.Mutex // prevents concurrent job execution
	jobs     map[string]*jobEntry
	running  bool
}

// NewService creates the workflow scheduler
func NewService(config *common.Config, extractor interfaces.ExtractorService, fetcher interfaces.PriceFetcher, evaluator interfaces.AlertEvaluator, notifier interfaces.NotifierService, storage interfaces.StorageManager, cal *calendar.MarketCalendar, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		config:    config,
		extractor: extractor,
		fetcher:   fetcher,
		evaluator: evaluator,
		notifier:  notifier,
		storage:   storage,
		cal:       cal,
		cron:      cron.New(cron.WithLocation(config.Location())),
		logger:    logger,
		now:       time.Now,
		jobs:      make(map[string]*jobEntry),
	}
}

// Start registers the workflow jobs and begins the cron loop.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	jobs := []struct {
		name    string
		at      string
		handler func() error
	}{
		{"extraction", s.config.Schedule.ExtractionTime, func() error {
			_, err := s.RunExtraction(context.Background())
			return err
		}},
		{"alerts_am", s.config.Schedule.AMTime, func() error {
			_, err := s.RunAlerts(context.Background(), models.SessionAM)
			return err
		}},
		{"alerts_pm", s.config.Schedule.PMTime, func() error {
			_, err := s.RunAlerts(context.Background(), models.SessionPM)
			return err
		}},
	}

	for _, job := range jobs {
		if err := s.registerJob(job.name, job.at, job.handler); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Str("timezone", s.config.Schedule.Timezone).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop; a job already executing finishes.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Service) IsRunning() bool {
	return s.running
}

// registerJob converts a market-time HH:MM into a weekday cron spec.
// Holidays are skipped inside the workflow, not by cron.
func (s *Service) registerJob(name, at string, handler func() error) error {
	fireAt, err := time.Parse("15:04", at)
	if err != nil {
		return fmt.Errorf("%w: job %s time %q: %v", models.ErrConfig, name, at, err)
	}
	schedule := fmt.Sprintf("%d %d * * MON-FRI", fireAt.Minute(), fireAt.Hour())

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry := &jobEntry{name: name, schedule: schedule, handler: handler}
	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	event := s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule)
	if next, err := s.cal.NextFire(s.now().In(s.config.Location()), at); err == nil {
		event = event.Str("next_fire", next.Format(time.RFC3339))
	}
	event.Msg("Job registered")
	return nil
}

// executeJob runs one job under the global mutex with panic recovery.
func (s *Service) executeJob(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in job execution")

			s.jobMu.Lock()
			if entry, exists := s.jobs[name]; exists {
				entry.isRunning = false
				entry.lastError = fmt.Sprintf("panic: %v", r)
			}
			s.jobMu.Unlock()
		}
	}()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	s.jobMu.Unlock()

	started := time.Now()
	s.logger.Info().Str("job_name", name).Msg("Job execution started")

	err := handler()

	completion := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completion
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("Job execution failed")
	} else {
		s.logger.Info().
			Str("job_name", name).
			Dur("duration", time.Since(started)).
			Msg("Job execution completed")
	}
}

// RunExtraction fetches and reconciles the day's newsletters. Weekly
// categories join the run on the first market day of the ISO week.
func (s *Service) RunExtraction(ctx context.Context) (*models.SessionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Runtime.JobTimeout)
	defer cancel()

	now := s.now().In(s.config.Location())
	run := &models.SessionRun{
		ID:         uuid.New().String(),
		Type:       models.RunExtraction,
		TradingDay: s.cal.TradingDay(now),
		StartedAt:  now,
	}

	if !s.cal.IsMarketDay(now) {
		run.Status = models.RunStatusSkipped
		run.Error = "not a market day"
		s.finishRun(ctx, run)
		s.logger.Info().Str("trading_day", run.TradingDay).Msg("Extraction skipped, market closed")
		return run, nil
	}

	categories := s.config.DailyCategories()
	if s.cal.IsFirstMarketDayOfWeek(now) {
		categories = append(categories, s.config.WeeklyCategories()...)
		s.logger.Info().Msg("First market day of week, weekly categories included")
	}

	mode := interfaces.ExtractionMode(s.config.Runtime.Mode)
	run.Categories = s.extractor.ExtractCategories(ctx, categories, mode)

	failed := 0
	noMessage := 0
	for _, result := range run.Categories {
		if result.Error != "" {
			failed++
			if strings.Contains(result.Error, models.ErrNoMessage.Error()) {
				noMessage++
			}
		}
	}

	var err error
	switch {
	case failed == 0:
		run.Status = models.RunStatusSuccess
	case failed < len(run.Categories):
		run.Status = models.RunStatusPartial
	default:
		run.Status = models.RunStatusFailed
		if noMessage == failed {
			err = fmt.Errorf("%w: no newsletters matched in any category", models.ErrNoMessage)
		} else {
			err = fmt.Errorf("extraction failed for all %d categories", failed)
		}
		run.Error = err.Error()
	}

	s.finishRun(ctx, run)
	return run, err
}

// RunAlerts prices the active rows, evaluates them and sends the
// digest for one session.
func (s *Service) RunAlerts(ctx context.Context, session models.Session) (*models.SessionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Runtime.JobTimeout)
	defer cancel()

	now := s.now().In(s.config.Location())
	runType := models.RunAlertsAM
	if session == models.SessionPM {
		runType = models.RunAlertsPM
	}
	run := &models.SessionRun{
		ID:         uuid.New().String(),
		Type:       runType,
		TradingDay: s.cal.TradingDay(now),
		StartedAt:  now,
	}

	if !s.cal.IsMarketDay(now) {
		run.Status = models.RunStatusSkipped
		run.Error = "not a market day"
		s.finishRun(ctx, run)
		s.logger.Info().Str("trading_day", run.TradingDay).Msg("Alert session skipped, market closed")
		return run, nil
	}

	stocks, err := s.storage.Stocks().ListActive(ctx)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		s.finishRun(ctx, run)
		return run, err
	}
	if len(stocks) == 0 {
		run.Status = models.RunStatusSkipped
		run.Error = "no active rows"
		s.finishRun(ctx, run)
		s.logger.Warn().Msg("Alert session skipped, store is empty")
		return run, nil
	}

	batch, err := s.fetcher.FetchPrices(ctx, stocks)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		s.finishRun(ctx, run)
		return run, err
	}
	run.Quotes = len(batch.Quotes)
	run.QuoteFails = len(batch.Failures)

	// Only rows priced in this session reach the evaluator. A row
	// whose fetch failed keeps a prior session's price in the store
	// and must not fire against it.
	priced := make([]*models.Stock, 0, len(stocks))
	for _, stock := range stocks {
		quote, ok := batch.Quotes[stock.Ticker]
		if !ok {
			continue
		}
		stock.LastPrice = quote.Price
		stock.PriceSource = quote.Source
		priced = append(priced, stock)
	}

	alerts := s.evaluator.Evaluate(ctx, priced, session, run.TradingDay)
	run.Alerts = len(alerts)

	if err := s.notifier.SendDigest(ctx, alerts, session, run.TradingDay); err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		s.finishRun(ctx, run)
		return run, err
	}

	if run.QuoteFails > 0 {
		run.Status = models.RunStatusPartial
	} else {
		run.Status = models.RunStatusSuccess
	}
	s.finishRun(ctx, run)
	return run, nil
}

// finishRun stamps and persists the run record. Run history is
// best-effort observability; a write failure never fails the workflow.
func (s *Service) finishRun(ctx context.Context, run *models.SessionRun) {
	run.FinishedAt = time.Now().In(s.config.Location())
	if err := s.storage.Runs().SaveRun(ctx, run); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to persist run record")
	}
}
