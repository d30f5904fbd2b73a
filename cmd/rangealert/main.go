// -----------------------------------------------------------------------
// rangealert - newsletter risk-range alert service
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/rangealert/internal/app"
	"github.com/ternarybob/rangealert/internal/common"
	"github.com/ternarybob/rangealert/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	runTarget    = flag.String("run", "", "Run one workflow and exit: extract, am, pm, or alerts (session auto-detect)")
	runMode      = flag.String("mode", "", "Extraction mode: commit, validate or test (overrides config)")
	brokerHost   = flag.String("broker-host", "", "Gateway host (overrides config)")
	brokerPort   = flag.Int("broker-port", 0, "Gateway port (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("rangealert version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup order: config (defaults -> files -> env), CLI overrides,
	// logger, banner.
	if len(configFiles) == 0 {
		if _, err := os.Stat("rangealert.toml"); err == nil {
			configFiles = append(configFiles, "rangealert.toml")
		} else if _, err := os.Stat("deployments/local/rangealert.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/rangealert.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(models.ExitGeneral)
	}

	common.ApplyFlagOverrides(config, *runMode, *brokerHost, *brokerPort)

	if err := config.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(models.ExitGeneral)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Strs("config_files", configFiles).
		Str("mode", config.Runtime.Mode).
		Str("timezone", config.Schedule.Timezone).
		Msg("Application configuration loaded")

	ctx := context.Background()
	application, err := app.NewApp(ctx, config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		os.Exit(models.ExitCodeFor(err))
	}
	defer application.Close()

	if *runTarget != "" {
		os.Exit(runOnce(ctx, application, *runTarget))
	}

	serve(application)
}

// runOnce executes a single workflow and maps its outcome to an exit
// code for cron and shell callers.
func runOnce(ctx context.Context, application *app.App, target string) int {
	logger := application.Logger

	var err error
	switch target {
	case "extract":
		_, err = application.Scheduler.RunExtraction(ctx)
	case "am":
		_, err = application.Scheduler.RunAlerts(ctx, models.SessionAM)
	case "pm":
		_, err = application.Scheduler.RunAlerts(ctx, models.SessionPM)
	case "alerts":
		session, detectErr := application.Calendar.DetectSession(application.Calendar.Now())
		if detectErr != nil {
			logger.Error().Err(detectErr).Msg("Cannot auto-detect session, use -run am or -run pm")
			return models.ExitGeneral
		}
		logger.Info().Str("session", string(session)).Msg("Session auto-detected")
		_, err = application.Scheduler.RunAlerts(ctx, session)
	default:
		logger.Error().Str("target", target).Msg("Unknown run target, expected extract, am, pm or alerts")
		return models.ExitGeneral
	}

	if err != nil {
		logger.Error().Err(err).Str("target", target).Msg("Workflow failed")
		return models.ExitCodeFor(err)
	}
	return models.ExitOK
}

// serve runs the scheduler until an interrupt arrives.
func serve(application *app.App) {
	logger := application.Logger

	if err := application.Scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Scheduler failed to start")
		os.Exit(models.ExitCodeFor(err))
	}

	logger.Info().Msg("Scheduler ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	if err := application.Scheduler.Stop(); err != nil {
		logger.Error().Err(err).Msg("Scheduler stop failed")
	}
}
