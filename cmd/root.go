package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlfredBerg/rod-jobscraper/internal/browser"
	"github.com/AlfredBerg/rod-jobscraper/internal/config"
	"github.com/AlfredBerg/rod-jobscraper/internal/crawl"
	"github.com/AlfredBerg/rod-jobscraper/internal/log"
	"github.com/AlfredBerg/rod-jobscraper/internal/outputHandlers/csvfile"
	"github.com/AlfredBerg/rod-jobscraper/internal/outputHandlers/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var cfgFile string

type scrapeFlags struct {
	logLevel string
}

var flags scrapeFlags

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags = scrapeFlags{}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file")
	rootCmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Overrides log.level from the config file (debug, info, warn, error).")
}

var rootCmd = &cobra.Command{
	Use:   "rod-jobscraper",
	Short: "Scrapes job postings from a job portal's search results into a CSV file",
	Long: "Opens the configured search results page in Chromium, reads each job card and its detail page, " +
		"and appends one CSV row per unique posting until scraping.job_count rows are written or the results run out.",
	Args:         cobra.NoArgs,
	SilenceUsage: true,

	RunE: func(cmd *cobra.Command, args []string) error {
		return scrape(cmd.Context())
	},
}

func scrape(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := log.New(level)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ctx = log.WithLogger(ctx, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := browser.Launch(ctx, browser.Options{
		Bin:            cfg.Selenium.ChromedriverPath,
		Headless:       cfg.Selenium.Headless,
		Trace:          cfg.Selenium.Trace,
		BlockResources: cfg.Selenium.BlockResources,
		WaitTimeout:    cfg.Scraping.WaitTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	csvOut := &csvfile.CsvOutput{Path: cfg.FilePaths.OutputCSV}
	cleanup := []func() error{session.Close}
	closeAll := func() error {
		var errs error
		for i := len(cleanup) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, cleanup[i]())
		}
		return errs
	}

	if err := csvOut.Init(); err != nil {
		return multierr.Append(err, closeAll())
	}
	cleanup = append(cleanup, csvOut.Cleanup)
	outputs := crawl.Outputs{csvOut}

	if cfg.FilePaths.OutputSQLite != "" {
		sqliteOut := &sqlite.SqliteOutput{Database: cfg.FilePaths.OutputSQLite, Logger: logger}
		if err := sqliteOut.Init(); err != nil {
			return multierr.Append(err, closeAll())
		}
		cleanup = append(cleanup, sqliteOut.Cleanup)
		outputs = append(outputs, sqliteOut)
		logger.Infof("mirroring jobs to %s (run %s)", sqliteOut.Database, sqliteOut.RunID)
	}

	logger.Infof("scraping %d jobs from %s", cfg.Scraping.JobCount, cfg.Scraping.URL)
	j := crawl.Job{
		Session:       session,
		Target:        cfg.Scraping.URL,
		Selectors:     cfg.Selectors,
		OutputHandler: outputs,
		Count:         cfg.Scraping.JobCount,
		PageSize:      cfg.Scraping.PageSize,
		MaxPages:      cfg.Scraping.MaxPages,
	}
	stats, crawlErr := j.Crawl(ctx)
	closeErr := closeAll()

	if errors.Is(crawlErr, context.Canceled) {
		logger.Warnf("interrupted, keeping the %d jobs written so far", stats.Written)
		crawlErr = nil
	}
	if err := multierr.Combine(crawlErr, closeErr); err != nil {
		return err
	}

	rows, err := csvfile.CountRows(cfg.FilePaths.OutputCSV)
	if err != nil {
		return fmt.Errorf("reading back %s: %w", cfg.FilePaths.OutputCSV, err)
	}
	logger.Infof("all scraping done: %d rows in %s (%d duplicates, %d unreadable cards, %d failed detail pages, %d pages)",
		rows, cfg.FilePaths.OutputCSV, stats.Duplicates, stats.ListingMisses, stats.DetailFailures, stats.Pages)
	return nil
}
