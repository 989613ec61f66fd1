// Package main wires together the catalog sync pipeline binary.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fieldstone/shopsync/internal/api"
	"github.com/fieldstone/shopsync/internal/batch"
	"github.com/fieldstone/shopsync/internal/catalog"
	"github.com/fieldstone/shopsync/internal/clock/system"
	"github.com/fieldstone/shopsync/internal/config"
	"github.com/fieldstone/shopsync/internal/crawl"
	pubsubevents "github.com/fieldstone/shopsync/internal/events/pubsub"
	collyfetch "github.com/fieldstone/shopsync/internal/fetch/colly"
	"github.com/fieldstone/shopsync/internal/fetch/headless"
	"github.com/fieldstone/shopsync/internal/llm"
	"github.com/fieldstone/shopsync/internal/logging"
	"github.com/fieldstone/shopsync/internal/pipeline"
	"github.com/fieldstone/shopsync/internal/publisher/woo"
	"github.com/fieldstone/shopsync/internal/sites"
	filestore "github.com/fieldstone/shopsync/internal/store/file"
	gcsstore "github.com/fieldstone/shopsync/internal/store/gcs"
	localstore "github.com/fieldstone/shopsync/internal/store/local"
	pgstore "github.com/fieldstone/shopsync/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	startURL := flag.String("url", "", "Start URL for a site traversal")
	urlsFile := flag.String("urls-file", "", "File of product URLs to fetch directly, one per line")
	retryFailed := flag.Bool("retry-failed", false, "Re-run previously failed pages instead of crawling")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *startURL, *urlsFile, *retryFailed, logger); err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, startURL, urlsFile string, retryFailed bool, logger *zap.Logger) error {
	if err := validateMode(startURL, urlsFile, retryFailed); err != nil {
		return err
	}
	if cfg.Publish.StoreURL == "" {
		return fmt.Errorf("publish.store_url is required")
	}

	extractor, err := sites.Select(cfg.Extract.Site, logger.Named("sites"))
	if err != nil {
		return err
	}

	var fetcher catalog.PageFetcher
	if cfg.Headless.Enabled {
		fetcher = headless.New(headless.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, logger.Named("headless"))
	} else {
		fetcher = collyfetch.New(collyfetch.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
		})
	}

	var snapshots catalog.SnapshotStore
	if cfg.Storage.GCSBucket != "" {
		gcs, err := gcsstore.New(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return fmt.Errorf("init gcs snapshots: %w", err)
		}
		defer func() {
			if closeErr := gcs.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		snapshots = gcs
	} else {
		local, err := localstore.New(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("init local snapshots: %w", err)
		}
		snapshots = local
	}

	crawler := crawl.New(crawl.Config{
		MaxDepth:       cfg.Crawler.MaxDepth,
		MaxPages:       cfg.Crawler.MaxPages,
		IncludePaths:   cfg.Crawler.IncludePaths,
		ExcludePaths:   cfg.Crawler.ExcludePaths,
		SnapshotPrefix: cfg.Storage.Prefix,
	}, fetcher, extractor, snapshots, logger.Named("crawl"))

	products := llm.New(llm.Config{
		BaseURL:     cfg.Extract.BaseURL,
		APIKey:      cfg.Extract.APIKey,
		Model:       cfg.Extract.Model,
		Temperature: cfg.Extract.Temperature,
	}, logger.Named("llm"))

	publisher, err := woo.New(woo.Config{
		BaseURL:        cfg.Publish.StoreURL,
		ConsumerKey:    cfg.Publish.ConsumerKey,
		ConsumerSecret: cfg.Publish.ConsumerSecret,
	}, logger.Named("woo"))
	if err != nil {
		return err
	}
	if err := publisher.TestConnection(ctx); err != nil {
		return fmt.Errorf("store connection check: %w", err)
	}

	var events catalog.EventPublisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := pubsubevents.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		events = pub
	}

	var runs *pgstore.RunStore
	if cfg.DB.DSN != "" {
		runs, err = pgstore.NewRunStore(ctx, cfg.DB.DSN)
		if err != nil {
			return fmt.Errorf("init run store: %w", err)
		}
		defer runs.Close()
	}

	extractPolicy := batch.DefaultPolicy()
	extractPolicy.MaxAttempts = cfg.Extract.MaxRetries
	publishPolicy := batch.DefaultPolicy()
	publishPolicy.MaxAttempts = cfg.Publish.MaxRetries

	orch := pipeline.New(crawler, products, publisher, events, system.New(), nil, logger.Named("pipeline"), pipeline.Config{
		ExtractBatchSize: cfg.Extract.BatchSize,
		ExtractDelay:     time.Duration(cfg.Extract.DelaySeconds) * time.Second,
		ExtractPolicy:    extractPolicy,
		PublishBatchSize: cfg.Publish.BatchSize,
		PublishDelay:     time.Duration(cfg.Publish.DelaySeconds) * time.Second,
		PublishPolicy:    publishPolicy,
		ListFetchDelay:   cfg.Crawler.CrawlDelay(),
		EventTopic:       cfg.PubSub.TopicName,
	})

	store, err := filestore.New(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	var admin *api.Server
	if cfg.Server.Enabled {
		admin = api.NewServer(logger.Named("api"))
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           admin.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("admin server shutdown error", zap.Error(err))
			}
		}()
	}

	var report catalog.Report
	switch {
	case retryFailed:
		pages, loadErr := store.LoadFailedPages()
		if loadErr != nil {
			return fmt.Errorf("load failed pages: %w", loadErr)
		}
		if len(pages) == 0 {
			logger.Info("no failed pages to retry")
			return nil
		}
		report, err = orch.Replay(ctx, pages)
	case urlsFile != "":
		urls, readErr := readURLs(urlsFile)
		if readErr != nil {
			return readErr
		}
		report, err = orch.RunList(ctx, urls)
	default:
		report, err = orch.Run(ctx, startURL)
	}
	if err != nil {
		return err
	}

	if admin != nil {
		admin.SetReport(report)
	}
	if err := persist(ctx, store, runs, report, logger); err != nil {
		return err
	}

	logger.Info("pipeline complete",
		zap.String("run_id", report.RunID),
		zap.Int("pages_crawled", report.PagesCrawled),
		zap.Int("products", len(report.Products)),
		zap.Int("uploaded", len(report.Uploaded)),
		zap.Int("failed_pages", len(report.FailedPages)),
		zap.Int("failed_uploads", len(report.FailedUploads)),
	)

	if cfg.Server.Enabled {
		logger.Info("admin server still serving, ctrl-c to exit")
		<-ctx.Done()
	}
	return nil
}

func persist(ctx context.Context, store *filestore.Store, runs *pgstore.RunStore, report catalog.Report, logger *zap.Logger) error {
	if err := store.SaveProducts(report.Products); err != nil {
		return fmt.Errorf("save products: %w", err)
	}
	if err := store.SaveFailedPages(report.FailedPages); err != nil {
		return fmt.Errorf("save failed pages: %w", err)
	}
	if err := store.SaveFailedUploads(report.FailedUploads); err != nil {
		return fmt.Errorf("save failed uploads: %w", err)
	}
	if runs != nil {
		if err := runs.SaveRun(ctx, report); err != nil {
			logger.Warn("save run history failed", zap.Error(err))
		}
	}
	return nil
}

func validateMode(startURL, urlsFile string, retryFailed bool) error {
	modes := 0
	if startURL != "" {
		modes++
	}
	if urlsFile != "" {
		modes++
	}
	if retryFailed {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of -url, -urls-file, or -retry-failed is required")
	}
	return nil
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("urls file %s contains no URLs", path)
	}
	return urls, nil
}
