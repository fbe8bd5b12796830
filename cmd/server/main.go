package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/feed-mirror/app/api"
	"github.com/lysyi3m/feed-mirror/app/cfg"
	"github.com/lysyi3m/feed-mirror/app/content"
	"github.com/lysyi3m/feed-mirror/app/database"
	"github.com/lysyi3m/feed-mirror/app/feed"
	"github.com/lysyi3m/feed-mirror/app/notify"
	"github.com/lysyi3m/feed-mirror/app/pipeline"
	"github.com/lysyi3m/feed-mirror/app/publisher"
	"github.com/lysyi3m/feed-mirror/app/retry"
	"github.com/lysyi3m/feed-mirror/app/tasks"
)

const workerCount = 2

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogging(appCfg.Debug)

	slog.Info("Starting Feed Mirror", "version", appCfg.Version, "storage", appCfg.StorageBackend)

	kv, err := database.Open(appCfg.StorageBackend, appCfg.DBPath, appCfg.BadgerDir)
	if err != nil {
		slog.Error("Failed to open storage", "backend", appCfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	itemRepo := database.NewItemRepository(kv)
	notificationRepo := database.NewNotificationRepository(kv)

	policy := retry.DefaultPolicy()
	policy.Attempts = max(appCfg.RetryAttempts, 1)
	policy.BaseDelay = appCfg.RetryBaseDelay

	httpClient := &http.Client{}

	configCache := feed.NewConfigCache(appCfg.RunConfigPath)
	if _, err := configCache.Run(); err != nil {
		// Not fatal: the file is re-read on every run.
		slog.Warn("Run configuration not loaded yet", "path", appCfg.RunConfigPath, "error", err)
	}

	credential, err := publisher.ParseCredential(appCfg.StoreToken)
	if err != nil {
		slog.Error("Invalid content store token", "error", err)
		os.Exit(1)
	}
	slog.Info("Content store configured",
		"repo", appCfg.StoreOwner+"/"+appCfg.StoreRepo,
		"credential", credential.Redact(),
		"custom_domain", appCfg.StoreCustomDomain)

	storeClient := publisher.NewClient(httpClient, appCfg.StoreAPIURL, appCfg.StoreOwner, appCfg.StoreRepo, credential, appCfg.UserAgent)
	pub := publisher.NewPublisher(storeClient, publisher.NewBranchCache(appCfg.StoreBranchTTL, nil), publisher.Config{
		Dir:            appCfg.StoreDir,
		FallbackBranch: appCfg.StoreFallbackRef,
		CustomDomain:   appCfg.StoreCustomDomain,
	}, policy)

	emailSender, err := notify.NewEmailSender(httpClient, notify.SenderConfig{
		Provider: appCfg.EmailProvider,
		APIKey:   appCfg.EmailAPIKey,
		APIURL:   appCfg.EmailAPIURL,
		From:     appCfg.EmailFrom,
		ReplyTo:  appCfg.EmailReplyTo,
		Rate:     appCfg.EmailRate,
	}, policy)
	if err != nil {
		slog.Error("Invalid email configuration", "error", err)
		os.Exit(1)
	}
	if emailSender == nil {
		slog.Info("Email notifications disabled")
	}

	background := tasks.NewGroup()
	dispatcher := notify.NewDispatcher(emailSender, notify.NewPushMarker(notificationRepo), background)

	mirror := pipeline.NewPipeline(
		configCache,
		feed.NewFetcher(httpClient, feed.NewParser(), appCfg.UserAgent, appCfg.FeedTimeout, policy),
		feed.NewFilterer(),
		content.NewFetcher(httpClient, appCfg.UserAgent, appCfg.PageTimeout, appCfg.MaxContentBytes, policy),
		pub,
		itemRepo,
		dispatcher,
	)

	interval := time.Duration(appCfg.SchedulerInterval) * time.Second
	scheduler := tasks.NewScheduler(workerCount, interval, pipeline.Trigger(mirror, appCfg.RunConfigPath))
	scheduler.Start()

	newURLTask := func(url string) tasks.TaskInterface {
		return pipeline.NewProcessURLTask(mirror, url)
	}
	handler := api.NewHandler(mirror, itemRepo, notificationRepo, scheduler, newURLTask, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.APIAccessKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // POST /api/run is synchronous
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "base_url", appCfg.BaseUrl)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()
	slog.Info("Background scheduler stopped")

	// Pending notifications are short-lived; let them land before the store closes.
	dispatcher.Wait()

	slog.Info("Feed Mirror shutdown complete")
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
