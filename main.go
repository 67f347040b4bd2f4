package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/kalamitra/internal/analytics"
	"github.com/raine/kalamitra/internal/api"
	"github.com/raine/kalamitra/internal/bot"
	"github.com/raine/kalamitra/internal/channels"
	"github.com/raine/kalamitra/internal/config"
	"github.com/raine/kalamitra/internal/llm"
	"github.com/raine/kalamitra/internal/storage"
	"github.com/raine/kalamitra/internal/studio"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	logFileName      = "kalamitra.log"
	evictionInterval = 10 * time.Minute
	shutdownTimeout  = 10 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Try to load existing .env file
	config.LoadEnvFile()

	// Check if required config is missing
	if missing := config.CheckRequired(); len(missing) > 0 {
		if config.IsInteractiveTerminal() {
			if !config.RunSetupWizard() {
				config.WaitOnWindows()
				os.Exit(1)
			}
		} else {
			// Non-interactive (systemd, k8s, etc.) - fail with clear error
			config.FatalWithWait("missing required config: %s", strings.Join(missing, ", "))
		}
	}

	// JOURNAL_STREAM is set by systemd when running as a service.
	// Skip file logging under systemd (journald handles it, and ProtectSystem=strict
	// makes the working directory read-only).
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			config.FatalWithWait("failed to open log file: %v", err)
		}
		defer logFile.Close()

		consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}
		fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
		log.Logger = log.Output(io.MultiWriter(consoleWriter, fileWriter))

		log.Info().Str("logFile", logFileName).Msg("logging to file")
	}

	cfg, err := config.Load()
	if err != nil {
		config.FatalWithWait("invalid config: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		config.FatalWithWait("failed to initialize store: %v", err)
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("store initialized")

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gemini, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey:     cfg.GeminiAPIKey,
		ImageModel: cfg.ImageModel,
		TextModel:  cfg.TextModel,
	})
	if err != nil {
		config.FatalWithWait("failed to initialize gemini: %v", err)
	}
	log.Info().Msg("gemini client initialized")

	st := studio.New(studio.Config{
		Images:     gemini,
		Listings:   llm.NewCachedListingGenerator(gemini, store),
		Chat:       gemini,
		Publishers: publishers(cfg),
		Store:      store,
		Events:     analytics.NewRecorder(store),
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st.RunEviction(ctx, evictionInterval, cfg.IdleTimeout)
		return nil
	})

	if cfg.HTTPAddr != "" {
		server := api.New(st)
		g.Go(func() error {
			return server.Listen(cfg.HTTPAddr)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if cfg.BotEnabled() {
		tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			config.FatalWithWait("failed to initialize telegram bot: %v", err)
		}
		tg.Debug = false
		log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

		// Register bot commands for Telegram's command menu
		bot.RegisterCommands(tg)

		if cfg.ActivityLogDir != "" {
			if err := bot.InitActivityLog(cfg.ActivityLogDir); err != nil {
				log.Warn().Err(err).Msg("failed to initialize activity log")
			}
		}

		g.Go(func() error {
			return runBot(ctx, tg, st, store, cfg.AdminTelegramID)
		})
	} else {
		log.Info().Msg("BOT_TOKEN not set, telegram bot disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func publishers(cfg *config.Config) []channels.Publisher {
	insta := channels.NewInstagram()
	if cfg.InstagramFailureRate >= 0 {
		insta.FailureProbability = cfg.InstagramFailureRate
	}
	ondc := channels.NewONDC()
	if cfg.ONDCFailureRate >= 0 {
		ondc.FailureProbability = cfg.ONDCFailureRate
	}
	return []channels.Publisher{insta, ondc}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, st *studio.Studio, store bot.AdminStore, adminID int64) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	b := bot.NewBot(tg, st, store, adminID)
	defer b.Shutdown()

	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			log.Info().Msg("waiting for active handlers to finish")
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.HandleUpdate(ctx, u)
			}(update)
		}
	}
}
