package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tweetrelay/internal/adapter/discord"
	"github.com/pscheid92/tweetrelay/internal/adapter/httpserver"
	"github.com/pscheid92/tweetrelay/internal/adapter/twitter"
	"github.com/pscheid92/tweetrelay/internal/command"
	"github.com/pscheid92/tweetrelay/internal/platform/config"
	"github.com/pscheid92/tweetrelay/internal/platform/logging"
	"github.com/pscheid92/tweetrelay/internal/platform/version"
	"github.com/pscheid92/tweetrelay/internal/relay"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

func runGracefulShutdown(srv *httpserver.Server, bot *discord.Bot, manager *relay.Manager) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server shutdown error", "error", err)
			}
		}

		// Stop taking commands before the stream goes away.
		if err := bot.Close(); err != nil {
			slog.Error("Discord shutdown error", "error", err)
		}
		manager.Stop()

		close(done)
	}()

	return done
}

func setupConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupBot(cfg *config.Config) *discord.Bot {
	bot, err := discord.NewBot(cfg.Discord.Token)
	if err != nil {
		slog.Error("Failed to create Discord bot", "error", err)
		os.Exit(1)
	}
	return bot
}

func main() {
	configPath := pflag.StringP("config", "c", config.DefaultPath, "path to the credentials file (JSON or YAML)")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.Get().String())
		return
	}

	cfg := setupConfig(*configPath)

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "version", version.Version, "http_addr", cfg.HTTPAddr)

	twitterClient := twitter.NewClient(cfg.Twitter)
	bot := setupBot(cfg)

	manager := relay.NewManager(twitterClient, bot, clockwork.NewRealClock())
	surface := command.NewSurface(manager, cfg.CommandRate, cfg.CommandBurst)

	if err := bot.Open(surface); err != nil {
		slog.Error("Failed to connect to Discord", "error", err)
		manager.Stop()
		os.Exit(1)
	}
	slog.Info("Bot is ready")

	// An empty HTTP_ADDR runs the bot without the ops server.
	var srv *httpserver.Server
	if cfg.HTTPAddr != "" {
		srv = httpserver.NewServer(cfg.HTTPAddr, []httpserver.HealthCheck{
			{Name: "relay", Check: manager.Ready},
			{Name: "discord", Check: bot.Ready},
		})
	}

	done := runGracefulShutdown(srv, bot, manager)

	if srv != nil {
		if err := srv.Start(); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}

	<-done
}
