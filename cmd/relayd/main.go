// Command relayd serves the chat-completion plugin over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Load provider credentials from a local .env during development.
	_ "github.com/joho/godotenv/autoload"

	"github.com/dockhand/relay"
	"github.com/dockhand/relay/config"
	"github.com/dockhand/relay/internal/httpd"
	"github.com/dockhand/relay/moderation"
	"github.com/dockhand/relay/platform"
	"github.com/dockhand/relay/provider/router"
	"github.com/fogfish/opts"
	"github.com/openai/openai-go/option"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "relayd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Logging)
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))

	generator, err := buildGenerator(cfg, log)
	if err != nil {
		return err
	}

	server := httpd.New(generator, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- server.Start(cfg.Server.Addr)
	}()
	log.Info().Str("addr", cfg.Server.Addr).Msg("listening")

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func buildGenerator(cfg *config.Config, log zerolog.Logger) (*relay.Generator, error) {
	options := []opts.Option[relay.Generator]{
		relay.WithModel(cfg.Generator.Model),
		relay.WithSamples(cfg.Generator.Samples),
		relay.WithMaxTokens(cfg.Generator.MaxTokens),
		relay.WithTemperature(cfg.Generator.Temperature),
		relay.WithPenalties(cfg.Generator.PresencePenalty, cfg.Generator.FrequencyPenalty),
		relay.WithModerateOutput(cfg.Generator.ModerateOutput),
		relay.WithLogger(log),
	}
	if cfg.Generator.TopP != nil {
		options = append(options, relay.WithTopP(*cfg.Generator.TopP))
	}
	if cfg.Generator.DefaultSystemPrompt != "" {
		options = append(options, relay.WithDefaultSystemPrompt(cfg.Generator.DefaultSystemPrompt))
	}
	if cfg.Generator.Environment != "" {
		options = append(options, relay.WithEnvironment(cfg.Generator.Environment))
	}

	if cfg.Platform.BaseURL != "" {
		storage, err := platform.New(cfg.Platform.BaseURL,
			platform.WithAPIKey(cfg.Platform.APIKey),
			platform.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}
		options = append(options, relay.WithStorage(storage))
	}

	moderationOpts := []opts.Option[moderation.Client]{moderation.WithLogger(log)}
	if cfg.Generator.Environment != "" {
		env, err := router.ParseEnvironment(cfg.Generator.Environment)
		if err != nil {
			return nil, err
		}
		if key, ok := env.APIKey("OPENAI"); ok {
			moderationOpts = append(moderationOpts,
				moderation.WithRequestOptions(option.WithAPIKey(key)))
		}
	}
	moderator, err := moderation.New(moderationOpts...)
	if err != nil {
		return nil, err
	}
	options = append(options, relay.WithModerator(moderator))

	return relay.New(options...)
}
