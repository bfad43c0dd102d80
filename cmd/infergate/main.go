package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"infergate/internal/backend"
	"infergate/internal/config"
	"infergate/internal/gateway"
	"infergate/internal/ports"
)

const (
	portLow     = 8080
	portHigh    = 8180
	bindRetries = 3
)

func main() {
	// Flags with environment variable defaults
	defaultBackend := backend.DefaultURL
	if v := os.Getenv("INFERGATE_BACKEND_URL"); v != "" {
		defaultBackend = v
	}
	defaultModel := os.Getenv("INFERGATE_MODEL")
	configPath := flag.String("config", "", "Optional config file (yaml/json/toml)")
	backendURL := flag.String("backend-url", defaultBackend, "Base URL of the inference daemon")
	model := flag.String("model", defaultModel, "Model identifier bound to this gateway")
	port := flag.Int("port", 0, "Listen port (0 = persisted assignment, then negotiate)")
	logLevel := flag.String("log-level", os.Getenv("INFERGATE_LOG_LEVEL"), "zerolog level: debug|info|warn|error")
	flag.Parse()

	logger := newLogger(*logLevel)
	gateway.SetLogger(logger)

	resolved := resolve(logger, *configPath, *backendURL, *model, *port)

	engine := backend.New(resolved.backendURL, resolved.model, 5*time.Second)
	srv := gateway.New(engine, resolved.model)

	ln, bound, err := ports.ListenWithRetry(resolved.port, portLow, portHigh, bindRetries)
	if err != nil {
		logger.Fatal().Err(err).Int("preferred", resolved.port).Msg("could not bind a listen port")
	}
	if resolved.persisted != 0 && bound != resolved.persisted {
		// Serving on a fallback port keeps the gateway available, but the
		// assignment is now stale for every consumer that read it. Surface
		// loudly and leave the persisted value alone.
		logger.Error().
			Int("persisted", resolved.persisted).
			Int("bound", bound).
			Msg("config drift: bound port differs from persisted assignment; run `infergatectl ports --assign` or free the persisted port")
	}

	httpSrv := &http.Server{Handler: srv.Handler()}
	go func() {
		logger.Info().
			Int("port", bound).
			Str("model", resolved.model).
			Str("backend", resolved.backendURL).
			Msg("infergate listening")
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
}

type resolvedConfig struct {
	backendURL string
	model      string
	port       int
	persisted  int // nonzero when the port came from the assignment store
}

// resolve layers the settings: baked-in defaults, then the optional config
// file, then the persisted assignment store, then explicit flags.
func resolve(logger zerolog.Logger, configPath, backendURL, model string, port int) resolvedConfig {
	r := resolvedConfig{backendURL: backendURL, model: model, port: port}

	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", configPath).Msg("loading config file")
		}
		if r.backendURL == backend.DefaultURL && fileCfg.BackendURL != "" {
			r.backendURL = fileCfg.BackendURL
		}
		if r.model == "" && fileCfg.Model != "" {
			r.model = fileCfg.Model
		}
		if r.port == 0 && fileCfg.Port != 0 {
			r.port = fileCfg.Port
		}
	}

	storePath, err := config.StorePath()
	if err == nil {
		if store, serr := config.OpenStore(storePath); serr == nil {
			if v, ok := store.Get(config.KeyModel); ok && r.model == "" {
				r.model = v
			}
			if v, ok := store.Get(config.KeyBackendURL); ok && r.backendURL == backend.DefaultURL {
				r.backendURL = v
			}
			if v, ok := store.GetInt(config.KeyGatewayPort); ok {
				r.persisted = v
				if r.port == 0 {
					r.port = v
				}
			}
		}
	}

	if r.model == "" {
		r.model = "llama3"
	}
	if r.port == 0 {
		r.port = portLow
	}
	return r
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
